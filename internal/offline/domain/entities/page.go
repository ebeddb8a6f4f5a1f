package entities

// Источники страницы заметок.
const (
	SourceRemote = "remote"
	SourceLocal  = "local"
)

// DefaultLocalLimit - размер страницы локального списка по умолчанию.
const DefaultLocalLimit = 50

// ListQuery - фильтры и пагинация списка заметок.
type ListQuery struct {
	Page       int
	Limit      int
	Search     string
	CategoryID string
	TagID      string
}

// Pagination описывает страницу результата.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// NotePage - страница списка заметок.
type NotePage struct {
	Notes      []*Note    `json:"notes"`
	Pagination Pagination `json:"pagination"`
	Source     string     `json:"source,omitempty"`
}

// Paginate вырезает страницу из уже отфильтрованного списка.
func Paginate(notes []*Note, page, limit int) *NotePage {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultLocalLimit
	}

	total := len(notes)
	totalPages := total / limit
	if total%limit != 0 {
		totalPages++
	}

	start, end := total, total
	if page <= totalPages {
		start = (page - 1) * limit
		end = min(start+limit, total)
	}

	return &NotePage{
		Notes: notes[start:end],
		Pagination: Pagination{
			Page:       page,
			Limit:      limit,
			Total:      total,
			TotalPages: totalPages,
		},
	}
}
