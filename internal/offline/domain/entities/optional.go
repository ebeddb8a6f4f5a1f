package entities

import "encoding/json"

// Optional - поле патча с тремя состояниями: не передано, передано как null, передано со значением.
type Optional[T any] struct {
	Set   bool
	Value *T
}

// Some возвращает поле со значением.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Set: true, Value: &v}
}

// Null возвращает поле, явно сбрасывающее значение.
func Null[T any]() Optional[T] {
	return Optional[T]{Set: true}
}

// IsZero сообщает, что поле не передано. Используется тегом omitzero.
func (o Optional[T]) IsZero() bool {
	return !o.Set
}

func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if o.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*o.Value)
}

func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	if string(data) == "null" {
		o.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	o.Value = &v
	return nil
}
