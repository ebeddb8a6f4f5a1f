// Package offline встраивает SQL-миграции локального хранилища синхронизации.
package offline

import "embed"

// FS содержит файлы миграций в формате golang-migrate.
//
//go:embed *.sql
var FS embed.FS
