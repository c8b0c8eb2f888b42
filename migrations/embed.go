// Package migrations embeds the audit log schema into the binary.
package migrations

import (
	"embed"

	"github.com/nerrad567/gpio-remote/internal/infrastructure/database"
)

//go:embed sqlite/*.sql postgres/*.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
