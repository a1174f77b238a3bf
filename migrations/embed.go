// Package migrations embeds the SQL schema files so the binary can migrate
// a fresh database without the files on disk. Import it for side effects.
package migrations

import (
	"embed"

	"github.com/rodolfodiegosilva/iot-system-api/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
