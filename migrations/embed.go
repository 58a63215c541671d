// Package migrations embeds the SQL schema files into the binary so
// the controller can migrate its database without shipping loose .sql
// files alongside the executable.
package migrations

import (
	"embed"

	"github.com/openpatch/autopatch-core/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "." // files sit at the root of the embedded FS
}
