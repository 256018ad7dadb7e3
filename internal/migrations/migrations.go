// Package migrations embeds the Postgres schema so binaries do not depend on
// the working directory.
package migrations

import (
	"embed"
	"io/fs"
	"sort"
)

//go:embed postgres/*.sql
var postgresFS embed.FS

// Migration is one schema file, applied in name order.
type Migration struct {
	Name string
	SQL  string
}

// Postgres returns the embedded Postgres migrations sorted by file name.
func Postgres() ([]Migration, error) {
	entries, err := fs.ReadDir(postgresFS, "postgres")
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	out := make([]Migration, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		b, err := fs.ReadFile(postgresFS, "postgres/"+e.Name())
		if err != nil {
			return nil, err
		}
		out = append(out, Migration{Name: e.Name(), SQL: string(b)})
	}
	return out, nil
}
