package db

import (
	"fmt"
	"strconv"
	"strings"
)

type dialect struct {
	name   string // migration directory and golang-migrate driver name
	driver string // database/sql driver name
}

var (
	sqliteDialect   = dialect{name: "sqlite3", driver: "sqlite3"}
	postgresDialect = dialect{name: "postgres", driver: "postgres"}
)

const sqliteParams = "_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL"

// parseURL returns the dialect for databaseURL together with the DSN that
// database/sql should be opened with.
func parseURL(databaseURL string) (dialect, string, error) {
	switch {
	case strings.HasPrefix(databaseURL, "sqlite3://"):
		path := strings.TrimPrefix(databaseURL, "sqlite3://")
		if path == "" {
			return dialect{}, "", fmt.Errorf("sqlite3 url %q has no path", databaseURL)
		}
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		return sqliteDialect, path + sep + sqliteParams, nil
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return postgresDialect, databaseURL, nil
	default:
		return dialect{}, "", fmt.Errorf("unsupported database url %q", databaseURL)
	}
}

// rebind rewrites ? placeholders into the dialect's bind syntax.
func (d dialect) rebind(query string) string {
	if d != postgresDialect {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
