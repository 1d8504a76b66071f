package migrate

import (
	"fmt"
	"io/fs"
	"regexp"
	"strings"
)

var migrationNameRe = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)

const (
	upMarker   = "-- +goose Up"
	downMarker = "-- +goose Down"
)

// ValidateEmbedded checks the migrations compiled into the binary.
func ValidateEmbedded() error {
	sub, err := fs.Sub(embedded, embeddedDir)
	if err != nil {
		return fmt.Errorf("open embedded migrations: %w", err)
	}
	return Validate(sub)
}

// Validate checks every .sql file at the root of fsys: the name carries a
// unique 14 digit version, and the body has a non-empty Up section followed
// by a Down section. An empty set is an error since the kv schema must exist.
func Validate(fsys fs.FS) error {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}

	seen := map[string]string{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}

		m := migrationNameRe.FindStringSubmatch(name)
		if m == nil {
			return fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name)
		}
		if prev, ok := seen[m[1]]; ok {
			return fmt.Errorf("duplicate migration version %s in %q and %q", m[1], prev, name)
		}
		seen[m[1]] = name

		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("read migration %q: %w", name, err)
		}
		if err := checkSections(string(data)); err != nil {
			return fmt.Errorf("migration %q: %w", name, err)
		}
	}

	if len(seen) == 0 {
		return fmt.Errorf("no migrations found")
	}
	return nil
}

func checkSections(body string) error {
	up := strings.Index(body, upMarker)
	if up < 0 {
		return fmt.Errorf("missing %q", upMarker)
	}
	down := strings.Index(body, downMarker)
	if down < 0 {
		return fmt.Errorf("missing %q", downMarker)
	}
	if down < up {
		return fmt.Errorf("%q must come before %q", upMarker, downMarker)
	}
	if strings.TrimSpace(stripStatementMarkers(body[up+len(upMarker):down])) == "" {
		return fmt.Errorf("empty %q section", upMarker)
	}
	return nil
}

// stripStatementMarkers drops goose annotation lines so they do not count as SQL.
func stripStatementMarkers(section string) string {
	var b strings.Builder
	for _, line := range strings.Split(section, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "-- +goose") {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}
