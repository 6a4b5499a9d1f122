// Package sqlexport writes the index into an SQLite database for ad-hoc
// queries, e.g.:
//
//	SELECT deb_url, path FROM build_ids WHERE build_id = '99c2…';
package sqlexport

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/Debian/buildidx/internal/index"
)

const schema = `
CREATE TABLE debs (
	deb_url TEXT PRIMARY KEY,
	build_ids INTEGER NOT NULL
);

CREATE TABLE build_ids (
	build_id TEXT NOT NULL,
	path TEXT NOT NULL,
	deb_url TEXT NOT NULL REFERENCES debs(deb_url)
);

CREATE INDEX idx_build_ids_build_id ON build_ids(build_id);
`

// Stats describes an export.
type Stats struct {
	Debs    int
	Records int
}

// Export replaces the database at dest with the contents of entries. The
// database is built next to dest and renamed into place once complete.
func Export(ctx context.Context, dest string, entries map[string]index.Entry) (_ Stats, err error) {
	f, err := os.CreateTemp(filepath.Dir(dest), "buildidx-*.db")
	if err != nil {
		return Stats{}, err
	}
	tmp := f.Name()
	if err := f.Close(); err != nil {
		return Stats{}, err
	}
	defer func() {
		if err != nil {
			os.Remove(tmp)
		}
	}()

	db, err := sql.Open("sqlite", tmp+"?mode=rwc")
	if err != nil {
		return Stats{}, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)
	stats, err := fill(ctx, db, entries)
	if cerr := db.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		return Stats{}, err
	}
	if err := os.Chmod(tmp, 0644); err != nil {
		return Stats{}, err
	}
	return stats, os.Rename(tmp, dest)
}

func fill(ctx context.Context, db *sql.DB, entries map[string]index.Entry) (Stats, error) {
	var stats Stats
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return stats, fmt.Errorf("creating tables: %w", err)
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return stats, err
	}
	defer tx.Rollback()

	insertDeb, err := tx.PrepareContext(ctx, `INSERT INTO debs (deb_url, build_ids) VALUES (?, ?)`)
	if err != nil {
		return stats, err
	}
	defer insertDeb.Close()
	insertRecord, err := tx.PrepareContext(ctx, `INSERT INTO build_ids (build_id, path, deb_url) VALUES (?, ?, ?)`)
	if err != nil {
		return stats, err
	}
	defer insertRecord.Close()

	urls := make([]string, 0, len(entries))
	for u := range entries {
		urls = append(urls, u)
	}
	sort.Strings(urls)
	for _, u := range urls {
		entry := entries[u]
		if _, err := insertDeb.ExecContext(ctx, u, len(entry)); err != nil {
			return stats, fmt.Errorf("inserting %s: %w", u, err)
		}
		for _, r := range entry {
			if _, err := insertRecord.ExecContext(ctx, r.BuildID, r.Path, u); err != nil {
				return stats, fmt.Errorf("inserting %s: %w", u, err)
			}
		}
		stats.Debs++
		stats.Records += len(entry)
	}
	return stats, tx.Commit()
}
