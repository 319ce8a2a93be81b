// Package stubstore implements the relational backing store shared by the
// Stub Record Store (spec.md §4.6, C6) and the adjacent persisted tables
// named in §6 (drives, tasks, run_logs). There is no file_snapshots table,
// and stub_records.parent_id does not stand in for one — see DESIGN.md.
// One *sql.DB,
// migrated with goose v3 against an embedded migration set, grounded in
// the teacher's internal/sync/migrations.go.
package stubstore

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // database/sql driver, registered as "sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Open opens (creating if absent) the SQLite database at path and applies
// every pending migration. A single connection is enforced
// (SetMaxOpenConns(1)) because modernc.org/sqlite serialises writers anyway
// and this keeps cross-statement invariants (e.g. the stub_records unique
// constraint checks) consistent without external locking.
func Open(ctx context.Context, path string, logger *slog.Logger) (*sql.DB, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("stubstore: opening database: %w", err)
	}

	db.SetMaxOpenConns(1)

	if err := migrate(ctx, db, logger); err != nil {
		db.Close()

		return nil, err
	}

	return db, nil
}

func migrate(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("stubstore: creating migration sub-filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, subFS)
	if err != nil {
		return fmt.Errorf("stubstore: creating migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("stubstore: running migrations: %w", err)
	}

	for _, r := range results {
		logger.Info("applied migration",
			slog.String("source", r.Source.Path),
			slog.Int64("duration_ms", r.Duration.Milliseconds()),
		)
	}

	return nil
}
