// Package sqlite stores performance samples in an embedded SQLite database
// (modernc.org/sqlite, no cgo) with goose-managed migrations.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // Register the "sqlite" database/sql driver

	"github.com/hexswarm/hexswarm/internal/domain/performance"
	"github.com/hexswarm/hexswarm/internal/domain/task"
	"github.com/hexswarm/hexswarm/internal/port/perfstore"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store is a perfstore.Store on SQLite.
type Store struct {
	db *sql.DB
}

var _ perfstore.Store = (*Store)(nil)

// Open opens (creating if needed) the database at path and applies all
// pending migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	if err := RunMigrations(ctx, path); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Several agent processes may share one database file.
	for _, pragma := range []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA busy_timeout=5000;`,
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite %s: %w", pragma, err)
		}
	}
	return &Store{db: db}, nil
}

// RunMigrations applies all pending goose migrations from the embedded SQL files.
func RunMigrations(ctx context.Context, path string) error {
	goose.SetBaseFS(migrations)

	db, err := goose.OpenDBWithDriver("sqlite", path)
	if err != nil {
		return fmt.Errorf("open db for migrations: %w", err)
	}
	defer func() { _ = db.Close() }()

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record appends one sample.
func (s *Store) Record(ctx context.Context, smp performance.Sample) error {
	at := smp.RecordedAt
	if at.IsZero() {
		at = task.Now()
	}
	success := 0
	if smp.Success {
		success = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agent_performance (recorded_at, agent_name, task_type, success, duration_seconds, tokens_used)
		VALUES (?, ?, ?, ?, ?, ?)`,
		at.UTC().Format(time.RFC3339Nano), smp.Agent, string(smp.TaskType), success, smp.DurationSeconds, smp.TokensUsed,
	)
	if err != nil {
		return fmt.Errorf("insert performance sample: %w", err)
	}
	return nil
}

// Report aggregates the samples of agent per task type.
func (s *Store) Report(ctx context.Context, agent string) (performance.Report, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
		  task_type,
		  SUM(CASE WHEN success = 1 THEN 1 ELSE 0 END),
		  SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END),
		  COUNT(*),
		  COALESCE(AVG(duration_seconds), 0),
		  COALESCE(AVG(tokens_used), 0)
		FROM agent_performance
		WHERE agent_name = ?
		GROUP BY task_type
		ORDER BY task_type`, agent)
	if err != nil {
		return performance.Report{}, fmt.Errorf("query performance: %w", err)
	}
	defer func() { _ = rows.Close() }()

	rep := performance.Report{Agent: agent, Stats: map[string]performance.Stats{}}
	for rows.Next() {
		var st performance.Stats
		var tt string
		if err := rows.Scan(&tt, &st.Success, &st.Failure, &st.N, &st.AvgDurationSeconds, &st.AvgTokensUsed); err != nil {
			return performance.Report{}, fmt.Errorf("scan performance row: %w", err)
		}
		st.TaskType = task.Type(tt)
		rep.Stats[tt] = st
	}
	if err := rows.Err(); err != nil {
		return performance.Report{}, fmt.Errorf("iterate performance rows: %w", err)
	}
	return rep, nil
}
