package db

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/jwulff/ragscope/internal/timing"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// ErrNotFound is returned when a requested run does not exist.
var ErrNotFound = errors.New("run not found")

// Store is the run-history database.
type Store struct {
	db      *sql.DB
	maxRuns int
}

// Open opens (creating if needed) the history database at path and applies
// migrations. maxRuns > 0 prunes older runs on every save.
func Open(path string, maxRuns int) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	return &Store{db: db, maxRuns: maxRuns}, nil
}

// OpenReadOnly opens an existing history database without migrating it.
func OpenReadOnly(path string) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?mode=ro&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return err
	}

	var current int
	if err := db.QueryRow(`SELECT COALESCE(MAX(version), -1) FROM schema_version`).Scan(&current); err != nil {
		return err
	}

	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	for i := current + 1; i < len(entries); i++ {
		data, err := migrationFS.ReadFile("migrations/" + entries[i].Name())
		if err != nil {
			return fmt.Errorf("read migration %d: %w", i, err)
		}
		if _, err := db.Exec(string(data)); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
		if _, err := db.Exec(`INSERT INTO schema_version (version) VALUES (?)`, i); err != nil {
			return fmt.Errorf("migration %d record: %w", i, err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRun inserts r under a new id, prunes old runs and returns the id.
func (s *Store) SaveRun(ctx context.Context, r Run) (string, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}

	var receivedAt sql.NullFloat64
	if r.ReceivedAt != nil {
		receivedAt = sql.NullFloat64{Float64: unixFromTime(*r.ReceivedAt), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, query, pipelineType, status, error, answer,
			totalMs, embeddingMs, searchMs, contextMs, llmMs, receivedAt, finishedAt)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.Query, r.PipelineType, r.Status, r.Error, r.Answer,
		r.TotalMs, r.StageMs[timing.Embedding], r.StageMs[timing.Search],
		r.StageMs[timing.Context], r.StageMs[timing.LLM],
		receivedAt, unixFromTime(r.FinishedAt))
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	if s.maxRuns > 0 {
		if _, err := s.db.ExecContext(ctx, `
			DELETE FROM runs WHERE id NOT IN (
				SELECT id FROM runs ORDER BY finishedAt DESC LIMIT ?
			)
		`, s.maxRuns); err != nil {
			return r.ID, fmt.Errorf("prune runs: %w", err)
		}
	}

	return r.ID, nil
}

const runColumns = `id, query, pipelineType, status, error, answer,
	totalMs, embeddingMs, searchMs, contextMs, llmMs, receivedAt, finishedAt`

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		ORDER BY finishedAt DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun returns the run with the given id.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// LatestRun returns the most recently finished run.
func (s *Store) LatestRun(ctx context.Context) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY finishedAt DESC LIMIT 1`)
	r, err := scanRun(row)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// CountRuns returns the number of stored runs.
func (s *Store) CountRuns(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count runs: %w", err)
	}
	return n, nil
}

// stageColumns maps each timed stage to its column. Fixed identifiers only.
var stageColumns = [4]string{
	timing.Embedding: "embeddingMs",
	timing.Search:    "searchMs",
	timing.Context:   "contextMs",
	timing.LLM:       "llmMs",
}

// StageStats aggregates every stage over completed runs in which that stage
// recorded a positive duration.
func (s *Store) StageStats(ctx context.Context) ([]StageStat, error) {
	stats := make([]StageStat, 0, len(stageColumns))
	for _, st := range timing.Stages() {
		col := stageColumns[st]
		var (
			n               int
			avg, minv, maxv sql.NullFloat64
		)
		err := s.db.QueryRowContext(ctx, `
			SELECT COUNT(*), AVG(`+col+`), MIN(`+col+`), MAX(`+col+`)
			FROM runs
			WHERE status = 'completed' AND `+col+` > 0
		`).Scan(&n, &avg, &minv, &maxv)
		if err != nil {
			return nil, fmt.Errorf("stage stats %s: %w", st.Key(), err)
		}
		stats = append(stats, StageStat{
			Stage: st,
			Runs:  n,
			AvgMs: avg.Float64,
			MinMs: minv.Float64,
			MaxMs: maxv.Float64,
		})
	}
	return stats, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var (
		r          Run
		receivedAt sql.NullFloat64
		finishedAt float64
	)
	err := sc.Scan(&r.ID, &r.Query, &r.PipelineType, &r.Status, &r.Error, &r.Answer,
		&r.TotalMs, &r.StageMs[timing.Embedding], &r.StageMs[timing.Search],
		&r.StageMs[timing.Context], &r.StageMs[timing.LLM],
		&receivedAt, &finishedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, ErrNotFound
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}

	r.FinishedAt = timeFromUnix(finishedAt)
	if receivedAt.Valid {
		t := timeFromUnix(receivedAt.Float64)
		r.ReceivedAt = &t
	}
	return r, nil
}

func unixFromTime(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func timeFromUnix(ts float64) time.Time {
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}
