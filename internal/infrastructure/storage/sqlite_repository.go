package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"QAForge/internal/domain"
	"QAForge/internal/ports"
)

// keyBatch bounds the number of bound parameters per statement.
const keyBatch = 400

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	state       TEXT NOT NULL,
	output_path TEXT NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	stats       TEXT NOT NULL,
	started_at  TEXT NOT NULL,
	finished_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS runs_started_at ON runs (started_at);
CREATE TABLE IF NOT EXISTS seen_questions (
	question_key TEXT PRIMARY KEY,
	run_id       TEXT NOT NULL,
	created_at   TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);`

// SQLiteRepository persists run history and written question keys.
type SQLiteRepository struct {
	db   *sql.DB
	psql sq.StatementBuilderType
}

var _ ports.RunRepository = (*SQLiteRepository)(nil)

// OpenSQLite opens (and creates when missing) the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteRepository, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return NewSQLiteRepository(db), nil
}

// NewSQLiteRepository wires an already migrated sql.DB.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{
		db:   db,
		psql: sq.StatementBuilder.PlaceholderFormat(sq.Question),
	}
}

// Close releases the database handle.
func (r *SQLiteRepository) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

// SaveRun upserts the run summary.
func (r *SQLiteRepository) SaveRun(ctx context.Context, run domain.RunRecord) error {
	if r.db == nil {
		return nil
	}

	stats, err := json.Marshal(run.Stats)
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}

	_, err = r.psql.Insert("runs").
		Columns("id", "name", "state", "output_path", "error", "stats", "started_at", "finished_at").
		Values(run.ID, run.Name, string(run.State), run.OutputPath, run.Error, string(stats),
			formatTime(run.StartedAt), formatTime(run.FinishedAt)).
		Suffix(`ON CONFLICT (id) DO UPDATE
			SET state = excluded.state,
			    error = excluded.error,
			    stats = excluded.stats,
			    finished_at = excluded.finished_at`).
		RunWith(r.db).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("upsert run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs first. limit <= 0 returns all.
func (r *SQLiteRepository) ListRuns(ctx context.Context, limit int) ([]domain.RunRecord, error) {
	if r.db == nil {
		return nil, nil
	}

	query := r.psql.Select("id", "name", "state", "output_path", "error", "stats", "started_at", "finished_at").
		From("runs").
		OrderBy("started_at DESC", "id")
	if limit > 0 {
		query = query.Limit(uint64(limit))
	}

	rows, err := query.RunWith(r.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []domain.RunRecord
	for rows.Next() {
		var (
			rec               domain.RunRecord
			state, stats      string
			started, finished string
		)
		if err := rows.Scan(&rec.ID, &rec.Name, &state, &rec.OutputPath, &rec.Error, &stats, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		rec.State = domain.RunState(state)
		if err := json.Unmarshal([]byte(stats), &rec.Stats); err != nil {
			return nil, fmt.Errorf("decode stats of run %s: %w", rec.ID, err)
		}
		if rec.StartedAt, err = parseTime(started); err != nil {
			return nil, fmt.Errorf("decode start of run %s: %w", rec.ID, err)
		}
		if rec.FinishedAt, err = parseTime(finished); err != nil {
			return nil, fmt.Errorf("decode finish of run %s: %w", rec.ID, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

// SeenQuestions returns the subset of keys already written by earlier runs.
func (r *SQLiteRepository) SeenQuestions(ctx context.Context, keys []string) (map[string]bool, error) {
	result := make(map[string]bool)
	if r.db == nil || len(keys) == 0 {
		return result, nil
	}

	for start := 0; start < len(keys); start += keyBatch {
		batch := keys[start:min(start+keyBatch, len(keys))]
		rows, err := r.psql.Select("question_key").
			From("seen_questions").
			Where(sq.Eq{"question_key": batch}).
			RunWith(r.db).
			QueryContext(ctx)
		if err != nil {
			return nil, fmt.Errorf("query seen questions: %w", err)
		}
		for rows.Next() {
			var key string
			if err := rows.Scan(&key); err != nil {
				_ = rows.Close()
				return nil, fmt.Errorf("scan key: %w", err)
			}
			result[key] = true
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("rows iteration: %w", err)
		}
		if err := rows.Close(); err != nil {
			return nil, fmt.Errorf("close rows: %w", err)
		}
	}
	return result, nil
}

// RememberQuestions stores keys written by runID. Keys already present keep
// the run that first wrote them.
func (r *SQLiteRepository) RememberQuestions(ctx context.Context, runID string, keys []string) error {
	if r.db == nil || len(keys) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for start := 0; start < len(keys); start += keyBatch {
		insert := r.psql.Insert("seen_questions").Columns("question_key", "run_id")
		for _, key := range keys[start:min(start+keyBatch, len(keys))] {
			insert = insert.Values(key, runID)
		}
		if _, err := insert.Suffix("ON CONFLICT (question_key) DO NOTHING").RunWith(tx).ExecContext(ctx); err != nil {
			return fmt.Errorf("insert question keys: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit question keys: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
