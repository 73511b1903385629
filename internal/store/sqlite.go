package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/doctrans/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS translation_tasks (
	id         TEXT PRIMARY KEY,
	type       TEXT NOT NULL,
	status     TEXT NOT NULL,
	stage      TEXT NOT NULL,
	editor_id  TEXT NOT NULL DEFAULT '',
	data       TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS segments (
	id         TEXT PRIMARY KEY,
	task_id    TEXT NOT NULL REFERENCES translation_tasks(id),
	ord        INTEGER NOT NULL,
	data       TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	UNIQUE (task_id, ord)
);

CREATE TABLE IF NOT EXISTS sensitive_data_mappings (
	id               TEXT PRIMARY KEY,
	segment_id       TEXT NOT NULL REFERENCES segments(id),
	token_identifier TEXT NOT NULL,
	sensitive_type   TEXT NOT NULL,
	original_value   TEXT NOT NULL,
	created_at       TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tasks_status_stage ON translation_tasks(status, stage);
CREATE INDEX IF NOT EXISTS idx_tasks_editor ON translation_tasks(editor_id);
CREATE INDEX IF NOT EXISTS idx_segments_task_id ON segments(task_id);
CREATE INDEX IF NOT EXISTS idx_mappings_segment_id ON sensitive_data_mappings(segment_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateTask(ctx context.Context, task *model.TranslationTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal task")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO translation_tasks (id, type, status, stage, editor_id, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID, string(task.Type), string(task.Status), string(task.Stage), task.EditorID, string(data), sqliteTime(task.CreatedAt), sqliteTime(task.UpdatedAt),
	)
	return eris.Wrapf(err, "sqlite: insert task %s", task.ID)
}

func (s *SQLiteStore) GetTask(ctx context.Context, id string) (*model.TranslationTask, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM translation_tasks WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "task %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get task %s", id)
	}
	return decodeTask([]byte(data))
}

func (s *SQLiteStore) SaveTask(ctx context.Context, task *model.TranslationTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal task")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE translation_tasks SET type = ?, status = ?, stage = ?, editor_id = ?, data = ?, updated_at = ? WHERE id = ?`,
		string(task.Type), string(task.Status), string(task.Stage), task.EditorID, string(data), sqliteTime(task.UpdatedAt), task.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: save task %s", task.ID)
	}
	return checkRowsAffected(res, task.ID)
}

func (s *SQLiteStore) ListTasks(ctx context.Context, filter TaskFilter) ([]model.TranslationTask, error) {
	query := `SELECT data FROM translation_tasks WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Stage != "" {
		query += ` AND stage = ?`
		args = append(args, string(filter.Stage))
	}
	if filter.Type != "" {
		query += ` AND type = ?`
		args = append(args, string(filter.Type))
	}
	if filter.EditorID != "" {
		query += ` AND editor_id = ?`
		args = append(args, filter.EditorID)
	}
	query += ` ORDER BY created_at DESC, id LIMIT ?`
	args = append(args, listLimit(filter))

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list tasks")
	}
	defer rows.Close() //nolint:errcheck

	var tasks []model.TranslationTask
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan task")
		}
		t, err := decodeTask([]byte(data))
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	return tasks, eris.Wrap(rows.Err(), "sqlite: list tasks iterate")
}

func (s *SQLiteStore) CountTasks(ctx context.Context) ([]TaskCount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, stage, COUNT(*) FROM translation_tasks GROUP BY status, stage ORDER BY status, stage`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count tasks")
	}
	defer rows.Close() //nolint:errcheck

	var out []TaskCount
	for rows.Next() {
		var c TaskCount
		if err := rows.Scan(&c.Status, &c.Stage, &c.Count); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan task count")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: count tasks iterate")
}

const sqliteUpsertSegment = `
INSERT INTO segments (id, task_id, ord, data, updated_at) VALUES (?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET ord = excluded.ord, data = excluded.data, updated_at = excluded.updated_at`

func (s *SQLiteStore) SaveSegments(ctx context.Context, segments []model.Segment) error {
	if len(segments) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save segments")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, sqliteUpsertSegment)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare upsert segment")
	}
	defer stmt.Close() //nolint:errcheck

	for _, seg := range segments {
		data, err := json.Marshal(seg)
		if err != nil {
			return eris.Wrapf(err, "sqlite: marshal segment %s", seg.ID)
		}
		if _, err := stmt.ExecContext(ctx, seg.ID, seg.TaskID, seg.Order, string(data), sqliteTime(seg.UpdatedAt)); err != nil {
			return eris.Wrapf(err, "sqlite: upsert segment %s", seg.ID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit save segments")
}

func (s *SQLiteStore) SaveSegment(ctx context.Context, segment model.Segment) error {
	data, err := json.Marshal(segment)
	if err != nil {
		return eris.Wrapf(err, "sqlite: marshal segment %s", segment.ID)
	}
	_, err = s.db.ExecContext(ctx, sqliteUpsertSegment, segment.ID, segment.TaskID, segment.Order, string(data), sqliteTime(segment.UpdatedAt))
	return eris.Wrapf(err, "sqlite: upsert segment %s", segment.ID)
}

func (s *SQLiteStore) GetSegments(ctx context.Context, taskID string) ([]model.Segment, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM segments WHERE task_id = ? ORDER BY ord`, taskID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get segments for task %s", taskID)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Segment
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan segment")
		}
		seg, err := decodeSegment([]byte(data))
		if err != nil {
			return nil, err
		}
		out = append(out, *seg)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: get segments iterate")
}

func (s *SQLiteStore) SaveMappings(ctx context.Context, mappings []model.SensitiveDataMapping) error {
	if len(mappings) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save mappings")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO sensitive_data_mappings (id, segment_id, token_identifier, sensitive_type, original_value, created_at) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare insert mapping")
	}
	defer stmt.Close() //nolint:errcheck

	for _, m := range mappings {
		if _, err := stmt.ExecContext(ctx, m.ID, m.SegmentID, m.TokenIdentifier, m.SensitiveType, m.OriginalValue, sqliteTime(m.CreatedAt)); err != nil {
			return eris.Wrapf(err, "sqlite: insert mapping %s", m.ID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit save mappings")
}

func (s *SQLiteStore) GetMappings(ctx context.Context, taskID string) ([]model.SensitiveDataMapping, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.segment_id, m.token_identifier, m.sensitive_type, m.original_value, m.created_at
		FROM sensitive_data_mappings m
		JOIN segments s ON s.id = m.segment_id
		WHERE s.task_id = ?
		ORDER BY s.ord, m.rowid`, taskID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get mappings for task %s", taskID)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.SensitiveDataMapping
	for rows.Next() {
		var m model.SensitiveDataMapping
		var created string
		if err := rows.Scan(&m.ID, &m.SegmentID, &m.TokenIdentifier, &m.SensitiveType, &m.OriginalValue, &created); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan mapping")
		}
		if m.CreatedAt, err = time.Parse(sqliteTimeFormat, created); err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse mapping %s created_at", m.ID)
		}
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: get mappings iterate")
}

// sqliteTimeFormat is fixed width so TEXT columns sort chronologically.
const sqliteTimeFormat = "2006-01-02T15:04:05.000000000Z"

func sqliteTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeFormat)
}

func checkRowsAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "task %s", id)
	}
	return nil
}

func decodeTask(data []byte) (*model.TranslationTask, error) {
	var t model.TranslationTask
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal task")
	}
	return &t, nil
}

func decodeSegment(data []byte) (*model.Segment, error) {
	var s model.Segment
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal segment")
	}
	return &s, nil
}
