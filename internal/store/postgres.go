package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/doctrans/internal/db"
	"github.com/sells-group/doctrans/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries prepared on each new connection.
var preparedStatements = map[string]string{
	"insert_task":  `INSERT INTO translation_tasks (id, type, status, stage, editor_id, data, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
	"get_task":     `SELECT data FROM translation_tasks WHERE id = $1`,
	"save_task":    `UPDATE translation_tasks SET type = $1, status = $2, stage = $3, editor_id = $4, data = $5, updated_at = $6 WHERE id = $7`,
	"get_segments": `SELECT data FROM segments WHERE task_id = $1 ORDER BY ord`,
	"save_segment": postgresUpsertSegment,
}

const postgresUpsertSegment = `INSERT INTO segments (id, task_id, ord, data, updated_at) VALUES ($1, $2, $3, $4, $5) ON CONFLICT (id) DO UPDATE SET ord = EXCLUDED.ord, data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS translation_tasks (
	id         TEXT PRIMARY KEY,
	type       TEXT NOT NULL,
	status     TEXT NOT NULL,
	stage      TEXT NOT NULL,
	editor_id  TEXT NOT NULL DEFAULT '',
	data       JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS segments (
	id         TEXT PRIMARY KEY,
	task_id    TEXT NOT NULL REFERENCES translation_tasks(id),
	ord        INTEGER NOT NULL,
	data       JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (task_id, ord)
);

CREATE TABLE IF NOT EXISTS sensitive_data_mappings (
	id               TEXT PRIMARY KEY,
	segment_id       TEXT NOT NULL REFERENCES segments(id),
	token_identifier TEXT NOT NULL,
	sensitive_type   TEXT NOT NULL,
	original_value   TEXT NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_tasks_status_stage ON translation_tasks(status, stage);
CREATE INDEX IF NOT EXISTS idx_tasks_editor ON translation_tasks(editor_id);
CREATE INDEX IF NOT EXISTS idx_segments_task_id ON segments(task_id);
CREATE INDEX IF NOT EXISTS idx_mappings_segment_id ON sensitive_data_mappings(segment_id);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateTask(ctx context.Context, task *model.TranslationTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal task")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO translation_tasks (id, type, status, stage, editor_id, data, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		task.ID, string(task.Type), string(task.Status), string(task.Stage), task.EditorID, data, task.CreatedAt, task.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: insert task %s", task.ID)
}

func (s *PostgresStore) GetTask(ctx context.Context, id string) (*model.TranslationTask, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM translation_tasks WHERE id = $1`, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "task %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get task %s", id)
	}
	return decodeTask(data)
}

func (s *PostgresStore) SaveTask(ctx context.Context, task *model.TranslationTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal task")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE translation_tasks SET type = $1, status = $2, stage = $3, editor_id = $4, data = $5, updated_at = $6 WHERE id = $7`,
		string(task.Type), string(task.Status), string(task.Stage), task.EditorID, data, task.UpdatedAt, task.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: save task %s", task.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "task %s", task.ID)
	}
	return nil
}

func (s *PostgresStore) ListTasks(ctx context.Context, filter TaskFilter) ([]model.TranslationTask, error) {
	query := `SELECT data FROM translation_tasks WHERE true`
	args := []any{}
	argIdx := 1

	add := func(clause string, v any) {
		query += fmt.Sprintf(clause, argIdx)
		args = append(args, v)
		argIdx++
	}
	if filter.Status != "" {
		add(` AND status = $%d`, string(filter.Status))
	}
	if filter.Stage != "" {
		add(` AND stage = $%d`, string(filter.Stage))
	}
	if filter.Type != "" {
		add(` AND type = $%d`, string(filter.Type))
	}
	if filter.EditorID != "" {
		add(` AND editor_id = $%d`, filter.EditorID)
	}
	query += ` ORDER BY created_at DESC, id`
	add(` LIMIT $%d`, listLimit(filter))
	if filter.Offset > 0 {
		add(` OFFSET $%d`, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list tasks")
	}
	defer rows.Close()

	var tasks []model.TranslationTask
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan task")
		}
		t, err := decodeTask(data)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	return tasks, eris.Wrap(rows.Err(), "postgres: list tasks iterate")
}

func (s *PostgresStore) CountTasks(ctx context.Context) ([]TaskCount, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT status, stage, COUNT(*) FROM translation_tasks GROUP BY status, stage ORDER BY status, stage`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count tasks")
	}
	defer rows.Close()

	var out []TaskCount
	for rows.Next() {
		var status, stage string
		var n int64
		if err := rows.Scan(&status, &stage, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan task count")
		}
		out = append(out, TaskCount{Status: model.TaskStatus(status), Stage: model.TaskStage(stage), Count: int(n)})
	}
	return out, eris.Wrap(rows.Err(), "postgres: count tasks iterate")
}

// SaveSegments upserts all segments in one COPY-backed statement.
func (s *PostgresStore) SaveSegments(ctx context.Context, segments []model.Segment) error {
	if len(segments) == 0 {
		return nil
	}
	rows := make([][]any, len(segments))
	for i, seg := range segments {
		data, err := json.Marshal(seg)
		if err != nil {
			return eris.Wrapf(err, "postgres: marshal segment %s", seg.ID)
		}
		rows[i] = []any{seg.ID, seg.TaskID, seg.Order, data, seg.UpdatedAt}
	}
	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "segments",
		Columns:      []string{"id", "task_id", "ord", "data", "updated_at"},
		ConflictKeys: []string{"id"},
		UpdateCols:   []string{"ord", "data", "updated_at"},
	}, rows)
	return eris.Wrap(err, "postgres: save segments")
}

func (s *PostgresStore) SaveSegment(ctx context.Context, segment model.Segment) error {
	data, err := json.Marshal(segment)
	if err != nil {
		return eris.Wrapf(err, "postgres: marshal segment %s", segment.ID)
	}
	_, err = s.pool.Exec(ctx, postgresUpsertSegment, segment.ID, segment.TaskID, segment.Order, data, segment.UpdatedAt)
	return eris.Wrapf(err, "postgres: upsert segment %s", segment.ID)
}

func (s *PostgresStore) GetSegments(ctx context.Context, taskID string) ([]model.Segment, error) {
	rows, err := s.pool.Query(ctx, `SELECT data FROM segments WHERE task_id = $1 ORDER BY ord`, taskID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get segments for task %s", taskID)
	}
	defer rows.Close()

	var out []model.Segment
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan segment")
		}
		seg, err := decodeSegment(data)
		if err != nil {
			return nil, err
		}
		out = append(out, *seg)
	}
	return out, eris.Wrap(rows.Err(), "postgres: get segments iterate")
}

// SaveMappings inserts mappings with COPY. Mappings are never updated.
func (s *PostgresStore) SaveMappings(ctx context.Context, mappings []model.SensitiveDataMapping) error {
	rows := make([][]any, len(mappings))
	for i, m := range mappings {
		rows[i] = []any{m.ID, m.SegmentID, m.TokenIdentifier, m.SensitiveType, m.OriginalValue, m.CreatedAt}
	}
	_, err := db.CopyFrom(ctx, s.pool, "sensitive_data_mappings",
		[]string{"id", "segment_id", "token_identifier", "sensitive_type", "original_value", "created_at"}, rows)
	return eris.Wrap(err, "postgres: save mappings")
}

func (s *PostgresStore) GetMappings(ctx context.Context, taskID string) ([]model.SensitiveDataMapping, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT m.id, m.segment_id, m.token_identifier, m.sensitive_type, m.original_value, m.created_at
		FROM sensitive_data_mappings m
		JOIN segments s ON s.id = m.segment_id
		WHERE s.task_id = $1
		ORDER BY s.ord, m.created_at, m.id`, taskID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get mappings for task %s", taskID)
	}
	defer rows.Close()

	var out []model.SensitiveDataMapping
	for rows.Next() {
		var m model.SensitiveDataMapping
		if err := rows.Scan(&m.ID, &m.SegmentID, &m.TokenIdentifier, &m.SensitiveType, &m.OriginalValue, &m.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan mapping")
		}
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "postgres: get mappings iterate")
}
