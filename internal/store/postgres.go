package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/deeplydigital/pole-burndown/internal/db"
	"github.com/deeplydigital/pole-burndown/internal/model"
	"github.com/deeplydigital/pole-burndown/internal/resilience"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

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

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresTables = `
CREATE TABLE IF NOT EXISTS job_metrics (
	id                   BIGSERIAL PRIMARY KEY,
	job_id               TEXT NOT NULL,
	job_name             TEXT NOT NULL DEFAULT '',
	status               TEXT NOT NULL,
	utility              TEXT NOT NULL,
	project              TEXT NOT NULL,
	total_poles          INTEGER NOT NULL DEFAULT 0,
	completed_poles      INTEGER NOT NULL DEFAULT 0,
	back_office_complete INTEGER NOT NULL DEFAULT 0,
	assigned_users       JSONB NOT NULL DEFAULT '[]',
	priority             INTEGER NOT NULL DEFAULT 3,
	target_date          TIMESTAMPTZ,
	timestamp            TIMESTAMPTZ NOT NULL,
	created_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS pole_metrics (
	id                   BIGSERIAL PRIMARY KEY,
	job_id               TEXT NOT NULL,
	node_id              TEXT NOT NULL,
	utility              TEXT NOT NULL,
	field_completed      BOOLEAN NOT NULL DEFAULT false,
	field_completed_by   TEXT NOT NULL DEFAULT '',
	back_office_complete BOOLEAN NOT NULL DEFAULT false,
	last_editor          TEXT NOT NULL DEFAULT '',
	last_edited_at       TIMESTAMPTZ,
	pole_height          TEXT NOT NULL DEFAULT '',
	pole_class           TEXT NOT NULL DEFAULT '',
	mr_status            TEXT NOT NULL DEFAULT '',
	poa_height_inches    INTEGER,
	timestamp            TIMESTAMPTZ NOT NULL,
	created_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS status_changes (
	id              BIGSERIAL PRIMARY KEY,
	job_id          TEXT NOT NULL,
	previous_status TEXT,
	new_status      TEXT NOT NULL,
	changed_at      TIMESTAMPTZ NOT NULL,
	changed_by      TEXT NOT NULL DEFAULT '',
	duration_hours  DOUBLE PRECISION,
	utility         TEXT NOT NULL DEFAULT '',
	total_poles     INTEGER NOT NULL DEFAULT 0,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS user_metrics (
	id              BIGSERIAL PRIMARY KEY,
	user_id         TEXT NOT NULL,
	job_id          TEXT NOT NULL,
	utility         TEXT NOT NULL DEFAULT '',
	role            TEXT NOT NULL,
	poles_completed INTEGER NOT NULL DEFAULT 0,
	timestamp       TIMESTAMPTZ NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS burndown_metrics (
	id                    BIGSERIAL PRIMARY KEY,
	entity_type           TEXT NOT NULL,
	entity                TEXT NOT NULL,
	date                  TIMESTAMPTZ NOT NULL,
	total_poles           INTEGER NOT NULL DEFAULT 0,
	completed_poles       INTEGER NOT NULL DEFAULT 0,
	run_rate              DOUBLE PRECISION NOT NULL DEFAULT 0,
	estimated_completion  TIMESTAMPTZ,
	field_resources       INTEGER NOT NULL DEFAULT 0,
	back_office_resources INTEGER NOT NULL DEFAULT 0,
	schedule_status       TEXT NOT NULL DEFAULT '',
	created_at            TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS dead_letter_queue (
	job_id         TEXT PRIMARY KEY,
	job_name       TEXT NOT NULL DEFAULT '',
	error          TEXT NOT NULL,
	error_class    TEXT NOT NULL DEFAULT 'transient',
	stage          TEXT NOT NULL DEFAULT '',
	retry_count    INTEGER NOT NULL DEFAULT 0,
	max_retries    INTEGER NOT NULL DEFAULT 3,
	next_retry_at  TIMESTAMPTZ NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_failed_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	kind        TEXT NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ,
	processed   INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0,
	skipped     INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_job_metrics_timestamp ON job_metrics(timestamp);
CREATE INDEX IF NOT EXISTS idx_status_changes_changed_at ON status_changes(changed_at);
CREATE INDEX IF NOT EXISTS idx_user_metrics_timestamp ON user_metrics(timestamp);
CREATE INDEX IF NOT EXISTS idx_burndown_date ON burndown_metrics(date);
CREATE INDEX IF NOT EXISTS idx_dlq_next_retry ON dead_letter_queue(next_retry_at);
`

var poleUpsert = db.UpsertConfig{
	Table: "pole_metrics",
	Columns: []string{
		"job_id", "node_id", "utility", "field_completed", "field_completed_by", "back_office_complete",
		"last_editor", "last_edited_at", "pole_height", "pole_class", "mr_status", "poa_height_inches",
		"timestamp", "created_at",
	},
	ConflictKeys: []string{"job_id", "node_id", "timestamp"},
	UpdateCols: []string{
		"utility", "field_completed", "field_completed_by", "back_office_complete", "last_editor",
		"last_edited_at", "pole_height", "pole_class", "mr_status", "poa_height_inches",
	},
}

var userUpsert = db.UpsertConfig{
	Table:        "user_metrics",
	Columns:      []string{"user_id", "job_id", "utility", "role", "poles_completed", "timestamp", "created_at"},
	ConflictKeys: []string{"user_id", "job_id", "role", "timestamp"},
	UpdateCols:   []string{"utility", "poles_completed"},
}

var burndownUpsert = db.UpsertConfig{
	Table: "burndown_metrics",
	Columns: []string{
		"entity_type", "entity", "date", "total_poles", "completed_poles", "run_rate",
		"estimated_completion", "field_resources", "back_office_resources", "schedule_status", "created_at",
	},
	ConflictKeys: []string{"entity_type", "entity", "date"},
	UpdateCols: []string{
		"total_poles", "completed_poles", "run_rate", "estimated_completion", "field_resources",
		"back_office_resources", "schedule_status",
	},
}

// Ping checks connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

// Migrate creates tables, collapses legacy duplicates, then adds the unique
// keys the upserts depend on.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresTables); err != nil {
		return eris.Wrap(err, "postgres: migrate tables")
	}
	if _, err := s.Dedupe(ctx); err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, uniqueKeys); err != nil {
		return eris.Wrap(err, "postgres: migrate unique keys")
	}
	return nil
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) RecordJob(ctx context.Context, snap model.Snapshot, ts time.Time) (*RecordResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: record job: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	jobID := snap.Job.ID
	prev, err := latestStatusPostgres(ctx, tx, jobID, stamp(ts))
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	jm := JobMetricOf(snap, ts)
	users, err := json.Marshal(nonNil(jm.AssignedUsers))
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal assigned users")
	}
	if _, err := tx.Exec(ctx, `INSERT INTO job_metrics
		(job_id, job_name, status, utility, project, total_poles, completed_poles, back_office_complete,
		 assigned_users, priority, target_date, timestamp, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (job_id, timestamp) DO UPDATE SET
		  job_name = EXCLUDED.job_name, status = EXCLUDED.status, utility = EXCLUDED.utility,
		  project = EXCLUDED.project, total_poles = EXCLUDED.total_poles,
		  completed_poles = EXCLUDED.completed_poles, back_office_complete = EXCLUDED.back_office_complete,
		  assigned_users = EXCLUDED.assigned_users, priority = EXCLUDED.priority,
		  target_date = EXCLUDED.target_date`,
		jm.JobID, jm.JobName, jm.Status, jm.Utility, jm.Project, jm.TotalPoles, jm.CompletedPoles,
		jm.BackOfficeDone, users, jm.Priority, jm.TargetDate, jm.Timestamp, now,
	); err != nil {
		return nil, eris.Wrapf(err, "postgres: upsert job metrics %s", jobID)
	}

	poles := PoleMetricsOf(snap, ts)
	poleRows := make([][]any, len(poles))
	for i, p := range poles {
		poleRows[i] = []any{
			p.JobID, p.NodeID, p.Utility, p.FieldCompleted, p.FieldCompletedBy, p.BackOfficeComplete,
			p.LastEditor, p.LastEditedAt, p.PoleHeight, p.PoleClass, string(p.MRStatus), p.POAHeightInches,
			p.Timestamp, now,
		}
	}
	if _, err := db.BulkUpsertTx(ctx, tx, poleUpsert, poleRows); err != nil {
		return nil, eris.Wrapf(err, "postgres: upsert pole metrics %s", jobID)
	}

	res := &RecordResult{Poles: len(poles)}
	if sc := nextStatusChange(prev, snap, ts); sc != nil {
		tag, err := tx.Exec(ctx, `INSERT INTO status_changes
			(job_id, previous_status, new_status, changed_at, changed_by, duration_hours, utility, total_poles, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (job_id, changed_at) DO NOTHING`,
			sc.JobID, sc.PreviousStatus, sc.NewStatus, sc.ChangedAt, sc.ChangedBy, sc.DurationHours,
			sc.Utility, sc.TotalPoles, now,
		)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: insert status change %s", jobID)
		}
		if tag.RowsAffected() > 0 {
			res.StatusChange = sc
		}
	}

	userMetrics := UserMetricsOf(snap, ts)
	userRows := make([][]any, len(userMetrics))
	for i, u := range userMetrics {
		userRows[i] = []any{u.UserID, u.JobID, u.Utility, string(u.Role), u.PolesCompleted, u.Timestamp, now}
	}
	if _, err := db.BulkUpsertTx(ctx, tx, userUpsert, userRows); err != nil {
		return nil, eris.Wrapf(err, "postgres: upsert user metrics %s", jobID)
	}
	res.Users = len(userMetrics)

	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrapf(err, "postgres: record job: commit %s", jobID)
	}
	return res, nil
}

func (s *PostgresStore) LatestJobStatus(ctx context.Context, jobID string) (*model.StatusChange, error) {
	return latestStatusPostgres(ctx, s.pool, jobID, time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC))
}

func latestStatusPostgres(ctx context.Context, q db.Querier, jobID string, asOf time.Time) (*model.StatusChange, error) {
	sc, err := scanStatusChange(q.QueryRow(ctx, `SELECT `+statusColumns+` FROM status_changes
		WHERE job_id = $1 AND changed_at <= $2 ORDER BY changed_at DESC LIMIT 1`, jobID, asOf))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: latest status %s", jobID)
	}
	sc.ChangedAt = sc.ChangedAt.UTC()
	return sc, nil
}

func (s *PostgresStore) ListJobMetrics(ctx context.Context, start, end time.Time) ([]model.JobMetric, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+jobColumns+` FROM job_metrics
		WHERE timestamp >= $1 AND timestamp < $2 ORDER BY timestamp, job_id`, stamp(start), stamp(end))
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list job metrics")
	}
	defer rows.Close()

	var out []model.JobMetric
	for rows.Next() {
		var m model.JobMetric
		var users []byte
		if err := rows.Scan(&m.JobID, &m.JobName, &m.Status, &m.Utility, &m.Project, &m.TotalPoles,
			&m.CompletedPoles, &m.BackOfficeDone, &users, &m.Priority, &m.TargetDate, &m.Timestamp); err != nil {
			return nil, eris.Wrap(err, "postgres: scan job metric")
		}
		if err := json.Unmarshal(users, &m.AssignedUsers); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal assigned users")
		}
		m.Timestamp = m.Timestamp.UTC()
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: list job metrics")
	}
	return out, nil
}

func (s *PostgresStore) ListPoleMetrics(ctx context.Context, jobID string, ts time.Time) ([]model.PoleMetric, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+poleColumns+` FROM pole_metrics
		WHERE job_id = $1 AND timestamp = $2 ORDER BY node_id`, jobID, stamp(ts))
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list pole metrics")
	}
	defer rows.Close()

	var out []model.PoleMetric
	for rows.Next() {
		var p model.PoleMetric
		var mr string
		if err := rows.Scan(&p.JobID, &p.NodeID, &p.Utility, &p.FieldCompleted, &p.FieldCompletedBy,
			&p.BackOfficeComplete, &p.LastEditor, &p.LastEditedAt, &p.PoleHeight, &p.PoleClass, &mr,
			&p.POAHeightInches, &p.Timestamp); err != nil {
			return nil, eris.Wrap(err, "postgres: scan pole metric")
		}
		p.MRStatus = model.MRStatus(mr)
		p.Timestamp = p.Timestamp.UTC()
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: list pole metrics")
	}
	return out, nil
}

func (s *PostgresStore) ListStatusChanges(ctx context.Context, start, end time.Time) ([]model.StatusChange, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+statusColumns+` FROM status_changes
		WHERE changed_at >= $1 AND changed_at < $2 ORDER BY changed_at, job_id`, stamp(start), stamp(end))
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list status changes")
	}
	defer rows.Close()

	var out []model.StatusChange
	for rows.Next() {
		sc, err := scanStatusChange(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan status change")
		}
		sc.ChangedAt = sc.ChangedAt.UTC()
		out = append(out, *sc)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: list status changes")
	}
	return out, nil
}

func (s *PostgresStore) ListUserMetrics(ctx context.Context, start, end time.Time) ([]model.UserMetric, error) {
	rows, err := s.pool.Query(ctx, `SELECT user_id, job_id, utility, role, poles_completed, timestamp
		FROM user_metrics WHERE timestamp >= $1 AND timestamp < $2 ORDER BY timestamp, user_id`,
		stamp(start), stamp(end))
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list user metrics")
	}
	defer rows.Close()

	var out []model.UserMetric
	for rows.Next() {
		var u model.UserMetric
		var role string
		if err := rows.Scan(&u.UserID, &u.JobID, &u.Utility, &role, &u.PolesCompleted, &u.Timestamp); err != nil {
			return nil, eris.Wrap(err, "postgres: scan user metric")
		}
		u.Role = model.Role(role)
		u.Timestamp = u.Timestamp.UTC()
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: list user metrics")
	}
	return out, nil
}

func (s *PostgresStore) UpsertBurndown(ctx context.Context, records []model.BurndownRecord) error {
	now := time.Now().UTC()
	rows := make([][]any, len(records))
	for i, r := range records {
		var eta *time.Time
		if r.EstimatedCompletion != nil {
			t := stamp(*r.EstimatedCompletion)
			eta = &t
		}
		rows[i] = []any{
			string(r.EntityType), r.Entity, stamp(r.Date), r.TotalPoles, r.CompletedPoles, r.RunRate,
			eta, r.FieldResources, r.BackOfficeResources, r.ScheduleStatus, now,
		}
	}
	if _, err := db.BulkUpsert(ctx, s.pool, burndownUpsert, rows); err != nil {
		return eris.Wrap(err, "postgres: upsert burndown")
	}
	return nil
}

func (s *PostgresStore) ListBurndown(ctx context.Context, start, end time.Time) ([]model.BurndownRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+burndownColumns+` FROM burndown_metrics
		WHERE date >= $1 AND date < $2 ORDER BY date, entity_type DESC, entity`, stamp(start), stamp(end))
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list burndown")
	}
	defer rows.Close()

	var out []model.BurndownRecord
	for rows.Next() {
		var r model.BurndownRecord
		var typ string
		if err := rows.Scan(&typ, &r.Entity, &r.Date, &r.TotalPoles, &r.CompletedPoles, &r.RunRate,
			&r.EstimatedCompletion, &r.FieldResources, &r.BackOfficeResources, &r.ScheduleStatus); err != nil {
			return nil, eris.Wrap(err, "postgres: scan burndown")
		}
		r.EntityType = model.EntityType(typ)
		r.Date = r.Date.UTC()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: list burndown")
	}
	return out, nil
}

// Dead letter queue methods

func (s *PostgresStore) EnqueueDLQ(ctx context.Context, e resilience.DLQEntry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO dead_letter_queue
		 (job_id, job_name, error, error_class, stage, retry_count, max_retries, next_retry_at, created_at, last_failed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (job_id) DO UPDATE SET
		   job_name = EXCLUDED.job_name, error = EXCLUDED.error, error_class = EXCLUDED.error_class,
		   stage = EXCLUDED.stage, retry_count = EXCLUDED.retry_count, max_retries = EXCLUDED.max_retries,
		   next_retry_at = EXCLUDED.next_retry_at, last_failed_at = EXCLUDED.last_failed_at`,
		e.JobID, e.JobName, e.Error, string(e.ErrorClass), e.Stage, e.RetryCount, e.MaxRetries,
		stamp(e.NextRetryAt), stamp(e.CreatedAt), stamp(e.LastFailedAt),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: enqueue dlq %s", e.JobID)
	}
	return nil
}

func (s *PostgresStore) DueDLQ(ctx context.Context, now time.Time, filter resilience.DLQFilter) ([]resilience.DLQEntry, error) {
	query := `SELECT ` + dlqColumns + ` FROM dead_letter_queue
		WHERE next_retry_at <= $1`
	args := []any{stamp(now)}
	if filter.ErrorClass != "" {
		query += ` AND error_class = $2 ORDER BY next_retry_at LIMIT $3`
		args = append(args, string(filter.ErrorClass))
	} else {
		query += ` ORDER BY next_retry_at LIMIT $2`
	}
	args = append(args, dlqLimit(filter))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: due dlq")
	}
	defer rows.Close()

	var out []resilience.DLQEntry
	for rows.Next() {
		var e resilience.DLQEntry
		var class string
		if err := rows.Scan(&e.JobID, &e.JobName, &e.Error, &class, &e.Stage, &e.RetryCount,
			&e.MaxRetries, &e.NextRetryAt, &e.CreatedAt, &e.LastFailedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan dlq entry")
		}
		e.ErrorClass = resilience.ErrorClass(class)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: due dlq")
	}
	return out, nil
}

func (s *PostgresStore) RemoveDLQ(ctx context.Context, jobID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM dead_letter_queue WHERE job_id = $1`, jobID); err != nil {
		return eris.Wrapf(err, "postgres: remove dlq %s", jobID)
	}
	return nil
}

func (s *PostgresStore) CountDLQ(ctx context.Context) (int, error) {
	var count int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM dead_letter_queue`).Scan(&count); err != nil {
		return 0, eris.Wrap(err, "postgres: count dlq")
	}
	return count, nil
}

// Runs

func (s *PostgresStore) StartRun(ctx context.Context, kind string, startedAt time.Time) (*Run, error) {
	run := &Run{ID: uuid.New().String(), Kind: kind, StartedAt: stamp(startedAt)}
	if _, err := s.pool.Exec(ctx, `INSERT INTO runs (id, kind, started_at) VALUES ($1, $2, $3)`,
		run.ID, run.Kind, run.StartedAt); err != nil {
		return nil, eris.Wrap(err, "postgres: start run")
	}
	return run, nil
}

func (s *PostgresStore) FinishRun(ctx context.Context, run *Run) error {
	finished := stamp(time.Now())
	if run.FinishedAt != nil {
		finished = stamp(*run.FinishedAt)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET finished_at = $1, processed = $2, failed = $3, skipped = $4 WHERE id = $5`,
		finished, run.Processed, run.Failed, run.Skipped, run.ID)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", run.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", run.ID)
	}
	run.FinishedAt = &finished
	return nil
}

// ListRuns returns runs started at or after since, oldest first.
func (s *PostgresStore) ListRuns(ctx context.Context, since time.Time) ([]Run, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, kind, started_at, finished_at, processed, failed, skipped
		FROM runs WHERE started_at >= $1 ORDER BY started_at, id`, stamp(since))
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Kind, &r.StartedAt, &r.FinishedAt, &r.Processed, &r.Failed, &r.Skipped); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list runs")
}

func (s *PostgresStore) Dedupe(ctx context.Context) (DedupeResult, error) {
	var res DedupeResult
	for _, t := range []struct {
		table string
		n     *int64
	}{
		{"job_metrics", &res.JobMetrics},
		{"pole_metrics", &res.PoleMetrics},
	} {
		tag, err := s.pool.Exec(ctx, dedupeSQL(t.table))
		if err != nil {
			return res, eris.Wrapf(err, "postgres: dedupe %s", t.table)
		}
		*t.n = tag.RowsAffected()
	}
	return res, nil
}
