package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/deeplydigital/pole-burndown/internal/model"
	"github.com/deeplydigital/pole-burndown/internal/resilience"
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
	// A single writer keeps RecordJob transactions from hitting SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteTables = `
CREATE TABLE IF NOT EXISTS job_metrics (
	id                   INTEGER PRIMARY KEY AUTOINCREMENT,
	job_id               TEXT NOT NULL,
	job_name             TEXT NOT NULL DEFAULT '',
	status               TEXT NOT NULL,
	utility              TEXT NOT NULL,
	project              TEXT NOT NULL,
	total_poles          INTEGER NOT NULL DEFAULT 0,
	completed_poles      INTEGER NOT NULL DEFAULT 0,
	back_office_complete INTEGER NOT NULL DEFAULT 0,
	assigned_users       TEXT NOT NULL DEFAULT '[]',
	priority             INTEGER NOT NULL DEFAULT 3,
	target_date          DATETIME,
	timestamp            DATETIME NOT NULL,
	created_at           DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS pole_metrics (
	id                   INTEGER PRIMARY KEY AUTOINCREMENT,
	job_id               TEXT NOT NULL,
	node_id              TEXT NOT NULL,
	utility              TEXT NOT NULL,
	field_completed      INTEGER NOT NULL DEFAULT 0,
	field_completed_by   TEXT NOT NULL DEFAULT '',
	back_office_complete INTEGER NOT NULL DEFAULT 0,
	last_editor          TEXT NOT NULL DEFAULT '',
	last_edited_at       DATETIME,
	pole_height          TEXT NOT NULL DEFAULT '',
	pole_class           TEXT NOT NULL DEFAULT '',
	mr_status            TEXT NOT NULL DEFAULT '',
	poa_height_inches    INTEGER,
	timestamp            DATETIME NOT NULL,
	created_at           DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS status_changes (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	job_id          TEXT NOT NULL,
	previous_status TEXT,
	new_status      TEXT NOT NULL,
	changed_at      DATETIME NOT NULL,
	changed_by      TEXT NOT NULL DEFAULT '',
	duration_hours  REAL,
	utility         TEXT NOT NULL DEFAULT '',
	total_poles     INTEGER NOT NULL DEFAULT 0,
	created_at      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS user_metrics (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id         TEXT NOT NULL,
	job_id          TEXT NOT NULL,
	utility         TEXT NOT NULL DEFAULT '',
	role            TEXT NOT NULL,
	poles_completed INTEGER NOT NULL DEFAULT 0,
	timestamp       DATETIME NOT NULL,
	created_at      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS burndown_metrics (
	id                    INTEGER PRIMARY KEY AUTOINCREMENT,
	entity_type           TEXT NOT NULL,
	entity                TEXT NOT NULL,
	date                  DATETIME NOT NULL,
	total_poles           INTEGER NOT NULL DEFAULT 0,
	completed_poles       INTEGER NOT NULL DEFAULT 0,
	run_rate              REAL NOT NULL DEFAULT 0,
	estimated_completion  DATETIME,
	field_resources       INTEGER NOT NULL DEFAULT 0,
	back_office_resources INTEGER NOT NULL DEFAULT 0,
	schedule_status       TEXT NOT NULL DEFAULT '',
	created_at            DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS dead_letter_queue (
	job_id         TEXT PRIMARY KEY,
	job_name       TEXT NOT NULL DEFAULT '',
	error          TEXT NOT NULL,
	error_class    TEXT NOT NULL DEFAULT 'transient',
	stage          TEXT NOT NULL DEFAULT '',
	retry_count    INTEGER NOT NULL DEFAULT 0,
	max_retries    INTEGER NOT NULL DEFAULT 3,
	next_retry_at  DATETIME NOT NULL,
	created_at     DATETIME NOT NULL,
	last_failed_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	kind        TEXT NOT NULL,
	started_at  DATETIME NOT NULL,
	finished_at DATETIME,
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

// Migrate creates tables, collapses legacy duplicates, then adds the unique
// keys the upserts depend on.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteTables); err != nil {
		return eris.Wrap(err, "sqlite: migrate tables")
	}
	if _, err := s.Dedupe(ctx); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, uniqueKeys)
	return eris.Wrap(err, "sqlite: migrate unique keys")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) RecordJob(ctx context.Context, snap model.Snapshot, ts time.Time) (*RecordResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: record job: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	jobID := snap.Job.ID
	prev, err := latestStatusSQLite(ctx, tx, jobID, stamp(ts))
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	jm := JobMetricOf(snap, ts)
	users, err := json.Marshal(nonNil(jm.AssignedUsers))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal assigned users")
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO job_metrics
		(job_id, job_name, status, utility, project, total_poles, completed_poles, back_office_complete,
		 assigned_users, priority, target_date, timestamp, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (job_id, timestamp) DO UPDATE SET
		  job_name = excluded.job_name, status = excluded.status, utility = excluded.utility,
		  project = excluded.project, total_poles = excluded.total_poles,
		  completed_poles = excluded.completed_poles, back_office_complete = excluded.back_office_complete,
		  assigned_users = excluded.assigned_users, priority = excluded.priority,
		  target_date = excluded.target_date`,
		jm.JobID, jm.JobName, jm.Status, jm.Utility, jm.Project, jm.TotalPoles, jm.CompletedPoles,
		jm.BackOfficeDone, string(users), jm.Priority, nullTime(jm.TargetDate), jm.Timestamp, now,
	); err != nil {
		return nil, eris.Wrapf(err, "sqlite: upsert job metrics %s", jobID)
	}

	poles := PoleMetricsOf(snap, ts)
	for _, p := range poles {
		if _, err := tx.ExecContext(ctx, `INSERT INTO pole_metrics
			(job_id, node_id, utility, field_completed, field_completed_by, back_office_complete,
			 last_editor, last_edited_at, pole_height, pole_class, mr_status, poa_height_inches, timestamp, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (job_id, node_id, timestamp) DO UPDATE SET
			  utility = excluded.utility, field_completed = excluded.field_completed,
			  field_completed_by = excluded.field_completed_by, back_office_complete = excluded.back_office_complete,
			  last_editor = excluded.last_editor, last_edited_at = excluded.last_edited_at,
			  pole_height = excluded.pole_height, pole_class = excluded.pole_class,
			  mr_status = excluded.mr_status, poa_height_inches = excluded.poa_height_inches`,
			p.JobID, p.NodeID, p.Utility, p.FieldCompleted, p.FieldCompletedBy, p.BackOfficeComplete,
			p.LastEditor, nullTime(p.LastEditedAt), p.PoleHeight, p.PoleClass, string(p.MRStatus),
			nullInt(p.POAHeightInches), p.Timestamp, now,
		); err != nil {
			return nil, eris.Wrapf(err, "sqlite: upsert pole metrics %s/%s", jobID, p.NodeID)
		}
	}

	res := &RecordResult{Poles: len(poles)}
	if sc := nextStatusChange(prev, snap, ts); sc != nil {
		tag, err := tx.ExecContext(ctx, `INSERT INTO status_changes
			(job_id, previous_status, new_status, changed_at, changed_by, duration_hours, utility, total_poles, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (job_id, changed_at) DO NOTHING`,
			sc.JobID, nullString(sc.PreviousStatus), sc.NewStatus, sc.ChangedAt, sc.ChangedBy,
			nullFloat(sc.DurationHours), sc.Utility, sc.TotalPoles, now,
		)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: insert status change %s", jobID)
		}
		if n, _ := tag.RowsAffected(); n > 0 {
			res.StatusChange = sc
		}
	}

	userRows := UserMetricsOf(snap, ts)
	for _, u := range userRows {
		if _, err := tx.ExecContext(ctx, `INSERT INTO user_metrics
			(user_id, job_id, utility, role, poles_completed, timestamp, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (user_id, job_id, role, timestamp) DO UPDATE SET
			  utility = excluded.utility, poles_completed = excluded.poles_completed`,
			u.UserID, u.JobID, u.Utility, string(u.Role), u.PolesCompleted, u.Timestamp, now,
		); err != nil {
			return nil, eris.Wrapf(err, "sqlite: upsert user metrics %s/%s", jobID, u.UserID)
		}
	}
	res.Users = len(userRows)

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrapf(err, "sqlite: record job: commit %s", jobID)
	}
	return res, nil
}

func (s *SQLiteStore) LatestJobStatus(ctx context.Context, jobID string) (*model.StatusChange, error) {
	return latestStatusSQLite(ctx, s.db, jobID, time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC))
}

type sqlQuerier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func latestStatusSQLite(ctx context.Context, q sqlQuerier, jobID string, asOf time.Time) (*model.StatusChange, error) {
	row := q.QueryRowContext(ctx, `SELECT `+statusColumns+` FROM status_changes
		WHERE job_id = ? AND changed_at <= ? ORDER BY changed_at DESC LIMIT 1`, jobID, asOf)
	sc, err := scanStatusChange(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: latest status %s", jobID)
	}
	return sc, nil
}

func (s *SQLiteStore) ListJobMetrics(ctx context.Context, start, end time.Time) ([]model.JobMetric, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+jobColumns+` FROM job_metrics
		WHERE timestamp >= ? AND timestamp < ? ORDER BY timestamp, job_id`, stamp(start), stamp(end))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list job metrics")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.JobMetric
	for rows.Next() {
		var m model.JobMetric
		var users string
		var target sql.NullTime
		if err := rows.Scan(&m.JobID, &m.JobName, &m.Status, &m.Utility, &m.Project, &m.TotalPoles,
			&m.CompletedPoles, &m.BackOfficeDone, &users, &m.Priority, &target, &m.Timestamp); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan job metric")
		}
		if err := json.Unmarshal([]byte(users), &m.AssignedUsers); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal assigned users")
		}
		m.TargetDate = timePtr(target)
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list job metrics iterate")
}

func (s *SQLiteStore) ListPoleMetrics(ctx context.Context, jobID string, ts time.Time) ([]model.PoleMetric, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+poleColumns+` FROM pole_metrics
		WHERE job_id = ? AND timestamp = ? ORDER BY node_id`, jobID, stamp(ts))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list pole metrics")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.PoleMetric
	for rows.Next() {
		var p model.PoleMetric
		var mr string
		var edited sql.NullTime
		var poa sql.NullInt64
		if err := rows.Scan(&p.JobID, &p.NodeID, &p.Utility, &p.FieldCompleted, &p.FieldCompletedBy,
			&p.BackOfficeComplete, &p.LastEditor, &edited, &p.PoleHeight, &p.PoleClass, &mr, &poa,
			&p.Timestamp); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan pole metric")
		}
		p.MRStatus = model.MRStatus(mr)
		p.LastEditedAt = timePtr(edited)
		if poa.Valid {
			v := int(poa.Int64)
			p.POAHeightInches = &v
		}
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list pole metrics iterate")
}

func (s *SQLiteStore) ListStatusChanges(ctx context.Context, start, end time.Time) ([]model.StatusChange, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+statusColumns+` FROM status_changes
		WHERE changed_at >= ? AND changed_at < ? ORDER BY changed_at, job_id`, stamp(start), stamp(end))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list status changes")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.StatusChange
	for rows.Next() {
		sc, err := scanStatusChange(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan status change")
		}
		out = append(out, *sc)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list status changes iterate")
}

func (s *SQLiteStore) ListUserMetrics(ctx context.Context, start, end time.Time) ([]model.UserMetric, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id, job_id, utility, role, poles_completed, timestamp
		FROM user_metrics WHERE timestamp >= ? AND timestamp < ? ORDER BY timestamp, user_id`,
		stamp(start), stamp(end))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list user metrics")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.UserMetric
	for rows.Next() {
		var u model.UserMetric
		var role string
		if err := rows.Scan(&u.UserID, &u.JobID, &u.Utility, &role, &u.PolesCompleted, &u.Timestamp); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan user metric")
		}
		u.Role = model.Role(role)
		out = append(out, u)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list user metrics iterate")
}

func (s *SQLiteStore) UpsertBurndown(ctx context.Context, records []model.BurndownRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: upsert burndown: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	for _, r := range records {
		if _, err := tx.ExecContext(ctx, `INSERT INTO burndown_metrics
			(entity_type, entity, date, total_poles, completed_poles, run_rate, estimated_completion,
			 field_resources, back_office_resources, schedule_status, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (entity_type, entity, date) DO UPDATE SET
			  total_poles = excluded.total_poles, completed_poles = excluded.completed_poles,
			  run_rate = excluded.run_rate, estimated_completion = excluded.estimated_completion,
			  field_resources = excluded.field_resources, back_office_resources = excluded.back_office_resources,
			  schedule_status = excluded.schedule_status, created_at = excluded.created_at`,
			string(r.EntityType), r.Entity, stamp(r.Date), r.TotalPoles, r.CompletedPoles, r.RunRate,
			nullTime(r.EstimatedCompletion), r.FieldResources, r.BackOfficeResources, r.ScheduleStatus, now,
		); err != nil {
			return eris.Wrapf(err, "sqlite: upsert burndown %s/%s", r.EntityType, r.Entity)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: upsert burndown: commit")
}

func (s *SQLiteStore) ListBurndown(ctx context.Context, start, end time.Time) ([]model.BurndownRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+burndownColumns+` FROM burndown_metrics
		WHERE date >= ? AND date < ? ORDER BY date, entity_type DESC, entity`, stamp(start), stamp(end))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list burndown")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.BurndownRecord
	for rows.Next() {
		var r model.BurndownRecord
		var typ string
		var eta sql.NullTime
		if err := rows.Scan(&typ, &r.Entity, &r.Date, &r.TotalPoles, &r.CompletedPoles, &r.RunRate,
			&eta, &r.FieldResources, &r.BackOfficeResources, &r.ScheduleStatus); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan burndown")
		}
		r.EntityType = model.EntityType(typ)
		r.EstimatedCompletion = timePtr(eta)
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list burndown iterate")
}

// Dead letter queue methods

func (s *SQLiteStore) EnqueueDLQ(ctx context.Context, e resilience.DLQEntry) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO dead_letter_queue
		(job_id, job_name, error, error_class, stage, retry_count, max_retries, next_retry_at, created_at, last_failed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (job_id) DO UPDATE SET
		  job_name = excluded.job_name, error = excluded.error, error_class = excluded.error_class,
		  stage = excluded.stage, retry_count = excluded.retry_count, max_retries = excluded.max_retries,
		  next_retry_at = excluded.next_retry_at, last_failed_at = excluded.last_failed_at`,
		e.JobID, e.JobName, e.Error, string(e.ErrorClass), e.Stage, e.RetryCount, e.MaxRetries,
		stamp(e.NextRetryAt), stamp(e.CreatedAt), stamp(e.LastFailedAt),
	)
	return eris.Wrap(err, "sqlite: enqueue dlq")
}

func (s *SQLiteStore) DueDLQ(ctx context.Context, now time.Time, filter resilience.DLQFilter) ([]resilience.DLQEntry, error) {
	query := `SELECT ` + dlqColumns + ` FROM dead_letter_queue
		WHERE next_retry_at <= ?`
	args := []any{stamp(now)}
	if filter.ErrorClass != "" {
		query += ` AND error_class = ?`
		args = append(args, string(filter.ErrorClass))
	}
	query += ` ORDER BY next_retry_at ASC LIMIT ?`
	args = append(args, dlqLimit(filter))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: due dlq")
	}
	defer rows.Close() //nolint:errcheck

	var out []resilience.DLQEntry
	for rows.Next() {
		var e resilience.DLQEntry
		var class string
		if err := rows.Scan(&e.JobID, &e.JobName, &e.Error, &class, &e.Stage, &e.RetryCount,
			&e.MaxRetries, &e.NextRetryAt, &e.CreatedAt, &e.LastFailedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan dlq entry")
		}
		e.ErrorClass = resilience.ErrorClass(class)
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: due dlq iterate")
}

func (s *SQLiteStore) RemoveDLQ(ctx context.Context, jobID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM dead_letter_queue WHERE job_id = ?`, jobID)
	return eris.Wrap(err, "sqlite: remove dlq")
}

func (s *SQLiteStore) CountDLQ(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dead_letter_queue`).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count dlq")
}

// Runs

func (s *SQLiteStore) StartRun(ctx context.Context, kind string, startedAt time.Time) (*Run, error) {
	run := &Run{ID: uuid.New().String(), Kind: kind, StartedAt: stamp(startedAt)}
	_, err := s.db.ExecContext(ctx, `INSERT INTO runs (id, kind, started_at) VALUES (?, ?, ?)`,
		run.ID, run.Kind, run.StartedAt)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}
	return run, nil
}

func (s *SQLiteStore) FinishRun(ctx context.Context, run *Run) error {
	finished := stamp(time.Now())
	if run.FinishedAt != nil {
		finished = stamp(*run.FinishedAt)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, processed = ?, failed = ?, skipped = ? WHERE id = ?`,
		finished, run.Processed, run.Failed, run.Skipped, run.ID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", run.ID)
	}
	if err := checkRowsAffected(res, "run", run.ID); err != nil {
		return err
	}
	run.FinishedAt = &finished
	return nil
}

// ListRuns returns runs started at or after since, oldest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, since time.Time) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, kind, started_at, finished_at, processed, failed, skipped
		FROM runs WHERE started_at >= ? ORDER BY started_at, id`, stamp(since))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var out []Run
	for rows.Next() {
		var r Run
		var finished sql.NullTime
		if err := rows.Scan(&r.ID, &r.Kind, &r.StartedAt, &finished, &r.Processed, &r.Failed, &r.Skipped); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		r.FinishedAt = timePtr(finished)
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list runs")
}

func (s *SQLiteStore) Dedupe(ctx context.Context) (DedupeResult, error) {
	var res DedupeResult
	for _, t := range []struct {
		table string
		n     *int64
	}{
		{"job_metrics", &res.JobMetrics},
		{"pole_metrics", &res.PoleMetrics},
	} {
		out, err := s.db.ExecContext(ctx, dedupeSQL(t.table))
		if err != nil {
			return res, eris.Wrapf(err, "sqlite: dedupe %s", t.table)
		}
		*t.n, _ = out.RowsAffected()
	}
	return res, nil
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanStatusChange(row scannable) (*model.StatusChange, error) {
	var sc model.StatusChange
	var prev sql.NullString
	var dur sql.NullFloat64
	if err := row.Scan(&sc.JobID, &prev, &sc.NewStatus, &sc.ChangedAt, &sc.ChangedBy, &dur,
		&sc.Utility, &sc.TotalPoles); err != nil {
		return nil, err
	}
	if prev.Valid {
		sc.PreviousStatus = &prev.String
	}
	if dur.Valid {
		sc.DurationHours = &dur.Float64
	}
	return &sc, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: stamp(*t), Valid: true}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
