package store

import (
	"fmt"

	"github.com/deeplydigital/pole-burndown/internal/resilience"
)

// uniqueKeys are the natural keys that make replaying a snapshot a no-op.
// Both backends accept this DDL.
const uniqueKeys = `
CREATE UNIQUE INDEX IF NOT EXISTS ux_job_metrics_key ON job_metrics(job_id, timestamp);
CREATE UNIQUE INDEX IF NOT EXISTS ux_pole_metrics_key ON pole_metrics(job_id, node_id, timestamp);
CREATE UNIQUE INDEX IF NOT EXISTS ux_status_changes_key ON status_changes(job_id, changed_at);
CREATE UNIQUE INDEX IF NOT EXISTS ux_user_metrics_key ON user_metrics(user_id, job_id, role, timestamp);
CREATE UNIQUE INDEX IF NOT EXISTS ux_burndown_key ON burndown_metrics(entity_type, entity, date);
`

// dedupeKeys lists the natural key of each table Dedupe repairs.
var dedupeKeys = map[string]string{
	"job_metrics":  "job_id, timestamp",
	"pole_metrics": "job_id, node_id, timestamp",
}

// dedupeSQL deletes every row but the most recently created one per key.
func dedupeSQL(table string) string {
	return fmt.Sprintf(`DELETE FROM %[1]s WHERE id IN (
	SELECT id FROM (
		SELECT id, ROW_NUMBER() OVER (PARTITION BY %[2]s ORDER BY created_at DESC, id DESC) AS rn
		FROM %[1]s
	) ranked WHERE rn > 1
)`, table, dedupeKeys[table])
}

const (
	jobColumns = `job_id, job_name, status, utility, project, total_poles, completed_poles,
		back_office_complete, assigned_users, priority, target_date, timestamp`
	poleColumns = `job_id, node_id, utility, field_completed, field_completed_by, back_office_complete,
		last_editor, last_edited_at, pole_height, pole_class, mr_status, poa_height_inches, timestamp`
	statusColumns = `job_id, previous_status, new_status, changed_at, changed_by, duration_hours,
		utility, total_poles`
	burndownColumns = `entity_type, entity, date, total_poles, completed_poles, run_rate,
		estimated_completion, field_resources, back_office_resources, schedule_status`
	dlqColumns = `job_id, job_name, error, error_class, stage, retry_count, max_retries,
		next_retry_at, created_at, last_failed_at`
)

const defaultDLQLimit = 100

func dlqLimit(f resilience.DLQFilter) int {
	if f.Limit <= 0 {
		return defaultDLQLimit
	}
	return f.Limit
}
