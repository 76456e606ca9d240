package resilience

import (
	"math"
	"time"
)

// DLQEntry is a job that failed during a run and should be retried by a
// later run even if the provider does not report it as updated.
type DLQEntry struct {
	JobID        string     `json:"job_id"`
	JobName      string     `json:"job_name"`
	Error        string     `json:"error"`
	ErrorClass   ErrorClass `json:"error_class"`
	Stage        string     `json:"stage"` // fetch, extract, record
	RetryCount   int        `json:"retry_count"`
	MaxRetries   int        `json:"max_retries"`
	NextRetryAt  time.Time  `json:"next_retry_at"`
	CreatedAt    time.Time  `json:"created_at"`
	LastFailedAt time.Time  `json:"last_failed_at"`
}

// DLQFilter selects entries due for retry.
type DLQFilter struct {
	ErrorClass ErrorClass `json:"error_class,omitempty"`
	Limit      int        `json:"limit,omitempty"`
}

// CanRetry reports whether the entry still has retry budget.
func (e DLQEntry) CanRetry() bool {
	return e.RetryCount < e.MaxRetries
}

// NewDLQEntry builds an entry for a first failure. Permanent failures get a
// single retry on the next day; transient ones get three, an hour apart at
// first.
func NewDLQEntry(jobID, jobName, stage string, err error, now time.Time) DLQEntry {
	class := Classify(err)
	e := DLQEntry{
		JobID:        jobID,
		JobName:      jobName,
		Error:        err.Error(),
		ErrorClass:   class,
		Stage:        stage,
		MaxRetries:   3,
		CreatedAt:    now,
		LastFailedAt: now,
	}
	if class == ClassPermanent {
		e.MaxRetries = 1
	}
	e.NextRetryAt = e.nextRetry(now)
	return e
}

// Failed records another failure on an existing entry.
func (e DLQEntry) Failed(err error, now time.Time) DLQEntry {
	e.RetryCount++
	e.Error = err.Error()
	e.ErrorClass = Classify(err)
	e.LastFailedAt = now
	e.NextRetryAt = e.nextRetry(now)
	return e
}

func (e DLQEntry) nextRetry(now time.Time) time.Time {
	if e.ErrorClass == ClassPermanent {
		return now.Add(24 * time.Hour)
	}
	return now.Add(time.Duration(math.Pow(2, float64(e.RetryCount))) * time.Hour)
}
