package jobs

import (
	"context"
	"errors"
	"time"
)

// JobType represents the type of job to be executed.
type JobType string

const (
	// JobTypeSync represents an open-finance sync run.
	JobTypeSync JobType = "bank_sync"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the job completed successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed.
	JobStatusFailed JobStatus = "failed"
	// JobStatusRetrying indicates the job failed and is being retried.
	JobStatusRetrying JobStatus = "retrying"
)

// Trigger records who asked for a sync.
type Trigger string

const (
	TriggerAPI      Trigger = "api"
	TriggerSchedule Trigger = "schedule"
	TriggerCLI      Trigger = "cli"
)

var (
	// ErrJobNotFound is returned by JobStore lookups for unknown IDs.
	ErrJobNotFound = errors.New("job not found")

	// ErrSyncQueued is returned by PublishSync while another sync is
	// pending, running or waiting for a retry.
	ErrSyncQueued = errors.New("sync already queued")
)

// SyncJob represents one requested sync run and its outcome.
type SyncJob struct {
	// JobID is the unique identifier for this job.
	JobID string `json:"job_id"`

	// Trigger is where the request came from.
	Trigger Trigger `json:"trigger"`

	// RunID is the workflow run that served this job.
	RunID string `json:"run_id,omitempty"`

	// Status is the current status of the job.
	Status JobStatus `json:"status"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error contains error details if the job failed.
	Error string `json:"error,omitempty"`

	RetryCount int `json:"retry_count"`
	MaxRetries int `json:"max_retries"`

	// Outcome of a completed run.
	NewTransactions     int    `json:"new_transactions"`
	DefaultedCategories int    `json:"defaulted_categories"`
	AlertRaised         bool   `json:"alert_raised"`
	AlertMessage        string `json:"alert_message,omitempty"`
}

// Job is a generic interface for all job types.
type Job interface {
	// GetID returns the unique job identifier.
	GetID() string

	// GetType returns the job type.
	GetType() JobType

	// GetStatus returns the current job status.
	GetStatus() JobStatus
}

// GetID implements the Job interface.
func (j *SyncJob) GetID() string {
	return j.JobID
}

// GetType implements the Job interface.
func (j *SyncJob) GetType() JobType {
	return JobTypeSync
}

// GetStatus implements the Job interface.
func (j *SyncJob) GetStatus() JobStatus {
	return j.Status
}

// Publisher defines the interface for publishing jobs to a queue.
type Publisher interface {
	// PublishSync enqueues a sync job. It returns ErrSyncQueued when a sync
	// is already pending, running or retrying.
	PublishSync(ctx context.Context, job *SyncJob) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer defines the interface for consuming jobs from a queue.
type Consumer interface {
	// Start begins consuming jobs from the queue.
	// The handler function is called for each job received.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler is a function that processes a job.
// It should return an error if the job failed; wrap it with Permanent to
// skip retries.
type JobHandler func(ctx context.Context, job Job) error

// JobStore defines the interface for storing and retrieving job status.
type JobStore interface {
	// SaveJob saves or updates a job's state.
	SaveJob(ctx context.Context, job *SyncJob) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID string) (*SyncJob, error)

	// ListJobs retrieves jobs with optional filtering, newest first.
	ListJobs(ctx context.Context, filter JobFilter) ([]*SyncJob, error)

	// UpdateJobStatus updates the status of a job.
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errorMsg string) error
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	// Trigger filters jobs by trigger.
	Trigger Trigger

	// Status filters jobs by status.
	Status JobStatus

	// Limit limits the number of results.
	Limit int

	// Offset for pagination.
	Offset int
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
