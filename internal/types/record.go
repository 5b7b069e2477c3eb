package types

import "time"

// MaxLogEntries bounds the per-job log list. Older entries are dropped, not
// archived.
const MaxLogEntries = 1000

// Log severity levels
const (
	LogLevelInfo    = "INFO"
	LogLevelWarning = "WARNING"
	LogLevelError   = "ERROR"
)

// LogEntry is one line of job output. Entries for a job are totally ordered
// by append time.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Step      string    `json:"step,omitempty"`
}

// NewLogEntry builds a LogEntry stamped with the current time.
func NewLogEntry(level, message, step string) LogEntry {
	return LogEntry{
		Timestamp: time.Now().UTC(),
		Level:     level,
		Message:   message,
		Step:      step,
	}
}

// JobProgress tracks how far through the pipeline a running job is.
type JobProgress struct {
	CurrentStep    string `json:"current_step"`
	TotalSteps     int    `json:"total_steps"`
	CompletedSteps int    `json:"completed_steps"`
	Percentage     int    `json:"percentage"`
}

// JobRecord is the mutable read model for one job, owned exclusively by the
// orchestrator. The queue's claim invariant guarantees it is never mutated by
// two pipeline runs concurrently.
type JobRecord struct {
	JobID           string                 `json:"job_id"`
	Status          JobStatus              `json:"status"`
	StartedAt       *time.Time             `json:"started_at,omitempty"`
	CompletedAt     *time.Time             `json:"completed_at,omitempty"`
	ErrorMessage    string                 `json:"error_message,omitempty"`
	TerraformOutput map[string]interface{} `json:"terraform_output,omitempty"`
	Logs            []LogEntry             `json:"logs,omitempty"`
	Progress        *JobProgress           `json:"progress,omitempty"`
}

// Event types broadcast on the per-job real-time channel.
const (
	UpdateTypeStatus = "status_update"
	UpdateTypeLog    = "log_update"
)

// Update is one event on a job's real-time channel. Data holds the full
// JobRecord snapshot for status events, or the single new LogEntry for log
// events.
type Update struct {
	Type  string      `json:"type"`
	JobID string      `json:"job_id"`
	Data  interface{} `json:"data"`
}
