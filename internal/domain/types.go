package domain

// JobStatus tracks the lifecycle of a single batch conversion job.
type JobStatus string

const (
	JobStatusIdle       JobStatus = "idle"
	JobStatusConverting JobStatus = "converting"
	JobStatusPackaging  JobStatus = "packaging"
	JobStatusDone       JobStatus = "done"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// Settings contains user-selectable runtime configuration.
type Settings struct {
	OutputDir      string `json:"outputDir"`
	MaxParallel    int    `json:"maxParallel"`
	MaxRetries     int    `json:"maxRetries"`
	TimeoutSeconds int    `json:"timeoutSeconds"`
	UsePassword    bool   `json:"usePassword"`
}

// Job stores the current job identity and lifecycle status.
type Job struct {
	ID     string    `json:"id"`
	Status JobStatus `json:"status"`
}
