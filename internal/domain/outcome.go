package domain

// OutcomeStatus is the terminal classification of one file conversion.
type OutcomeStatus string

const (
	OutcomeSuccess   OutcomeStatus = "success"
	OutcomeFailed    OutcomeStatus = "failed"
	OutcomeCancelled OutcomeStatus = "cancelled"
)

// Outcome is the per-file result record produced exactly once per input.
// OutputPath is set only on success; Error is set only on failure.
// Attempts is zero only for precondition failures where no conversion ran.
type Outcome struct {
	InputPath  string        `json:"inputPath"`
	OutputPath string        `json:"outputPath,omitempty"`
	Status     OutcomeStatus `json:"status"`
	Attempts   int           `json:"attempts"`
	Error      string        `json:"error,omitempty"`
}
