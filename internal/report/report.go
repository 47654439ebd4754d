package report

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

const maxListedSuccesses = 10

// Failure pairs an input file with the error that exhausted its retries.
type Failure struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

// Retry records how many attempts a successfully converted file consumed.
type Retry struct {
	Name     string `json:"name"`
	Attempts int    `json:"attempts"`
}

// Summary contains aggregate counters for one batch run.
type Summary struct {
	Total    int           `json:"total"`
	Success  int           `json:"success"`
	Failed   int           `json:"failed"`
	Retried  int           `json:"retried"`
	Duration time.Duration `json:"duration"`
}

// Report accumulates per-file outcomes for one batch run. Entries are
// append-only and reflect completion order, not submission order. The
// orchestrator's collector is the only writer; the mutex exists so the
// UI can render a partial summary while the run is still going.
type Report struct {
	mu        sync.RWMutex
	total     int
	successes []string
	failures  []Failure
	retried   []Retry
	startTime time.Time
	endTime   time.Time
	now       func() time.Time
}

// New creates a report for a batch of the given size and records the
// start timestamp.
func New(total int) *Report {
	r := &Report{now: time.Now}
	r.total = total
	r.startTime = r.now()
	return r
}

// AddSuccess appends one successfully converted input name.
func (r *Report) AddSuccess(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.successes = append(r.successes, name)
}

// AddFailure appends one input name with its final error.
func (r *Report) AddFailure(name, errMsg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, Failure{Name: name, Error: errMsg})
}

// AddRetry records a success that needed more than one attempt. Callers
// invoke it only alongside AddSuccess when attempts > 1.
func (r *Report) AddRetry(name string, attempts int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retried = append(r.retried, Retry{Name: name, Attempts: attempts})
}

// Finish stamps the end time. Safe to call on every exit path; only the
// first call takes effect.
func (r *Report) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.endTime.IsZero() {
		r.endTime = r.now()
	}
}

// Successes returns a copy of the recorded success names.
func (r *Report) Successes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.successes...)
}

// Failures returns a copy of the recorded failures.
func (r *Report) Failures() []Failure {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Failure(nil), r.failures...)
}

// Retried returns a copy of the recorded retry entries.
func (r *Report) Retried() []Retry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Retry(nil), r.retried...)
}

// Summary returns current aggregate counters. It is safe to call before
// Finish; the duration then reflects elapsed time so far.
func (r *Report) Summary() Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	end := r.endTime
	if end.IsZero() {
		end = r.now()
	}
	duration := end.Sub(r.startTime)
	if duration < 0 {
		duration = 0
	}

	return Summary{
		Total:    r.total,
		Success:  len(r.successes),
		Failed:   len(r.failures),
		Retried:  len(r.retried),
		Duration: duration,
	}
}

// Render produces the human-readable multi-section report text.
func (r *Report) Render() string {
	summary := r.Summary()

	r.mu.RLock()
	successes := append([]string(nil), r.successes...)
	failures := append([]Failure(nil), r.failures...)
	retried := append([]Retry(nil), r.retried...)
	r.mu.RUnlock()

	// Percentage denominator only; the displayed total stays as-is.
	pctTotal := summary.Total
	if pctTotal == 0 {
		pctTotal = 1
	}
	successPct := float64(summary.Success) / float64(pctTotal) * 100
	failedPct := float64(summary.Failed) / float64(pctTotal) * 100

	minutes := int(summary.Duration.Seconds()) / 60
	seconds := int(summary.Duration.Seconds()) % 60

	sep := strings.Repeat("=", 72)
	sub := strings.Repeat("-", 72)

	var b strings.Builder
	line := func(format string, args ...any) {
		fmt.Fprintf(&b, format+"\n", args...)
	}

	line(sep)
	line("DOCX TO PDF CONVERSION REPORT")
	line(sep)
	line("")
	line("SUMMARY")
	line(sub)
	line("%-36s%d", "Total files processed:", summary.Total)
	line("%-36s%d (%.1f%%)", "Successful conversions:", summary.Success, successPct)
	line("%-36s%d (%.1f%%)", "Failed conversions:", summary.Failed, failedPct)
	line("%-36s%d", "Files that needed retries:", summary.Retried)
	line("%-36s%dm %ds", "Total time:", minutes, seconds)
	line("")

	if len(retried) > 0 {
		line("FILES RESOLVED AFTER RETRIES")
		line(sub)
		for _, entry := range retried {
			line("  * %s", entry.Name)
			line("    resolved after %d attempt(s)", entry.Attempts)
		}
		line("")
	}

	if len(successes) > 0 && len(retried) == 0 {
		line("FILES CONVERTED WITHOUT RETRIES")
		line(sub)
		for i, name := range successes {
			if i == maxListedSuccesses {
				break
			}
			line("  + %s", name)
		}
		if rest := len(successes) - maxListedSuccesses; rest > 0 {
			line("  ... and %d more", rest)
		}
		line("")
	}

	if len(failures) > 0 {
		line("UNRESOLVED FAILURES")
		line(sub)
		for _, failure := range failures {
			line("  x %s", failure.Name)
			line("    error: %s", failure.Error)
			line("    suggestions:")
			line("      - check whether the document is corrupted")
			line("      - make sure LibreOffice is installed and on PATH")
			line("      - open the document and save it again")
		}
		line("")
	}

	line(sep)
	switch {
	case summary.Failed == 0:
		line("CONVERSION COMPLETED: FULL SUCCESS")
	case summary.Success > 0:
		line("CONVERSION COMPLETED WITH ERRORS: PARTIAL SUCCESS")
	default:
		line("CONVERSION FAILED: NO FILES WERE CONVERTED")
	}
	line(sep)

	return b.String()
}

// NewForTests creates a report with an injectable clock.
func NewForTests(total int, now func() time.Time) *Report {
	r := &Report{now: now}
	r.total = total
	r.startTime = now()
	return r
}
