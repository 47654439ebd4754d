package convert

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"docx-pdf-packer/internal/domain"
	"docx-pdf-packer/internal/report"
)

// MaxParallelAllowed bounds the worker pool size.
const MaxParallelAllowed = 16

// gcEveryCompletions is the housekeeping cadence during collection.
const gcEveryCompletions = 3

// conversionProgressCeiling maps the conversion phase onto overall
// progress, leaving the remainder for packaging.
const conversionProgressCeiling = 80

// ErrNoFilesConverted signals a batch where every file failed.
var ErrNoFilesConverted = errors.New("no files were converted")

// ErrCancelled signals a batch stopped by user request.
var ErrCancelled = errors.New("conversion cancelled")

// ProgressSink receives progress events while a batch runs.
type ProgressSink interface {
	Status(message, severity string)
	Progress(percent int)
	Active(completed, total int)
}

// NoopSink discards all progress events.
type NoopSink struct{}

func (NoopSink) Status(message, severity string) {}
func (NoopSink) Progress(percent int)            {}
func (NoopSink) Active(completed, total int)     {}

// fileConverter isolates the per-file conversion behind an interface.
type fileConverter interface {
	Convert(ctx context.Context, inputPath, outputDir string) domain.Outcome
}

// Orchestrator fans a batch of input files out to a bounded worker pool
// and collects outcomes as they complete. Workers never touch the report
// or the sink; a single collector loop does all aggregation.
type Orchestrator struct {
	converter fileConverter
	sink      ProgressSink
	monitor   Monitor
	log       *logrus.Logger

	mkdirTemp func(dir, pattern string) (string, error)
	removeAll func(path string) error
	reclaim   func()
}

// NewOrchestrator constructs an orchestrator with real OS dependencies.
func NewOrchestrator(converter *Converter, sink ProgressSink, monitor Monitor, log *logrus.Logger) *Orchestrator {
	if sink == nil {
		sink = NoopSink{}
	}
	if monitor == nil {
		monitor = NoopMonitor{}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	return &Orchestrator{
		converter: converter,
		sink:      sink,
		monitor:   monitor,
		log:       log,
		mkdirTemp: os.MkdirTemp,
		removeAll: os.RemoveAll,
		reclaim:   runtime.GC,
	}
}

// RunResult contains produced output paths and the batch report.
type RunResult struct {
	Outputs []string
	Report  *report.Report
	tempDir string
}

// Cleanup removes the temporary output directory created by Run.
func (r *RunResult) Cleanup() error {
	if r == nil || r.tempDir == "" {
		return nil
	}

	if err := os.RemoveAll(r.tempDir); err != nil {
		return err
	}
	r.tempDir = ""
	return nil
}

// Run converts every input file with up to parallel concurrent workers
// and returns produced outputs plus the populated report. Produced files
// live in a run-scoped temporary directory; on success the caller owns
// its removal via RunResult.Cleanup, on every error path Run removes it
// itself. Outcome order follows completion, not submission.
func (o *Orchestrator) Run(ctx context.Context, inputs []string, parallel int) (*RunResult, error) {
	if parallel < 1 || parallel > MaxParallelAllowed {
		return nil, fmt.Errorf("parallel conversions must be between 1 and %d, got %d", MaxParallelAllowed, parallel)
	}
	if err := validateUniqueStems(inputs); err != nil {
		return nil, err
	}

	tempDir, err := o.mkdirTemp("", "docx-pdf-packer-*")
	if err != nil {
		return nil, fmt.Errorf("create temporary workspace: %w", err)
	}

	total := len(inputs)
	rep := report.New(total)
	defer rep.Finish()

	o.sink.Status(fmt.Sprintf("Converting %d file(s) with %d worker(s)...", total, parallel), "info")
	o.log.WithFields(logrus.Fields{"total": total, "parallel": parallel}).Info("batch conversion started")

	tasks := make(chan string)
	results := make(chan domain.Outcome)

	var wg sync.WaitGroup
	for i := 0; i < parallel; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for inputPath := range tasks {
				if ctx.Err() != nil {
					// Cancellation observed before this task started.
					continue
				}
				results <- o.converter.Convert(ctx, inputPath, tempDir)
			}
		}()
	}

	go func() {
		defer close(tasks)
		for _, inputPath := range inputs {
			tasks <- inputPath
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	outputs := make([]string, 0, total)
	completed := 0
	for outcome := range results {
		if outcome.Status == domain.OutcomeCancelled {
			continue
		}

		name := filepath.Base(outcome.InputPath)
		switch outcome.Status {
		case domain.OutcomeSuccess:
			outputs = append(outputs, outcome.OutputPath)
			rep.AddSuccess(name)
			if outcome.Attempts > 1 {
				rep.AddRetry(name, outcome.Attempts)
				o.sink.Status(fmt.Sprintf("Converted: %s (%d attempts)", name, outcome.Attempts), "success")
			} else {
				o.sink.Status("Converted: "+name, "success")
			}
		case domain.OutcomeFailed:
			errMsg := outcome.Error
			if errMsg == "" {
				errMsg = "unknown error"
			}
			rep.AddFailure(name, errMsg)
			o.sink.Status("Conversion failed: "+name, "error")
		}

		completed++
		o.sink.Progress(completed * conversionProgressCeiling / total)
		o.sink.Active(completed, total)

		if completed%gcEveryCompletions == 0 || o.monitor.OverThreshold() {
			o.reclaim()
		}
	}

	if ctx.Err() != nil {
		o.log.Warn("batch conversion cancelled")
		if err := o.removeAll(tempDir); err != nil {
			o.log.Warnf("cleanup temporary workspace: %v", err)
		}
		return &RunResult{Report: rep}, ErrCancelled
	}

	if len(outputs) == 0 {
		if err := o.removeAll(tempDir); err != nil {
			o.log.Warnf("cleanup temporary workspace: %v", err)
		}
		return &RunResult{Report: rep}, ErrNoFilesConverted
	}

	summary := rep.Summary()
	o.log.WithFields(logrus.Fields{"success": summary.Success, "failed": summary.Failed}).
		Info("batch conversion finished")

	return &RunResult{Outputs: outputs, Report: rep, tempDir: tempDir}, nil
}

// validateUniqueStems rejects batches whose inputs would collide on the
// derived output name inside the shared temporary directory.
func validateUniqueStems(inputs []string) error {
	seen := make(map[string]string, len(inputs))
	for _, inputPath := range inputs {
		stem := strings.ToLower(outputFileName(inputPath))
		if prev, ok := seen[stem]; ok {
			return fmt.Errorf("inputs %q and %q would produce the same output file", prev, inputPath)
		}
		seen[stem] = inputPath
	}
	return nil
}

// NewOrchestratorForTests constructs an orchestrator with injectable
// dependencies.
func NewOrchestratorForTests(
	converter fileConverter,
	sink ProgressSink,
	monitor Monitor,
	mkdirTemp func(dir, pattern string) (string, error),
	removeAll func(path string) error,
	reclaim func(),
) *Orchestrator {
	if sink == nil {
		sink = NoopSink{}
	}
	if monitor == nil {
		monitor = NoopMonitor{}
	}

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	return &Orchestrator{
		converter: converter,
		sink:      sink,
		monitor:   monitor,
		log:       log,
		mkdirTemp: mkdirTemp,
		removeAll: removeAll,
		reclaim:   reclaim,
	}
}
