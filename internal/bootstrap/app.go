package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"docx-pdf-packer/internal/archive"
	"docx-pdf-packer/internal/config"
	"docx-pdf-packer/internal/convert"
	"docx-pdf-packer/internal/diagnostics"
	"docx-pdf-packer/internal/domain"
	"docx-pdf-packer/internal/jobs"
	"docx-pdf-packer/internal/report"

	wailsruntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

// memoryThresholdMB triggers housekeeping when resident memory grows
// past this size during a batch run.
const memoryThresholdMB = 500

var docxDialogFilter = []wailsruntime.FileFilter{
	{
		DisplayName: "Word documents",
		Pattern:     "*.docx;*.doc",
	},
	{
		DisplayName: "All files",
		Pattern:     "*",
	},
}

var zipDialogFilter = []wailsruntime.FileFilter{
	{
		DisplayName: "ZIP archives",
		Pattern:     "*.zip",
	},
	{
		DisplayName: "All files",
		Pattern:     "*",
	},
}

var textDialogFilter = []wailsruntime.FileFilter{
	{
		DisplayName: "Text files",
		Pattern:     "*.txt",
	},
	{
		DisplayName: "All files",
		Pattern:     "*",
	},
}

// App wires configuration, jobs, the conversion engine, and UI runtime
// callbacks.
type App struct {
	Settings    domain.Settings
	Store       config.Store
	Jobs        *jobs.Manager
	Diagnostics domain.DiagnosticReport
	assets      fs.FS
	checker     *diagnostics.Checker
	log         *logrus.Logger

	newRunner func(sink convert.ProgressSink, settings domain.Settings) batchRunner
	packager  archivePackager

	mu          sync.Mutex
	activeJobID string
	cancel      context.CancelFunc
	events      *jobs.EventBus
	runtimeCtx  context.Context
	lastReport  *report.Report
}

// batchRunner isolates the conversion orchestrator behind an interface.
type batchRunner interface {
	Run(ctx context.Context, inputs []string, parallel int) (*convert.RunResult, error)
}

// archivePackager isolates the packaging collaborator behind an interface.
type archivePackager interface {
	Pack(ctx context.Context, zipPath string, files []string, password string, onEntry func(done, total int)) error
}

// StartRequest carries everything needed to begin one batch run.
type StartRequest struct {
	Inputs          []string `json:"inputs"`
	ArchivePath     string   `json:"archivePath"`
	Password        string   `json:"password"`
	ConfirmPassword string   `json:"confirmPassword"`
	UsePassword     bool     `json:"usePassword"`
	Parallel        int      `json:"parallel"`
}

// New builds the application with persisted settings and startup
// diagnostics.
func New() (*App, error) {
	return NewWithAssets(nil)
}

// NewWithAssets builds the application and optionally configures embedded
// frontend assets.
func NewWithAssets(assets fs.FS) (*App, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve user home: %w", err)
	}

	store := config.NewJSONStore(filepath.Join(homeDir, ".docx-pdf-packer", "settings.json"))
	settings, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	checker := diagnostics.NewChecker()
	diagReport := checker.Run(settings)
	log := logrus.StandardLogger()

	app := &App{
		Settings:    settings,
		Store:       store,
		Jobs:        jobs.NewManager(),
		Diagnostics: diagReport,
		assets:      assets,
		checker:     checker,
		log:         log,
		packager:    archive.NewPackager(),
		events:      jobs.NewEventBus(1000),
	}
	app.newRunner = func(sink convert.ProgressSink, settings domain.Settings) batchRunner {
		var fallback convert.Strategy
		if checker.WordFallbackAvailable() {
			fallback = convert.NewWordStrategy()
		}
		converter := convert.NewConverter(
			convert.NewSofficeStrategy(),
			fallback,
			settings.MaxRetries,
			time.Duration(settings.TimeoutSeconds)*time.Second,
			log,
		)
		return convert.NewOrchestrator(converter, sink, convert.NewProcessMonitor(memoryThresholdMB), log)
	}

	return app, nil
}

// Run starts the Wails desktop application and binds backend methods.
func (a *App) Run() error {
	assetOptions := &assetserver.Options{}
	if a.assets != nil {
		assetOptions.Assets = a.assets
	} else {
		assetOptions.Handler = http.FileServer(http.Dir("./frontend"))
	}

	return wails.Run(&options.App{
		Title:       "DOCX to PDF Packer",
		Width:       760,
		Height:      640,
		AssetServer: assetOptions,
		OnStartup:   a.Startup,
		OnShutdown: func(ctx context.Context) {
			a.mu.Lock()
			defer a.mu.Unlock()
			a.runtimeCtx = nil
		},
		Bind: []interface{}{a},
	})
}

// Startup stores Wails runtime context for push events.
func (a *App) Startup(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.runtimeCtx = ctx
}

// GetDiagnostics returns the latest cached diagnostics report.
func (a *App) GetDiagnostics() domain.DiagnosticReport {
	return a.Diagnostics
}

// RefreshDiagnostics reloads settings and reruns dependency checks.
func (a *App) RefreshDiagnostics() (domain.DiagnosticReport, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.DiagnosticReport{}, fmt.Errorf("load settings: %w", err)
	}

	a.Settings = settings
	a.Diagnostics = a.checker.Run(settings)
	return a.Diagnostics, nil
}

// GetSettings loads and returns the latest persisted settings.
func (a *App) GetSettings() (domain.Settings, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}

	a.mu.Lock()
	a.Settings = settings
	a.mu.Unlock()

	return settings, nil
}

// SaveSettings normalizes and persists settings, then refreshes
// diagnostics.
func (a *App) SaveSettings(settings domain.Settings) (domain.Settings, error) {
	normalized := normalizeSettings(settings)
	if err := a.Store.Save(normalized); err != nil {
		return domain.Settings{}, fmt.Errorf("save settings: %w", err)
	}

	a.mu.Lock()
	a.Settings = normalized
	if a.checker != nil {
		a.Diagnostics = a.checker.Run(normalized)
	}
	a.mu.Unlock()

	return normalized, nil
}

// PickInputFiles opens a native multi-select dialog for documents.
func (a *App) PickInputFiles() ([]string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return nil, err
	}

	paths, err := wailsruntime.OpenMultipleFilesDialog(ctx, wailsruntime.OpenDialogOptions{
		Title:   "Select documents to convert",
		Filters: docxDialogFilter,
	})
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(paths))
	for _, path := range paths {
		if trimmed := strings.TrimSpace(path); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out, nil
}

// PickArchivePath opens a native save dialog for the destination ZIP.
func (a *App) PickArchivePath() (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	path, err := wailsruntime.SaveFileDialog(ctx, wailsruntime.SaveDialogOptions{
		Title:           "Save archive as",
		DefaultFilename: defaultArchiveName(),
		Filters:         zipDialogFilter,
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(path), nil
}

// PickReportPath opens a native save dialog for the report text file.
func (a *App) PickReportPath() (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	path, err := wailsruntime.SaveFileDialog(ctx, wailsruntime.SaveDialogOptions{
		Title:           "Save conversion report",
		DefaultFilename: "conversion_report.txt",
		Filters:         textDialogFilter,
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(path), nil
}

// DefaultArchivePath suggests a timestamped destination in the
// configured output directory.
func (a *App) DefaultArchivePath() string {
	a.mu.Lock()
	outputDir := a.Settings.OutputDir
	a.mu.Unlock()
	if outputDir == "" {
		outputDir = config.DefaultSettings().OutputDir
	}
	return filepath.Join(outputDir, defaultArchiveName())
}

// StartBatch validates the request, creates a job, and runs it
// asynchronously.
func (a *App) StartBatch(req StartRequest) (domain.Job, error) {
	if len(req.Inputs) == 0 {
		return domain.Job{}, fmt.Errorf("select at least one document to convert")
	}
	if req.UsePassword {
		if req.Password == "" {
			return domain.Job{}, fmt.Errorf("password is required")
		}
		if req.Password != req.ConfirmPassword {
			return domain.Job{}, fmt.Errorf("passwords do not match")
		}
	}
	if strings.TrimSpace(req.ArchivePath) == "" {
		return domain.Job{}, fmt.Errorf("archive destination is required")
	}

	settings, err := a.Store.Load()
	if err != nil {
		return domain.Job{}, fmt.Errorf("load settings: %w", err)
	}
	settings = normalizeSettings(settings)

	if req.Parallel == 0 {
		req.Parallel = settings.MaxParallel
	}
	if req.Parallel < 1 || req.Parallel > convert.MaxParallelAllowed {
		return domain.Job{}, fmt.Errorf("parallel conversions must be between 1 and %d", convert.MaxParallelAllowed)
	}

	jobID := uuid.NewString()
	if err := a.Jobs.Start(jobID); err != nil {
		return domain.Job{}, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.mu.Lock()
	a.activeJobID = jobID
	a.cancel = cancel
	a.Settings = settings
	a.lastReport = nil
	a.mu.Unlock()

	a.publishStatus(jobID, domain.JobStatusConverting, "Batch started", "info")

	go a.runBatchJob(ctx, jobID, req)
	return a.Jobs.Current(), nil
}

// CancelBatch cancels the currently running job, if any.
func (a *App) CancelBatch() error {
	a.mu.Lock()
	cancel := a.cancel
	activeJobID := a.activeJobID
	a.mu.Unlock()

	if cancel == nil {
		return jobs.ErrNoRunningJob
	}

	cancel()
	if err := a.Jobs.Cancel(); err != nil && !errors.Is(err, jobs.ErrNoRunningJob) {
		return err
	}

	if activeJobID != "" {
		a.publishStatus(activeJobID, domain.JobStatusCancelled, "Cancelling...", "warning")
	}
	return nil
}

// CurrentJob returns current job metadata and status.
func (a *App) CurrentJob() domain.Job {
	return a.Jobs.Current()
}

// JobEvents returns all events with sequence greater than sinceSeq.
func (a *App) JobEvents(sinceSeq int64) []jobs.Event {
	return a.events.Since(sinceSeq)
}

// ReportText renders the most recent batch report, or empty when no
// batch has run yet.
func (a *App) ReportText() string {
	a.mu.Lock()
	rep := a.lastReport
	a.mu.Unlock()
	if rep == nil {
		return ""
	}
	return rep.Render()
}

// SaveReport writes the most recent batch report to the given path.
func (a *App) SaveReport(path string) error {
	text := a.ReportText()
	if text == "" {
		return fmt.Errorf("no conversion report available")
	}
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("report path is empty")
	}
	return os.WriteFile(path, []byte(text), 0o644)
}

// OpenOutputFolder opens the given path (or configured output dir) in
// file manager.
func (a *App) OpenOutputFolder(path string) error {
	target := strings.TrimSpace(path)
	if target == "" {
		a.mu.Lock()
		target = a.Settings.OutputDir
		a.mu.Unlock()
	}
	if target == "" {
		return fmt.Errorf("output path is empty")
	}

	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("resolve output path: %w", err)
	}

	openPath := target
	if !info.IsDir() {
		openPath = filepath.Dir(target)
	}

	return openInFileManager(openPath)
}

// runBatchJob executes conversion and packaging and maps outcomes to job
// events.
func (a *App) runBatchJob(ctx context.Context, jobID string, req StartRequest) {
	sink := &jobSink{app: a, jobID: jobID}

	a.mu.Lock()
	settings := a.Settings
	a.mu.Unlock()

	result, err := a.newRunner(sink, settings).Run(ctx, req.Inputs, req.Parallel)
	if result != nil && result.Report != nil {
		a.mu.Lock()
		a.lastReport = result.Report
		a.mu.Unlock()
	}
	if err != nil {
		a.finishWithError(jobID, err)
		return
	}

	defer func() {
		if cleanupErr := result.Cleanup(); cleanupErr != nil {
			a.publishStatus(jobID, "", fmt.Sprintf("cleanup temporary files: %v", cleanupErr), "warning")
		}
	}()

	if err := a.Jobs.Transition(domain.JobStatusPackaging); err == nil {
		a.publishStatus(jobID, domain.JobStatusPackaging,
			fmt.Sprintf("Creating archive with %d PDF(s)...", len(result.Outputs)), "info")
	}
	sink.Progress(85)

	password := ""
	if req.UsePassword {
		password = req.Password
	}

	err = a.packager.Pack(ctx, req.ArchivePath, result.Outputs, password, func(done, total int) {
		sink.Progress(85 + done*15/total)
	})
	if err != nil {
		a.finishWithError(jobID, err)
		return
	}

	sink.Progress(100)
	if err := a.Jobs.Transition(domain.JobStatusDone); err == nil {
		a.publishStatus(jobID, domain.JobStatusDone, "Archive created", "success")
	}
	a.publishEvent(jobs.Event{
		JobID:   jobID,
		Type:    jobs.EventTypeFinished,
		Status:  domain.JobStatusDone,
		Success: true,
		ZipPath: req.ArchivePath,
	})
	a.clearActiveJob(jobID)
}

// finishWithError maps a terminal error to cancelled or failed events.
// A cancelled run is not an application error and is reported as such.
func (a *App) finishWithError(jobID string, err error) {
	if errors.Is(err, convert.ErrCancelled) || errors.Is(err, context.Canceled) {
		_ = a.Jobs.Transition(domain.JobStatusCancelled)
		a.publishStatus(jobID, domain.JobStatusCancelled, "Batch cancelled", "warning")
		a.publishEvent(jobs.Event{
			JobID:     jobID,
			Type:      jobs.EventTypeFinished,
			Status:    domain.JobStatusCancelled,
			Cancelled: true,
			Error:     "conversion cancelled",
		})
		a.clearActiveJob(jobID)
		return
	}

	_ = a.Jobs.Transition(domain.JobStatusFailed)
	a.publishStatus(jobID, domain.JobStatusFailed, "Batch failed", "error")
	a.publishEvent(jobs.Event{
		JobID:  jobID,
		Type:   jobs.EventTypeFinished,
		Status: domain.JobStatusFailed,
		Error:  err.Error(),
	})
	a.clearActiveJob(jobID)
}

// jobSink forwards orchestrator progress into the event bus.
type jobSink struct {
	app   *App
	jobID string
}

// Status publishes one status message with its severity.
func (s *jobSink) Status(message, severity string) {
	s.app.publishEvent(jobs.Event{
		JobID:    s.jobID,
		Type:     jobs.EventTypeStatus,
		Message:  message,
		Severity: severity,
	})
}

// Progress publishes overall progress in percent.
func (s *jobSink) Progress(percent int) {
	s.app.publishEvent(jobs.Event{
		JobID:    s.jobID,
		Type:     jobs.EventTypeProgress,
		Progress: percent,
	})
}

// Active publishes the completed/total counters.
func (s *jobSink) Active(completed, total int) {
	s.app.publishEvent(jobs.Event{
		JobID:     s.jobID,
		Type:      jobs.EventTypeActive,
		Completed: completed,
		Total:     total,
	})
}

// publishStatus sends a normalized status event.
func (a *App) publishStatus(jobID string, status domain.JobStatus, message, severity string) {
	a.publishEvent(jobs.Event{
		JobID:    jobID,
		Type:     jobs.EventTypeStatus,
		Status:   status,
		Message:  message,
		Severity: severity,
	})
}

// publishEvent stores event history and emits runtime push notifications.
func (a *App) publishEvent(event jobs.Event) {
	published := a.events.Publish(event)

	a.mu.Lock()
	ctx := a.runtimeCtx
	a.mu.Unlock()
	if ctx != nil {
		wailsruntime.EventsEmit(ctx, "job:event", published)
	}
}

// clearActiveJob clears cancellation handles for completed job IDs.
func (a *App) clearActiveJob(jobID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.activeJobID == jobID {
		a.activeJobID = ""
		a.cancel = nil
	}
}

// runtimeContext returns current Wails runtime context for dialog APIs.
func (a *App) runtimeContext() (context.Context, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runtimeCtx == nil {
		return nil, fmt.Errorf("runtime context is not initialized")
	}
	return a.runtimeCtx, nil
}

// normalizeSettings trims paths and clamps limits into supported ranges.
func normalizeSettings(settings domain.Settings) domain.Settings {
	settings.OutputDir = strings.TrimSpace(settings.OutputDir)
	if settings.OutputDir == "" {
		settings.OutputDir = config.DefaultSettings().OutputDir
	}
	if settings.MaxParallel < 1 {
		settings.MaxParallel = config.DefaultMaxParallel
	}
	if settings.MaxParallel > convert.MaxParallelAllowed {
		settings.MaxParallel = convert.MaxParallelAllowed
	}
	if settings.MaxRetries < 1 {
		settings.MaxRetries = config.DefaultMaxRetries
	}
	if settings.TimeoutSeconds <= 0 {
		settings.TimeoutSeconds = config.DefaultTimeoutSeconds
	}
	return settings
}

// defaultArchiveName builds a timestamped archive file name.
func defaultArchiveName() string {
	return fmt.Sprintf("documents_%s.zip", time.Now().Format("20060102_150405"))
}

// openInFileManager launches the platform file explorer for the provided
// path.
func openInFileManager(path string) error {
	var cmd *exec.Cmd
	switch goruntime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("explorer", filepath.Clean(path))
	default:
		cmd = exec.Command("xdg-open", path)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch file manager: %w", err)
	}
	return nil
}
