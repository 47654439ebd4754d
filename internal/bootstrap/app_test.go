package bootstrap

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"docx-pdf-packer/internal/convert"
	"docx-pdf-packer/internal/domain"
	"docx-pdf-packer/internal/jobs"
	"docx-pdf-packer/internal/report"
)

// fakeStore returns deterministic settings for App tests.
type fakeStore struct {
	settings domain.Settings
}

// Load returns preconfigured settings.
func (s *fakeStore) Load() (domain.Settings, error) {
	return s.settings, nil
}

// Save is a no-op for tests.
func (s *fakeStore) Save(domain.Settings) error {
	return nil
}

// fakeBatchRunner allows injecting custom run behavior per test.
type fakeBatchRunner struct {
	run func(ctx context.Context, inputs []string, parallel int) (*convert.RunResult, error)
}

// Run delegates to injected function.
func (r *fakeBatchRunner) Run(ctx context.Context, inputs []string, parallel int) (*convert.RunResult, error) {
	if r.run == nil {
		return &convert.RunResult{Report: report.New(len(inputs))}, nil
	}
	return r.run(ctx, inputs, parallel)
}

// fakePackager records pack invocations.
type fakePackager struct {
	mu       sync.Mutex
	zipPath  string
	files    []string
	password string
	err      error
}

func (p *fakePackager) Pack(ctx context.Context, zipPath string, files []string, password string, onEntry func(done, total int)) error {
	p.mu.Lock()
	p.zipPath = zipPath
	p.files = append([]string{}, files...)
	p.password = password
	p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	if onEntry != nil {
		for i := range files {
			onEntry(i+1, len(files))
		}
	}
	return nil
}

// newTestApp wires an App with fake collaborators.
func newTestApp(runner *fakeBatchRunner, packager *fakePackager) *App {
	app := &App{
		Store:    &fakeStore{settings: domain.Settings{OutputDir: "/tmp/out", MaxParallel: 4, MaxRetries: 5, TimeoutSeconds: 600}},
		Jobs:     jobs.NewManager(),
		packager: packager,
		events:   jobs.NewEventBus(100),
	}
	app.newRunner = func(sink convert.ProgressSink, settings domain.Settings) batchRunner {
		return runner
	}
	return app
}

func successResult(inputs []string) *convert.RunResult {
	rep := report.New(len(inputs))
	outputs := make([]string, 0, len(inputs))
	for _, input := range inputs {
		rep.AddSuccess(filepath.Base(input))
		outputs = append(outputs, "/tmp/work/"+filepath.Base(input)+".pdf")
	}
	rep.Finish()
	return &convert.RunResult{Outputs: outputs, Report: rep}
}

// TestStartBatchValidatesRequest checks input validation up front.
func TestStartBatchValidatesRequest(t *testing.T) {
	app := newTestApp(&fakeBatchRunner{}, &fakePackager{})

	cases := []struct {
		name string
		req  StartRequest
	}{
		{"no inputs", StartRequest{ArchivePath: "/tmp/a.zip", UsePassword: false}},
		{"missing password", StartRequest{Inputs: []string{"a.docx"}, ArchivePath: "/tmp/a.zip", UsePassword: true}},
		{"password mismatch", StartRequest{Inputs: []string{"a.docx"}, ArchivePath: "/tmp/a.zip", UsePassword: true, Password: "a", ConfirmPassword: "b"}},
		{"no destination", StartRequest{Inputs: []string{"a.docx"}, UsePassword: false}},
		{"parallel too high", StartRequest{Inputs: []string{"a.docx"}, ArchivePath: "/tmp/a.zip", Parallel: 17}},
	}
	for _, tc := range cases {
		if _, err := app.StartBatch(tc.req); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}

	if app.Jobs.IsRunning() {
		t.Fatal("rejected requests must not start a job")
	}
}

// TestStartBatchEnforcesSingleRunningJob checks single-job guard and the
// cancelled finished event.
func TestStartBatchEnforcesSingleRunningJob(t *testing.T) {
	runner := &fakeBatchRunner{run: func(ctx context.Context, inputs []string, parallel int) (*convert.RunResult, error) {
		<-ctx.Done()
		return &convert.RunResult{Report: report.New(len(inputs))}, convert.ErrCancelled
	}}
	app := newTestApp(runner, &fakePackager{})

	req := StartRequest{Inputs: []string{"a.docx"}, ArchivePath: "/tmp/a.zip"}
	if _, err := app.StartBatch(req); err != nil {
		t.Fatalf("start first job: %v", err)
	}
	if _, err := app.StartBatch(req); !errors.Is(err, jobs.ErrJobAlreadyRunning) {
		t.Fatalf("second start error = %v, want %v", err, jobs.ErrJobAlreadyRunning)
	}

	if err := app.CancelBatch(); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	waitForStatus(t, app, domain.JobStatusCancelled)

	finished := waitForFinishedEvent(t, app)
	if !finished.Cancelled || finished.Success {
		t.Fatalf("finished event = %+v, want cancelled", finished)
	}

	if _, err := app.StartBatch(req); err != nil {
		t.Fatalf("start after cancel: %v", err)
	}
}

// TestBatchSuccessPacksAndPublishesEvents checks the happy path end to
// end with fake collaborators.
func TestBatchSuccessPacksAndPublishesEvents(t *testing.T) {
	inputs := []string{"/docs/a.docx", "/docs/b.docx"}
	runner := &fakeBatchRunner{run: func(ctx context.Context, got []string, parallel int) (*convert.RunResult, error) {
		return successResult(got), nil
	}}
	packager := &fakePackager{}
	app := newTestApp(runner, packager)

	_, err := app.StartBatch(StartRequest{
		Inputs:          inputs,
		ArchivePath:     "/tmp/result.zip",
		UsePassword:     true,
		Password:        "s3cret",
		ConfirmPassword: "s3cret",
	})
	if err != nil {
		t.Fatalf("start job: %v", err)
	}

	waitForStatus(t, app, domain.JobStatusDone)
	finished := waitForFinishedEvent(t, app)

	if packager.zipPath != "/tmp/result.zip" || packager.password != "s3cret" {
		t.Fatalf("packager got path=%q password=%q", packager.zipPath, packager.password)
	}
	if len(packager.files) != 2 {
		t.Fatalf("packager files = %v", packager.files)
	}

	if !finished.Success || finished.ZipPath != "/tmp/result.zip" {
		t.Fatalf("finished event = %+v", finished)
	}

	events := app.JobEvents(0)

	var sawPackagingProgress, sawFullProgress bool
	for _, event := range events {
		if event.Type == jobs.EventTypeProgress && event.Progress == 85 {
			sawPackagingProgress = true
		}
		if event.Type == jobs.EventTypeProgress && event.Progress == 100 {
			sawFullProgress = true
		}
	}
	if !sawPackagingProgress || !sawFullProgress {
		t.Fatalf("missing packaging progress events: %+v", events)
	}

	if app.ReportText() == "" {
		t.Fatal("expected a rendered report after the batch")
	}
}

// TestBatchZeroSuccessFails checks that a batch with no converted files
// finishes as failed, not cancelled.
func TestBatchZeroSuccessFails(t *testing.T) {
	runner := &fakeBatchRunner{run: func(ctx context.Context, inputs []string, parallel int) (*convert.RunResult, error) {
		rep := report.New(len(inputs))
		for _, input := range inputs {
			rep.AddFailure(filepath.Base(input), "broken")
		}
		rep.Finish()
		return &convert.RunResult{Report: rep}, convert.ErrNoFilesConverted
	}}
	app := newTestApp(runner, &fakePackager{})

	if _, err := app.StartBatch(StartRequest{Inputs: []string{"a.docx"}, ArchivePath: "/tmp/a.zip"}); err != nil {
		t.Fatalf("start job: %v", err)
	}

	waitForStatus(t, app, domain.JobStatusFailed)

	finished := waitForFinishedEvent(t, app)
	if finished.Cancelled || finished.Success {
		t.Fatalf("finished event = %+v, want plain failure", finished)
	}
	if finished.Error == "" {
		t.Fatal("finished event must carry the batch error")
	}
	if app.ReportText() == "" {
		t.Fatal("report must remain readable after a failed batch")
	}
}

// TestBatchPackagingFailureIsReported checks the packaging error path.
func TestBatchPackagingFailureIsReported(t *testing.T) {
	runner := &fakeBatchRunner{run: func(ctx context.Context, inputs []string, parallel int) (*convert.RunResult, error) {
		return successResult(inputs), nil
	}}
	packager := &fakePackager{err: errors.New("disk full")}
	app := newTestApp(runner, packager)

	if _, err := app.StartBatch(StartRequest{Inputs: []string{"a.docx"}, ArchivePath: "/tmp/a.zip"}); err != nil {
		t.Fatalf("start job: %v", err)
	}

	waitForStatus(t, app, domain.JobStatusFailed)
	finished := waitForFinishedEvent(t, app)
	if finished.Error != "disk full" {
		t.Fatalf("finished error = %q", finished.Error)
	}
}

// TestStartBatchDefaultsParallelFromSettings checks the zero-value
// fallback to configured parallelism.
func TestStartBatchDefaultsParallelFromSettings(t *testing.T) {
	var gotParallel int
	runner := &fakeBatchRunner{run: func(ctx context.Context, inputs []string, parallel int) (*convert.RunResult, error) {
		gotParallel = parallel
		return successResult(inputs), nil
	}}
	app := newTestApp(runner, &fakePackager{})

	if _, err := app.StartBatch(StartRequest{Inputs: []string{"a.docx"}, ArchivePath: "/tmp/a.zip"}); err != nil {
		t.Fatalf("start job: %v", err)
	}

	waitForStatus(t, app, domain.JobStatusDone)
	if gotParallel != 4 {
		t.Fatalf("parallel = %d, want settings default 4", gotParallel)
	}
}

// TestPackagerGetsNoPasswordWhenDisabled checks the password toggle.
func TestPackagerGetsNoPasswordWhenDisabled(t *testing.T) {
	runner := &fakeBatchRunner{run: func(ctx context.Context, inputs []string, parallel int) (*convert.RunResult, error) {
		return successResult(inputs), nil
	}}
	packager := &fakePackager{}
	app := newTestApp(runner, packager)

	_, err := app.StartBatch(StartRequest{
		Inputs:      []string{"a.docx"},
		ArchivePath: "/tmp/a.zip",
		UsePassword: false,
		Password:    "ignored",
	})
	if err != nil {
		t.Fatalf("start job: %v", err)
	}

	waitForStatus(t, app, domain.JobStatusDone)
	if packager.password != "" {
		t.Fatalf("password = %q, want empty when protection is off", packager.password)
	}
}

// TestCancelBatchWithoutActiveJob checks the no-op cancel error.
func TestCancelBatchWithoutActiveJob(t *testing.T) {
	app := newTestApp(&fakeBatchRunner{}, &fakePackager{})
	if err := app.CancelBatch(); !errors.Is(err, jobs.ErrNoRunningJob) {
		t.Fatalf("error = %v, want %v", err, jobs.ErrNoRunningJob)
	}
}

// TestSaveReport checks report persistence and the no-report guard.
func TestSaveReport(t *testing.T) {
	app := newTestApp(&fakeBatchRunner{}, &fakePackager{})

	if err := app.SaveReport(filepath.Join(t.TempDir(), "report.txt")); err == nil {
		t.Fatal("expected error before any batch has run")
	}

	rep := report.New(1)
	rep.AddSuccess("a.docx")
	rep.Finish()
	app.mu.Lock()
	app.lastReport = rep
	app.mu.Unlock()

	path := filepath.Join(t.TempDir(), "report.txt")
	if err := app.SaveReport(path); err != nil {
		t.Fatalf("SaveReport() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("saved report is empty")
	}
}

// TestNormalizeSettingsClampsLimits checks range normalization.
func TestNormalizeSettingsClampsLimits(t *testing.T) {
	got := normalizeSettings(domain.Settings{
		OutputDir:      "  ",
		MaxParallel:    99,
		MaxRetries:     0,
		TimeoutSeconds: -5,
	})

	if got.OutputDir == "" {
		t.Fatal("output dir must fall back to default")
	}
	if got.MaxParallel != convert.MaxParallelAllowed {
		t.Fatalf("max parallel = %d, want clamp to %d", got.MaxParallel, convert.MaxParallelAllowed)
	}
	if got.MaxRetries != 5 || got.TimeoutSeconds != 600 {
		t.Fatalf("normalized = %+v", got)
	}
}

// waitForStatus polls until job reaches desired status or times out.
func waitForStatus(t *testing.T, app *App, want domain.JobStatus) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if app.CurrentJob().Status == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("status = %s, want %s", app.CurrentJob().Status, want)
}

// waitForFinishedEvent polls the event history for the terminal finished
// event, which can trail the job status change by a moment.
func waitForFinishedEvent(t *testing.T, app *App) jobs.Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		events := app.JobEvents(0)
		for i := len(events) - 1; i >= 0; i-- {
			if events[i].Type == jobs.EventTypeFinished {
				return events[i]
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("finished event not found")
	return jobs.Event{}
}
