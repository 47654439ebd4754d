package convert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// Strategy converts one input document into one output file. A failure
// may be a returned error or an observably empty/missing output file;
// the converter validates the output either way.
type Strategy interface {
	Name() string
	Convert(ctx context.Context, inputPath, outputPath string) error
}

// StrategyError is a strategy-aware error with optional command context.
type StrategyError struct {
	Strategy   string     `json:"strategy"`
	Message    string     `json:"message"`
	CommandLog CommandLog `json:"commandLog"`
	Err        error      `json:"-"`
}

// Error formats strategy failures for logs and the report.
func (e *StrategyError) Error() string {
	if e == nil {
		return ""
	}
	if e.CommandLog.Command == "" {
		return fmt.Sprintf("%s: %s", e.Strategy, e.Message)
	}

	return fmt.Sprintf(
		"%s: %s (cmd=%s exit=%d)",
		e.Strategy,
		e.Message,
		e.CommandLog.Command,
		e.CommandLog.ExitCode,
	)
}

// Unwrap exposes underlying error for errors.Is / errors.As.
func (e *StrategyError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// CommandLog captures one external command invocation result.
type CommandLog struct {
	Command  string   `json:"command"`
	Args     []string `json:"args"`
	ExitCode int      `json:"exitCode"`
	Stdout   string   `json:"stdout"`
	Stderr   string   `json:"stderr"`
}

// commandResult is an internal process execution response.
type commandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// commandRunner abstracts process execution for testability.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (commandResult, error)
}

// execRunner executes commands via os/exec.
type execRunner struct{}

// Run executes one command and captures stdout/stderr and exit code.
func (r *execRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := commandResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: 0,
	}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}

	return result, nil
}

// SofficeStrategy converts documents to PDF with headless LibreOffice.
type SofficeStrategy struct {
	binary string
	runner commandRunner
}

// NewSofficeStrategy builds the production LibreOffice strategy.
func NewSofficeStrategy() *SofficeStrategy {
	return &SofficeStrategy{
		binary: "soffice",
		runner: &execRunner{},
	}
}

// Name identifies the strategy in errors and logs.
func (s *SofficeStrategy) Name() string {
	return "soffice"
}

// Convert runs soffice headless conversion into the output's directory.
// LibreOffice derives the output name from the input stem, which matches
// the path the converter computes.
func (s *SofficeStrategy) Convert(ctx context.Context, inputPath, outputPath string) error {
	args := buildSofficeArgs(inputPath, filepath.Dir(outputPath))

	result, err := s.runner.Run(ctx, s.binary, args...)
	if err != nil {
		return &StrategyError{
			Strategy: s.Name(),
			Message:  "libreoffice conversion failed",
			CommandLog: CommandLog{
				Command:  s.binary,
				Args:     args,
				ExitCode: result.ExitCode,
				Stdout:   result.Stdout,
				Stderr:   result.Stderr,
			},
			Err: err,
		}
	}
	return nil
}

// buildSofficeArgs builds headless PDF conversion CLI args.
func buildSofficeArgs(inputPath, outDir string) []string {
	return []string{
		"--headless",
		"--norestore",
		"--convert-to", "pdf",
		"--outdir", outDir,
		inputPath,
	}
}

// WordStrategy converts documents through Word COM automation driven by
// PowerShell. It is the optional fallback and only exists when the host
// was probed as capable at startup.
type WordStrategy struct {
	shell  string
	runner commandRunner
}

// NewWordStrategy builds the production Word automation strategy.
func NewWordStrategy() *WordStrategy {
	return &WordStrategy{
		shell:  "powershell",
		runner: &execRunner{},
	}
}

// Name identifies the strategy in errors and logs.
func (s *WordStrategy) Name() string {
	return "word-com"
}

// Convert drives Word through COM to save the document as PDF.
func (s *WordStrategy) Convert(ctx context.Context, inputPath, outputPath string) error {
	args := []string{
		"-NoProfile",
		"-NonInteractive",
		"-Command", buildWordScript(inputPath, outputPath),
	}

	result, err := s.runner.Run(ctx, s.shell, args...)
	if err != nil {
		return &StrategyError{
			Strategy: s.Name(),
			Message:  "word automation failed",
			CommandLog: CommandLog{
				Command:  s.shell,
				Args:     args,
				ExitCode: result.ExitCode,
				Stdout:   result.Stdout,
				Stderr:   result.Stderr,
			},
			Err: err,
		}
	}
	return nil
}

// buildWordScript renders the COM automation script. 17 is wdFormatPDF.
func buildWordScript(inputPath, outputPath string) string {
	quote := func(path string) string {
		return "'" + strings.ReplaceAll(path, "'", "''") + "'"
	}

	lines := []string{
		"$word = New-Object -ComObject Word.Application",
		"$word.Visible = $false",
		"$doc = $word.Documents.Open(" + quote(inputPath) + ")",
		"$doc.SaveAs(" + quote(outputPath) + ", 17)",
		"$doc.Close()",
		"$word.Quit()",
	}
	return strings.Join(lines, "; ")
}

// NewSofficeStrategyForTests constructs the strategy with an injectable
// binary name and runner.
func NewSofficeStrategyForTests(binary string, runner commandRunner) *SofficeStrategy {
	return &SofficeStrategy{binary: binary, runner: runner}
}

// NewWordStrategyForTests constructs the strategy with an injectable
// shell name and runner.
func NewWordStrategyForTests(shell string, runner commandRunner) *WordStrategy {
	return &WordStrategy{shell: shell, runner: runner}
}
