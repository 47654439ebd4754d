package convert

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"docx-pdf-packer/internal/domain"
)

// Converter turns one input document into one PDF, retrying transient
// failures up to a bounded number of attempts. A nil fallback means only
// the primary strategy is available; a nil primary fails every attempt.
type Converter struct {
	primary    Strategy
	fallback   Strategy
	maxRetries int
	timeout    time.Duration
	log        *logrus.Logger

	stat   func(name string) (os.FileInfo, error)
	remove func(name string) error
	sleep  func(d time.Duration)
}

// NewConverter constructs a converter with real OS dependencies.
func NewConverter(primary, fallback Strategy, maxRetries int, timeout time.Duration, log *logrus.Logger) *Converter {
	if log == nil {
		log = logrus.StandardLogger()
	}

	return &Converter{
		primary:    primary,
		fallback:   fallback,
		maxRetries: maxRetries,
		timeout:    timeout,
		log:        log,
		stat:       os.Stat,
		remove:     os.Remove,
		sleep:      time.Sleep,
	}
}

// Convert runs the retry loop for one input file and returns its outcome.
// Precondition failures (missing input, missing output directory) return
// immediately with zero attempts.
func (c *Converter) Convert(ctx context.Context, inputPath, outputDir string) domain.Outcome {
	outputPath := filepath.Join(outputDir, outputFileName(inputPath))

	info, err := c.stat(inputPath)
	if err != nil || !info.Mode().IsRegular() {
		return domain.Outcome{
			InputPath: inputPath,
			Status:    domain.OutcomeFailed,
			Attempts:  0,
			Error:     fmt.Sprintf("input file does not exist or is not a regular file: %s", inputPath),
		}
	}

	if info, err := c.stat(outputDir); err != nil || !info.IsDir() {
		return domain.Outcome{
			InputPath: inputPath,
			Status:    domain.OutcomeFailed,
			Attempts:  0,
			Error:     fmt.Sprintf("output directory does not exist: %s", outputDir),
		}
	}

	name := filepath.Base(inputPath)
	var lastErr string

	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		// Clear residue from a previous attempt. Removal errors are not
		// fatal; the strategy overwrites the file anyway.
		if _, err := c.stat(outputPath); err == nil {
			if err := c.remove(outputPath); err != nil {
				c.log.WithFields(logrus.Fields{"file": name}).
					Warnf("could not remove leftover output: %v", err)
			}
		}

		lastErr = c.runAttempt(ctx, inputPath, outputPath, name, attempt)
		if lastErr == "" {
			return domain.Outcome{
				InputPath:  inputPath,
				OutputPath: outputPath,
				Status:     domain.OutcomeSuccess,
				Attempts:   attempt,
			}
		}

		if errors.Is(ctx.Err(), context.Canceled) {
			return domain.Outcome{
				InputPath: inputPath,
				Status:    domain.OutcomeCancelled,
				Attempts:  attempt,
				Error:     "conversion cancelled",
			}
		}

		if c.fallback != nil && attempt < c.maxRetries {
			c.log.WithFields(logrus.Fields{"file": name, "attempt": attempt}).
				Infof("trying fallback strategy %s", c.fallback.Name())
			if err := c.fallback.Convert(ctx, inputPath, outputPath); err == nil && c.outputValid(outputPath) {
				c.log.WithFields(logrus.Fields{"file": name, "attempt": attempt}).
					Infof("converted via fallback %s", c.fallback.Name())
				return domain.Outcome{
					InputPath:  inputPath,
					OutputPath: outputPath,
					Status:     domain.OutcomeSuccess,
					Attempts:   attempt,
				}
			}
		}

		c.log.WithFields(logrus.Fields{"file": name}).
			Warnf("attempt %d/%d failed: %s", attempt, c.maxRetries, lastErr)
		if attempt < c.maxRetries {
			c.sleep(backoffDelay(attempt))
		}
	}

	c.log.WithFields(logrus.Fields{"file": name}).
		Errorf("conversion failed after %d attempts", c.maxRetries)
	return domain.Outcome{
		InputPath: inputPath,
		Status:    domain.OutcomeFailed,
		Attempts:  c.maxRetries,
		Error:     fmt.Sprintf("failed after %d attempts: %s", c.maxRetries, lastErr),
	}
}

// runAttempt executes the primary strategy under the attempt timeout and
// validates its output. It returns an empty string on success and the
// failure cause otherwise.
func (c *Converter) runAttempt(ctx context.Context, inputPath, outputPath, name string, attempt int) string {
	if c.primary == nil {
		return "no conversion backend available"
	}

	c.log.WithFields(logrus.Fields{"file": name, "attempt": attempt}).
		Infof("converting with %s", c.primary.Name())

	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.primary.Convert(attemptCtx, inputPath, outputPath)
	if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return fmt.Sprintf("timeout after %s", c.timeout)
	}
	if err != nil {
		return err.Error()
	}

	if !c.outputValid(outputPath) {
		return "output file is empty or missing after conversion"
	}
	return ""
}

// outputValid reports whether the produced file exists and is non-empty.
func (c *Converter) outputValid(outputPath string) bool {
	info, err := c.stat(outputPath)
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}

// backoffDelay grows linearly with the attempt index and is capped so a
// long retry chain does not stall the whole batch.
func backoffDelay(attempt int) time.Duration {
	seconds := attempt * 3
	if seconds > 15 {
		seconds = 15
	}
	return time.Duration(seconds) * time.Second
}

// outputFileName derives the PDF name from the input's base name.
func outputFileName(inputPath string) string {
	base := filepath.Base(inputPath)
	stem := strings.TrimSpace(strings.TrimSuffix(base, filepath.Ext(base)))
	if stem == "" || stem == "." {
		stem = "document"
	}
	return stem + ".pdf"
}

// NewConverterForTests constructs a converter with injectable
// dependencies and a controllable clock.
func NewConverterForTests(
	primary Strategy,
	fallback Strategy,
	maxRetries int,
	timeout time.Duration,
	stat func(name string) (os.FileInfo, error),
	remove func(name string) error,
	sleep func(d time.Duration),
) *Converter {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetLevel(logrus.PanicLevel)

	return &Converter{
		primary:    primary,
		fallback:   fallback,
		maxRetries: maxRetries,
		timeout:    timeout,
		log:        log,
		stat:       stat,
		remove:     remove,
		sleep:      sleep,
	}
}
