package diagnostics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"docx-pdf-packer/internal/domain"
)

// TestCheckerRunAllPass validates happy-path diagnostics report.
func TestCheckerRunAllPass(t *testing.T) {
	checker := NewCheckerForTests(
		"windows",
		func(name string) (string, error) { return "/usr/local/bin/" + name, nil },
		os.MkdirAll,
		os.CreateTemp,
		os.Remove,
	)

	report := checker.Run(domain.Settings{
		OutputDir: filepath.Join(t.TempDir(), "output"),
	})

	if report.HasFailures {
		t.Fatalf("expected no failures, got %+v", report.Items)
	}
}

// TestCheckerRunMissingToolsAndPaths validates failure reporting.
func TestCheckerRunMissingToolsAndPaths(t *testing.T) {
	checker := NewCheckerForTests(
		"linux",
		func(string) (string, error) { return "", errors.New("not found") },
		os.MkdirAll,
		os.CreateTemp,
		os.Remove,
	)

	report := checker.Run(domain.Settings{
		OutputDir: "",
	})

	if !report.HasFailures {
		t.Fatal("expected failures")
	}

	assertStatusByID(t, report, "tool_soffice", domain.DiagnosticStatusFail)
	assertStatusByID(t, report, "output_dir", domain.DiagnosticStatusFail)
}

// TestCheckerWordFallbackIsWarnNotFail validates the fallback probe is
// advisory only.
func TestCheckerWordFallbackIsWarnNotFail(t *testing.T) {
	checker := NewCheckerForTests(
		"linux",
		func(name string) (string, error) { return "/usr/bin/" + name, nil },
		os.MkdirAll,
		os.CreateTemp,
		os.Remove,
	)

	report := checker.Run(domain.Settings{
		OutputDir: filepath.Join(t.TempDir(), "output"),
	})

	if report.HasFailures {
		t.Fatalf("warn item must not fail the report: %+v", report.Items)
	}
	assertStatusByID(t, report, "word_fallback", domain.DiagnosticStatusWarn)
}

// TestWordFallbackAvailable validates the platform and tooling gates.
func TestWordFallbackAvailable(t *testing.T) {
	onPath := func(name string) (string, error) { return "C:\\Windows\\" + name, nil }
	missing := func(string) (string, error) { return "", errors.New("not found") }

	cases := []struct {
		goos     string
		lookPath func(string) (string, error)
		want     bool
	}{
		{"windows", onPath, true},
		{"windows", missing, false},
		{"linux", onPath, false},
		{"darwin", onPath, false},
	}
	for _, tc := range cases {
		checker := NewCheckerForTests(tc.goos, tc.lookPath, os.MkdirAll, os.CreateTemp, os.Remove)
		if got := checker.WordFallbackAvailable(); got != tc.want {
			t.Fatalf("WordFallbackAvailable() on %s = %v, want %v", tc.goos, got, tc.want)
		}
	}
}

// TestCheckerOutputDirNotWritable validates the write probe.
func TestCheckerOutputDirNotWritable(t *testing.T) {
	checker := NewCheckerForTests(
		"windows",
		func(name string) (string, error) { return "/bin/" + name, nil },
		func(string, os.FileMode) error { return nil },
		func(string, string) (*os.File, error) { return nil, errors.New("read-only filesystem") },
		os.Remove,
	)

	report := checker.Run(domain.Settings{OutputDir: "/mnt/readonly"})
	if !report.HasFailures {
		t.Fatal("expected failure for unwritable directory")
	}
	assertStatusByID(t, report, "output_dir", domain.DiagnosticStatusFail)
}

// assertStatusByID checks status for one diagnostic item by ID.
func assertStatusByID(t *testing.T, report domain.DiagnosticReport, id string, want domain.DiagnosticStatus) {
	t.Helper()
	for _, item := range report.Items {
		if item.ID == id {
			if item.Status != want {
				t.Fatalf("item %s: got %s, want %s", id, item.Status, want)
			}
			return
		}
	}
	t.Fatalf("diagnostic item not found: %s", id)
}
