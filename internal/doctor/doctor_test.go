package doctor

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mattjoyce/cinema-bridge/internal/config"
	"github.com/mattjoyce/cinema-bridge/internal/lock"
)

func validConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Script.WorkDir = cfg.Host.Home
	return cfg
}

func foundAll(string) (string, error) { return "/system/bin/x", nil }

func foundNone(string) (string, error) { return "", errors.New("not found") }

func hasIssue(issues []Issue, category, field string) bool {
	for _, i := range issues {
		if i.Category == category && (field == "" || i.Field == field) {
			return true
		}
	}
	return false
}

func TestValidate_ValidConfig(t *testing.T) {
	t.Parallel()
	r := New(validConfig()).WithLookPath(foundAll).Validate()
	if !r.Valid {
		t.Fatalf("expected valid, got errors: %v", r.Errors)
	}
	if len(r.Warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", r.Warnings)
	}
}

func TestValidate_BackgroundMissingAM(t *testing.T) {
	t.Parallel()
	r := New(validConfig()).WithLookPath(foundNone).Validate()
	if r.Valid {
		t.Fatal("expected invalid")
	}
	if !hasIssue(r.Errors, "host", "dispatch.am") {
		t.Fatalf("expected host error for dispatch.am, got %v", r.Errors)
	}
	if hasIssue(r.Errors, "host", "dispatch.pm") {
		t.Fatal("background strategy should not require pm")
	}
}

func TestValidate_VisibleNeedsPM(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Dispatch.Strategy = "visible"

	r := New(cfg).WithLookPath(func(bin string) (string, error) {
		if bin == "pm" {
			return "", errors.New("not found")
		}
		return "/system/bin/" + bin, nil
	}).Validate()

	if !hasIssue(r.Errors, "host", "dispatch.pm") {
		t.Fatalf("expected host error for dispatch.pm, got %v", r.Errors)
	}
}

func TestValidate_LauncherReplacesToolChecks(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Dispatch.Launcher = []string{"adb", "shell"}

	var looked []string
	r := New(cfg).WithLookPath(func(bin string) (string, error) {
		looked = append(looked, bin)
		return "/usr/bin/" + bin, nil
	}).Validate()

	if !r.Valid {
		t.Fatalf("expected valid, got %v", r.Errors)
	}
	if len(looked) != 1 || looked[0] != "adb" {
		t.Fatalf("expected only adb to be looked up, got %v", looked)
	}
}

func TestValidate_DirectScript(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	script := filepath.Join(dir, "run.sh")
	if err := os.WriteFile(script, []byte("#!/bin/sh\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := validConfig()
	cfg.Dispatch.Strategy = "direct"
	cfg.Script.Path = script
	cfg.Script.WorkDir = dir

	r := New(cfg).WithLookPath(foundNone).Validate()
	if !hasIssue(r.Errors, "script", "script.path") {
		t.Fatalf("expected non-executable script error, got %v", r.Errors)
	}
	if hasIssue(r.Errors, "host", "") {
		t.Fatal("direct strategy should not check host tooling")
	}

	if err := os.Chmod(script, 0o755); err != nil {
		t.Fatal(err)
	}
	r = New(cfg).WithLookPath(foundNone).Validate()
	if !r.Valid {
		t.Fatalf("expected valid, got %v", r.Errors)
	}

	cfg.Script.WorkDir = filepath.Join(dir, "missing")
	r = New(cfg).Validate()
	if !hasIssue(r.Errors, "script", "script.workdir") {
		t.Fatalf("expected workdir error, got %v", r.Errors)
	}
}

func TestValidate_APIAuth(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.API.Enabled = true
	cfg.Journal.Enabled = true
	cfg.API.Listen = "127.0.0.1:8087"
	r := New(cfg).WithLookPath(foundAll).Validate()
	if !r.Valid || !hasIssue(r.Warnings, "api", "api.auth.api_key") {
		t.Fatalf("expected loopback warning only, got errors %v warnings %v", r.Errors, r.Warnings)
	}

	cfg.API.Listen = "0.0.0.0:8087"
	r = New(cfg).WithLookPath(foundAll).Validate()
	if !hasIssue(r.Errors, "api", "api.auth.api_key") {
		t.Fatalf("expected error for unauthenticated public listener, got %v", r.Errors)
	}

	cfg.API.Auth.APIKey = "k"
	r = New(cfg).WithLookPath(foundAll).Validate()
	if !r.Valid {
		t.Fatalf("expected valid with api key, got %v", r.Errors)
	}
}

func TestValidate_JournalWarning(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.API.Enabled = true
	cfg.API.Auth.APIKey = "k"

	r := New(cfg).WithLookPath(foundAll).Validate()
	if !hasIssue(r.Warnings, "journal", "journal.enabled") {
		t.Fatalf("expected journal warning, got %v", r.Warnings)
	}
}

func TestValidate_RunningInstance(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Service.LockPath = filepath.Join(t.TempDir(), "cinema-bridge.lock")

	r := New(cfg).WithLookPath(foundAll).Validate()
	if hasIssue(r.Warnings, "service", "service.lock_path") {
		t.Fatalf("unexpected lock warning without a holder: %v", r.Warnings)
	}

	held, err := lock.Acquire(cfg.Service.LockPath)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	t.Cleanup(func() { _ = held.Release() })

	r = New(cfg).WithLookPath(foundAll).Validate()
	if !r.Valid {
		t.Fatalf("a running instance should only warn, got %v", r.Errors)
	}
	if !hasIssue(r.Warnings, "service", "service.lock_path") {
		t.Fatalf("expected lock warning, got %v", r.Warnings)
	}
}

func TestValidate_ProfilesWithoutDefault(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Validation.Profiles = []string{"Night", "Cinema"}

	r := New(cfg).WithLookPath(foundAll).Validate()
	if !hasIssue(r.Warnings, "validation", "validation.profiles") {
		t.Fatalf("expected profile warning, got %v", r.Warnings)
	}
	if !strings.Contains(r.Warnings[0].Message, "Night") {
		t.Fatalf("expected Night to become the default, got %q", r.Warnings[0].Message)
	}
}

func TestValidate_UnresolvedEnvVar(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Host.Shell = "${TERMUX_SHELL}"

	r := New(cfg).WithLookPath(foundAll).Validate()
	if !hasIssue(r.Warnings, "env_vars", "host.shell") {
		t.Fatalf("expected env var warning, got %v", r.Warnings)
	}
}

func TestValidate_Integrity(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("service:\n  name: x\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := validConfig()
	cfg.SourcePath = path

	r := New(cfg).WithLookPath(foundAll).Validate()
	if !r.Valid || !hasIssue(r.Warnings, "integrity", "") {
		t.Fatalf("expected integrity warning without manifest, got %v / %v", r.Errors, r.Warnings)
	}

	if _, err := config.Lock(path, false); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("service:\n  name: y\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	r = New(cfg).WithLookPath(foundAll).Validate()
	if !hasIssue(r.Errors, "integrity", "") {
		t.Fatalf("expected integrity error after tampering, got %v", r.Errors)
	}
}

func TestFormatHuman(t *testing.T) {
	t.Parallel()

	if got := FormatHuman(&Result{Valid: true}); got != "Configuration valid.\n" {
		t.Fatalf("unexpected output %q", got)
	}

	out := FormatHuman(&Result{
		Valid:    false,
		Errors:   []Issue{{Category: "host", Field: "dispatch.am", Message: "missing"}},
		Warnings: []Issue{{Category: "integrity", Message: "no manifest"}},
	})
	for _, want := range []string{
		"Configuration invalid (1 error(s), 1 warning(s))",
		"ERROR [host] dispatch.am: missing",
		"WARN  [integrity] no manifest",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestFormatJSON(t *testing.T) {
	t.Parallel()
	out, err := FormatJSON(&Result{Valid: true})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `"valid": true`) {
		t.Fatalf("unexpected JSON %q", out)
	}
}
