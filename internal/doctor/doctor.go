// Package doctor checks a cinema-bridge configuration against the machine it
// runs on: host tooling, the processing script, auth, and config integrity.
package doctor

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/exec"
	"regexp"
	"slices"
	"strings"

	"github.com/mattjoyce/cinema-bridge/internal/config"
	"github.com/mattjoyce/cinema-bridge/internal/lock"
	"github.com/mattjoyce/cinema-bridge/internal/request"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor validates a loaded configuration.
type Doctor struct {
	cfg      *config.Config
	lookPath func(string) (string, error)
	stat     func(string) (os.FileInfo, error)
}

// New creates a Doctor for cfg.
func New(cfg *config.Config) *Doctor {
	return &Doctor{cfg: cfg, lookPath: exec.LookPath, stat: os.Stat}
}

// WithLookPath replaces the binary lookup used for host tooling checks.
func (d *Doctor) WithLookPath(fn func(string) (string, error)) *Doctor {
	d.lookPath = fn
	return d
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	d.validateHostTooling(r)
	d.validateScript(r)
	d.validateAPIConfig(r)
	d.validateProfiles(r)
	d.validateIntegrity(r)
	d.warnJournal(r)
	d.warnRunningInstance(r)
	d.warnMissingEnvVars(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

// validateHostTooling checks that the binaries a hand-off needs are on PATH.
func (d *Doctor) validateHostTooling(r *Result) {
	var tools []struct{ field, bin string }
	switch d.cfg.Dispatch.Strategy {
	case "background":
		tools = append(tools, struct{ field, bin string }{"dispatch.am", d.cfg.Dispatch.AM})
	case "visible":
		tools = append(tools,
			struct{ field, bin string }{"dispatch.am", d.cfg.Dispatch.AM},
			struct{ field, bin string }{"dispatch.pm", d.cfg.Dispatch.PM})
	default:
		return
	}

	// With a launcher, am/pm run on the far side and only the launcher is local.
	if len(d.cfg.Dispatch.Launcher) > 0 {
		tools = []struct{ field, bin string }{{"dispatch.launcher", d.cfg.Dispatch.Launcher[0]}}
	}

	for _, t := range tools {
		if _, err := d.lookPath(t.bin); err != nil {
			d.addError(r, "host", t.field,
				fmt.Sprintf("%q not found on PATH; %s hand-off will fail with DispatchError", t.bin, d.cfg.Dispatch.Strategy))
		}
	}
}

// validateScript checks the script for direct execution. For hand-offs the
// script lives in the host's sandbox and cannot be inspected from here.
func (d *Doctor) validateScript(r *Result) {
	if d.cfg.Dispatch.Strategy != "direct" {
		return
	}

	info, err := d.stat(d.cfg.Script.Path)
	if err != nil {
		d.addError(r, "script", "script.path", fmt.Sprintf("script not accessible: %v", err))
		return
	}
	if info.IsDir() {
		d.addError(r, "script", "script.path", "script path is a directory")
		return
	}
	if info.Mode().Perm()&0o111 == 0 {
		d.addError(r, "script", "script.path", "script is not executable")
	}

	if d.cfg.Script.WorkDir != "" {
		if wd, err := d.stat(d.cfg.Script.WorkDir); err != nil || !wd.IsDir() {
			d.addError(r, "script", "script.workdir",
				fmt.Sprintf("working directory %q does not exist", d.cfg.Script.WorkDir))
		}
	}
}

// validateAPIConfig checks API server settings.
func (d *Doctor) validateAPIConfig(r *Result) {
	if !d.cfg.API.Enabled {
		return
	}
	if d.cfg.API.Listen == "" {
		d.addError(r, "api", "api.listen", "api.listen is required when API is enabled")
		return
	}
	if d.cfg.API.Auth.APIKey != "" {
		return
	}
	if isLoopback(d.cfg.API.Listen) {
		d.addWarning(r, "api", "api.auth.api_key", "API enabled without authentication")
		return
	}
	d.addError(r, "api", "api.auth.api_key",
		fmt.Sprintf("API listens on %s without authentication; set api.auth.api_key", d.cfg.API.Listen))
}

// validateProfiles flags profile lists that drop the built-in default.
func (d *Doctor) validateProfiles(r *Result) {
	if len(d.cfg.Validation.Profiles) == 0 {
		return
	}
	domain := request.DefaultDomain().WithProfiles(d.cfg.Validation.Profiles)
	if domain.Profile.Default != string(request.ProfileDolby) {
		d.addWarning(r, "validation", "validation.profiles",
			fmt.Sprintf("profiles omit %s; calls without a profile will use %s", request.ProfileDolby, domain.Profile.Default))
	}
}

// validateIntegrity reports the .checksums audit.
func (d *Doctor) validateIntegrity(r *Result) {
	if d.cfg.SourcePath == "" {
		return
	}
	res, err := config.CheckIntegrity(d.cfg.SourcePath)
	if err != nil {
		d.addError(r, "integrity", "", err.Error())
		return
	}
	for _, e := range res.Errors {
		d.addError(r, "integrity", "", e)
	}
	for _, w := range res.Warnings {
		d.addWarning(r, "integrity", "", w)
	}
}

func (d *Doctor) warnJournal(r *Result) {
	if d.cfg.API.Enabled && !d.cfg.Journal.Enabled {
		d.addWarning(r, "journal", "journal.enabled", "journal disabled; GET /dispatches will return 404")
	}
}

func (d *Doctor) warnRunningInstance(r *Result) {
	if d.cfg.Service.LockPath == "" {
		return
	}
	pid, held, err := lock.Holder(d.cfg.Service.LockPath)
	if err != nil {
		d.addWarning(r, "service", "service.lock_path", err.Error())
		return
	}
	if held {
		d.addWarning(r, "service", "service.lock_path",
			fmt.Sprintf("a bridge server already holds the lock (pid %d); system start will fail", pid))
	}
}

var envVarRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// warnMissingEnvVars warns about ${VAR} references left unresolved by Load.
func (d *Doctor) warnMissingEnvVars(r *Result) {
	fields := map[string]string{
		"host.package":   d.cfg.Host.Package,
		"host.home":      d.cfg.Host.Home,
		"host.shell":     d.cfg.Host.Shell,
		"script.path":    d.cfg.Script.Path,
		"script.workdir": d.cfg.Script.WorkDir,
		"journal.path":   d.cfg.Journal.Path,
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, k := range keys {
		for _, m := range envVarRe.FindAllStringSubmatch(fields[k], -1) {
			d.addWarning(r, "env_vars", k, fmt.Sprintf("environment variable ${%s} not set", m[1]))
		}
	}
}

func isLoopback(listen string) bool {
	host, _, err := net.SplitHostPort(listen)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.Valid && len(r.Warnings) == 0 {
		b.WriteString("Configuration valid.\n")
		return b.String()
	}

	if r.Valid {
		fmt.Fprintf(&b, "Configuration valid (%d warning(s))\n", len(r.Warnings))
	} else {
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		writeIssue(&b, "ERROR", e)
	}
	for _, w := range r.Warnings {
		writeIssue(&b, "WARN ", w)
	}

	return b.String()
}

func writeIssue(b *strings.Builder, level string, i Issue) {
	if i.Field != "" {
		fmt.Fprintf(b, "  %s [%s] %s: %s\n", level, i.Category, i.Field, i.Message)
		return
	}
	fmt.Fprintf(b, "  %s [%s] %s\n", level, i.Category, i.Message)
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
