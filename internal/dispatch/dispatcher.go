package dispatch

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"slices"
	"strings"

	"github.com/mattjoyce/cinema-bridge/internal/command"
	"github.com/mattjoyce/cinema-bridge/internal/log"
	"github.com/mattjoyce/cinema-bridge/internal/outcome"
)

const (
	// maxToolOutput caps how much am/pm output is quoted in a failure detail.
	maxToolOutput = 512

	// DefaultAckMessage acknowledges a successful hand-off.
	DefaultAckMessage = "processing started"
)

// Options configures a Dispatcher.
type Options struct {
	// AM and PM are the activity and package manager binaries.
	AM string
	PM string
	// Launcher, when set, prefixes every am/pm invocation. The am/pm argv is
	// joined into a single quoted argument, e.g. ["adb", "shell"].
	Launcher []string
	// AckMessage is the Success message. Defaults to DefaultAckMessage.
	AckMessage string
}

// Dispatcher executes commands through a Runner according to a Strategy.
type Dispatcher struct {
	runner Runner
	opts   Options
	logger *slog.Logger
}

// New creates a Dispatcher.
func New(runner Runner, opts Options) *Dispatcher {
	if opts.AM == "" {
		opts.AM = "am"
	}
	if opts.PM == "" {
		opts.PM = "pm"
	}
	if opts.AckMessage == "" {
		opts.AckMessage = DefaultAckMessage
	}
	return &Dispatcher{
		runner: runner,
		opts:   opts,
		logger: log.WithComponent("dispatch"),
	}
}

// Dispatch hands cmd to the host using strategy s. It never panics and never
// returns an error; failures come back as a Failure outcome.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd command.Command, s Strategy) (out outcome.Outcome) {
	logger := d.logger.With("strategy", string(s.Kind), "fingerprint", cmd.Fingerprint())

	defer func() {
		if r := recover(); r != nil {
			logger.Error("dispatch panicked", "panic", r)
			out = outcome.Failure(outcome.KindDispatch, fmt.Sprintf("dispatch panicked: %v", r))
		}
	}()

	var err error
	switch s.Kind {
	case KindBackground:
		err = d.background(ctx, cmd, s.Host)
	case KindVisible:
		err = d.visible(ctx, cmd, s.Host)
	case KindDirect:
		err = d.direct(ctx, cmd)
	default:
		err = outcome.Newf(outcome.KindDispatch, "unknown dispatch strategy %q", s.Kind)
	}

	if err != nil {
		out = outcome.FromError(err)
		logger.Warn("dispatch failed", "kind", string(out.Kind), "detail", out.Detail)
		return out
	}

	logger.Info("command handed off")
	return outcome.Success(d.opts.AckMessage)
}

// background starts the host's run-command service with the background flag.
func (d *Dispatcher) background(ctx context.Context, cmd command.Command, h Host) error {
	extras, err := runCommandExtras(h, cmd.Argv[0], cmd.Argv[1:], cmd.Dir, true)
	if err != nil {
		return err
	}
	return d.handoff(ctx, append(d.amArgv("startservice", h, h.Service), extras...))
}

// visible resolves the host package and brings its activity to the
// foreground, running the command line through the host shell.
func (d *Dispatcher) visible(ctx context.Context, cmd command.Command, h Host) error {
	if err := d.resolve(ctx, h.Package); err != nil {
		return err
	}

	wrapped, err := cmd.Wrap(h.Shell)
	if err != nil {
		return err
	}

	extras, err := runCommandExtras(h, wrapped.Argv[0], wrapped.Argv[1:], cmd.Dir, false)
	if err != nil {
		return err
	}
	return d.handoff(ctx, append(d.amArgv("start", h, h.Activity), extras...))
}

// direct launches the script in the caller's own sandbox without waiting.
func (d *Dispatcher) direct(ctx context.Context, cmd command.Command) error {
	if err := d.runner.Start(ctx, Spec{Argv: cmd.Argv, Dir: cmd.Dir}); err != nil {
		return outcome.Wrap(outcome.KindExec, fmt.Sprintf("start %s", cmd.Argv[0]), err)
	}
	return nil
}

// resolve checks that pkg is installed on the host.
func (d *Dispatcher) resolve(ctx context.Context, pkg string) error {
	if pkg == "" {
		return outcome.Newf(outcome.KindDispatch, "host not found: no package configured")
	}

	out, err := d.tool(ctx, []string{d.opts.PM, "path", pkg})
	for _, line := range lines(out) {
		if strings.HasPrefix(line, "package:") {
			return nil
		}
	}
	if errors.Is(err, exec.ErrNotFound) {
		return outcome.Wrap(outcome.KindDispatch, "host not found: package manager unavailable", err)
	}
	return outcome.Newf(outcome.KindDispatch, "host not found: %s", pkg)
}

// handoff runs an activity manager invocation and classifies its result.
// am reports many failures on stdout with a zero exit status.
func (d *Dispatcher) handoff(ctx context.Context, argv []string) error {
	out, err := d.tool(ctx, argv)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return outcome.Wrap(outcome.KindDispatch, "activity manager unavailable", err)
		}
		if detail := failureLine(out); detail != "" {
			return outcome.Newf(outcome.KindDispatch, "hand-off rejected: %s", detail)
		}
		return outcome.Wrap(outcome.KindDispatch, "hand-off failed: "+truncate(string(out)), err)
	}
	if detail := failureLine(out); detail != "" {
		return outcome.Newf(outcome.KindDispatch, "hand-off rejected: %s", detail)
	}
	return nil
}

// tool runs an am/pm argv, through the launcher prefix when one is set.
func (d *Dispatcher) tool(ctx context.Context, argv []string) ([]byte, error) {
	spec := Spec{Argv: argv}
	if len(d.opts.Launcher) > 0 {
		line, err := command.Join(argv)
		if err != nil {
			return nil, err
		}
		spec.Argv = append(append([]string(nil), d.opts.Launcher...), line)
	}
	return d.runner.Output(ctx, spec)
}

func (d *Dispatcher) amArgv(verb string, h Host, class string) []string {
	argv := []string{d.opts.AM, verb}
	if h.User != "" {
		argv = append(argv, "--user", h.User)
	}
	argv = append(argv, "-n", h.component(class))
	if h.Action != "" {
		argv = append(argv, "-a", h.Action)
	}
	return argv
}

// runCommandExtras renders the run-command intent extras.
func runCommandExtras(h Host, path string, args []string, dir string, background bool) ([]string, error) {
	e := h.Extras
	extras := []string{"--es", e.Path, path}
	if len(args) > 0 {
		arr, err := escapeArray(args)
		if err != nil {
			return nil, err
		}
		extras = append(extras, "--esa", e.Arguments, arr)
	}
	if dir != "" {
		extras = append(extras, "--es", e.WorkDir, dir)
	}
	return append(extras, "--ez", e.Background, fmt.Sprintf("%t", background)), nil
}

// escapeArray joins values for an `am --esa` extra. am splits on commas not
// preceded by a backslash and then turns `\,` back into `,`, so a value
// ending in a backslash would swallow the separator after it. The encoding
// is checked by decoding it again.
func escapeArray(values []string) (string, error) {
	escaped := make([]string, len(values))
	for i, v := range values {
		if i < len(values)-1 && strings.HasSuffix(v, `\`) {
			return "", outcome.Newf(outcome.KindCommandConstruction,
				"argument %d ends in a backslash and cannot be passed as an array extra: %q", i, v)
		}
		escaped[i] = strings.ReplaceAll(v, ",", `\,`)
	}
	joined := strings.Join(escaped, ",")
	if got := splitArray(joined); !slices.Equal(got, values) {
		return "", outcome.Newf(outcome.KindCommandConstruction,
			"array extra does not decode losslessly: %q", joined)
	}
	return joined, nil
}

// splitArray decodes an `am --esa` value the way the activity manager does.
func splitArray(s string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ',' && (i == 0 || s[i-1] != '\\') {
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	parts = append(parts, s[start:])
	for i, p := range parts {
		parts[i] = strings.ReplaceAll(p, `\,`, ",")
	}
	return parts
}

// failureLine returns the first line of am output that reports a failure.
func failureLine(out []byte) string {
	for _, line := range lines(out) {
		if strings.HasPrefix(line, "Error") ||
			strings.Contains(line, "SecurityException") ||
			strings.Contains(line, "Security exception") {
			return truncate(line)
		}
	}
	return ""
}

func lines(out []byte) []string {
	var result []string
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			result = append(result, line)
		}
	}
	return result
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxToolOutput {
		return s[:maxToolOutput] + "..."
	}
	return s
}
