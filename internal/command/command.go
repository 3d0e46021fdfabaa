// Package command builds the shell command handed to the execution host.
//
// Every argument is quoted on its own with POSIX single/double quoting, and
// every line produced here is tokenized again before it is returned: if the
// tokens differ from the argv they were built from, construction fails with a
// CommandConstructionError instead of handing a mangled command downstream.
package command

import (
	"encoding/hex"
	"fmt"
	"path"
	"slices"
	"strings"

	"github.com/zeebo/blake3"
	"mvdan.cc/sh/v3/shell"
	"mvdan.cc/sh/v3/syntax"

	"github.com/mattjoyce/cinema-bridge/internal/outcome"
	"github.com/mattjoyce/cinema-bridge/internal/request"
)

// Target addresses the processing script on the execution host.
type Target struct {
	// ScriptPath is the absolute path of the entry script.
	ScriptPath string
	// WorkDir is the directory the script runs in.
	WorkDir string
}

// Command is a fully built invocation of the processing script.
type Command struct {
	// Argv is [script, inputPath, profile, channels, intensity].
	Argv []string
	Dir  string
	// Line is Argv quoted for a POSIX shell.
	Line string
}

// Wrapped is a Command nested inside an outer shell invocation.
type Wrapped struct {
	// Argv is [shell, "-c", inner line].
	Argv []string
	// Line is Argv quoted for a POSIX shell.
	Line string
}

// Build turns a validated request into a Command for target.
func Build(req request.ProcessingRequest, target Target) (Command, error) {
	if !path.IsAbs(target.ScriptPath) {
		return Command{}, outcome.Newf(outcome.KindCommandConstruction,
			"script path must be absolute, got %q", target.ScriptPath)
	}

	argv := append([]string{target.ScriptPath}, req.Args()...)
	line, err := Join(argv)
	if err != nil {
		return Command{}, err
	}

	return Command{
		Argv: argv,
		Dir:  target.WorkDir,
		Line: line,
	}, nil
}

// Wrap nests c inside `shell -c`. Both the inner line and the outer line are
// verified by tokenizing them again.
func (c Command) Wrap(sh string) (Wrapped, error) {
	if sh == "" {
		return Wrapped{}, outcome.Newf(outcome.KindCommandConstruction, "wrap: shell is empty")
	}

	inner, err := Split(c.Line)
	if err != nil {
		return Wrapped{}, err
	}
	if !slices.Equal(inner, c.Argv) {
		return Wrapped{}, outcome.Newf(outcome.KindCommandConstruction,
			"wrap: inner line does not reproduce argv (%d tokens, want %d)", len(inner), len(c.Argv))
	}

	argv := []string{sh, "-c", c.Line}
	line, err := Join(argv)
	if err != nil {
		return Wrapped{}, err
	}
	return Wrapped{Argv: argv, Line: line}, nil
}

// Fingerprint is a BLAKE3 digest of the argv and working directory. Identical
// requests against the same target always share a fingerprint.
func (c Command) Fingerprint() string {
	var b strings.Builder
	for _, a := range c.Argv {
		b.WriteString(a)
		b.WriteByte(0)
	}
	b.WriteString(c.Dir)
	sum := blake3.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Quote quotes s so that a POSIX shell reads it back as exactly one word.
func Quote(s string) (string, error) {
	q, err := syntax.Quote(s, syntax.LangPOSIX)
	if err != nil {
		// LangPOSIX refuses control characters because it has no $'..'
		// form, but single quotes keep them literal. NUL cannot be passed
		// in an argv at all.
		if strings.ContainsRune(s, 0) {
			return "", outcome.Wrap(outcome.KindCommandConstruction, fmt.Sprintf("quote %q", s), err)
		}
		return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'", nil
	}
	// POSIX has no brace expansion so LangPOSIX leaves braces bare, but the
	// host shell is usually bash.
	if q == s && strings.ContainsAny(s, "{}") {
		q = "'" + s + "'"
	}
	return q, nil
}

// Join quotes each element of argv and joins them with spaces. The result is
// tokenized again and must reproduce argv exactly.
func Join(argv []string) (string, error) {
	if len(argv) == 0 {
		return "", outcome.Newf(outcome.KindCommandConstruction, "empty argv")
	}

	quoted := make([]string, len(argv))
	for i, a := range argv {
		q, err := Quote(a)
		if err != nil {
			return "", err
		}
		quoted[i] = q
	}
	line := strings.Join(quoted, " ")

	back, err := Split(line)
	if err != nil {
		return "", err
	}
	if !slices.Equal(back, argv) {
		return "", outcome.Newf(outcome.KindCommandConstruction,
			"quoted line does not round-trip: %q", line)
	}
	return line, nil
}

// Split tokenizes line the way a POSIX shell splits a simple command's words.
// No variables are visible to the expansion.
func Split(line string) ([]string, error) {
	fields, err := shell.Fields(line, func(string) string { return "" })
	if err != nil {
		return nil, outcome.Wrap(outcome.KindCommandConstruction, "tokenize", err)
	}
	return fields, nil
}
