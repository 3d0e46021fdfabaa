package dispatch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/cinema-bridge/internal/command"
	"github.com/mattjoyce/cinema-bridge/internal/outcome"
	"github.com/mattjoyce/cinema-bridge/internal/request"
)

func writeScript(t *testing.T, dir, name, body string, mode os.FileMode) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), mode))
	return p
}

func TestExecRunner_Output(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "pm.sh", "#!/bin/sh\necho \"package:$2\"\npwd\n", 0o755)

	out, err := NewExecRunner().Output(context.Background(), Spec{Argv: []string{script, "path", "com.termux"}, Dir: dir})
	require.NoError(t, err)
	assert.Contains(t, string(out), "package:com.termux")
	assert.Contains(t, string(out), filepath.Base(dir))
}

func TestExecRunner_StartDoesNotWait(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "done")
	script := writeScript(t, dir, "run.sh", "#!/bin/sh\nsleep 1\nprintf '%s|%s|%s|%s' \"$1\" \"$2\" \"$3\" \"$4\" > \""+marker+"\"\n", 0o755)

	cmd, err := command.Build(request.ProcessingRequest{
		InputPath:     "/sdcard/a'b c$d.wav",
		Profile:       request.ProfileCinema,
		ChannelLayout: request.LayoutSurround,
		Intensity:     request.IntensityHigh,
	}, command.Target{ScriptPath: script, WorkDir: dir})
	require.NoError(t, err)

	started := time.Now()
	out := New(NewExecRunner(), Options{}).Dispatch(context.Background(), cmd, Strategy{Kind: KindDirect})
	require.True(t, out.OK, "outcome: %s", out)
	assert.Less(t, time.Since(started), 900*time.Millisecond, "direct dispatch must not wait for the script")

	_, statErr := os.Stat(marker)
	assert.True(t, os.IsNotExist(statErr), "script should still be running")

	require.Eventually(t, func() bool {
		data, err := os.ReadFile(marker)
		return err == nil && string(data) == "/sdcard/a'b c$d.wav|Cinema|Surround|High"
	}, 5*time.Second, 50*time.Millisecond)
}

func TestExecRunner_StartPermissionDenied(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "run.sh", "#!/bin/sh\nexit 0\n", 0o644)

	cmd, err := command.Build(request.ProcessingRequest{
		InputPath:     "/a.wav",
		Profile:       request.ProfileDolby,
		ChannelLayout: request.LayoutStereo,
		Intensity:     request.IntensityMedium,
	}, command.Target{ScriptPath: script, WorkDir: dir})
	require.NoError(t, err)

	out := New(NewExecRunner(), Options{}).Dispatch(context.Background(), cmd, Strategy{Kind: KindDirect})
	assert.False(t, out.OK)
	assert.Equal(t, outcome.KindExec, out.Kind)
}

func TestExecRunner_StartMissingWorkDir(t *testing.T) {
	err := NewExecRunner().Start(context.Background(), Spec{Argv: []string{"/bin/sh", "-c", "true"}, Dir: "/nonexistent/cinema"})
	assert.Error(t, err)
}

func TestExecRunner_EmptyArgv(t *testing.T) {
	r := NewExecRunner()
	_, err := r.Output(context.Background(), Spec{})
	assert.Error(t, err)
	assert.Error(t, r.Start(context.Background(), Spec{}))
}
