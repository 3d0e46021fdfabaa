package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/cinema-bridge/internal/outcome"
	"github.com/mattjoyce/cinema-bridge/internal/request"
)

const testScript = "/data/data/com.termux/files/home/cinema_engine/run.sh"

func testTarget() Target {
	return Target{ScriptPath: testScript, WorkDir: "/data/data/com.termux/files/home"}
}

func reqWithPath(p string) request.ProcessingRequest {
	return request.ProcessingRequest{
		InputPath:     p,
		Profile:       request.ProfileDolby,
		ChannelLayout: request.LayoutStereo,
		Intensity:     request.IntensityMedium,
	}
}

func TestBuild_ArgvAndWorkDir(t *testing.T) {
	cmd, err := Build(reqWithPath("/sdcard/in.wav"), testTarget())
	require.NoError(t, err)

	assert.Equal(t, []string{testScript, "/sdcard/in.wav", "Dolby", "Stereo", "Medium"}, cmd.Argv)
	assert.Equal(t, "/data/data/com.termux/files/home", cmd.Dir)

	back, err := Split(cmd.Line)
	require.NoError(t, err)
	assert.Equal(t, cmd.Argv, back)
}

func TestBuild_RoundTripsHostileValues(t *testing.T) {
	paths := []string{
		"/sdcard/a'b.wav",
		"/sdcard/My Music/track 01.wav",
		"/sdcard/$HOME.wav",
		"/sdcard/a;reboot.wav",
		"/sdcard/a&b&&c.wav",
		`/sdcard/"quoted".wav`,
		"/sdcard/back`tick`.wav",
		`/sdcard/back\slash.wav`,
		"/sdcard/$(id).wav",
		"/sdcard/glob*?[x].wav",
		"/sdcard/{a,b}.wav",
		"/sdcard/pipe|and>redirect<.wav",
		"/sdcard/#hash.wav",
		"~/home.wav",
		"/sdcard/'''.wav",
		"/sdcard/ünïcødé 音.wav",
		"/sdcard/tab\there.wav",
		"/sdcard/new\nline.wav",
		"/sdcard/cr\r'bell\a.wav",
	}
	for _, p := range paths {
		t.Run(p, func(t *testing.T) {
			cmd, err := Build(reqWithPath(p), testTarget())
			require.NoError(t, err)

			back, err := Split(cmd.Line)
			require.NoError(t, err)
			require.Len(t, back, 5)
			assert.Equal(t, p, back[1])
		})
	}
}

func TestBuild_SingleQuoteStaysOneArgument(t *testing.T) {
	cmd, err := Build(reqWithPath("/sdcard/a'b.wav"), testTarget())
	require.NoError(t, err)

	back, err := Split(cmd.Line)
	require.NoError(t, err)
	assert.Equal(t, "/sdcard/a'b.wav", back[1])
}

func TestBuild_Deterministic(t *testing.T) {
	a, err := Build(reqWithPath("/sdcard/x y.wav"), testTarget())
	require.NoError(t, err)
	b, err := Build(reqWithPath("/sdcard/x y.wav"), testTarget())
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.Len(t, a.Fingerprint(), 64)

	c, err := Build(reqWithPath("/sdcard/x  y.wav"), testTarget())
	require.NoError(t, err)
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
}

func TestFingerprint_ArgBoundaries(t *testing.T) {
	a := Command{Argv: []string{"/s", "ab", "c"}}
	b := Command{Argv: []string{"/s", "a", "bc"}}
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}

func TestBuild_RelativeScriptPath(t *testing.T) {
	_, err := Build(reqWithPath("/a.wav"), Target{ScriptPath: "run.sh"})
	kind, ok := outcome.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, outcome.KindCommandConstruction, kind)
}

func TestBuild_UnquotableValue(t *testing.T) {
	_, err := Build(reqWithPath("/sdcard/nul\x00.wav"), testTarget())
	kind, ok := outcome.KindOf(err)
	require.True(t, ok, "expected classified error, got %v", err)
	assert.Equal(t, outcome.KindCommandConstruction, kind)
}

func TestWrap_NestsLosslessly(t *testing.T) {
	cmd, err := Build(reqWithPath("/sdcard/it's a \"test\" $x;.wav"), testTarget())
	require.NoError(t, err)

	w, err := cmd.Wrap("/bin/sh")
	require.NoError(t, err)
	assert.Equal(t, []string{"/bin/sh", "-c", cmd.Line}, w.Argv)

	outer, err := Split(w.Line)
	require.NoError(t, err)
	require.Equal(t, w.Argv, outer)

	inner, err := Split(outer[2])
	require.NoError(t, err)
	assert.Equal(t, cmd.Argv, inner)
}

func TestWrap_Failures(t *testing.T) {
	cmd, err := Build(reqWithPath("/a.wav"), testTarget())
	require.NoError(t, err)

	_, err = cmd.Wrap("")
	kind, _ := outcome.KindOf(err)
	assert.Equal(t, outcome.KindCommandConstruction, kind)

	tampered := cmd
	tampered.Line = cmd.Line + " extra"
	_, err = tampered.Wrap("/bin/sh")
	kind, _ = outcome.KindOf(err)
	assert.Equal(t, outcome.KindCommandConstruction, kind)
}

func TestJoin(t *testing.T) {
	line, err := Join([]string{"am", "startservice", "--es", "k", "a b"})
	require.NoError(t, err)
	back, err := Split(line)
	require.NoError(t, err)
	assert.Equal(t, []string{"am", "startservice", "--es", "k", "a b"}, back)

	_, err = Join(nil)
	assert.Error(t, err)

	empty, err := Join([]string{"x", ""})
	require.NoError(t, err)
	back, err = Split(empty)
	require.NoError(t, err)
	assert.Equal(t, []string{"x", ""}, back)
}

func TestQuote_PlainWordsStayBare(t *testing.T) {
	q, err := Quote("Dolby")
	require.NoError(t, err)
	assert.Equal(t, "Dolby", q)

	q, err = Quote("{a,b}")
	require.NoError(t, err)
	assert.Equal(t, "'{a,b}'", q)

	q, err = Quote("a\tb'c")
	require.NoError(t, err)
	assert.Equal(t, "'a\tb'\\''c'", q)
}
