package request

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/cinema-bridge/internal/outcome"
)

func TestParse_Defaults(t *testing.T) {
	req, coerced, err := Parse(map[string]string{"inputPath": "/sdcard/in.wav"}, DefaultDomain(), PolicyReject)
	require.NoError(t, err)
	assert.Empty(t, coerced)
	assert.Equal(t, ProcessingRequest{
		InputPath:     "/sdcard/in.wav",
		Profile:       ProfileDolby,
		ChannelLayout: LayoutStereo,
		Intensity:     IntensityMedium,
	}, req)
	assert.Equal(t, []string{"/sdcard/in.wav", "Dolby", "Stereo", "Medium"}, req.Args())
}

func TestParse_LegacyKeys(t *testing.T) {
	req, _, err := Parse(map[string]string{
		"input":         "/sdcard/movie.mkv",
		"channelLayout": "Surround",
		"intensity":     "High",
	}, DefaultDomain(), PolicyReject)
	require.NoError(t, err)
	assert.Equal(t, "/sdcard/movie.mkv", req.InputPath)
	assert.Equal(t, LayoutSurround, req.ChannelLayout)
	assert.Equal(t, IntensityHigh, req.Intensity)
}

func TestParse_MissingInput(t *testing.T) {
	cases := map[string]map[string]string{
		"absent":     {"profile": "Dolby"},
		"empty":      {"inputPath": ""},
		"whitespace": {"inputPath": "   \t"},
		"nil map":    nil,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := Parse(raw, DefaultDomain(), PolicyReject)
			kind, ok := outcome.KindOf(err)
			require.True(t, ok, "expected classified error, got %v", err)
			assert.Equal(t, outcome.KindMissingArgument, kind)
		})
	}
}

func TestParse_CanonicalizesCase(t *testing.T) {
	req, _, err := Parse(map[string]string{
		"inputPath": "/a.wav",
		"profile":   "dOLBY",
		"channels":  " surround ",
		"intensity": "low",
	}, DefaultDomain(), PolicyReject)
	require.NoError(t, err)
	assert.Equal(t, ProfileDolby, req.Profile)
	assert.Equal(t, LayoutSurround, req.ChannelLayout)
	assert.Equal(t, IntensityLow, req.Intensity)
}

func TestParse_RejectPolicy(t *testing.T) {
	hostile := "Stereo; rm -rf /"
	_, _, err := Parse(map[string]string{"inputPath": "/a.wav", "channels": hostile}, DefaultDomain(), PolicyReject)
	require.Error(t, err)

	kind, _ := outcome.KindOf(err)
	assert.Equal(t, outcome.KindInvalidEnumValue, kind)
	assert.Contains(t, err.Error(), "channels")
}

func TestParse_CoercePolicy(t *testing.T) {
	req, coerced, err := Parse(map[string]string{
		"inputPath": "/a.wav",
		"profile":   "$(reboot)",
		"intensity": "Max",
	}, DefaultDomain(), PolicyCoerce)
	require.NoError(t, err)

	assert.Equal(t, ProfileDolby, req.Profile)
	assert.Equal(t, IntensityMedium, req.Intensity)
	require.Len(t, coerced, 2)
	assert.Equal(t, Coercion{Field: "profile", Raw: "$(reboot)", Used: "Dolby"}, coerced[0])
	assert.Equal(t, "intensity", coerced[1].Field)
	for _, a := range req.Args()[1:] {
		assert.NotContains(t, a, "$")
	}
}

func TestDomain_WithProfiles(t *testing.T) {
	d := DefaultDomain().WithProfiles([]string{"Atmos", "Dolby"})
	assert.Equal(t, "Dolby", d.Profile.Default)

	d = DefaultDomain().WithProfiles([]string{"Atmos", "Night"})
	assert.Equal(t, "Atmos", d.Profile.Default)

	req, _, err := Parse(map[string]string{"inputPath": "/a.wav", "profile": "night"}, d, PolicyReject)
	require.NoError(t, err)
	assert.Equal(t, Profile("Night"), req.Profile)

	_, _, err = Parse(map[string]string{"inputPath": "/a.wav", "profile": "Dolby"}, d, PolicyReject)
	assert.Error(t, err)

	assert.Equal(t, DefaultDomain(), DefaultDomain().WithProfiles(nil))
}

func TestPolicyValid(t *testing.T) {
	assert.True(t, PolicyReject.Valid())
	assert.True(t, PolicyCoerce.Valid())
	assert.False(t, Policy("ignore").Valid())
}
