// Package request turns the caller's raw argument map into a validated
// ProcessingRequest.
package request

import (
	"fmt"
	"strings"

	"github.com/mattjoyce/cinema-bridge/internal/outcome"
)

// Argument keys accepted in a call's argument map. The first non-empty key of
// each group wins.
var (
	InputKeys     = []string{"inputPath", "input"}
	ProfileKeys   = []string{"profile"}
	ChannelKeys   = []string{"channels", "channelLayout"}
	IntensityKeys = []string{"intensity"}
)

type (
	Profile       string
	ChannelLayout string
	Intensity     string
)

const (
	ProfileDolby  Profile = "Dolby"
	ProfileCinema Profile = "Cinema"
	ProfileMusic  Profile = "Music"
	ProfileVoice  Profile = "Voice"

	LayoutStereo   ChannelLayout = "Stereo"
	LayoutSurround ChannelLayout = "Surround"

	IntensityLow    Intensity = "Low"
	IntensityMedium Intensity = "Medium"
	IntensityHigh   Intensity = "High"
)

// ProcessingRequest is a validated request. Enum fields always hold canonical
// values from the Domain they were parsed against.
type ProcessingRequest struct {
	InputPath     string
	Profile       Profile
	ChannelLayout ChannelLayout
	Intensity     Intensity
}

// Args returns the positional arguments handed to the processing script.
func (r ProcessingRequest) Args() []string {
	return []string{r.InputPath, string(r.Profile), string(r.ChannelLayout), string(r.Intensity)}
}

// Policy decides what happens to enum values outside their domain.
type Policy string

const (
	// PolicyReject fails the call with InvalidEnumValue.
	PolicyReject Policy = "reject"
	// PolicyCoerce substitutes the field default.
	PolicyCoerce Policy = "coerce"
)

// Valid reports whether p is a known policy.
func (p Policy) Valid() bool {
	return p == PolicyReject || p == PolicyCoerce
}

// Field is one enumerated parameter.
type Field struct {
	Name    string
	Default string
	Allowed []string
}

// canonical returns the allowed spelling matching v case-insensitively.
func (f Field) canonical(v string) (string, bool) {
	for _, a := range f.Allowed {
		if strings.EqualFold(a, v) {
			return a, true
		}
	}
	return "", false
}

// Domain holds the enumerated fields a request is validated against.
type Domain struct {
	Profile   Field
	Channels  Field
	Intensity Field
}

// DefaultDomain returns the built-in enum domains and defaults.
func DefaultDomain() Domain {
	return Domain{
		Profile: Field{
			Name:    "profile",
			Default: string(ProfileDolby),
			Allowed: []string{string(ProfileDolby), string(ProfileCinema), string(ProfileMusic), string(ProfileVoice)},
		},
		Channels: Field{
			Name:    "channels",
			Default: string(LayoutStereo),
			Allowed: []string{string(LayoutStereo), string(LayoutSurround)},
		},
		Intensity: Field{
			Name:    "intensity",
			Default: string(IntensityMedium),
			Allowed: []string{string(IntensityLow), string(IntensityMedium), string(IntensityHigh)},
		},
	}
}

// WithProfiles returns a copy of d whose profile domain is profiles. The
// default profile is kept when it is still allowed, otherwise the first entry
// becomes the default.
func (d Domain) WithProfiles(profiles []string) Domain {
	if len(profiles) == 0 {
		return d
	}
	d.Profile.Allowed = append([]string(nil), profiles...)
	if _, ok := d.Profile.canonical(d.Profile.Default); !ok {
		d.Profile.Default = profiles[0]
	}
	return d
}

// Coercion records an out-of-domain value replaced by its default.
type Coercion struct {
	Field string
	Raw   string
	Used  string
}

func (c Coercion) String() string {
	return fmt.Sprintf("%s: %q replaced by %q", c.Field, c.Raw, c.Used)
}

// Parse validates raw against domain. Absent or empty enum fields take their
// defaults; values outside the domain are handled according to policy. The
// returned coercions are only non-empty under PolicyCoerce.
func Parse(raw map[string]string, domain Domain, policy Policy) (ProcessingRequest, []Coercion, error) {
	input := lookup(raw, InputKeys)
	if strings.TrimSpace(input) == "" {
		return ProcessingRequest{}, nil, outcome.MissingArgument("inputPath")
	}

	var coercions []Coercion
	resolve := func(f Field, keys []string) (string, error) {
		v := strings.TrimSpace(lookup(raw, keys))
		if v == "" {
			return f.Default, nil
		}
		if c, ok := f.canonical(v); ok {
			return c, nil
		}
		if policy == PolicyCoerce {
			coercions = append(coercions, Coercion{Field: f.Name, Raw: v, Used: f.Default})
			return f.Default, nil
		}
		return "", outcome.InvalidEnumValue(f.Name, v, f.Allowed)
	}

	profile, err := resolve(domain.Profile, ProfileKeys)
	if err != nil {
		return ProcessingRequest{}, nil, err
	}
	channels, err := resolve(domain.Channels, ChannelKeys)
	if err != nil {
		return ProcessingRequest{}, nil, err
	}
	intensity, err := resolve(domain.Intensity, IntensityKeys)
	if err != nil {
		return ProcessingRequest{}, nil, err
	}

	return ProcessingRequest{
		InputPath:     input,
		Profile:       Profile(profile),
		ChannelLayout: ChannelLayout(channels),
		Intensity:     Intensity(intensity),
	}, coercions, nil
}

func lookup(raw map[string]string, keys []string) string {
	for _, k := range keys {
		if v := raw[k]; v != "" {
			return v
		}
	}
	return ""
}
