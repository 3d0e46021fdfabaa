package dispatch

import (
	"fmt"
	"strings"
)

// Kind names an execution strategy.
type Kind string

const (
	KindBackground Kind = "background"
	KindVisible    Kind = "visible"
	KindDirect     Kind = "direct"
)

// Kinds lists every supported strategy.
var Kinds = []Kind{KindBackground, KindVisible, KindDirect}

// ParseKind parses a strategy name case-insensitively.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if strings.EqualFold(strings.TrimSpace(s), string(k)) {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown dispatch strategy %q (want one of %v)", s, Kinds)
}

// Extras are the intent extra keys understood by the host's run-command
// entry point.
type Extras struct {
	Path       string
	Arguments  string
	WorkDir    string
	Background string
}

// Host identifies the external execution host.
type Host struct {
	Package  string
	Service  string
	Activity string
	Action   string
	// User is passed to the activity manager as --user when set.
	User string
	// Shell runs the inner command line for visible hand-offs.
	Shell  string
	Extras Extras
}

// component renders a package/class component name for `am -n`.
func (h Host) component(class string) string {
	return h.Package + "/" + class
}

// Strategy is one hand-off policy together with the host it targets.
type Strategy struct {
	Kind Kind
	Host Host
}
