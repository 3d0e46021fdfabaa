package watch

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// HealthState tracks bridge health from /healthz polling.
type HealthState struct {
	Status         string
	UptimeSeconds  int64
	Channel        string
	Method         string
	JournalEnabled bool
	Connected      bool
	LastCheck      time.Time
}

// Pulse lights up on each event and fades over ten seconds.
type Pulse struct {
	last time.Time
}

func (p *Pulse) Hit(at time.Time) { p.last = at }

func (p Pulse) Last() time.Time { return p.last }

// Level is 0..5 lit dots, one fewer for every two seconds of quiet.
func (p Pulse) Level(now time.Time) int {
	if p.last.IsZero() {
		return 0
	}
	level := 5 - int(now.Sub(p.last)/(2*time.Second))
	return max(0, min(5, level))
}

func (p Pulse) Render(theme Theme, now time.Time) string {
	lit := p.Level(now)
	var b strings.Builder
	for i := range 5 {
		if i < lit {
			b.WriteString(theme.PulseOn.Render("●"))
		} else {
			b.WriteString(theme.PulseOff.Render("○"))
		}
	}
	return b.String()
}

func renderHeader(health HealthState, log *DispatchLog, pulse Pulse, theme Theme, width int, now time.Time) string {
	innerWidth := width - 4

	statusText := theme.StatusOK.Render("HEALTHY")
	if !health.Connected {
		statusText = theme.StatusFailed.Render("CONNECTING")
	} else if health.Status != "ok" && health.Status != "" {
		statusText = theme.StatusWarn.Render("DEGRADED")
	}

	title := fmt.Sprintf(" CINEMA-BRIDGE WATCH  %s", theme.Highlight.Render(health.Channel))
	clock := theme.Dim.Render(now.Format("15:04:05"))
	pad := innerWidth - lipgloss.Width(title) - lipgloss.Width(clock) - 4
	if pad < 1 {
		pad = 1
	}
	titleLine := title + strings.Repeat(" ", pad) + clock + " "

	journal := "journal off"
	if health.JournalEnabled {
		journal = "journal on"
	}
	statsLine := fmt.Sprintf(" %s  up %s  %s  %s  %s",
		statusText,
		formatDuration(time.Duration(health.UptimeSeconds)*time.Second),
		theme.StatusOK.Render(fmt.Sprintf("ok %d", log.OK)),
		theme.StatusFailed.Render(fmt.Sprintf("failed %d", log.Failed())),
		theme.Dim.Render(journal),
	)

	last := "never"
	if !pulse.Last().IsZero() {
		last = now.Sub(pulse.Last()).Round(time.Second).String() + " ago"
	}
	activityLine := fmt.Sprintf(" Last call: %s %s", last, pulse.Render(theme, now))

	content := lipgloss.JoinVertical(lipgloss.Left, titleLine, statsLine, activityLine)
	return theme.Border.Width(innerWidth).Render(content)
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}
