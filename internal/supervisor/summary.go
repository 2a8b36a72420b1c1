package supervisor

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/martymcenroe/unleashed/internal/gate"
)

var (
	summaryBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 2)
	summaryTitle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("63")).
			Bold(true)
	summaryDim = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
)

// Summary describes a finished session.
type Summary struct {
	SessionID      string
	Duration       time.Duration
	Prompts        int
	Stats          gate.Stats
	EventsPath     string
	TranscriptPath string
}

// Render formats the summary as a bordered block for the operator
// terminal after raw mode is restored.
func (s Summary) Render() string {
	var b strings.Builder
	b.WriteString(summaryTitle.Render("unleashed session summary"))
	b.WriteString("\n")
	fmt.Fprintf(&b, "duration   %s\n", s.Duration.Round(time.Second))
	fmt.Fprintf(&b, "prompts    %d\n", s.Prompts)
	fmt.Fprintf(&b, "verdicts   allow=%d block=%d confirm=%d judge-allow=%d judge-block=%d errors=%d skipped=%d",
		s.Stats.LocalAllow, s.Stats.LocalBlock, s.Stats.LocalEscl,
		s.Stats.JudgeAllow, s.Stats.JudgeBlock, s.Stats.JudgeErrors, s.Stats.Skipped)
	if s.EventsPath != "" {
		b.WriteString("\n")
		b.WriteString(summaryDim.Render("events     " + s.EventsPath))
	}
	if s.TranscriptPath != "" {
		b.WriteString("\n")
		b.WriteString(summaryDim.Render("transcript " + s.TranscriptPath))
	}
	return summaryBox.Render(b.String())
}
