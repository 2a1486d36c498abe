package runner

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/entrhq/forumreply/pkg/processor"
	"github.com/entrhq/forumreply/pkg/session"
)

// Summary describes one site visit.
type Summary struct {
	Site       string
	State      session.State
	Discovered int
	Counts     map[processor.Outcome]int
	Results    []processor.Result
	Started    time.Time
	Finished   time.Time
	Err        error
}

func newSummary(name string) Summary {
	return Summary{
		Site:    name,
		State:   session.Anonymous,
		Counts:  make(map[processor.Outcome]int),
		Started: time.Now(),
	}
}

func (s *Summary) add(r processor.Result) {
	s.Counts[r.Outcome]++
	s.Results = append(s.Results, r)
}

// Submitted is the number of replies posted.
func (s Summary) Submitted() int {
	return s.Counts[processor.Submitted]
}

func (s Summary) String() string {
	return fmt.Sprintf("site %s: state=%s discovered=%d submitted=%d deduplicated=%d skipped=%d failed=%d",
		s.Site, s.State, s.Discovered,
		s.Counts[processor.Submitted], s.Counts[processor.Deduplicated],
		s.Counts[processor.Skipped], s.Counts[processor.Failed])
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("117"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("36"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	boxStyle    = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
)

// Render formats summaries for the terminal.
func Render(summaries []Summary) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("%-16s %-24s %5s %5s %5s %5s %5s",
		"SITE", "SESSION", "FOUND", "SENT", "DUP", "SKIP", "FAIL")))
	for _, s := range summaries {
		state := okStyle.Render(fmt.Sprintf("%-24s", s.State))
		if s.Err != nil {
			state = errStyle.Render(fmt.Sprintf("%-24s", s.State))
		}
		fmt.Fprintf(&b, "\n%-16s %s %5d %5d %5d %5d %5d", s.Site, state, s.Discovered,
			s.Counts[processor.Submitted], s.Counts[processor.Deduplicated],
			s.Counts[processor.Skipped], s.Counts[processor.Failed])
		if s.Err != nil {
			b.WriteString("\n  " + errStyle.Render(s.Err.Error()))
		}
	}
	return boxStyle.Render(b.String())
}
