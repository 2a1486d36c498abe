package logging

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Level is a log severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return fmt.Sprintf("LEVEL(%d)", int(l))
	}
}

// ParseVerbosity maps a configured verbosity onto the minimum level logged.
func ParseVerbosity(verbosity string) (Level, error) {
	switch strings.ToLower(verbosity) {
	case "quiet":
		return LevelWarn, nil
	case "", "normal":
		return LevelInfo, nil
	case "verbose", "debug":
		return LevelDebug, nil
	default:
		return LevelInfo, fmt.Errorf("invalid logging verbosity: %s (must be 'quiet', 'normal', 'verbose', or 'debug')", verbosity)
	}
}

var levelStyles = map[Level]lipgloss.Style{
	LevelDebug: lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
	LevelInfo:  lipgloss.NewStyle().Foreground(lipgloss.Color("36")),
	LevelWarn:  lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true),
	LevelError: lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true),
}

var componentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("217"))

// renderConsole formats one console line: a colored level tag, the component
// and the message.
func renderConsole(level Level, component, message string) string {
	tag := fmt.Sprintf("%-5s", level)
	if style, ok := levelStyles[level]; ok {
		tag = style.Render(tag)
	}
	return fmt.Sprintf("%s %s %s", tag, componentStyle.Render(component), message)
}
