package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Logger provides structured logging for forumreply components.
// All logs of one run are written to a run-specific file in the log
// directory (~/.forumreply/logs unless configured otherwise), and optionally
// mirrored to a console writer.
type Logger struct {
	runID     string
	component string
	file      *os.File
	logger    *log.Logger
	console   io.Writer
	level     Level
	mu        sync.Mutex
	logPath   string
}

var (
	// Global run ID for the current execution
	runID     string
	runIDOnce sync.Once

	// logDir is the directory where log files are stored
	logDir string

	// initOnce ensures directory initialization happens once
	initOnce sync.Once

	// initErr stores any error from directory initialization
	initErr error

	settingsMu   sync.Mutex
	minLevel     = LevelInfo
	consoleOut   io.Writer
	openedFiles  = make(map[string]*os.File)
	openedFileMu sync.Mutex
)

// getRunID returns or creates the run ID for this execution
func getRunID() string {
	runIDOnce.Do(func() {
		runID = uuid.New().String()
	})
	return runID
}

// Configure sets the log directory, the minimum level and an optional console
// mirror for loggers created afterwards. An empty dir keeps the default.
func Configure(dir string, level Level, console io.Writer) {
	settingsMu.Lock()
	defer settingsMu.Unlock()

	if dir != "" {
		logDir = dir
		initOnce = sync.Once{}
		initErr = nil
	}
	minLevel = level
	consoleOut = console
}

// initLogDirectory ensures the log directory exists
func initLogDirectory() error {
	initOnce.Do(func() {
		if logDir == "" {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				initErr = fmt.Errorf("failed to get home directory: %w", err)
				return
			}
			logDir = filepath.Join(homeDir, ".forumreply", "logs")
		}
		if err := os.MkdirAll(logDir, 0750); err != nil {
			initErr = fmt.Errorf("failed to create log directory: %w", err)
			return
		}
	})
	return initErr
}

// NewLogger creates a new logger for a specific component.
// The logger writes to <log dir>/<run-id>-forumreply.log
//
// If the log directory cannot be created or the log file cannot be opened,
// it returns a fallback logger that writes to stderr along with the error.
// Callers can check the error to detect fallback mode and log warnings.
func NewLogger(component string) (*Logger, error) {
	settingsMu.Lock()
	level, console := minLevel, consoleOut
	settingsMu.Unlock()

	if err := initLogDirectory(); err != nil {
		// Fallback to stderr if we can't create the log directory
		return newFallbackLogger(component, err), err
	}

	id := getRunID()
	logPath := filepath.Join(logDir, fmt.Sprintf("%s-forumreply.log", id))

	file, err := openShared(logPath)
	if err != nil {
		return newFallbackLogger(component, fmt.Errorf("failed to open log file: %w", err)), err
	}

	return &Logger{
		runID:     id,
		component: component,
		file:      file,
		logger:    log.New(file, "", 0), // We'll format timestamps ourselves
		console:   console,
		level:     level,
		logPath:   logPath,
	}, nil
}

// MustLogger is NewLogger for package initialisation: a fallback logger is
// returned as-is after reporting why file logging is unavailable.
func MustLogger(component string) *Logger {
	l, err := NewLogger(component)
	if err != nil {
		l.Warnf("Failed to initialize %s logger, using stderr fallback: %v", component, err)
	}
	return l
}

// New creates a logger that writes to w only. It is meant for tests and
// embedding; nothing is written to the run log file.
func New(component string, w io.Writer, level Level) *Logger {
	return &Logger{
		runID:     getRunID(),
		component: component,
		logger:    log.New(w, "", 0),
		level:     level,
	}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return New("nop", io.Discard, LevelError+1)
}

// openShared opens path once per process; every component appends to the
// same file.
func openShared(path string) (*os.File, error) {
	openedFileMu.Lock()
	defer openedFileMu.Unlock()

	if f, ok := openedFiles[path]; ok {
		return f, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, err
	}
	openedFiles[path] = f
	return f, nil
}

// newFallbackLogger creates a logger that writes to stderr when file logging fails
func newFallbackLogger(component string, err error) *Logger {
	logger := log.New(os.Stderr, fmt.Sprintf("[%s] ", component), log.LstdFlags|log.Lshortfile)
	logger.Printf("WARNING: Failed to initialize file logging: %v", err)
	logger.Printf("Falling back to stderr logging")

	return &Logger{
		runID:     getRunID(),
		component: component,
		file:      nil, // No file, using stderr
		logger:    logger,
		level:     LevelDebug,
		logPath:   "",
	}
}

// formatLogEntry creates a structured log entry with timestamp, component, and level
func (l *Logger) formatLogEntry(level Level, message string) string {
	timestamp := time.Now().Format("2006-01-02 15:04:05.000")
	return fmt.Sprintf("[%s] [%s] [%s] %s", timestamp, l.component, level, message)
}

func (l *Logger) write(level Level, format string, v ...interface{}) {
	if l == nil || level < l.level {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	message := fmt.Sprintf(format, v...)
	l.logger.Println(l.formatLogEntry(level, message))
	if l.console != nil {
		fmt.Fprintln(l.console, renderConsole(level, l.component, message))
	}
}

// Printf logs a formatted message
func (l *Logger) Printf(format string, v ...interface{}) {
	l.write(LevelInfo, format, v...)
}

// Debugf logs a debug-level message
func (l *Logger) Debugf(format string, v ...interface{}) {
	l.write(LevelDebug, format, v...)
}

// Infof logs an info-level message
func (l *Logger) Infof(format string, v ...interface{}) {
	l.write(LevelInfo, format, v...)
}

// Warnf logs a warning-level message
func (l *Logger) Warnf(format string, v ...interface{}) {
	l.write(LevelWarn, format, v...)
}

// Errorf logs an error-level message
func (l *Logger) Errorf(format string, v ...interface{}) {
	l.write(LevelError, format, v...)
}

// With returns a logger for a sub-component sharing this logger's outputs.
func (l *Logger) With(component string) *Logger {
	return &Logger{
		runID:     l.runID,
		component: l.component + "/" + component,
		file:      l.file,
		logger:    l.logger,
		console:   l.console,
		level:     l.level,
		logPath:   l.logPath,
	}
}

// Writer returns an io.Writer that writes to this logger
func (l *Logger) Writer() io.Writer {
	if l.file != nil {
		return l.file
	}
	return os.Stderr
}

// RunID returns the current run ID
func (l *Logger) RunID() string {
	return l.runID
}

// LogPath returns the path to the log file
func (l *Logger) LogPath() string {
	return l.logPath
}

// Close releases the logger. The shared run log file stays open for other
// components until CloseAll, so Close is safe to call any number of times.
func (l *Logger) Close() error {
	return nil
}

// CloseAll closes every log file opened by this process.
func CloseAll() error {
	openedFileMu.Lock()
	defer openedFileMu.Unlock()

	var firstErr error
	for path, f := range openedFiles {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(openedFiles, path)
	}
	return firstErr
}

// GetRunID returns the current global run ID
func GetRunID() string {
	return getRunID()
}

// GetLogDirectory returns the directory where logs are stored
func GetLogDirectory() (string, error) {
	if err := initLogDirectory(); err != nil {
		return "", err
	}
	return logDir, nil
}
