// Package audit keeps a human-readable, append-only history of submitted
// replies next to the ledger.
package audit

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ExcerptChars bounds the reply text written per entry.
const ExcerptChars = 200

const separator = "--------------------------------------------------------------------------------"

// Entry is one submitted reply.
type Entry struct {
	Time     time.Time
	Platform string
	PostID   string
	PostURL  string
	Reply    string
}

// Log appends entries to a writer. It is safe for concurrent use.
type Log struct {
	mu sync.Mutex
	w  io.Writer
	c  io.Closer
}

// New returns a Log writing to w.
func New(w io.Writer) *Log {
	return &Log{w: w}
}

// Open opens (creating when missing) the audit file at path for appending.
func Open(path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	return &Log{w: f, c: f}, nil
}

// Append writes one entry block.
func (l *Log) Append(e Entry) error {
	if l == nil {
		return nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s\n", e.Time.Format("2006-01-02 15:04:05"), e.Platform)
	fmt.Fprintf(&b, "Post ID: %s\n", e.PostID)
	fmt.Fprintf(&b, "URL: %s\n", e.PostURL)
	fmt.Fprintf(&b, "Reply: %s...\n", Truncate(e.Reply, ExcerptChars))
	b.WriteString(separator + "\n\n")

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := io.WriteString(l.w, b.String()); err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// Close closes the underlying file, if Open created it.
func (l *Log) Close() error {
	if l == nil || l.c == nil {
		return nil
	}
	return l.c.Close()
}

// Truncate returns at most n runes of s.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
