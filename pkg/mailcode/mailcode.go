// Package mailcode retrieves one-time second-factor codes from a mailbox.
package mailcode

import (
	"context"
	"regexp"
	"time"

	"github.com/entrhq/forumreply/pkg/logging"
)

// DefaultPollInterval is the wait between mailbox checks.
const DefaultPollInterval = 10 * time.Second

var codePattern = regexp.MustCompile(`\b\d{6}\b`)

// ExtractCode returns the first isolated six-digit sequence in body.
func ExtractCode(body string) (string, bool) {
	code := codePattern.FindString(body)
	return code, code != ""
}

// Source lists the plain-text bodies of unread messages from sender.
type Source interface {
	Fetch(ctx context.Context, sender string) ([]string, error)
}

// Poller checks a Source until a code arrives or the wait expires.
type Poller struct {
	source   Source
	interval time.Duration
	log      *logging.Logger
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithInterval sets the wait between checks.
func WithInterval(d time.Duration) PollerOption {
	return func(p *Poller) {
		p.interval = d
	}
}

// WithLogger sets the logger used for mailbox errors.
func WithLogger(l *logging.Logger) PollerOption {
	return func(p *Poller) {
		p.log = l
	}
}

// NewPoller creates a Poller over source.
func NewPoller(source Source, opts ...PollerOption) *Poller {
	p := &Poller{
		source:   source,
		interval: DefaultPollInterval,
		log:      logging.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// GetCode polls for a code mailed by senderFilter. It gives up when timeout
// elapses or ctx is done; mailbox errors are logged and polling continues.
func (p *Poller) GetCode(ctx context.Context, senderFilter string, timeout time.Duration) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for attempt := 1; ; attempt++ {
		bodies, err := p.source.Fetch(ctx, senderFilter)
		if err != nil {
			p.log.Warnf("mailbox check %d failed: %v", attempt, err)
		}
		for _, body := range bodies {
			if code, ok := ExtractCode(body); ok {
				p.log.Infof("received verification code from %s", senderFilter)
				return code, true
			}
		}

		timer := time.NewTimer(p.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			p.log.Warnf("no verification code from %s within %s", senderFilter, timeout)
			return "", false
		case <-timer.C:
		}
	}
}
