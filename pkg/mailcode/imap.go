package mailcode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	_ "github.com/emersion/go-message/charset" // decodes non-UTF-8 bodies
	"github.com/emersion/go-message/mail"
)

// IMAPSource reads unread messages from an IMAP mailbox over TLS.
type IMAPSource struct {
	Addr     string // host:port, e.g. imap.gmail.com:993
	Username string
	Password string
	Mailbox  string // defaults to INBOX
	Timeout  time.Duration
}

// Fetch logs in, searches for unseen messages from sender and returns their
// text/plain bodies. Fetched messages are marked as seen.
func (s *IMAPSource) Fetch(ctx context.Context, sender string) ([]string, error) {
	c, err := client.DialTLS(s.Addr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", s.Addr, err)
	}
	if s.Timeout > 0 {
		c.Timeout = s.Timeout
	}
	stop := context.AfterFunc(ctx, func() { _ = c.Terminate() })
	defer stop()
	defer func() { _ = c.Logout() }()

	if err := c.Login(s.Username, s.Password); err != nil {
		return nil, fmt.Errorf("failed to log in as %s: %w", s.Username, err)
	}

	mailbox := s.Mailbox
	if mailbox == "" {
		mailbox = "INBOX"
	}
	if _, err := c.Select(mailbox, false); err != nil {
		return nil, fmt.Errorf("failed to select %s: %w", mailbox, err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	criteria.Header.Add("From", sender)
	ids, err := c.Search(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search mailbox: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)
	section := &imap.BodySectionName{}

	messages := make(chan *imap.Message, len(ids))
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqset, []imap.FetchItem{section.FetchItem()}, messages)
	}()

	var bodies []string
	for msg := range messages {
		r := msg.GetBody(section)
		if r == nil {
			continue
		}
		body, err := plainText(r)
		if err != nil {
			continue
		}
		bodies = append(bodies, body)
	}
	if err := <-done; err != nil {
		return bodies, fmt.Errorf("failed to fetch messages: %w", err)
	}
	return bodies, nil
}

// plainText concatenates the text/plain parts of a MIME message.
func plainText(r io.Reader) (string, error) {
	mr, err := mail.CreateReader(r)
	if err != nil {
		return "", err
	}
	defer mr.Close()

	var b strings.Builder
	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return b.String(), err
		}
		h, ok := p.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := h.ContentType()
		if contentType != "" && contentType != "text/plain" {
			continue
		}
		data, err := io.ReadAll(p.Body)
		if err != nil {
			return b.String(), err
		}
		b.Write(data)
		b.WriteString("\n")
	}
	return b.String(), nil
}

var _ Source = (*IMAPSource)(nil)
