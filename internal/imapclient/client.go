// Package imapclient is the mailbox connector: it opens an authenticated
// IMAP session for one inbox, lists unseen messages with their raw bytes,
// and flags messages seen. Any failure here is fatal to the whole poll
// cycle; retry is left to the next scheduled tick.
package imapclient

import (
	"crypto/tls"
	"fmt"
	"io"
	"strconv"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
)

// Config holds the connection parameters for one inbox, with the password
// already decrypted for this cycle.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	UseSSL   bool
}

// Message is one unseen message as returned by the listing, identified by
// its sequence number within the selected mailbox.
type Message struct {
	SeqNum uint32
	Raw    []byte
}

// Session is an authenticated IMAP session with the inbox folder selected.
type Session interface {
	// ListUnseen returns all unseen messages with their raw RFC 822 bytes,
	// in mailbox listing order.
	ListUnseen() ([]Message, error)
	// MarkSeen sets the \Seen flag on one message.
	MarkSeen(seqNum uint32) error
	// Close logs out. Safe to call exactly once on any session.
	Close() error
}

// DialFunc opens a session; the poller takes one so tests can substitute an
// in-memory mailbox.
type DialFunc func(cfg Config) (Session, error)

type imapSession struct {
	c *client.Client
}

// Dial connects, authenticates, and selects INBOX.
func Dial(cfg Config) (Session, error) {
	addr := cfg.Host + ":" + strconv.Itoa(cfg.Port)

	var c *client.Client
	var err error
	if cfg.UseSSL {
		c, err = client.DialTLS(addr, &tls.Config{ServerName: cfg.Host})
	} else {
		c, err = client.Dial(addr)
	}
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", addr, err)
	}

	if err := c.Login(cfg.Username, cfg.Password); err != nil {
		_ = c.Logout()
		return nil, fmt.Errorf("login as %s: %w", cfg.Username, err)
	}

	if _, err := c.Select("INBOX", false); err != nil {
		_ = c.Logout()
		return nil, fmt.Errorf("select INBOX: %w", err)
	}

	return &imapSession{c: c}, nil
}

func (s *imapSession) ListUnseen() ([]Message, error) {
	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}

	seqNums, err := s.c.Search(criteria)
	if err != nil {
		return nil, fmt.Errorf("search unseen: %w", err)
	}
	if len(seqNums) == 0 {
		return nil, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(seqNums...)

	section := &imap.BodySectionName{}
	items := []imap.FetchItem{section.FetchItem()}

	ch := make(chan *imap.Message, len(seqNums))
	done := make(chan error, 1)
	go func() {
		done <- s.c.Fetch(seqset, items, ch)
	}()

	var messages []Message
	for msg := range ch {
		body := msg.GetBody(section)
		if body == nil {
			continue
		}
		raw, err := io.ReadAll(body)
		if err != nil {
			continue
		}
		messages = append(messages, Message{SeqNum: msg.SeqNum, Raw: raw})
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("fetch unseen: %w", err)
	}
	return messages, nil
}

func (s *imapSession) MarkSeen(seqNum uint32) error {
	seqset := new(imap.SeqSet)
	seqset.AddNum(seqNum)

	item := imap.FormatFlagsOp(imap.AddFlags, true)
	flags := []interface{}{imap.SeenFlag}
	if err := s.c.Store(seqset, item, flags, nil); err != nil {
		return fmt.Errorf("mark message %d seen: %w", seqNum, err)
	}
	return nil
}

func (s *imapSession) Close() error {
	return s.c.Logout()
}
