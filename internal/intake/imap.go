package intake

import (
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net/textproto"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/spf13/viper"
)

// RawMessage is one mail-store message handle: the raw header text (for
// sender recovery), the full message bytes (for MIME decoding), the UID
// (for mark-seen) and the server-parsed envelope as a fallback sender
// source.
type RawMessage struct {
	UID      uint32
	Header   string
	Body     []byte
	Envelope *imap.Envelope
}

// Mailbox is the mail-store connection the poller drives. The IMAP
// implementation is not safe for concurrent use; the poller processes
// messages strictly sequentially.
type Mailbox interface {
	// SearchRequests returns unread messages received since the given time
	// whose subject contains the marker string.
	SearchRequests(since time.Time, subject string) ([]RawMessage, error)
	MarkSeen(uid uint32) error
	Close() error
}

// MailboxDialer opens a fresh mailbox connection for one poll run.
type MailboxDialer func() (Mailbox, error)

// DialIMAP connects to the configured IMAP server, logs in, and selects
// the INBOX. It is the production MailboxDialer.
func DialIMAP() (Mailbox, error) {
	server := viper.GetString("imap.server")
	port := viper.GetInt("imap.port")
	username := viper.GetString("imap.username")
	password := viper.GetString("imap.password")

	address := fmt.Sprintf("%s:%d", server, port)

	tlsConfig := &tls.Config{
		ServerName: server, // ensures correct certificate validation
	}

	c, err := client.DialTLS(address, tlsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to IMAP server: %w", err)
	}

	if err := c.Login(username, password); err != nil {
		_ = c.Logout()
		return nil, fmt.Errorf("failed to login: %w", err)
	}

	// Read-write select so \Seen can be stored later
	if _, err := c.Select("INBOX", false); err != nil {
		_ = c.Logout()
		return nil, fmt.Errorf("failed to select INBOX: %w", err)
	}

	return &imapMailbox{c: c}, nil
}

type imapMailbox struct {
	c *client.Client
}

func (m *imapMailbox) SearchRequests(since time.Time, subject string) ([]RawMessage, error) {
	criteria := imap.NewSearchCriteria()
	criteria.Since = since
	criteria.Header = textproto.MIMEHeader{"Subject": {subject}}
	criteria.WithoutFlags = []string{imap.SeenFlag}

	ids, err := m.c.Search(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	if len(ids) == 0 {
		slog.Info("No unread request messages found")
		return nil, nil
	}

	slog.Debug("Found unread request messages", "count", len(ids))

	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)

	// Peek so fetching alone never flips the \Seen flag; only a fully
	// processed message gets marked.
	headerSection := &imap.BodySectionName{
		BodyPartName: imap.BodyPartName{Specifier: imap.HeaderSpecifier},
		Peek:         true,
	}
	fullSection := &imap.BodySectionName{Peek: true}

	items := []imap.FetchItem{
		imap.FetchEnvelope,
		imap.FetchUid,
		headerSection.FetchItem(),
		fullSection.FetchItem(),
	}

	messages := make(chan *imap.Message, len(ids))
	if err := m.c.Fetch(seqset, items, messages); err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}

	results := make([]RawMessage, 0, len(ids))

	for msg := range messages {
		body := msg.GetBody(fullSection)
		if body == nil {
			slog.Warn("No body found in message", "uid", msg.Uid)
			continue
		}

		raw, err := io.ReadAll(body)
		if err != nil {
			slog.Warn("Failed to read message body", "uid", msg.Uid, "error", err)
			continue
		}

		var header string
		if h := msg.GetBody(headerSection); h != nil {
			if hb, err := io.ReadAll(h); err == nil {
				header = string(hb)
			}
		}

		results = append(results, RawMessage{
			UID:      msg.Uid,
			Header:   header,
			Body:     raw,
			Envelope: msg.Envelope,
		})
	}

	return results, nil
}

func (m *imapMailbox) MarkSeen(uid uint32) error {
	slog.Debug("Marking message as seen", "uid", uid)

	seqset := new(imap.SeqSet)
	seqset.AddNum(uid)

	item := imap.FormatFlagsOp(imap.AddFlags, true) // true = silent update
	flags := []any{imap.SeenFlag}

	if err := m.c.UidStore(seqset, item, flags, nil); err != nil {
		return fmt.Errorf("failed to mark message %d as \\Seen: %w", uid, err)
	}

	return nil
}

func (m *imapMailbox) Close() error {
	err := m.c.Logout()
	slog.Info("Logged out from IMAP server")
	return err
}
