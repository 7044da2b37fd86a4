package intake

import (
	"regexp"
	"strings"

	"github.com/emersion/go-imap"
)

// emailPattern matches a bare address embedded in arbitrary text.
var emailPattern = regexp.MustCompile(`[\w.\-]+@[\w.\-]+\.\w+`)

// ResolveSender extracts the best-guess contact address for a message,
// trying sources in priority order: the raw From header line, the parsed
// envelope address, and finally the envelope display name. Returns an empty
// string when every source fails; the caller decides what that means.
func ResolveSender(rawHeader string, envelope *imap.Envelope) string {
	if addr := senderFromHeader(rawHeader); addr != "" {
		return addr
	}

	return senderFromEnvelope(envelope)
}

func senderFromHeader(rawHeader string) string {
	for _, line := range strings.Split(rawHeader, "\n") {
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(line)), "from:") {
			continue
		}
		if addr := emailPattern.FindString(line); addr != "" {
			return addr
		}
	}
	return ""
}

func senderFromEnvelope(envelope *imap.Envelope) string {
	if envelope == nil || len(envelope.From) == 0 || envelope.From[0] == nil {
		return ""
	}

	from := envelope.From[0]

	if from.MailboxName != "" && from.HostName != "" {
		return from.Address()
	}

	// Some senders stuff the address into the display name only
	return emailPattern.FindString(from.PersonalName)
}
