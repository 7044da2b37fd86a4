package intake

import (
	"bytes"
	"io"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/emersion/go-message"
)

// DecodeBody resolves a raw MIME message down to a best-effort plain-text
// body. Plain text parts win; an HTML-only message is detagged and repaired.
// An empty return means the message has no usable body; callers treat that
// as "cannot parse", never as an error.
func DecodeBody(raw []byte) string {
	entity, err := message.Read(bytes.NewReader(raw))
	if err != nil && entity == nil {
		slog.Warn("Failed to parse MIME message", "error", err)
		return ""
	}

	text, html := extractBodies(entity)

	if strings.TrimSpace(text) != "" {
		return text
	}

	if html != "" {
		return htmlToText(html)
	}

	return ""
}

// extractBodies parses a MIME message entity and extracts the text and HTML
// body from multipart/alternative or single-part messages.
func extractBodies(entity *message.Entity) (string, string) {
	var text, html string

	mediaType, _, _ := entity.Header.ContentType()

	// If it's multipart (e.g. mixed or alternative), walk through its parts
	if strings.HasPrefix(mediaType, "multipart/") {
		mr := entity.MultipartReader()

		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				break // done reading parts
			}

			if err != nil {
				break // skip faulty parts
			}

			partMediaType, _, _ := part.Header.ContentType()

			body, err := io.ReadAll(part.Body)
			if err != nil {
				slog.Warn("Failed to read part body", "error", err)

				continue
			}

			switch partMediaType {
			case "text/plain":
				text = string(body)
			case "text/html":
				html = string(body)
			}
		}
	} else {
		// Not multipart: could be just plain text or HTML
		body, err := io.ReadAll(entity.Body)
		if err != nil {
			slog.Warn("Failed to read body", "error", err)
			return "", ""
		}

		switch mediaType {
		case "text/html":
			html = string(body)
		default:
			text = string(body)
		}
	}

	return text, html
}

var (
	softBreakPattern  = regexp.MustCompile(`=\r?\n`)
	tagPattern        = regexp.MustCompile(`<[^>]*>`)
	qpEscapePattern   = regexp.MustCompile(`=[0-9A-Fa-f]{2}`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

var htmlEntities = strings.NewReplacer(
	"&nbsp;", " ",
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
)

// htmlToText derives a plain-text approximation from an HTML body that may
// still carry quoted-printable artifacts. Escapes that cannot be decoded are
// left in place rather than failing the message.
func htmlToText(html string) string {
	// Quoted-printable soft line breaks first, so wrapped tags rejoin
	text := softBreakPattern.ReplaceAllString(html, "")

	text = tagPattern.ReplaceAllString(text, " ")

	text = htmlEntities.Replace(text)

	text = strings.ReplaceAll(text, "=3D", "=")
	text = strings.ReplaceAll(text, "=C2=A0", " ") // non-breaking space

	text = qpEscapePattern.ReplaceAllStringFunc(text, func(escape string) string {
		b, err := strconv.ParseUint(escape[1:], 16, 8)
		if err != nil {
			return escape
		}
		return string(rune(b))
	})

	text = whitespacePattern.ReplaceAllString(text, " ")

	return strings.TrimSpace(text)
}
