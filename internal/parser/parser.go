// Package parser decodes raw mail payloads into the normalized record the
// routing pipeline works with. Parsing never fails the pipeline: a malformed
// message degrades to a placeholder record that the orchestrator discards.
package parser

import (
	"bytes"
	"io"
	"mime"
	"net/mail"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
)

// Fallback values for messages whose payload cannot be parsed at all. A
// record carrying these has an empty sender and is dropped before routing.
const (
	FallbackSubject = "Failed to parse subject"
	FallbackBody    = "Failed to parse email body"
)

// ParsedMessage is the normalized form of one inbound message. The
// fixed-field shape is the shared contract between parser, duplicate
// detector, and routing engine.
type ParsedMessage struct {
	MessageID string
	Sender    string
	Subject   string
	Body      string
}

// Parser normalizes raw RFC 822 payloads.
type Parser struct{}

// New creates a Parser.
func New() *Parser {
	return &Parser{}
}

// Parse extracts message id, sender, subject, and a plain-text body from a
// raw payload. All fields are whitespace-trimmed. Parse failures yield a
// placeholder record rather than an error so one broken message cannot
// crash a cycle.
func (p *Parser) Parse(raw []byte) ParsedMessage {
	entity, err := message.Read(bytes.NewReader(raw))
	if entity == nil || (err != nil && !message.IsUnknownCharset(err)) {
		return ParsedMessage{
			Subject: FallbackSubject,
			Body:    FallbackBody,
		}
	}

	header := entity.Header

	sender := extractAddress(decodeHeader(header.Get("From")))
	subject := decodeHeader(header.Get("Subject"))

	text, html := collectBodies(entity)
	body := text
	if body == "" && html != "" {
		body = StripHTML(html)
	}

	return ParsedMessage{
		MessageID: strings.TrimSpace(header.Get("Message-Id")),
		Sender:    strings.TrimSpace(sender),
		Subject:   strings.TrimSpace(subject),
		Body:      strings.TrimSpace(body),
	}
}

// collectBodies walks the MIME tree depth-first and returns the first
// text/plain and first text/html parts encountered. A part with no content
// type is treated as plain text.
func collectBodies(entity *message.Entity) (text, html string) {
	mediaType, _, _ := entity.Header.ContentType()

	if strings.HasPrefix(mediaType, "multipart/") {
		mr := entity.MultipartReader()
		if mr == nil {
			return "", ""
		}
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				break
			}
			partText, partHTML := collectBodies(part)
			if text == "" && partText != "" {
				text = partText
			}
			if html == "" && partHTML != "" {
				html = partHTML
			}
			if text != "" {
				// First text/plain part wins; no need to walk further.
				break
			}
		}
		return text, html
	}

	payload, err := io.ReadAll(entity.Body)
	if err != nil {
		return "", ""
	}

	switch mediaType {
	case "text/html":
		return "", string(payload)
	case "text/plain", "":
		return string(payload), ""
	default:
		return "", ""
	}
}

// extractAddress strips a display-name wrapper, "Name <addr>" -> "addr".
func extractAddress(from string) string {
	if from == "" {
		return ""
	}
	if addr, err := mail.ParseAddress(from); err == nil {
		return addr.Address
	}
	// Fall back to manual extraction for addresses mail.ParseAddress
	// rejects but real mailers emit.
	if start := strings.Index(from, "<"); start >= 0 {
		if end := strings.Index(from[start:], ">"); end > 0 {
			return from[start+1 : start+end]
		}
	}
	return from
}

// decodeHeader decodes MIME encoded-words in a header value.
func decodeHeader(value string) string {
	if value == "" {
		return ""
	}
	decoder := new(mime.WordDecoder)
	decoded, err := decoder.DecodeHeader(value)
	if err != nil {
		return value
	}
	return decoded
}
