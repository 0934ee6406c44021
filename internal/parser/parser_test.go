package parser

import (
	"strings"
	"testing"
)

func TestParsePlainText(t *testing.T) {
	raw := []byte("From: alice@example.com\r\n" +
		"Subject: Printer on fire\r\n" +
		"Message-Id: <abc123@example.com>\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"The printer in room 4 is on fire.\r\n")

	got := New().Parse(raw)

	if got.Sender != "alice@example.com" {
		t.Errorf("Sender = %q, want %q", got.Sender, "alice@example.com")
	}
	if got.Subject != "Printer on fire" {
		t.Errorf("Subject = %q, want %q", got.Subject, "Printer on fire")
	}
	if got.MessageID != "<abc123@example.com>" {
		t.Errorf("MessageID = %q, want %q", got.MessageID, "<abc123@example.com>")
	}
	if got.Body != "The printer in room 4 is on fire." {
		t.Errorf("Body = %q", got.Body)
	}
}

func TestParseStripsDisplayName(t *testing.T) {
	raw := []byte("From: \"Alice Smith\" <alice@example.com>\r\n" +
		"Subject: hello\r\n" +
		"\r\n" +
		"hi\r\n")

	got := New().Parse(raw)
	if got.Sender != "alice@example.com" {
		t.Errorf("Sender = %q, want bare address", got.Sender)
	}
}

func TestParseDecodesEncodedWordSubject(t *testing.T) {
	raw := []byte("From: bob@example.com\r\n" +
		"Subject: =?utf-8?q?St=C3=B6rung_im_Netz?=\r\n" +
		"\r\n" +
		"body\r\n")

	got := New().Parse(raw)
	if got.Subject != "Störung im Netz" {
		t.Errorf("Subject = %q, want decoded value", got.Subject)
	}
}

func TestParseMultipartPrefersPlainText(t *testing.T) {
	raw := []byte("From: carol@example.com\r\n" +
		"Subject: multi\r\n" +
		"Content-Type: multipart/alternative; boundary=SEP\r\n" +
		"\r\n" +
		"--SEP\r\n" +
		"Content-Type: text/html\r\n" +
		"\r\n" +
		"<p>html version</p>\r\n" +
		"--SEP\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"plain version\r\n" +
		"--SEP--\r\n")

	got := New().Parse(raw)
	if got.Body != "plain version" {
		t.Errorf("Body = %q, want plain part", got.Body)
	}
}

func TestParseFallsBackToStrippedHTML(t *testing.T) {
	raw := []byte("From: dave@example.com\r\n" +
		"Subject: html only\r\n" +
		"Content-Type: multipart/alternative; boundary=SEP\r\n" +
		"\r\n" +
		"--SEP\r\n" +
		"Content-Type: text/html\r\n" +
		"\r\n" +
		"<html><body><p>Hello &amp; goodbye</p><script>alert(1)</script></body></html>\r\n" +
		"--SEP--\r\n")

	got := New().Parse(raw)
	if !strings.Contains(got.Body, "Hello & goodbye") {
		t.Errorf("Body = %q, want stripped html text", got.Body)
	}
	if strings.Contains(got.Body, "alert") {
		t.Errorf("Body = %q, script content leaked through", got.Body)
	}
	if strings.Contains(got.Body, "<") {
		t.Errorf("Body = %q, contains markup", got.Body)
	}
}

func TestParseGarbageYieldsPlaceholders(t *testing.T) {
	got := New().Parse([]byte("\x00\x01\x02 this is not a mail message"))

	if got.Sender != "" {
		t.Errorf("Sender = %q, want empty for unparseable message", got.Sender)
	}
	if got.Subject != FallbackSubject {
		t.Errorf("Subject = %q, want %q", got.Subject, FallbackSubject)
	}
	if got.Body != FallbackBody {
		t.Errorf("Body = %q, want %q", got.Body, FallbackBody)
	}
}

func TestParseMissingHeaders(t *testing.T) {
	raw := []byte("Content-Type: text/plain\r\n\r\nbody only\r\n")

	got := New().Parse(raw)
	if got.Sender != "" {
		t.Errorf("Sender = %q, want empty", got.Sender)
	}
	if got.Subject != "" {
		t.Errorf("Subject = %q, want empty", got.Subject)
	}
	if got.Body != "body only" {
		t.Errorf("Body = %q", got.Body)
	}
}

func TestExtractAddress(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"alice@example.com", "alice@example.com"},
		{"Alice <alice@example.com>", "alice@example.com"},
		{"\"Smith, Alice\" <alice@example.com>", "alice@example.com"},
		{"Broken Name Without Quotes, Inc <sales@example.com>", "sales@example.com"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := extractAddress(tt.in); got != tt.want {
			t.Errorf("extractAddress(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStripHTML(t *testing.T) {
	in := "<html><head><style>p{color:red}</style></head>" +
		"<body><h1>Title</h1><p>First   line</p>\n\n<p>Second</p></body></html>"
	got := StripHTML(in)

	if strings.Contains(got, "color:red") {
		t.Errorf("StripHTML leaked style content: %q", got)
	}
	if !strings.Contains(got, "Title") || !strings.Contains(got, "Second") {
		t.Errorf("StripHTML dropped text content: %q", got)
	}
	for _, line := range strings.Split(got, "\n") {
		if line == "" {
			t.Errorf("StripHTML produced empty line in %q", got)
		}
		if line != strings.TrimSpace(line) {
			t.Errorf("StripHTML produced untrimmed line %q", line)
		}
	}
}
