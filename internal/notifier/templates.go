package notifier

import (
	"bytes"
	"fmt"
	"strings"
)

// descriptionPreviewLimit caps the body excerpt embedded in confirmation
// mail; the full description lives on the ticket itself.
const descriptionPreviewLimit = 500

var stateNames = map[string]string{
	"new":         "New",
	"in_progress": "In Progress",
	"closed":      "Closed",
	"rejected":    "Rejected",
}

func renderConfirmation(n Confirmation, baseURL string) []byte {
	ticketURL := fmt.Sprintf("%s/ticket/%s", strings.TrimRight(baseURL, "/"), n.TicketUUID)

	preview := n.Description
	if len([]rune(preview)) > descriptionPreviewLimit {
		preview = string([]rune(preview)[:descriptionPreviewLimit]) + "..."
	}

	subject := "Ticket Submitted: " + n.Title
	body := fmt.Sprintf(`Hello,

Your ticket has been successfully submitted to %s.

Ticket Details:
---------------
Title: %s

Description:
%s

You can view your ticket status at any time using this link:
%s

Please save this link - it's the only way to check your ticket status.

Best regards,
%s Team
`, n.BoardName, n.Title, preview, ticketURL, n.BoardName)

	return renderMessage(n.From, n.To, subject, body)
}

func renderStatusChange(n StatusChange, baseURL string) []byte {
	ticketURL := fmt.Sprintf("%s/ticket/%s", strings.TrimRight(baseURL, "/"), n.TicketUUID)

	newState := stateNames[n.NewState]
	if newState == "" {
		newState = n.NewState
	}
	prevState := stateNames[n.PreviousState]
	if prevState == "" {
		prevState = n.PreviousState
	}

	commentSection := ""
	if n.Comment != "" {
		commentSection = fmt.Sprintf("\nManager's Comment:\n%s\n", n.Comment)
	}

	subject := fmt.Sprintf("Ticket Update: %s - Now %s", n.Title, newState)
	body := fmt.Sprintf(`Hello,

The status of your ticket has been updated.

Ticket: %s
Board: %s

Status Change:
  From: %s
  To: %s
%s
You can view your ticket at:
%s

Best regards,
%s Team
`, n.Title, n.BoardName, prevState, newState, commentSection, ticketURL, n.BoardName)

	return renderMessage(n.From, n.To, subject, body)
}

// renderMessage assembles a minimal RFC 822 plain-text message.
func renderMessage(from, to, subject, body string) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", to)
	fmt.Fprintf(&buf, "Subject: %s\r\n", subject)
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return buf.Bytes()
}
