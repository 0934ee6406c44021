package repository

import (
	"time"

	"github.com/google/uuid"
)

// TicketState is the lifecycle state of a ticket.
type TicketState string

const (
	TicketStateNew        TicketState = "new"
	TicketStateInProgress TicketState = "in_progress"
	TicketStateClosed     TicketState = "closed"
	TicketStateRejected   TicketState = "rejected"
)

// TicketSource distinguishes how a ticket entered the system.
type TicketSource string

const (
	TicketSourceWeb   TicketSource = "web"
	TicketSourceEmail TicketSource = "email"
)

// Inbox is a mailbox configuration owned by one account. The polling
// pipeline reads it each cycle and mutates only LastPolledAt.
type Inbox struct {
	ID                    int64      `db:"id"`
	AccountID             int64      `db:"account_id"`
	Name                  string     `db:"name"`
	IMAPHost              string     `db:"imap_host" validate:"required,hostname|ip"`
	IMAPPort              int        `db:"imap_port" validate:"min=1,max=65535"`
	IMAPUsername          string     `db:"imap_username" validate:"required"`
	IMAPPasswordEncrypted string     `db:"imap_password_encrypted" validate:"required"`
	IMAPUseSSL            bool       `db:"imap_use_ssl"`
	SMTPHost              string     `db:"smtp_host"`
	SMTPPort              int        `db:"smtp_port"`
	SMTPUsername          string     `db:"smtp_username"`
	SMTPPasswordEncrypted string     `db:"smtp_password_encrypted"`
	SMTPUseTLS            bool       `db:"smtp_use_tls"`
	FromAddress           string     `db:"from_address" validate:"omitempty,email"`
	PollingInterval       int        `db:"polling_interval" validate:"oneof=1 5 15"`
	LastPolledAt          *time.Time `db:"last_polled_at"`
	IsActive              bool       `db:"is_active"`
	CreatedAt             time.Time  `db:"created_at"`
	UpdatedAt             time.Time  `db:"updated_at"`
}

// Board is a ticket destination. A board may bind one inbox exclusively;
// exclusivity pre-empts keyword routing for that inbox's traffic.
type Board struct {
	ID               int64     `db:"id"`
	AccountID        int64     `db:"account_id"`
	Name             string    `db:"name"`
	UniqueName       string    `db:"unique_name"`
	GreetingMessage  *string   `db:"greeting_message"`
	IsArchived       bool      `db:"is_archived"`
	ExclusiveInboxID *int64    `db:"exclusive_inbox_id"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

// BoardKeyword is one routing keyword attached to a board. Keyword ids
// double as creation order, which the routing engine relies on for its
// deterministic tie-break.
type BoardKeyword struct {
	ID        int64     `db:"id"`
	BoardID   int64     `db:"board_id"`
	Keyword   string    `db:"keyword"`
	CreatedAt time.Time `db:"created_at"`
}

// Ticket is a routed message persisted on a board.
type Ticket struct {
	ID           int64        `db:"id"`
	UUID         uuid.UUID    `db:"uuid"`
	BoardID      int64        `db:"board_id"`
	Title        string       `db:"title"`
	Description  string       `db:"description"`
	State        TicketState  `db:"state"`
	CreatorEmail string       `db:"creator_email"`
	Source       TicketSource `db:"source"`
	CreatedAt    time.Time    `db:"created_at"`
	UpdatedAt    time.Time    `db:"updated_at"`
}

// ExternalTicket is a reference to a ticket created on an external platform.
// The ingestion core never writes these; they only participate in the ticket
// identifier uniqueness check.
type ExternalTicket struct {
	ID           int64     `db:"id"`
	UUID         uuid.UUID `db:"uuid"`
	BoardID      int64     `db:"board_id"`
	Title        string    `db:"title"`
	CreatorEmail string    `db:"creator_email"`
	ExternalURL  string    `db:"external_url"`
	ExternalID   *string   `db:"external_id"`
	PlatformType string    `db:"platform_type"`
	CreatedAt    time.Time `db:"created_at"`
}

// StandbyQueueItem is a message that could not be routed to any board. The
// core only writes these; operators consume them elsewhere.
type StandbyQueueItem struct {
	ID              int64     `db:"id"`
	AccountID       int64     `db:"account_id"`
	EmailSubject    string    `db:"email_subject"`
	EmailBody       string    `db:"email_body"`
	SenderEmail     string    `db:"sender_email"`
	FailureReason   string    `db:"failure_reason"`
	OriginalBoardID *int64    `db:"original_board_id"`
	RetryCount      int       `db:"retry_count"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

// ProcessedEmail is an append-only fingerprint of a handled message, used by
// the duplicate detector.
type ProcessedEmail struct {
	ID          int64     `db:"id"`
	InboxID     int64     `db:"inbox_id"`
	MessageID   string    `db:"message_id"`
	SenderEmail string    `db:"sender_email"`
	SubjectHash string    `db:"subject_hash"`
	ProcessedAt time.Time `db:"processed_at"`
}
