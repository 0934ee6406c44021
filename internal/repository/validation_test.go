package repository

import "testing"

func validInbox() *Inbox {
	return &Inbox{
		ID:                    1,
		AccountID:             1,
		Name:                  "support",
		IMAPHost:              "imap.example.com",
		IMAPPort:              993,
		IMAPUsername:          "support@example.com",
		IMAPPasswordEncrypted: "sealed",
		FromAddress:           "support@example.com",
		PollingInterval:       5,
	}
}

func TestValidateInboxAccepts(t *testing.T) {
	if err := ValidateInbox(validInbox()); err != nil {
		t.Errorf("ValidateInbox(valid) = %v", err)
	}

	// IP literals are valid hosts and from address may be absent.
	inbox := validInbox()
	inbox.IMAPHost = "10.0.0.5"
	inbox.FromAddress = ""
	if err := ValidateInbox(inbox); err != nil {
		t.Errorf("ValidateInbox(ip host, no from) = %v", err)
	}
}

func TestValidateInboxRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Inbox)
	}{
		{"missing host", func(in *Inbox) { in.IMAPHost = "" }},
		{"port zero", func(in *Inbox) { in.IMAPPort = 0 }},
		{"port out of range", func(in *Inbox) { in.IMAPPort = 70000 }},
		{"missing username", func(in *Inbox) { in.IMAPUsername = "" }},
		{"missing credentials", func(in *Inbox) { in.IMAPPasswordEncrypted = "" }},
		{"bad from address", func(in *Inbox) { in.FromAddress = "not-an-address" }},
		{"unsupported interval", func(in *Inbox) { in.PollingInterval = 2 }},
		{"zero interval", func(in *Inbox) { in.PollingInterval = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inbox := validInbox()
			tt.mutate(inbox)
			if err := ValidateInbox(inbox); err == nil {
				t.Errorf("ValidateInbox accepted inbox with %s", tt.name)
			}
		})
	}
}
