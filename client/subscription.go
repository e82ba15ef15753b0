package client

import (
	"strings"

	"github.com/google/uuid"
)

// InboxPrefix starts every generated reply subject.
const InboxPrefix = "_INBOX."

// Subscription lives until it is unsubscribed or its Conn is closed.
type Subscription struct {
	Subject string
	Queue   string
	SID     string
}

// NewSID returns 8 random hex characters.
func NewSID() string {
	return randomHex()[:8]
}

// NewInbox returns a fresh reply subject.
func NewInbox() string {
	return InboxPrefix + randomHex()
}

// randomHex is 32 hex characters taken from a crypto/rand backed UUID.
func randomHex() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
