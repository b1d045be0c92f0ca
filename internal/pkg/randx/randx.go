/*
Package randx generates the unique identifiers used on the live channel and by the
development backend.

Every identifier is a UUID v4 string, optionally behind a short prefix that tells
the kind apart in frame dumps and logs.
*/
package randx

import (
	"github.com/google/uuid"
)

const (
	subscriptionPrefix = "sub-"
	receiptPrefix      = "receipt-"
	sessionPrefix      = "session-"
)

// MessageID generates a standard UUID v4 string to serve as a unique identifier for a message.
func MessageID() string {
	return uuid.New().String()
}

// SubscriptionID returns a fresh STOMP subscription id.
func SubscriptionID() string {
	return subscriptionPrefix + uuid.New().String()
}

// ReceiptID returns a fresh STOMP receipt id.
func ReceiptID() string {
	return receiptPrefix + uuid.New().String()
}

// SessionID returns a fresh broker session id, echoed in CONNECTED frames.
func SessionID() string {
	return sessionPrefix + uuid.New().String()
}
