// Package store provides the DedupRepo interface for inbound chat message deduplication.
package store

import (
	"time"
)

// DedupRecord represents an inbound message deduplication record.
type DedupRecord struct {
	MessageID   string     `json:"message_id"`
	Scope       string     `json:"scope"`
	ReceivedAt  time.Time  `json:"received_at"`
	ProcessedAt *time.Time `json:"processed_at"`
}

// DedupRepo defines the interface for inbound message deduplication.
// Message ids are client-generated, so callers namespace them by scope
// (typically the conversation id).
type DedupRepo interface {
	// IsDuplicate checks if a message ID has already been processed.
	// Returns true if the message was already seen.
	IsDuplicate(messageID string) (bool, error)

	// RecordInbound inserts a new inbound message record. Returns false if the
	// message was already recorded (duplicate).
	RecordInbound(messageID, scope string) (bool, error)

	// MarkProcessed sets the processed_at timestamp for a message.
	MarkProcessed(messageID string) error

	// ReleaseInbound forgets a recorded message that was never processed, so
	// a redelivery is treated as fresh. Processed records are kept.
	ReleaseInbound(messageID string) error
}
