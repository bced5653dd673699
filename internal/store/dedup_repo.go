package store

import (
	"context"
	"time"
)

// DedupRecord is one inbound message id seen by the transport.
type DedupRecord struct {
	MessageID   string     `json:"message_id"`
	Sender      string     `json:"sender"`
	ReceivedAt  time.Time  `json:"received_at"`
	ProcessedAt *time.Time `json:"processed_at"`
}

// DedupRepo drops redelivered inbound messages.
type DedupRepo interface {
	// IsDuplicate reports whether messageID was already recorded.
	IsDuplicate(ctx context.Context, messageID string) (bool, error)

	// RecordInbound records messageID. It returns false when it was already
	// recorded, in which case the message must not be processed again.
	RecordInbound(ctx context.Context, messageID, sender string) (bool, error)

	// MarkProcessed stamps the time the message finished processing.
	MarkProcessed(ctx context.Context, messageID string) error

	// ForgetInbound releases a recorded id whose processing failed, so a
	// redelivery is processed again.
	ForgetInbound(ctx context.Context, messageID string) error
}
