package messaging

import (
	"context"
	"log/slog"
	"sync"

	"github.com/BTreeMap/ScreenPipe/internal/models"
)

// LogService is the transport used when no chat channel is configured.
// Outbound messages are only logged; candidates talk to the engine through the HTTP API.
type LogService struct {
	responses chan models.Response
	once      sync.Once
}

// NewLogService creates a LogService.
func NewLogService() *LogService {
	return &LogService{responses: make(chan models.Response)}
}

// ValidateAndCanonicalizeRecipient validates a phone number.
func (s *LogService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return CanonicalizePhone(recipient)
}

// SendMessage logs the message.
func (s *LogService) SendMessage(ctx context.Context, to string, body string) error {
	slog.Info("LogService outbound message", "to", to, "body", body)
	return nil
}

// Start is a no-op.
func (s *LogService) Start(ctx context.Context) error { return nil }

// Stop closes the responses channel.
func (s *LogService) Stop() error {
	s.once.Do(func() { close(s.responses) })
	return nil
}

// Responses never yields anything.
func (s *LogService) Responses() <-chan models.Response { return s.responses }
