package mailer

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// LogMailer records intended sends without contacting a provider.
// It backs MOCK_EMAIL mode and tests.
type LogMailer struct {
	logger *zap.Logger

	mu   sync.Mutex
	sent []Message
}

// NewLogMailer creates a log-only mailer.
func NewLogMailer(logger *zap.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

// Send logs the message and keeps it for inspection.
func (m *LogMailer) Send(ctx context.Context, msg Message) error {
	m.mu.Lock()
	m.sent = append(m.sent, msg)
	m.mu.Unlock()

	m.logger.Info("mock email",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.Int("html_bytes", len(msg.HTML)),
	)
	return nil
}

// Sent returns a copy of every message recorded so far.
func (m *LogMailer) Sent() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.sent))
	copy(out, m.sent)
	return out
}
