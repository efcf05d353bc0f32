package circuitbreaker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/lmoretti/bookpulse/internal/mailer"
)

// ProtectedMailer wraps a Mailer with a CircuitBreaker. When the mail
// provider starts failing, the circuit opens and sends fail fast
// instead of piling up behind the outage.
type ProtectedMailer struct {
	mail    mailer.Mailer
	breaker *CircuitBreaker
	logger  *zap.Logger
}

// NewProtectedMailer wraps a mailer with circuit breaker protection.
func NewProtectedMailer(mail mailer.Mailer, breaker *CircuitBreaker, logger *zap.Logger) *ProtectedMailer {
	return &ProtectedMailer{
		mail:    mail,
		breaker: breaker,
		logger:  logger,
	}
}

// Send attempts one send through the circuit breaker. If the circuit is
// open, returns ErrCircuitOpen immediately.
func (p *ProtectedMailer) Send(ctx context.Context, msg mailer.Message) error {
	if !p.breaker.Allow() {
		p.logger.Warn("circuit breaker rejected send",
			zap.String("breaker", p.breaker.config.Name),
			zap.String("to", msg.To),
			zap.String("state", p.breaker.GetState().String()),
		)
		return fmt.Errorf("%w: %s transport unavailable", ErrCircuitOpen, p.breaker.config.Name)
	}

	err := p.mail.Send(ctx, msg)
	if err != nil {
		p.breaker.RecordFailure()
		p.logger.Debug("circuit breaker recorded failure",
			zap.String("breaker", p.breaker.config.Name),
			zap.Error(err),
		)
		return err
	}

	p.breaker.RecordSuccess()
	return nil
}

// Breaker returns the underlying circuit breaker for metrics/monitoring.
func (p *ProtectedMailer) Breaker() *CircuitBreaker {
	return p.breaker
}
