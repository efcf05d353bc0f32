// Package mailer is the outbound mail transport. The production
// implementation rides on AWS SES; LogMailer is the log-only mode for
// development and tests.
package mailer

import "context"

// Message is one outbound email.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Mailer sends a single message. Implementations may return an error on
// transport failure; callers decide how failures are recorded.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}
