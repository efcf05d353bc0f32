// Package events fans delivery outcomes out to SQS so downstream
// consumers (analytics, CRM sync) can react without polling the ledger.
// The producer is optional: without a queue URL the service runs with
// fan-out disabled.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"go.uber.org/zap"

	"github.com/lmoretti/bookpulse/internal/notify"
)

// Config holds SQS configuration.
type Config struct {
	Region   string
	QueueURL string
}

// Message is the payload sent to SQS for one delivery outcome.
type Message struct {
	BookingID      string `json:"booking_id"`
	TemplateID     string `json:"template_id"`
	RecipientEmail string `json:"recipient_email"`
	TriggerType    string `json:"trigger_type"`
	Status         string `json:"status"`
	Error          string `json:"error,omitempty"`
	OccurredAt     int64  `json:"occurred_at"`
}

// Producer publishes delivery outcomes to SQS.
type Producer struct {
	client   *sqs.Client
	queueURL string
	logger   *zap.Logger
}

// NewProducer creates a new SQS producer.
func NewProducer(ctx context.Context, cfg Config, logger *zap.Logger) (*Producer, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	logger.Info("sqs producer initialized",
		zap.String("queue_url", cfg.QueueURL),
	)

	return &Producer{
		client:   sqs.NewFromConfig(awsCfg),
		queueURL: cfg.QueueURL,
		logger:   logger,
	}, nil
}

// Publish sends one delivery outcome to the queue.
func (p *Producer) Publish(ctx context.Context, outcome notify.Outcome) error {
	msg := Message{
		BookingID:      outcome.BookingID.String(),
		TemplateID:     outcome.TemplateID.String(),
		RecipientEmail: outcome.RecipientEmail,
		TriggerType:    outcome.TriggerType,
		Status:         outcome.Status,
		Error:          outcome.Error,
		OccurredAt:     time.Now().UnixNano(),
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	result, err := p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		p.logger.Error("failed to send message to sqs",
			zap.Error(err),
			zap.String("booking_id", msg.BookingID),
		)
		return fmt.Errorf("sqs send failed: %w", err)
	}

	p.logger.Debug("delivery outcome published",
		zap.String("booking_id", msg.BookingID),
		zap.String("sqs_message_id", aws.ToString(result.MessageId)),
	)
	return nil
}

// Close closes the SQS producer.
func (p *Producer) Close() {
	// AWS SDK v2 clients don't require explicit Close()
}
