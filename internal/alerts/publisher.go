// Package alerts raises operational alerts over SNS when a sweep run
// finishes with delivery failures. Like the events producer it is
// optional and nil-guarded at the call sites.
package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"go.uber.org/zap"
)

// Config holds SNS configuration.
type Config struct {
	Region   string
	TopicARN string
}

// SweepAlert is the payload published after a sweep with failures.
type SweepAlert struct {
	Processed  int   `json:"processed"`
	Sent       int   `json:"sent"`
	Skipped    int   `json:"skipped"`
	Failed     int   `json:"failed"`
	FinishedAt int64 `json:"finished_at"`
}

// Publisher publishes sweep alerts to an SNS topic.
type Publisher struct {
	client   *sns.Client
	topicARN string
	logger   *zap.Logger
}

// NewPublisher creates a new SNS publisher.
func NewPublisher(ctx context.Context, cfg Config, logger *zap.Logger) (*Publisher, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	logger.Info("sns publisher initialized",
		zap.String("topic_arn", cfg.TopicARN),
	)

	return &Publisher{
		client:   sns.NewFromConfig(awsCfg),
		topicARN: cfg.TopicARN,
		logger:   logger,
	}, nil
}

// PublishSweepAlert publishes one alert describing a finished sweep run.
// Callers invoke it only when the run had at least one failed delivery.
func (p *Publisher) PublishSweepAlert(ctx context.Context, alert SweepAlert) error {
	if alert.FinishedAt == 0 {
		alert.FinishedAt = time.Now().Unix()
	}

	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	result, err := p.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Subject:  aws.String("bookpulse: sweep finished with failures"),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"alert_type": {
				DataType:    aws.String("String"),
				StringValue: aws.String("sweep_failure"),
			},
		},
	})
	if err != nil {
		p.logger.Error("failed to publish sweep alert",
			zap.Error(err),
			zap.Int("failed", alert.Failed),
		)
		return fmt.Errorf("sns publish failed: %w", err)
	}

	p.logger.Info("sweep alert published",
		zap.String("sns_message_id", aws.ToString(result.MessageId)),
		zap.Int("failed", alert.Failed),
	)
	return nil
}
