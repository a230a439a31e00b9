package kafka

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/RaikyD/bookstore-orders-service/internal/application"
	"github.com/RaikyD/bookstore-orders-service/internal/domain"
	"github.com/RaikyD/bookstore-orders-service/internal/logger"
	"github.com/segmentio/kafka-go"
	"github.com/sethvargo/go-retry"
)

// SignatureHeader carries the gateway signature of a relayed webhook body.
const SignatureHeader = "x-razorpay-signature"

type ConsumerConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

type WebhookHandler interface {
	Handle(ctx context.Context, body []byte, signature string) (*application.WebhookResult, error)
}

// StartWebhookConsumer feeds gateway webhooks relayed through Kafka to h.
// A message is committed once it was applied or is known to be unusable;
// transient failures are retried with backoff until ctx is done.
func StartWebhookConsumer(ctx context.Context, h WebhookHandler, cfg ConsumerConfig) (*kafka.Reader, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, errors.New("kafka webhook consumer: brokers and topic are required")
	}

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:         cfg.Brokers,
		GroupID:         cfg.GroupID,
		Topic:           cfg.Topic,
		MinBytes:        1,
		MaxBytes:        10e6,
		CommitInterval:  0,
		StartOffset:     kafka.FirstOffset,
		ReadLagInterval: -1,
	})

	logger.Info("kafka webhook consumer starting", "brokers", strings.Join(cfg.Brokers, ","), "topic", cfg.Topic, "group", cfg.GroupID)

	go func() {
		defer r.Close()

		backoff := time.Millisecond * 300
		for {
			m, err := r.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Warn("kafka fetch error", "err", err)
				time.Sleep(backoff)
				continue
			}
			logger.Debug("webhook fetched", "partition", m.Partition, "offset", m.Offset)

			b := retry.WithCappedDuration(10*time.Second, retry.NewExponential(backoff))
			if err := retry.Do(ctx, b, func(ctx context.Context) error {
				return relay(ctx, h, m)
			}); err != nil {
				// only ctx cancellation ends the retry loop
				return
			}

			if err := r.CommitMessages(ctx, m); err != nil {
				logger.Warn("kafka commit failed", "err", err)
			} else {
				logger.Debug("kafka committed", "topic", m.Topic, "partition", m.Partition, "offset", m.Offset)
			}
		}
	}()
	return r, nil
}

// relay hands one message to h. It returns a retryable error for failures
// worth another attempt and nil for messages that should be committed.
func relay(ctx context.Context, h WebhookHandler, m kafka.Message) error {
	signature := header(m.Headers, SignatureHeader)
	if signature == "" {
		logger.Warn("relayed webhook without signature, dropping", "offset", m.Offset)
		return nil
	}

	res, err := h.Handle(ctx, m.Value, signature)
	switch {
	case errors.Is(err, domain.ErrVerificationFailed):
		logger.Warn("relayed webhook failed verification, dropping", "offset", m.Offset)
		return nil
	case err != nil:
		logger.Warn("relayed webhook failed, will retry", "offset", m.Offset, "err", err)
		return retry.RetryableError(err)
	}
	logger.Info("relayed webhook handled", "offset", m.Offset, "message", res.Message)
	return nil
}

func header(hs []kafka.Header, key string) string {
	for _, h := range hs {
		if strings.EqualFold(h.Key, key) {
			return string(h.Value)
		}
	}
	return ""
}
