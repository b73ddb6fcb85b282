package kafka

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"reporting-service/internal/logging"
	"reporting-service/internal/models"
	"reporting-service/internal/reporting"
	"reporting-service/internal/utils"
)

// Submitter is the reporting pipeline entry point.
type Submitter interface {
	Submit(ctx context.Context, kind string, payload reporting.Payload, userID int64) (reporting.Result, error)
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer turns telemetry messages into automatic reports. Each message is
// a JSON object with an optional "kind" (default failure) plus the report
// fields.
type Consumer struct {
	reader      messageReader
	pipeline    Submitter
	logger      *logging.Logger
	attempts    int
	retryDelay  time.Duration
	outageDelay time.Duration
}

func NewConsumer(brokers []string, topic, groupID string, pipeline Submitter, logger *logging.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &Consumer{
		reader:      reader,
		pipeline:    pipeline,
		logger:      logger,
		attempts:    3,
		retryDelay:  2 * time.Second,
		outageDelay: 10 * time.Second,
	}
}

// Start consumes until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.logger.Info("Kafka consumer started")
		for {
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					c.logger.Info("Kafka consumer stopped")
					return
				}
				c.logger.Errorf("Read message failed: %v", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(time.Second):
				}
				continue
			}

			if !c.process(ctx, msg) {
				c.logger.WithField("offset", msg.Offset).Info("Kafka consumer stopped before commit")
				return
			}
			if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
				c.logger.Errorf("Commit failed: %v", err)
			}
		}
	}()
}

// process handles msg until it is persisted or rejected for good. Storage
// outages keep the message uncommitted and it is retried after outageDelay.
// It reports false when ctx ends first, in which case the offset must not be
// committed.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) bool {
	for {
		err := c.handle(ctx, msg)
		if ctx.Err() != nil {
			return false
		}
		if err == nil {
			return true
		}
		if !reporting.IsRetryable(err) {
			c.logger.WithField("offset", msg.Offset).Errorf("Message dropped: %v", err)
			return true
		}
		c.logger.WithField("offset", msg.Offset).Warnf("Storage unavailable, retrying in %s: %v", c.outageDelay, err)
		select {
		case <-ctx.Done():
			return false
		case <-time.After(c.outageDelay):
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) error {
	kind, payload, err := decode(msg)
	if err != nil {
		return err
	}

	var res reporting.Result
	err = utils.Retry(ctx, c.logger, c.attempts, c.retryDelay, reporting.IsRetryable, func() error {
		var submitErr error
		res, submitErr = c.pipeline.Submit(ctx, kind, payload, 0)
		return submitErr
	})
	if err != nil {
		return fmt.Errorf("submit %s report: %w", kind, err)
	}

	entry := c.logger.WithFields(res.Report.LogFields())
	if res.Duplicate {
		entry.Info("Redelivered telemetry report ignored")
	} else {
		entry.Info("Processed Kafka message")
	}
	return nil
}

// decode extracts the kind and the payload. Messages without an external id
// get one derived from the message key or position, so redelivery is idempotent.
func decode(msg kafka.Message) (string, reporting.Payload, error) {
	dec := json.NewDecoder(bytes.NewReader(msg.Value))
	dec.UseNumber()
	var payload reporting.Payload
	if err := dec.Decode(&payload); err != nil {
		return "", nil, fmt.Errorf("unmarshal message: %w", err)
	}
	if payload == nil {
		return "", nil, errors.New("empty message")
	}

	kind := string(models.KindFailure)
	if k, ok := payload["kind"].(string); ok && k != "" {
		kind = k
	}
	delete(payload, "kind")

	if !hasExternalID(payload) {
		if len(msg.Key) > 0 {
			payload["external_id"] = string(msg.Key)
		} else {
			payload["external_id"] = fmt.Sprintf("kafka-%s-%d-%d", msg.Topic, msg.Partition, msg.Offset)
		}
	}
	return kind, payload, nil
}

func hasExternalID(p reporting.Payload) bool {
	for _, k := range []string{"external_id", "id_reporte"} {
		if v, ok := p[k]; ok && v != nil && v != "" {
			return true
		}
	}
	return false
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
