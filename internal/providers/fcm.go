package providers

import (
	"context"
	"errors"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"reporting-service/internal/logging"
	"reporting-service/internal/models"
)

// ErrNoCredentials is returned when neither a credentials file nor JSON is configured.
var ErrNoCredentials = errors.New("firebase credentials not configured")

// FCMConfig selects the service account used for Firebase Cloud Messaging.
type FCMConfig struct {
	CredentialsFile string
	CredentialsJSON string
	ProjectID       string
}

type messageSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// FCM sends push notifications through Firebase Cloud Messaging.
type FCM struct {
	client messageSender
	logger *logging.Logger
}

func NewFCM(ctx context.Context, cfg FCMConfig, logger *logging.Logger) (*FCM, error) {
	var opt option.ClientOption
	switch {
	case cfg.CredentialsJSON != "":
		opt = option.WithCredentialsJSON([]byte(cfg.CredentialsJSON))
	case cfg.CredentialsFile != "":
		opt = option.WithCredentialsFile(cfg.CredentialsFile)
	default:
		return nil, ErrNoCredentials
	}

	var fbConfig *firebase.Config
	if cfg.ProjectID != "" {
		fbConfig = &firebase.Config{ProjectID: cfg.ProjectID}
	}
	app, err := firebase.NewApp(ctx, fbConfig, opt)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase messaging: %w", err)
	}
	return &FCM{client: client, logger: logger}, nil
}

// Send delivers msg to a single device token.
func (f *FCM) Send(ctx context.Context, token string, msg models.Message) error {
	m := buildMessage(msg)
	m.Token = token
	id, err := f.client.Send(ctx, m)
	if err != nil {
		if messaging.IsUnregistered(err) {
			return fmt.Errorf("device token no longer registered: %w", err)
		}
		return fmt.Errorf("failed to send push: %w", err)
	}
	f.logger.Debugf("Push sent: %s", id)
	return nil
}

// SendToTopic delivers msg to every device subscribed to topic.
func (f *FCM) SendToTopic(ctx context.Context, topic string, msg models.Message) error {
	m := buildMessage(msg)
	m.Topic = topic
	id, err := f.client.Send(ctx, m)
	if err != nil {
		return fmt.Errorf("failed to send push to topic %s: %w", topic, err)
	}
	f.logger.Debugf("Topic push sent to %s: %s", topic, id)
	return nil
}

func buildMessage(msg models.Message) *messaging.Message {
	return &messaging.Message{
		Notification: &messaging.Notification{
			Title: msg.Title,
			Body:  msg.Body,
		},
		Data: msg.Data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				Sound:    "default",
				Priority: messaging.PriorityHigh,
			},
		},
	}
}

// LogSender stands in for FCM when no credentials are configured. Every
// message is logged and reported as delivered.
type LogSender struct {
	Logger *logging.Logger
}

func (l LogSender) Send(_ context.Context, token string, msg models.Message) error {
	l.Logger.WithField("title", msg.Title).Infof("Push disabled, would send to token %s", shortToken(token))
	return nil
}

func (l LogSender) SendToTopic(_ context.Context, topic string, msg models.Message) error {
	l.Logger.WithField("title", msg.Title).Infof("Push disabled, would send to topic %s", topic)
	return nil
}

func shortToken(token string) string {
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "…" + token[len(token)-4:]
}
