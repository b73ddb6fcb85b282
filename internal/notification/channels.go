package notification

import (
	"context"
	"errors"
	"fmt"

	"reporting-service/internal/models"
)

// Announcer publishes a report on a fixed channel.
type Announcer interface {
	Announce(ctx context.Context, report models.Report, msg models.Message) error
}

// TopicPublisher sends a push message to every subscriber of a topic.
type TopicPublisher interface {
	SendToTopic(ctx context.Context, topic string, msg models.Message) error
}

// Topic announces on one push topic.
type Topic struct {
	Publisher TopicPublisher
	Name      string
}

func (t Topic) Announce(ctx context.Context, _ models.Report, msg models.Message) error {
	if err := t.Publisher.SendToTopic(ctx, t.Name, msg); err != nil {
		return fmt.Errorf("topic %s: %w", t.Name, err)
	}
	return nil
}

// Channels announces on every member. One failing channel does not stop the rest.
type Channels []Announcer

func (c Channels) Announce(ctx context.Context, report models.Report, msg models.Message) error {
	var errs []error
	for _, a := range c {
		if a == nil {
			continue
		}
		if err := a.Announce(ctx, report, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
