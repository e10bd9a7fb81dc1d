package activity

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/agentdesk/agentdesk/internal/domain/activity"
)

// Topic carries every recorded entry as JSON.
const Topic = "activity"

// NewPubSub returns the in-process bus used to fan entries out.
func NewPubSub(logger zerolog.Logger) *gochannel.GoChannel {
	return gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 256},
		NewWatermillLogger(logger),
	)
}

// Log appends activity entries and publishes them to subscribers.
type Log struct {
	repo       activity.Repository
	publisher  message.Publisher
	subscriber message.Subscriber
	now        func() time.Time
	logger     zerolog.Logger
}

func NewLog(repo activity.Repository, publisher message.Publisher, subscriber message.Subscriber, logger zerolog.Logger) *Log {
	return &Log{
		repo:       repo,
		publisher:  publisher,
		subscriber: subscriber,
		now:        func() time.Time { return time.Now().UTC() },
		logger:     logger.With().Str("service", "activity").Logger(),
	}
}

// Record implements activity.Sink.
func (l *Log) Record(ctx context.Context, e activity.Entry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = l.now()
	}
	if err := l.repo.Append(ctx, &e); err != nil {
		return err
	}
	if l.publisher == nil {
		return nil
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	msg := message.NewMessage(watermill.NewULID(), payload)
	if err := l.publisher.Publish(Topic, msg); err != nil {
		l.logger.Warn().Err(err).Str("kind", string(e.Kind)).Msg("failed to publish activity entry")
	}
	return nil
}

// Recent returns the newest entries first.
func (l *Log) Recent(ctx context.Context, limit int) ([]*activity.Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	return l.repo.ListRecent(ctx, limit)
}

// Subscribe calls handler for every entry published after the call, until ctx ends.
func (l *Log) Subscribe(ctx context.Context, handler func(activity.Entry)) error {
	messages, err := l.subscriber.Subscribe(ctx, Topic)
	if err != nil {
		return err
	}
	go func() {
		for msg := range messages {
			var e activity.Entry
			if err := json.Unmarshal(msg.Payload, &e); err != nil {
				l.logger.Warn().Err(err).Str("message_id", msg.UUID).Msg("dropping malformed activity message")
				msg.Ack()
				continue
			}
			handler(e)
			msg.Ack()
		}
	}()
	return nil
}
