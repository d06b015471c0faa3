package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"ai-subtitler/internal/app/common"
	"ai-subtitler/internal/app/model"
)

// channelPrefix namespaces per-owner progress channels.
const channelPrefix = "subtitles:progress:"

// Event is a job state snapshot broadcast after every persisted change.
type Event struct {
	JobID       string          `json:"jobId"`
	UserID      string          `json:"userId"`
	Status      model.JobStatus `json:"status"`
	Progress    int             `json:"progress"`
	ETA         *int            `json:"eta"`
	DownloadURL *string         `json:"downloadUrl"`
	Error       *string         `json:"error"`
	At          time.Time       `json:"at"`
}

// FromJob snapshots job.
func FromJob(job *model.ConversionJob) Event {
	return Event{
		JobID:       job.ID,
		UserID:      job.UserID,
		Status:      job.Status,
		Progress:    job.Progress,
		ETA:         job.ETA,
		DownloadURL: job.DownloadURL,
		Error:       job.Error,
		At:          job.UpdatedAt,
	}
}

// Publisher fans job events out to interested listeners.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error                         { return nil }

// Channel returns the pub/sub channel carrying owner's job events.
func Channel(owner string) string {
	return channelPrefix + owner
}

// RedisPublisher publishes events as JSON on Channel(event.UserID).
type RedisPublisher struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisPublisher connects to redisURL and verifies the connection.
func NewRedisPublisher(ctx context.Context, redisURL string, logger *zap.Logger) (*RedisPublisher, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisPublisherFromClient(client, logger), nil
}

func NewRedisPublisherFromClient(client *redis.Client, logger *zap.Logger) *RedisPublisher {
	return &RedisPublisher{client: client, logger: common.OrNop(logger)}
}

func (p *RedisPublisher) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode job event: %w", err)
	}
	if err := p.client.Publish(ctx, Channel(event.UserID), data).Err(); err != nil {
		return fmt.Errorf("failed to publish job event: %w", err)
	}
	return nil
}

// Subscribe listens to owner's job events until the subscription is closed.
func (p *RedisPublisher) Subscribe(ctx context.Context, owner string) *Subscription {
	return &Subscription{pubsub: p.client.Subscribe(ctx, Channel(owner)), logger: p.logger}
}

// Ping checks the connection.
func (p *RedisPublisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

// Subscription wraps a Redis pub/sub subscription for job events.
type Subscription struct {
	pubsub *redis.PubSub
	logger *zap.Logger
}

// Events decodes messages into job events. The channel closes with the subscription.
func (s *Subscription) Events() <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)
		for msg := range s.pubsub.Channel() {
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				s.logger.Warn("Dropping undecodable job event", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			out <- ev
		}
	}()
	return out
}

func (s *Subscription) Close() error {
	return s.pubsub.Close()
}
