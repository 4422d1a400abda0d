// Package queue moves background work from the API server to the worker
// over RabbitMQ. Every work queue has a "_retry" companion that dead-letters
// back into it after a delay and a "_dlq" for messages that keep failing.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"github.com/kinship-crm/kinship/internal/util"
	"github.com/kinship-crm/kinship/pkg/logger"
)

const (
	PhotoDescribeQueue = "photo_describe_queue"
	PersonEmbedQueue   = "person_embed_queue"
)

// Queues lists every work queue the worker consumes.
var Queues = []string{PhotoDescribeQueue, PersonEmbedQueue}

const retryDelay = 10 * time.Second

// Config holds the broker address parts.
type Config struct {
	User     string
	Password string
	Host     string
	Port     string
}

func (c Config) URL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%s/", c.User, c.Password, c.Host, c.Port)
}

// Dial connects to the broker, retrying while it starts up.
func Dial(ctx context.Context, c Config) (*amqp091.Connection, error) {
	return util.RetryWithContext(ctx, 5, 2*time.Second, func(context.Context) (*amqp091.Connection, error) {
		conn, err := amqp091.Dial(c.URL())
		if err != nil {
			logger.Warn("[Queue] broker not reachable", "host", c.Host, "err", err)
		}
		return conn, err
	})
}

type declarer interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp091.Table) (amqp091.Queue, error)
}

// Setup declares each queue with its retry and dead-letter companions.
func Setup(ch declarer, names []string) error {
	for _, name := range names {
		if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare %s: %w", name, err)
		}
		if _, err := ch.QueueDeclare(name+"_dlq", true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare %s_dlq: %w", name, err)
		}
		_, err := ch.QueueDeclare(name+"_retry", true, false, false, false, amqp091.Table{
			"x-message-ttl":             int32(retryDelay.Milliseconds()),
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": name,
		})
		if err != nil {
			return fmt.Errorf("declare %s_retry: %w", name, err)
		}
	}
	return nil
}

// PhotoMsg asks the worker to describe an uploaded photo.
type PhotoMsg struct {
	PhotoID int64 `json:"photo_id"`
}

// PersonMsg asks the worker to recompute a person's embedding.
type PersonMsg struct {
	PersonID int64 `json:"person_id"`
}

// Publisher enqueues JSON messages.
type Publisher interface {
	Publish(ctx context.Context, queue string, msg any) error
}

type publishCh interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
}

// ChannelPublisher publishes persistent messages on one AMQP channel.
// A channel must not be used by two goroutines at once, so publishing is
// serialized.
type ChannelPublisher struct {
	mu sync.Mutex
	ch publishCh
}

func NewPublisher(ch *amqp091.Channel) *ChannelPublisher {
	return &ChannelPublisher{ch: ch}
}

func (p *ChannelPublisher) Publish(ctx context.Context, queue string, msg any) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch.PublishWithContext(ctx, "", queue, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
	})
}

// Discard drops every message. The server uses it when no broker is
// configured; the scheduler's backfill picks the work up instead.
type Discard struct{}

func (Discard) Publish(context.Context, string, any) error { return nil }
