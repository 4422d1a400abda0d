package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"github.com/kinship-crm/kinship/pkg/logger"
)

const maxRetries = 5

type delivery struct {
	msg   amqp091.Delivery
	queue string
}

// ErrDeliveryClosed is returned by Consume when the broker closes a
// delivery channel, e.g. after a connection or channel drop.
var ErrDeliveryClosed = errors.New("delivery channel closed")

// Consume delivers messages from every queue in Queues to jobs, one at a
// time, until ctx is done or a delivery channel closes. Failures are routed
// to the retry queue and, after maxRetries attempts, to the dead-letter
// queue.
func Consume(ctx context.Context, conn *amqp091.Connection, jobs Jobs) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open consumer channel: %w", err)
	}
	defer ch.Close()

	if err := Setup(ch, Queues); err != nil {
		return err
	}
	if err := ch.Qos(1, 0, true); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	sources := make(map[string]<-chan amqp091.Delivery, len(Queues))
	for _, name := range Queues {
		msgs, err := ch.Consume(name, name+"_consumer", false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("consume %s: %w", name, err)
		}
		sources[name] = msgs
	}

	logger.Info("[Queue] listening", "queues", Queues)
	return dispatch(ctx, sources, func(d delivery) {
		start := time.Now()
		err := Handle(ctx, jobs, d.queue, d.msg.Body)
		if err == nil {
			if aerr := d.msg.Ack(false); aerr != nil {
				logger.Error("[Queue] ack failed", "queue", d.queue, "err", aerr)
			}
			logger.Info("[Queue] processed", "queue", d.queue, "duration", time.Since(start).Round(time.Millisecond))
			return
		}
		logger.Error("[Queue] processing failed", "queue", d.queue, "err", err)
		reroute(ctx, ch, d, err)
	})
}

// dispatch fans the sources into process, one delivery at a time. It
// returns nil when ctx is done and ErrDeliveryClosed as soon as any source
// closes.
func dispatch(ctx context.Context, sources map[string]<-chan amqp091.Delivery, process func(delivery)) error {
	deliveries := make(chan delivery)
	closed := make(chan string, len(sources))
	stop := make(chan struct{})
	defer close(stop)

	for name, msgs := range sources {
		go func() {
			for {
				select {
				case <-stop:
					return
				case msg, ok := <-msgs:
					if !ok {
						closed <- name
						return
					}
					select {
					case deliveries <- delivery{msg: msg, queue: name}:
					case <-stop:
						return
					}
				}
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case name := <-closed:
			logger.Error("[Queue] delivery channel closed", "queue", name)
			return fmt.Errorf("%s: %w", name, ErrDeliveryClosed)
		case d := <-deliveries:
			process(d)
		}
	}
}

// nextHop picks where a failed message goes and the retry count it carries.
func nextHop(queue string, headers amqp091.Table, err error) (string, int32) {
	var retries int32
	if v, ok := headers["x-retries"].(int32); ok {
		retries = v
	}
	if errors.Is(err, ErrMalformed) || retries >= maxRetries {
		return queue + "_dlq", retries
	}
	return queue + "_retry", retries + 1
}

func reroute(ctx context.Context, ch publishCh, d delivery, err error) {
	target, retries := nextHop(d.queue, d.msg.Headers, err)
	headers := amqp091.Table{}
	for k, v := range d.msg.Headers {
		headers[k] = v
	}
	headers["x-retries"] = retries

	perr := ch.PublishWithContext(ctx, "", target, false, false, amqp091.Publishing{
		ContentType:  d.msg.ContentType,
		Body:         d.msg.Body,
		Headers:      headers,
		DeliveryMode: amqp091.Persistent,
	})
	if perr != nil {
		logger.Error("[Queue] reroute failed", "target", target, "err", perr)
		_ = d.msg.Nack(false, true)
		return
	}
	_ = d.msg.Ack(false)
}
