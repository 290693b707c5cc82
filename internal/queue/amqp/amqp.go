package amqp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/streadway/amqp"

	"evently/internal/config"
	"evently/internal/queue"
	"evently/internal/types"
)

func init() {
	queue.RegisterFactory("amqp", New)
}

// Queue uses a durable RabbitMQ queue. Dequeue is basic.get with auto-ack,
// which hands each message to exactly one caller without blocking.
type Queue struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	name string
	mu   sync.Mutex
}

var _ queue.Queue = (*Queue)(nil)

func New(cfg config.QueueConfig) (queue.Queue, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("amqp: failed to connect: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp: failed to open channel: %w", err)
	}

	_, err = ch.QueueDeclare(
		cfg.Name, // queue name
		true,     // durable
		false,    // auto delete
		false,    // exclusive
		false,    // no wait
		nil,      // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("amqp: failed to declare queue %s: %w", cfg.Name, err)
	}

	slog.Info("AMQP queue connected", "queue", cfg.Name)
	return &Queue{conn: conn, ch: ch, name: cfg.Name}, nil
}

func (q *Queue) Enqueue(ctx context.Context, job types.Job) error {
	data, err := queue.Encode(job)
	if err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	err = q.ch.Publish(
		"",     // exchange
		q.name, // queue name
		false,  // mandatory
		false,  // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         data,
		},
	)
	if err != nil {
		return fmt.Errorf("amqp: failed to publish job: %w", err)
	}
	return nil
}

func (q *Queue) Dequeue(ctx context.Context) (types.Job, bool, error) {
	q.mu.Lock()
	msg, ok, err := q.ch.Get(q.name, true)
	q.mu.Unlock()

	if err != nil {
		return types.Job{}, false, fmt.Errorf("amqp: failed to get job: %w", err)
	}
	if !ok {
		return types.Job{}, false, nil
	}

	job, err := queue.Decode(msg.Body)
	if err != nil {
		return types.Job{}, false, err
	}
	return job, true, nil
}

func (q *Queue) Depth(ctx context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	state, err := q.ch.QueueInspect(q.name)
	if err != nil {
		return 0, fmt.Errorf("amqp: failed to inspect queue: %w", err)
	}
	return int64(state.Messages), nil
}

func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.ch != nil {
		_ = q.ch.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}
