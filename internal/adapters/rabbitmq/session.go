package rabbitmq

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sethvargo/go-retry"

	"riskscan/internal/domain"
)

type Config struct {
	URL           string
	Queue         string
	ReconnectBase time.Duration
	ReconnectMax  time.Duration
}

func (c Config) withDefaults() Config {
	if c.Queue == "" {
		c.Queue = "scan_jobs"
	}
	if c.ReconnectBase <= 0 {
		c.ReconnectBase = time.Second
	}
	if c.ReconnectMax <= 0 {
		c.ReconnectMax = 30 * time.Second
	}
	return c
}

// backoff is unbounded: a worker keeps trying until it is shut down.
func (c Config) backoff() retry.Backoff {
	return retry.WithCappedDuration(c.ReconnectMax, retry.NewExponential(c.ReconnectBase))
}

// The subset of the amqp091 API we use, so the state machine can run
// against fakes.
type channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueDeclarePassive(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	NotifyClose(c chan *amqp.Error) chan *amqp.Error
	Close() error
}

type connection interface {
	Channel() (channel, error)
	NotifyClose(c chan *amqp.Error) chan *amqp.Error
	IsClosed() bool
	Close() error
}

type dialer func(url string) (connection, error)

type amqpConn struct{ *amqp.Connection }

func (c amqpConn) Channel() (channel, error) {
	ch, err := c.Connection.Channel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}

func dialAMQP(url string) (connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	return amqpConn{conn}, nil
}

type session struct {
	conn connection
	ch   channel
}

// openSession dials, opens a channel and declares the durable work queue.
func openSession(dial dialer, cfg Config) (*session, error) {
	conn, err := dial(cfg.URL)
	if err != nil {
		return nil, brokerErr("dial", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, brokerErr("open channel", err)
	}
	if _, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, brokerErr("declare queue", err)
	}
	return &session{conn: conn, ch: ch}, nil
}

func (s *session) close() {
	_ = s.ch.Close()
	_ = s.conn.Close()
}

func brokerErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", domain.ErrBrokerConnectivity, op, err)
}
