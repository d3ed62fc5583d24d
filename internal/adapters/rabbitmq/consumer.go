package rabbitmq

import (
	"context"
	"errors"
	"sync/atomic"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sethvargo/go-retry"
	"github.com/sirupsen/logrus"

	"riskscan/internal/ports"
)

type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	}
	return "disconnected"
}

// Consumer pulls work from the queue one delivery at a time and reconnects
// whenever the broker goes away.
type Consumer struct {
	cfg     Config
	tag     string
	dial    dialer
	backoff func() retry.Backoff
	log     logrus.FieldLogger
	state   atomic.Int32
}

func NewConsumer(cfg Config, tag string, log logrus.FieldLogger) *Consumer {
	return newConsumer(cfg, tag, dialAMQP, log)
}

func newConsumer(cfg Config, tag string, dial dialer, log logrus.FieldLogger) *Consumer {
	cfg = cfg.withDefaults()
	return &Consumer{
		cfg:     cfg,
		tag:     tag,
		dial:    dial,
		backoff: cfg.backoff,
		log:     log.WithFields(logrus.Fields{"component": "consumer", "queue": cfg.Queue}),
	}
}

func (c *Consumer) State() State { return State(c.state.Load()) }

func (c *Consumer) setState(s State) {
	if State(c.state.Swap(int32(s))) != s {
		c.log.WithField("state", s).Debug("broker state changed")
	}
}

// Run consumes until ctx is cancelled and returns nil on shutdown. handle is
// called with a context that shutdown does not cancel; the delivery is acked
// after it returns.
func (c *Consumer) Run(ctx context.Context, handle ports.MessageHandler) error {
	defer c.setState(Disconnected)
	for {
		sess, err := c.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		c.setState(Connected)
		c.log.Info("consuming")

		err = c.consume(ctx, sess, handle)
		sess.close()
		c.setState(Disconnected)
		if ctx.Err() != nil {
			c.log.Info("consumer stopped")
			return nil
		}
		c.log.WithError(err).Warn("broker connection lost, reconnecting")
	}
}

// connect retries with a fresh capped exponential backoff, so every
// successful connection resets the delay.
func (c *Consumer) connect(ctx context.Context) (*session, error) {
	c.setState(Connecting)
	var sess *session
	err := retry.Do(ctx, c.backoff(), func(ctx context.Context) error {
		s, err := openSession(c.dial, c.cfg)
		if err != nil {
			c.log.WithError(err).Warn("broker unavailable")
			return retry.RetryableError(err)
		}
		sess = s
		return nil
	})
	return sess, err
}

func (c *Consumer) consume(ctx context.Context, sess *session, handle ports.MessageHandler) error {
	connClosed := sess.conn.NotifyClose(make(chan *amqp.Error, 1))
	chClosed := sess.ch.NotifyClose(make(chan *amqp.Error, 1))

	if err := sess.ch.Qos(1, 0, false); err != nil {
		return brokerErr("qos", err)
	}
	deliveries, err := sess.ch.Consume(c.cfg.Queue, c.tag, false, false, false, false, nil)
	if err != nil {
		return brokerErr("consume", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case amqpErr := <-connClosed:
			return closedErr("connection", amqpErr)
		case amqpErr := <-chClosed:
			return closedErr("channel", amqpErr)
		case d, ok := <-deliveries:
			if !ok {
				return brokerErr("consume", errors.New("delivery channel closed"))
			}
			handle(context.WithoutCancel(ctx), d.Body)
			if err := d.Ack(false); err != nil {
				return brokerErr("ack", err)
			}
		}
	}
}

func closedErr(what string, amqpErr *amqp.Error) error {
	if amqpErr == nil {
		return brokerErr(what+" closed", errors.New("closed by peer"))
	}
	return brokerErr(what+" closed", amqpErr)
}
