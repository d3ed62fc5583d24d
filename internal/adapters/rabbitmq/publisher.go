package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sethvargo/go-retry"
	"github.com/sirupsen/logrus"

	"riskscan/internal/domain"
)

// Publisher sends job messages and answers queue depth queries. The session
// is opened lazily and shared under a mutex.
type Publisher struct {
	cfg  Config
	dial dialer
	log  logrus.FieldLogger

	mu   sync.Mutex
	sess *session
}

func NewPublisher(cfg Config, log logrus.FieldLogger) *Publisher {
	return newPublisher(cfg, dialAMQP, log)
}

func newPublisher(cfg Config, dial dialer, log logrus.FieldLogger) *Publisher {
	cfg = cfg.withDefaults()
	return &Publisher{cfg: cfg, dial: dial, log: log.WithFields(logrus.Fields{"component": "publisher", "queue": cfg.Queue})}
}

// Publish sends msg as a persistent JSON message to the work queue.
func (p *Publisher) Publish(ctx context.Context, msg domain.JobMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	sess, err := p.session(ctx)
	if err != nil {
		return err
	}
	err = sess.ch.PublishWithContext(ctx, "", p.cfg.Queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.JobID,
		Timestamp:    time.Unix(msg.CreatedAt, 0),
		Body:         body,
	})
	if err != nil {
		p.reset()
		return brokerErr("publish", err)
	}
	p.log.WithFields(logrus.Fields{"job_id": msg.JobID, "attempt": msg.Attempt}).Debug("job published")
	return nil
}

// QueueStats reports the ready message count and consumer count of the queue.
func (p *Publisher) QueueStats(ctx context.Context) (domain.QueueStats, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	sess, err := p.session(ctx)
	if err != nil {
		return domain.QueueStats{}, err
	}
	q, err := sess.ch.QueueDeclarePassive(p.cfg.Queue, true, false, false, false, nil)
	if err != nil {
		p.reset()
		return domain.QueueStats{}, brokerErr("inspect queue", err)
	}
	return domain.QueueStats{Queue: q.Name, Messages: q.Messages, Consumers: q.Consumers}, nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset()
	return nil
}

// session returns the open session, reconnecting with a short bounded
// backoff when the previous one is gone. Callers hold p.mu.
func (p *Publisher) session(ctx context.Context) (*session, error) {
	if p.sess != nil && !p.sess.conn.IsClosed() {
		return p.sess, nil
	}
	p.reset()
	b := retry.WithMaxRetries(2, retry.NewExponential(100*time.Millisecond))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		s, err := openSession(p.dial, p.cfg)
		if err != nil {
			return retry.RetryableError(err)
		}
		p.sess = s
		return nil
	})
	if err != nil {
		if !errors.Is(err, domain.ErrBrokerConnectivity) {
			err = brokerErr("connect", err)
		}
		p.log.WithError(err).Warn("broker unavailable")
		return nil, err
	}
	return p.sess, nil
}

func (p *Publisher) reset() {
	if p.sess != nil {
		p.sess.close()
		p.sess = nil
	}
}
