package rabbitmq

import (
	"context"
	"errors"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

type fakeBroker struct {
	mu        sync.Mutex
	failDials int
	dials     int
	conns     []*fakeConn
	queue     amqp.Queue
	published []amqp.Publishing
	acked     []uint64
	// deliveries handed to the next consumer.
	next chan amqp.Delivery
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{queue: amqp.Queue{Name: "scan_jobs"}}
}

func (b *fakeBroker) dial(string) (connection, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dials++
	if b.failDials > 0 {
		b.failDials--
		return nil, errors.New("connection refused")
	}
	c := &fakeConn{broker: b}
	b.conns = append(b.conns, c)
	return c, nil
}

// failNext makes the next n dials fail.
func (b *fakeBroker) failNext(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failDials = n
}

func (b *fakeBroker) dialCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dials
}

func (b *fakeBroker) lastConn() *fakeConn {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.conns) == 0 {
		return nil
	}
	return b.conns[len(b.conns)-1]
}

func (b *fakeBroker) ackedTags() []uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]uint64(nil), b.acked...)
}

func (b *fakeBroker) Ack(tag uint64, multiple bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.acked = append(b.acked, tag)
	return nil
}

func (b *fakeBroker) Nack(uint64, bool, bool) error { return nil }
func (b *fakeBroker) Reject(uint64, bool) error     { return nil }

func (b *fakeBroker) delivery(tag uint64, body string) amqp.Delivery {
	return amqp.Delivery{Acknowledger: b, DeliveryTag: tag, Body: []byte(body)}
}

type fakeConn struct {
	broker *fakeBroker
	mu     sync.Mutex
	closed bool
	notify chan *amqp.Error
	ch     *fakeChannel
}

func (c *fakeConn) Channel() (channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ch = &fakeChannel{conn: c}
	return c.ch, nil
}

func (c *fakeConn) NotifyClose(ch chan *amqp.Error) chan *amqp.Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notify = ch
	return ch
}

func (c *fakeConn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// drop simulates the broker going away.
func (c *fakeConn) drop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.notify != nil {
		c.notify <- &amqp.Error{Code: amqp.ConnectionForced, Reason: "broker restart"}
	}
}

type fakeChannel struct {
	conn     *fakeConn
	prefetch int
	durable  bool
}

func (ch *fakeChannel) QueueDeclare(name string, durable, _, _, _ bool, _ amqp.Table) (amqp.Queue, error) {
	ch.durable = durable
	return amqp.Queue{Name: name}, nil
}

func (ch *fakeChannel) QueueDeclarePassive(name string, _, _, _, _ bool, _ amqp.Table) (amqp.Queue, error) {
	b := ch.conn.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	q := b.queue
	q.Name = name
	return q, nil
}

func (ch *fakeChannel) Qos(prefetchCount, _ int, _ bool) error {
	ch.prefetch = prefetchCount
	return nil
}

func (ch *fakeChannel) Consume(string, string, bool, bool, bool, bool, amqp.Table) (<-chan amqp.Delivery, error) {
	b := ch.conn.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.next, nil
}

func (ch *fakeChannel) PublishWithContext(_ context.Context, _, _ string, _, _ bool, msg amqp.Publishing) error {
	if ch.conn.IsClosed() {
		return amqp.ErrClosed
	}
	b := ch.conn.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, msg)
	return nil
}

func (ch *fakeChannel) NotifyClose(c chan *amqp.Error) chan *amqp.Error { return c }

func (ch *fakeChannel) Close() error { return nil }
