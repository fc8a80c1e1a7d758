package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"

	"github.com/um-programacion-ii/programacion-2-2025-trabajo-final-meschinidino/internal/model"
)

const dialTimeout = 5 * time.Second

// SalePublisher publishes a SaleConfirmedEvent for every confirmed sale.
// The broker channel is opened lazily and reopened after a failure.
type SalePublisher struct {
	url   string
	queue string
	now   func() time.Time
	dial  func(url string) (*amqp.Connection, error)

	// lock guards conn and ch; waiting on it honours the caller's context.
	lock chan struct{}
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewSalePublisher returns a publisher for queue on the broker at url.
func NewSalePublisher(url, queue string) *SalePublisher {
	return &SalePublisher{
		url:   url,
		queue: queue,
		now:   func() time.Time { return time.Now().UTC() },
		dial: func(url string) (*amqp.Connection, error) {
			return amqp.DialConfig(url, amqp.Config{Dial: amqp.DefaultDial(dialTimeout)})
		},
		lock: make(chan struct{}, 1),
	}
}

// SaleConfirmed publishes the sale as a persistent message on the default
// exchange, routed to the queue.  It gives up when ctx is done, including
// while another publish holds the connection.
func (p *SalePublisher) SaleConfirmed(ctx context.Context, sale *model.Sale) error {
	body, err := json.Marshal(NewSaleConfirmedEvent(sale, p.now()))
	if err != nil {
		return fmt.Errorf("marshal sale event: %w", err)
	}

	select {
	case p.lock <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("publish sale %d: %w", sale.ID, ctx.Err())
	}
	defer func() { <-p.lock }()
	ch, err := p.channel(ctx)
	if err != nil {
		return err
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    p.now(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", p.queue, false, false, pub); err != nil {
		p.reset()
		return fmt.Errorf("publish sale %d: %w", sale.ID, err)
	}
	log.Debug().Int64("sale_id", sale.ID).Str("queue", p.queue).Msg("sale-publisher: published")
	return nil
}

// channel returns the open channel, dialing when needed.  Callers hold lock.
func (p *SalePublisher) channel(ctx context.Context) (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.reset()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	conn, err := p.dial(p.url)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("channel open: %w", err)
	}
	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("queue declare: %w", err)
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

func (p *SalePublisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.conn, p.ch = nil, nil
}

// Close releases the broker connection.
func (p *SalePublisher) Close() error {
	p.lock <- struct{}{}
	defer func() { <-p.lock }()
	p.reset()
	return nil
}
