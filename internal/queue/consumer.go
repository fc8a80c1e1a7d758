package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"

	"github.com/um-programacion-ii/programacion-2-2025-trabajo-final-meschinidino/internal/service"
)

const (
	prefetch       = 50
	minBackoff     = time.Second
	maxBackoff     = 30 * time.Second
	messageTimeout = 30 * time.Second
)

// ChangeConsumer applies the event change notifications published on a
// durable queue.  Deliveries are acknowledged manually once applied.
type ChangeConsumer struct {
	url   string
	queue string
	sync  EventSyncer
}

// NewChangeConsumer returns a consumer for queue on the broker at url.
func NewChangeConsumer(url, queue string, sync EventSyncer) *ChangeConsumer {
	return &ChangeConsumer{url: url, queue: queue, sync: sync}
}

// Run consumes until ctx is cancelled, reconnecting with exponential
// backoff whenever the broker connection drops.  It returns nil on
// cancellation.
func (c *ChangeConsumer) Run(ctx context.Context) error {
	backoff := minBackoff
	for {
		if ctx.Err() != nil {
			return nil
		}
		conn, err := amqp.Dial(c.url)
		if err != nil {
			log.Warn().Err(err).Dur("retry_in", backoff).Msg("change-consumer: failed to dial broker")
			if !sleep(ctx, backoff) {
				return nil
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		backoff = minBackoff

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil
		}
		log.Warn().Err(err).Msg("change-consumer: consume loop ended, reconnecting")
		if !sleep(ctx, 2*time.Second) {
			return nil
		}
	}
}

func (c *ChangeConsumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(prefetch, 0, false); err != nil {
		log.Warn().Err(err).Msg("change-consumer: set QoS failed")
	}
	if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}
	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	log.Info().Str("queue", c.queue).Msg("change-consumer: consuming")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case amqpErr := <-closed:
			if amqpErr != nil {
				return amqpErr
			}
			return errors.New("connection closed")
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			c.handle(ctx, d)
		}
	}
}

// handle applies one delivery and settles it.
func (c *ChangeConsumer) handle(ctx context.Context, d amqp.Delivery) {
	mctx, cancel := context.WithTimeout(ctx, messageTimeout)
	defer cancel()

	err := HandleChange(mctx, c.sync, d.Body)
	switch settle(err, d.Redelivered) {
	case settleAck:
		_ = d.Ack(false)
	case settleDrop:
		log.Error().Err(err).Uint64("tag", d.DeliveryTag).Str("body", truncate(d.Body)).Msg("change-consumer: dropping notification")
		_ = d.Nack(false, false)
	case settleRequeue:
		log.Warn().Err(err).Uint64("tag", d.DeliveryTag).Msg("change-consumer: notification failed, requeueing")
		_ = d.Nack(false, true)
	}
}

type settlement int

const (
	settleAck settlement = iota
	settleDrop
	settleRequeue
)

// settle decides what happens to a delivery after it was handled.
// Payloads that can never apply are dropped; other failures get one more
// chance through a requeue.
func settle(err error, redelivered bool) settlement {
	if err == nil {
		return settleAck
	}
	var ve *service.ValidationError
	if errors.Is(err, ErrUndecodable) || errors.As(err, &ve) || redelivered {
		return settleDrop
	}
	return settleRequeue
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func truncate(b []byte) string {
	const limit = 512
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}
