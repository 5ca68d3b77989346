package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/yungbote/huddle-backend/internal/platform/logger"
	"github.com/yungbote/huddle-backend/internal/realtime"
)

type amqpBus struct {
	log      *logger.Logger
	conn     *amqp.Connection
	exchange string

	mu    sync.Mutex
	pubCh *amqp.Channel
}

// NewAMQPBus declares a fanout exchange; each instance consumes through its
// own exclusive auto-delete queue.
func NewAMQPBus(log *logger.Logger, url, exchange string) (Bus, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, fmt.Errorf("missing AMQP_URL")
	}
	exchange = strings.TrimSpace(exchange)
	if exchange == "" {
		exchange = "huddle.realtime"
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare(exchange, "fanout", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, err
	}
	return &amqpBus{
		log:      log.With("service", "AMQPRealtimeBus"),
		conn:     conn,
		exchange: exchange,
		pubCh:    ch,
	}, nil
}

func (b *amqpBus) Publish(ctx context.Context, msg realtime.SSEMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pubCh == nil || b.pubCh.IsClosed() {
		ch, err := b.conn.Channel()
		if err != nil {
			return err
		}
		b.pubCh = ch
	}
	return b.pubCh.PublishWithContext(ctx, b.exchange, "", false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Transient,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now(),
		Body:         body,
	})
}

func (b *amqpBus) StartForwarder(ctx context.Context, onMsg func(m realtime.SSEMessage)) error {
	if onMsg == nil {
		return fmt.Errorf("onMsg callback required")
	}
	ch, err := b.conn.Channel()
	if err != nil {
		return err
	}
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		ch.Close()
		return err
	}
	if err := ch.QueueBind(q.Name, "", b.exchange, false, nil); err != nil {
		ch.Close()
		return err
	}
	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		ch.Close()
		return err
	}

	go func() {
		defer ch.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					b.log.Warn("amqp delivery channel closed")
					return
				}
				var msg realtime.SSEMessage
				if err := json.Unmarshal(d.Body, &msg); err != nil {
					b.log.Warn("bad amqp realtime payload", "error", err)
					continue
				}
				onMsg(msg)
			}
		}
	}()
	return nil
}

func (b *amqpBus) Close() error {
	b.mu.Lock()
	if b.pubCh != nil {
		_ = b.pubCh.Close()
	}
	b.mu.Unlock()
	return b.conn.Close()
}
