package intake

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPConfig configures the AMQP-backed intake gateway. The clinic's mail
// bridge publishes one message per inbound patient email to Queue.
type AMQPConfig struct {
	URL      string
	Queue    string
	Prefetch int // 0 => 10
}

// AMQPGateway consumes an AMQP queue into an internal buffer; Poll drains
// the buffer without blocking on the broker. Deliveries are acked once they
// are buffered, so a message handed to the engine is never redelivered.
type AMQPGateway struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	log   *slog.Logger
	queue string

	mu      sync.Mutex
	pending []Message
	connErr error
}

// wireMessage is the JSON payload the mail bridge publishes. Bodies that do
// not parse as JSON are accepted verbatim as plain text.
type wireMessage struct {
	From       string    `json:"from"`
	Name       string    `json:"name"`
	Body       string    `json:"body"`
	ReceivedAt time.Time `json:"received_at"`
}

// DialAMQP connects to the broker, declares the intake queue, and starts
// consuming into the gateway buffer.
func DialAMQP(cfg AMQPConfig, logger *slog.Logger) (*AMQPGateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}

	prefetch := cfg.Prefetch
	if prefetch == 0 {
		prefetch = 10
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp qos: %w", err)
	}

	q, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, nil)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp queue declare: %w", err)
	}

	deliveries, err := ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp consume: %w", err)
	}

	g := &AMQPGateway{
		conn:  conn,
		ch:    ch,
		log:   logger,
		queue: q.Name,
	}

	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	go g.consume(deliveries, closed)

	logger.Info("intake gateway consuming", slog.String("queue", q.Name))
	return g, nil
}

func (g *AMQPGateway) consume(deliveries <-chan amqp.Delivery, closed <-chan *amqp.Error) {
	for {
		select {
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			g.buffer(d)
		case err, ok := <-closed:
			g.mu.Lock()
			if ok && err != nil {
				g.connErr = err
			} else {
				g.connErr = fmt.Errorf("amqp connection closed")
			}
			g.mu.Unlock()
			return
		}
	}
}

func (g *AMQPGateway) buffer(d amqp.Delivery) {
	msg := messageFromDelivery(d)

	g.mu.Lock()
	g.pending = append(g.pending, msg)
	g.mu.Unlock()

	if err := d.Ack(false); err != nil {
		g.log.Error("intake ack failed", slog.Any("error", err))
	}
}

func messageFromDelivery(d amqp.Delivery) Message {
	var wire wireMessage
	if err := json.Unmarshal(d.Body, &wire); err == nil && wire.From != "" {
		received := wire.ReceivedAt
		if received.IsZero() {
			received = d.Timestamp
		}
		return Message{
			Sender:     wire.From,
			Name:       wire.Name,
			Body:       wire.Body,
			ReceivedAt: received,
		}
	}

	// Not a bridge payload: take the body as plain text and the broker
	// metadata for identity and receipt time.
	received := d.Timestamp
	if received.IsZero() {
		received = time.Now()
	}
	return Message{
		Sender:     d.ReplyTo,
		Body:       string(d.Body),
		ReceivedAt: received,
	}
}

// Poll drains the buffered messages. A broken broker connection surfaces as
// an IntakeError on every poll until the gateway is re-dialed; the engine
// treats that as a routine, recoverable channel failure.
func (g *AMQPGateway) Poll(ctx context.Context) ([]Message, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.connErr != nil {
		return nil, &IntakeError{Err: g.connErr}
	}
	msgs := g.pending
	g.pending = nil
	return msgs, nil
}

// Close tears down the channel and connection.
func (g *AMQPGateway) Close() error {
	_ = g.ch.Close()
	return g.conn.Close()
}
