package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Sink delivers a serialized batch to the remote ingestion endpoint. Any
// returned error is treated uniformly as "flush failed": the queue is left
// untouched and the circuit breaker counts the failure.
type Sink interface {
	Deliver(ctx context.Context, batch Batch) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, batch Batch) error

func (f SinkFunc) Deliver(ctx context.Context, batch Batch) error {
	return f(ctx, batch)
}

// HTTPSink posts batches to an activity ingestion API.
type HTTPSink struct {
	url    string
	token  func() string
	client *http.Client
}

// NewHTTPSink builds a sink for the given ingestion URL. token supplies the
// bearer access token per delivery; pass nil for unauthenticated endpoints.
func NewHTTPSink(url string, token func() string) *HTTPSink {
	return &HTTPSink{
		url:    url,
		token:  token,
		client: &http.Client{},
	}
}

func (s *HTTPSink) Deliver(ctx context.Context, batch Batch) error {
	body, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("encode batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	// Retried batches keep their events, not their key: each delivery attempt
	// is a fresh request; server-side dedup is per successful accept.
	req.Header.Set("X-Idempotency-Key", uuid.NewString())
	if s.token != nil {
		if tok := s.token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ingest returned status %d", resp.StatusCode)
	}
	return nil
}

// AMQPSink publishes batches straight to a topic exchange. For trusted
// in-datacenter producers that skip the HTTP front door.
type AMQPSink struct {
	conn       *amqp.Connection
	ch         *amqp.Channel
	exchange   string
	routingKey string
}

func NewAMQPSink(url, exchange, routingKey string) (*AMQPSink, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("exchange declare: %w", err)
	}
	return &AMQPSink{conn: conn, ch: ch, exchange: exchange, routingKey: routingKey}, nil
}

func (s *AMQPSink) Deliver(ctx context.Context, batch Batch) error {
	body, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("encode batch: %w", err)
	}
	return s.ch.PublishWithContext(ctx, s.exchange, s.routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		MessageId:    uuid.NewString(),
	})
}

func (s *AMQPSink) Close() error {
	if err := s.ch.Close(); err != nil {
		s.conn.Close()
		return err
	}
	return s.conn.Close()
}
