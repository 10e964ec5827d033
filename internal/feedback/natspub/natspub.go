// Package natspub publishes recorded feedback to NATS as JSON, with the
// OpenTelemetry trace context carried in message headers.
package natspub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"

	"github.com/MrWong99/renoquote/internal/feedback"
)

// DefaultSubject is the subject feedback events are published on.
const DefaultSubject = "renoquote.feedback.recorded"

// Event is the payload of a feedback message.
type Event struct {
	Type  string         `json:"type"`
	Entry feedback.Entry `json:"entry"`
}

// EventType is the Type of every [Event].
const EventType = "FeedbackRecorded"

// headerCarrier adapts nats.Msg headers for OTel propagation.
type headerCarrier nats.Msg

func (c *headerCarrier) Get(key string) string {
	if c.Header == nil {
		return ""
	}
	return c.Header.Get(key)
}

func (c *headerCarrier) Set(key, val string) {
	if c.Header == nil {
		c.Header = make(nats.Header)
	}
	c.Header.Set(key, val)
}

func (c *headerCarrier) Keys() []string {
	if c.Header == nil {
		return nil
	}
	keys := make([]string, 0, len(c.Header))
	for k := range c.Header {
		keys = append(keys, k)
	}
	return keys
}

// Publisher implements [feedback.Publisher] on a NATS connection.
type Publisher struct {
	nc      *nats.Conn
	subject string
	owned   bool
}

var _ feedback.Publisher = (*Publisher)(nil)

// New returns a publisher on an existing connection. An empty subject uses
// [DefaultSubject]. The caller keeps ownership of nc.
func New(nc *nats.Conn, subject string) *Publisher {
	if subject == "" {
		subject = DefaultSubject
	}
	return &Publisher{nc: nc, subject: subject}
}

// Connect dials url and returns a publisher that closes the connection on
// [Publisher.Close].
func Connect(url, subject string) (*Publisher, error) {
	nc, err := nats.Connect(url, nats.Name("renoquote"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("natspub: connect %s: %w", url, err)
	}
	p := New(nc, subject)
	p.owned = true
	return p, nil
}

// Subject returns the subject events are published on.
func (p *Publisher) Subject() string { return p.subject }

// Publish implements [feedback.Publisher].
func (p *Publisher) Publish(ctx context.Context, e feedback.Entry) error {
	if p.nc == nil {
		return errors.New("natspub: no connection")
	}
	data, err := json.Marshal(Event{Type: EventType, Entry: e})
	if err != nil {
		return fmt.Errorf("natspub: marshal: %w", err)
	}
	msg := &nats.Msg{Subject: p.subject, Data: data}
	otel.GetTextMapPropagator().Inject(ctx, (*headerCarrier)(msg))
	if err := p.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("natspub: publish: %w", err)
	}
	return nil
}

// Close drains the connection if the publisher opened it.
func (p *Publisher) Close() error {
	if !p.owned || p.nc == nil {
		return nil
	}
	return p.nc.Drain()
}

// Subscribe decodes events on subject and passes them to handler with the
// publisher's trace context. Malformed messages are dropped.
func Subscribe(nc *nats.Conn, subject string, handler func(context.Context, Event)) (*nats.Subscription, error) {
	if subject == "" {
		subject = DefaultSubject
	}
	return nc.Subscribe(subject, func(msg *nats.Msg) {
		var ev Event
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			return
		}
		ctx := otel.GetTextMapPropagator().Extract(context.Background(), (*headerCarrier)(msg))
		handler(ctx, ev)
	})
}
