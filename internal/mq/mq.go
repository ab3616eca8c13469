package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrDisabled is returned by a nil *MQ.
var ErrDisabled = errors.New("mq: messaging is disabled")

// OrderingAttribute names the message attribute that groups messages which
// must be delivered in publish order. Backends without ordering ignore it.
const OrderingAttribute = "ordering_key"

// Message is a payload delivered to subscribers, independent of the broker.
type Message struct {
	ID         string
	Data       []byte
	Attributes map[string]string
}

// Decode unmarshals the JSON payload of msg into v.
func (m Message) Decode(v any) error {
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("decode message %s: %w", m.ID, err)
	}
	return nil
}

// Handler processes a message. Returning an error nacks it for redelivery.
type Handler func(ctx context.Context, msg Message) error

// Backend is implemented by each supported broker.
type Backend interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
	Subscribe(ctx context.Context, channel string, handler Handler) error
	Close() error
}

// MQ is the broker handle shared by the server and CLI. A nil *MQ means
// messaging is disabled; its methods return ErrDisabled and Close is a no-op.
type MQ struct {
	name    string
	backend Backend
}

// New wraps backend.
func New(backend Backend) *MQ {
	return &MQ{name: "custom", backend: backend}
}

func newNamed(name string, backend Backend) *MQ {
	return &MQ{name: name, backend: backend}
}

// Backend names the broker in use, for logging.
func (m *MQ) Backend() string {
	if m == nil {
		return BackendNone
	}
	return m.name
}

func (m *MQ) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if m == nil {
		return "", ErrDisabled
	}
	return m.backend.Publish(ctx, channel, data, attrs)
}

// Subscribe blocks consuming channel until ctx is done or the broker fails.
func (m *MQ) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if m == nil {
		return ErrDisabled
	}
	return m.backend.Subscribe(ctx, channel, handler)
}

func (m *MQ) Close() error {
	if m == nil {
		return nil
	}
	return m.backend.Close()
}
