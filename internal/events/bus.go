// Figure - Photobooth Ticket Appliance
// Copyright 2026 Postcard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Postcard/figure-raspbian

package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"

	"github.com/Postcard/figure-raspbian-sub000/internal/logging"
)

// ErrBusClosed is returned by Publish after Close.
var ErrBusClosed = errors.New("event bus closed")

// Publisher is the publishing side of the bus.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload interface{}) error
}

// Bus is an in-memory pub/sub backed by watermill's gochannel.
type Bus struct {
	pubsub *gochannel.GoChannel
	logger watermill.LoggerAdapter

	mu     sync.RWMutex
	closed bool
}

// NewBus creates a bus whose subscribers buffer up to buffer messages.
func NewBus(buffer int64) *Bus {
	logger := watermill.NewSlogLogger(logging.NewSlogLoggerFor("events"))
	return &Bus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: buffer,
		}, logger),
		logger: logger,
	}
}

// Publish marshals payload to JSON and publishes it on topic. The
// correlation id of ctx travels in the message metadata.
func (b *Bus) Publish(ctx context.Context, topic string, payload interface{}) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrBusClosed
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", topic, err)
	}
	msg := message.NewMessage(watermill.NewUUID(), data)
	if id := logging.CorrelationIDFromContext(ctx); id != "" {
		msg.Metadata.Set("correlation_id", id)
	}
	return b.pubsub.Publish(topic, msg)
}

// Subscribe returns the message stream of topic until ctx is done.
func (b *Bus) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return b.pubsub.Subscribe(ctx, topic)
}

// Close stops the bus and closes every subscription.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.pubsub.Close()
}

// Decode unmarshals a message payload.
func Decode[T any](msg *message.Message) (*T, error) {
	var v T
	if err := json.Unmarshal(msg.Payload, &v); err != nil {
		return nil, fmt.Errorf("decode message %s: %w", msg.UUID, err)
	}
	return &v, nil
}

// MessageContext returns ctx carrying the message's correlation id.
func MessageContext(ctx context.Context, msg *message.Message) context.Context {
	if id := msg.Metadata.Get("correlation_id"); id != "" {
		return logging.ContextWithCorrelationID(ctx, id)
	}
	return ctx
}

// Handler consumes one topic.
type Handler struct {
	bus     *Bus
	topic   string
	handler func(ctx context.Context, msg *message.Message) error
}

// NewHandler creates a handler for topic.
func (b *Bus) NewHandler(topic string) *Handler {
	return &Handler{bus: b, topic: topic}
}

// Handle sets the processing function. Errors are logged; the message is
// acked either way since in-process redelivery would only repeat them.
func (h *Handler) Handle(fn func(ctx context.Context, msg *message.Message) error) *Handler {
	h.handler = fn
	return h
}

// Run processes messages until ctx is done or the bus closes.
func (h *Handler) Run(ctx context.Context) error {
	messages, err := h.bus.Subscribe(ctx, h.topic)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", h.topic, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			h.process(ctx, msg)
		}
	}
}

func (h *Handler) process(ctx context.Context, msg *message.Message) {
	defer msg.Ack()
	if h.handler == nil {
		return
	}
	if err := h.handler(MessageContext(ctx, msg), msg); err != nil {
		h.bus.logger.Error("Message processing failed", err, watermill.LogFields{
			"message_uuid": msg.UUID,
			"topic":        h.topic,
		})
	}
}

// Discard is a Publisher that drops everything.
type Discard struct{}

// Publish implements Publisher.
func (Discard) Publish(context.Context, string, interface{}) error { return nil }
