// Figure - Photobooth Ticket Appliance
// Copyright 2026 Postcard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Postcard/figure-raspbian

package websocket

import (
	"context"
	"errors"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/Postcard/figure-raspbian-sub000/internal/events"
	"github.com/Postcard/figure-raspbian-sub000/internal/logging"
)

// Bridge forwards bus events to the hub.
type Bridge struct {
	bus *events.Bus
	hub *Hub
}

func NewBridge(bus *events.Bus, hub *Hub) *Bridge {
	return &Bridge{bus: bus, hub: hub}
}

func forward[T any](hub *Hub, messageType string) func(context.Context, *message.Message) error {
	return func(_ context.Context, msg *message.Message) error {
		payload, err := events.Decode[T](msg)
		if err != nil {
			return err
		}
		hub.Broadcast(messageType, payload)
		return nil
	}
}

// Run forwards events until ctx is done.
func (b *Bridge) Run(ctx context.Context) error {
	handlers := []*events.Handler{
		b.bus.NewHandler(events.TopicPipelineState).Handle(forward[events.StateChanged](b.hub, MessageTypeState)),
		b.bus.NewHandler(events.TopicTicketPrinted).Handle(forward[events.TicketPrinted](b.hub, MessageTypeTicketPrinted)),
		b.bus.NewHandler(events.TopicPaperLevel).Handle(forward[events.PaperLevel](b.hub, MessageTypePaperLevel)),
		b.bus.NewHandler(events.TopicSyncCompleted).Handle(forward[events.SyncCompleted](b.hub, MessageTypeSyncCompleted)),
	}

	var wg sync.WaitGroup
	errs := make([]error, len(handlers))
	for i, h := range handlers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = h.Run(ctx)
		}()
	}
	wg.Wait()

	logging.Info().Msg("Websocket bridge stopped")
	if err := ctx.Err(); err != nil {
		return err
	}
	return errors.Join(errs...)
}
