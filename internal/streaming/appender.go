package streaming

import (
	"context"
	"time"

	"github.com/rendis/blueprint/internal/store"
)

// Appender matches the compiler's event sink.
type Appender interface {
	AppendEvent(ctx context.Context, event *store.Event) error
}

// PublishingAppender publishes every event to a hub after handing it to next.
// next may be nil; its error is returned, the hub's is not.
type PublishingAppender struct {
	hub  EventHub
	next Appender
}

// NewPublishingAppender wraps next so its events also reach hub subscribers.
func NewPublishingAppender(hub EventHub, next Appender) *PublishingAppender {
	return &PublishingAppender{hub: hub, next: next}
}

// AppendEvent records the event downstream and then publishes it.
func (a *PublishingAppender) AppendEvent(ctx context.Context, event *store.Event) error {
	var err error
	if a.next != nil {
		err = a.next.AppendEvent(ctx, event)
	}

	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_ = a.hub.Publish(context.WithoutCancel(ctx), StreamEvent{
		CompileID: event.CompileID,
		NodeID:    event.NodeID,
		EventType: event.Type,
		Payload:   event.Payload,
		Timestamp: ts,
	})
	return err
}
