package events

import (
	"context"

	"github.com/wolfman30/clinicops/pkg/logging"
)

// HandlerFunc adapts a function to DeliveryHandler.
type HandlerFunc func(ctx context.Context, entry OutboxEntry) error

func (f HandlerFunc) Handle(ctx context.Context, entry OutboxEntry) error {
	return f(ctx, entry)
}

// TypeRouter dispatches each entry to the handler registered for its type.
// Entries with no registered handler are acknowledged.
type TypeRouter struct {
	handlers map[string]DeliveryHandler
	logger   *logging.Logger
}

func NewTypeRouter(logger *logging.Logger) *TypeRouter {
	if logger == nil {
		logger = logging.Default()
	}
	return &TypeRouter{handlers: make(map[string]DeliveryHandler), logger: logger}
}

// Route registers h for eventType, replacing any previous handler.
func (r *TypeRouter) Route(eventType string, h DeliveryHandler) *TypeRouter {
	if h != nil {
		r.handlers[eventType] = h
	}
	return r
}

func (r *TypeRouter) Handle(ctx context.Context, entry OutboxEntry) error {
	h, ok := r.handlers[entry.Type]
	if !ok {
		r.logger.Debug("outbox event acknowledged", "event_id", entry.ID, "type", entry.Type, "aggregate_id", entry.AggregateID)
		return nil
	}
	return h.Handle(ctx, entry)
}

var _ DeliveryHandler = (*TypeRouter)(nil)
