package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/wolfman30/clinicops/internal/events"
	"github.com/wolfman30/clinicops/pkg/logging"
)

// OutboxHandler delivers notification intents from the outbox. Other event
// types are acknowledged without action.
type OutboxHandler struct {
	dispatcher Dispatcher
	logger     *logging.Logger
}

func NewOutboxHandler(dispatcher Dispatcher, logger *logging.Logger) *OutboxHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &OutboxHandler{dispatcher: dispatcher, logger: logger}
}

func (h *OutboxHandler) Handle(ctx context.Context, entry events.OutboxEntry) error {
	if entry.Type != events.TypeNotificationRequested {
		h.logger.Debug("notify: event acknowledged", "event_id", entry.ID, "type", entry.Type, "aggregate_id", entry.AggregateID)
		return nil
	}

	var evt events.NotificationRequestedV1
	if err := json.Unmarshal(entry.Payload, &evt); err != nil {
		// Undecodable payloads are acknowledged and dropped.
		h.logger.Error("notify: undecodable notification dropped", "event_id", entry.ID, "error", err)
		return nil
	}

	id, err := h.dispatcher.Send(ctx, NotificationFromEvent(evt))
	if err != nil {
		return fmt.Errorf("notify: deliver %s to subject %s: %w", evt.EventID, evt.SubjectID, err)
	}
	h.logger.Info("notify: notification delivered",
		"delivery_id", id,
		"rule_id", evt.RuleID,
		"subject_id", evt.SubjectID,
		"channel", evt.Channel,
		"variant", evt.Variant,
	)
	return nil
}

var _ events.DeliveryHandler = (*OutboxHandler)(nil)
