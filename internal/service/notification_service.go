package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/opsdesk/internal/events"
)

// NotificationGateway is the outbound side of the engine: it turns
// lifecycle events into notifications. Delivery is fire-and-forget; a
// failed send is logged and dropped, never propagated back to the
// operation that produced the event.
type NotificationGateway struct {
	dispatcher events.Dispatcher
	sender     NotificationSender
	logger     *zap.Logger
}

// NotificationSender delivers a single notification. Implementations live
// outside the engine (email, SMS, webhook relays); the default is a
// logging stub.
type NotificationSender interface {
	Send(ctx context.Context, eventType events.EventType, event events.Event) error
}

// NewNotificationGateway creates the gateway.
func NewNotificationGateway(dispatcher events.Dispatcher, sender NotificationSender, logger *zap.Logger) *NotificationGateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationGateway{dispatcher: dispatcher, sender: sender, logger: logger}
}

// RegisterHandlers subscribes the gateway to every lifecycle event.
func (n *NotificationGateway) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	events.SubscribeAll(n.dispatcher, n.handle)
}

func (n *NotificationGateway) handle(ctx context.Context, event events.Event) error {
	n.logger.Info("lifecycle event",
		zap.String("event_type", string(event.Type)),
		zap.String("tenant_id", event.TenantID),
		zap.String("ticket_id", event.TicketID),
		zap.Any("payload", event.Payload))

	if n.sender == nil {
		return nil
	}
	if err := n.sender.Send(ctx, event.Type, event); err != nil {
		n.logger.Warn("notification send failed",
			zap.String("event_type", string(event.Type)),
			zap.String("ticket_id", event.TicketID),
			zap.Error(err))
	}
	return nil
}

// LogSender is the default NotificationSender: it records the would-be
// notification at debug level.
type LogSender struct {
	Logger *zap.Logger
}

// Send logs the notification.
func (s LogSender) Send(ctx context.Context, eventType events.EventType, event events.Event) error {
	if s.Logger != nil {
		s.Logger.Debug("notification",
			zap.String("event_type", string(eventType)),
			zap.String("ticket_id", event.TicketID))
	}
	return nil
}
