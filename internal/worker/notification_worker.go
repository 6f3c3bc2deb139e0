package worker

import (
	"github.com/spec-kit/opsdesk/internal/events"
	"github.com/spec-kit/opsdesk/internal/service"
)

// StartNotificationWorker wires the notification gateway and the redis
// event relay onto the dispatcher.
func StartNotificationWorker(gateway *service.NotificationGateway, relay *events.RedisPublisher, dispatcher events.Dispatcher) {
	if gateway != nil {
		gateway.RegisterHandlers()
	}
	if relay != nil {
		relay.Register(dispatcher)
	}
}
