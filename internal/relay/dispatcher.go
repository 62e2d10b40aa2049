package relay

import (
	"encoding/json"

	"go.uber.org/zap"
)

// Delivery is the per-recipient outcome of one broadcast. A non-nil Err
// means that recipient missed the event; it never aborts the broadcast.
type Delivery struct {
	ConnectionID string
	Err          error
}

// Dispatcher fans outbound events out to the connections in a room.
// Delivery is best-effort: individual failures are logged and recorded,
// never propagated to the sender.
type Dispatcher struct {
	registry *Registry
	logger   *zap.Logger
}

// NewDispatcher creates a Dispatcher over the given registry.
//
// Precondition: registry and logger must be non-nil.
func NewDispatcher(registry *Registry, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		logger:   logger,
	}
}

// Broadcast delivers payload under the named event to every connection
// bound to roomID except excludeConnID. An empty excludeConnID delivers
// to the whole room.
//
// Precondition: payload must be JSON-marshalable.
// Postcondition: Returns one Delivery per targeted connection.
func (d *Dispatcher) Broadcast(roomID, excludeConnID, event string, payload any) []Delivery {
	data, err := json.Marshal(payload)
	if err != nil {
		d.logger.Error("marshalling broadcast payload",
			zap.String("event", event),
			zap.String("room_id", roomID),
			zap.Error(err),
		)
		return nil
	}
	env := Envelope{Event: event, Data: data}

	connIDs := d.registry.ConnectionsInRoom(roomID)
	deliveries := make([]Delivery, 0, len(connIDs))
	for _, connID := range connIDs {
		if connID == excludeConnID {
			continue
		}
		sink, ok := d.registry.Sink(connID)
		if !ok {
			// Connection unregistered between listing and lookup.
			continue
		}
		sendErr := sink.Send(env)
		deliveries = append(deliveries, Delivery{ConnectionID: connID, Err: sendErr})
		if sendErr != nil {
			d.logger.Debug("broadcast delivery failed",
				zap.String("event", event),
				zap.String("room_id", roomID),
				zap.String("connection_id", connID),
				zap.Error(sendErr),
			)
		}
	}
	return deliveries
}
