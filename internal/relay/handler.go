package relay

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

// Handler is the session protocol handler: it owns the per-connection
// Unbound → Bound state machine and applies each inbound event to the
// store before deciding its broadcast scope. Every failure mode is
// recover-locally: drop the event, keep serving.
type Handler struct {
	registry   *Registry
	store      *Store
	dispatcher *Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

// NewHandler creates a Handler over the given collaborators.
//
// Precondition: all arguments must be non-nil.
func NewHandler(registry *Registry, store *Store, dispatcher *Dispatcher, logger *zap.Logger) *Handler {
	return &Handler{
		registry:   registry,
		store:      store,
		dispatcher: dispatcher,
		logger:     logger,
		now:        time.Now,
	}
}

// Connect admits a new transport connection and returns its connection ID.
// The connection starts Unbound; only a join-room event binds it.
//
// Precondition: sink must be non-nil.
func (h *Handler) Connect(sink Sink) string {
	connID := h.registry.Register(sink)
	h.logger.Debug("connection registered",
		zap.String("connection_id", connID),
		zap.Int("connections", h.registry.ConnectionCount()),
	)
	return connID
}

// HandleEvent applies one inbound event for a connection. Unrecognized
// events, events from unbound connections, and malformed payloads are
// dropped silently per the best-effort contract.
func (h *Handler) HandleEvent(connID, event string, data json.RawMessage) {
	switch event {
	case EventJoinRoom:
		h.handleJoin(connID, data)
	case EventUserTransform:
		h.handleUserTransform(connID, data)
	case EventObjectTransform, EventChatMessage, EventAddObject, EventRemoveObject:
		h.relayVerbatim(connID, event, data)
	default:
		h.logger.Debug("dropping unknown event",
			zap.String("connection_id", connID),
			zap.String("event", event),
		)
	}
}

// Disconnect finalizes a closed connection: leaves its room, unregisters
// it, and announces the departure to the remaining peers.
func (h *Handler) Disconnect(connID string) {
	binding, wasBound := h.registry.Unregister(connID)
	if !wasBound {
		h.logger.Debug("connection closed before joining",
			zap.String("connection_id", connID),
		)
		return
	}

	roomBecameEmpty := h.store.Leave(binding.RoomID, binding.UserID)
	h.dispatcher.Broadcast(binding.RoomID, connID, EventUserLeft, UserLeftPayload{
		UserID:    binding.UserID,
		Timestamp: h.now().UnixMilli(),
	})

	h.logger.Info("user left room",
		zap.String("connection_id", connID),
		zap.String("user_id", binding.UserID),
		zap.String("room_id", binding.RoomID),
		zap.Bool("room_deleted", roomBecameEmpty),
	)
}

func (h *Handler) handleJoin(connID string, data json.RawMessage) {
	if _, bound := h.registry.Binding(connID); bound {
		// Room switching is unsupported: the first binding is final.
		h.logger.Debug("ignoring join from already-bound connection",
			zap.String("connection_id", connID),
		)
		return
	}

	var p JoinPayload
	if err := json.Unmarshal(data, &p); err != nil {
		h.logger.Debug("dropping malformed join",
			zap.String("connection_id", connID),
			zap.Error(err),
		)
		return
	}
	if p.UserID == "" || p.RoomID == "" {
		h.logger.Debug("dropping incomplete join",
			zap.String("connection_id", connID),
			zap.String("user_id", p.UserID),
			zap.String("room_id", p.RoomID),
		)
		return
	}

	position := vecOrZero(p.Position)
	rotation := vecOrZero(p.Rotation)

	if !h.registry.Identify(connID, p.UserID, p.RoomID) {
		// Connection vanished during a shutdown race.
		return
	}

	isNewRoom, existing := h.store.Join(p.RoomID, p.UserID, p.Username, position, rotation)

	// Initial snapshot goes to the joiner only, never broadcast.
	snapshot := make([]MemberSnapshot, 0, len(existing))
	for _, m := range existing {
		snapshot = append(snapshot, MemberSnapshot{
			UserID:   m.UserID,
			Username: m.Username,
			Position: m.Position,
			Rotation: m.Rotation,
		})
	}
	h.sendTo(connID, EventExistingUsers, snapshot)

	h.dispatcher.Broadcast(p.RoomID, connID, EventUserJoined, UserJoinedPayload{
		UserID:    p.UserID,
		Username:  p.Username,
		Position:  position,
		Timestamp: h.now().UnixMilli(),
	})

	h.logger.Info("user joined room",
		zap.String("connection_id", connID),
		zap.String("user_id", p.UserID),
		zap.String("username", p.Username),
		zap.String("room_id", p.RoomID),
		zap.Bool("new_room", isNewRoom),
		zap.Int("room_members", h.store.MemberCount(p.RoomID)),
	)
}

func (h *Handler) handleUserTransform(connID string, data json.RawMessage) {
	binding, bound := h.registry.Binding(connID)
	if !bound {
		h.logger.Debug("dropping transform from unbound connection",
			zap.String("connection_id", connID),
		)
		return
	}

	var p TransformPayload
	if err := json.Unmarshal(data, &p); err != nil {
		h.logger.Debug("dropping malformed transform",
			zap.String("connection_id", connID),
			zap.Error(err),
		)
		return
	}

	if !h.store.UpdateTransform(binding.RoomID, binding.UserID, p.Position, p.Rotation) {
		// Stale: the member already left the room. No mutation, no broadcast.
		h.logger.Debug("dropping stale transform",
			zap.String("connection_id", connID),
			zap.String("user_id", binding.UserID),
			zap.String("room_id", binding.RoomID),
		)
		return
	}

	h.dispatcher.Broadcast(binding.RoomID, connID, EventUserTransform, TransformPayload{
		UserID:   binding.UserID,
		Position: p.Position,
		Rotation: p.Rotation,
	})
}

// relayVerbatim forwards an opaque payload to the sender's room peers.
// The relay never inspects scene-graph content.
func (h *Handler) relayVerbatim(connID, event string, data json.RawMessage) {
	binding, bound := h.registry.Binding(connID)
	if !bound {
		h.logger.Debug("dropping event from unbound connection",
			zap.String("connection_id", connID),
			zap.String("event", event),
		)
		return
	}
	h.dispatcher.Broadcast(binding.RoomID, connID, event, data)
}

// sendTo delivers an event directly to one connection, outside broadcast
// scoping. Failures are logged and swallowed.
func (h *Handler) sendTo(connID, event string, payload any) {
	sink, ok := h.registry.Sink(connID)
	if !ok {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("marshalling direct payload",
			zap.String("event", event),
			zap.Error(err),
		)
		return
	}
	if err := sink.Send(Envelope{Event: event, Data: data}); err != nil {
		h.logger.Debug("direct delivery failed",
			zap.String("connection_id", connID),
			zap.String("event", event),
			zap.Error(err),
		)
	}
}

func vecOrZero(v *Vec3) Vec3 {
	if v == nil {
		return Vec3{}
	}
	return *v
}
