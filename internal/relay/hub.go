// Package relay coordinates connection lifecycle and event dispatch for the
// presence relay via the Hub type. The hub's run loop is the single goroutine
// that mutates the registries, so every event handler runs to completion
// without interleaving with other events.
package relay

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type inboundFrame struct {
	client *Client
	raw    []byte
}

// Hub owns the connection registry, presence directory, and room membership
// index, and routes every inbound event to its deliveries. Delivery is
// best-effort: a frame that cannot be queued for a recipient is dropped and
// the recipient's connection is torn down.
type Hub struct {
	registry *Registry
	presence *Presence
	rooms    *Rooms

	register   chan *Client
	unregister chan *Client
	inbound    chan inboundFrame

	startedAt time.Time
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewHub creates a Hub with empty registries, ready to run.
func NewHub() *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		registry:   NewRegistry(),
		presence:   NewPresence(),
		rooms:      NewRooms(),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inboundFrame),
		startedAt:  time.Now(),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Presence returns the presence directory for read-only introspection.
func (h *Hub) Presence() *Presence {
	return h.presence
}

// Rooms returns the room membership index for read-only introspection.
func (h *Hub) Rooms() *Rooms {
	return h.rooms
}

// Registry returns the connection registry for read-only introspection.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Uptime reports how long the hub has been alive.
func (h *Hub) Uptime() time.Duration {
	return time.Since(h.startedAt)
}

// Run starts the hub's main event loop, handling client registration,
// unregistration, and event dispatch. It should be called in its own
// goroutine as it runs until Shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				logrus.Warn("Received nil client registration; skipping")
				continue
			}
			h.registry.Add(client)
			if client.conn != nil {
				h.wg.Add(2)
				go func() {
					defer h.wg.Done()
					client.writePump()
				}()
				go func() {
					defer h.wg.Done()
					client.readPump()
				}()
			}

		case client := <-h.unregister:
			h.teardownClient(client)

		case frame := <-h.inbound:
			h.dispatch(frame)
		}
	}
}

// teardownClient runs the ordered close cascade: room memberships first, then
// the presence binding (only if this session still owns it), then registry
// memory. A presence change triggers the global users-online fan-out.
func (h *Hub) teardownClient(c *Client) {
	h.rooms.RemoveConnection(c.sessionID)

	retired := false
	if userID := c.UserID(); userID != "" {
		retired = h.presence.Retire(userID, c.sessionID)
	}

	if _, ok := h.registry.Remove(c.sessionID); ok {
		close(c.send)
	}

	if retired {
		h.broadcastPresence()
	}
}

func (h *Hub) dispatch(frame inboundFrame) {
	event, err := ParseEvent(frame.raw)
	if err != nil {
		// Best-effort protocol: malformed frames are dropped, no error reply.
		frame.client.logger().WithError(err).Debug("Dropping malformed event")
		return
	}

	c := frame.client
	switch ev := event.(type) {
	case JoinUserRoom:
		h.handleJoinUserRoom(c, ev)

	case JoinRoom:
		h.rooms.Join(ev.RoomID, c.sessionID)

	case LeaveRoom:
		h.rooms.Leave(ev.RoomID, c.sessionID)

	case SendMessage:
		out, err := MarshalEvent(EventNewMessage, ev.Payload)
		if err != nil {
			c.logger().WithError(err).Warn("Failed to encode new-message frame")
			return
		}
		// Both deliveries are independent; a recipient in both rooms receives
		// the event twice.
		h.deliverToRoom(ev.ToUserID, out)
		if ev.ConversationID != "" {
			h.deliverToRoom(ev.ConversationID, out)
		}

	case SendNotification:
		out, err := MarshalEvent(EventNewNotification, ev.Payload)
		if err != nil {
			c.logger().WithError(err).Warn("Failed to encode new-notification frame")
			return
		}
		h.deliverToRoom(ev.UserID, out)

	case MarkMessageRead:
		out, err := MarshalEvent(EventMessageRead, ev.Payload)
		if err != nil {
			c.logger().WithError(err).Warn("Failed to encode message-read frame")
			return
		}
		h.deliverToRoom(ev.RecipientID, out)

	case Typing:
		out, err := MarshalEvent(EventUserTyping, map[string]any{
			"userId":   ev.UserID,
			"isTyping": ev.IsTyping,
		})
		if err != nil {
			c.logger().WithError(err).Warn("Failed to encode user-typing frame")
			return
		}
		h.deliverToRoom(ev.RecipientID, out)

	case Ping:
		out, err := MarshalEvent(EventPong, nil)
		if err != nil {
			return
		}
		if !h.registry.Send(c, out) {
			h.teardownClient(c)
		}
	}
}

// handleJoinUserRoom binds the connection's identity, upserts presence with
// last-writer-wins semantics, auto-subscribes the connection to its personal
// room, and fans the updated online set out to every connection.
func (h *Hub) handleJoinUserRoom(c *Client, ev JoinUserRoom) {
	if !h.registry.BindIdentity(c, ev.UserID) {
		return
	}

	h.presence.Declare(ev.UserID, c.sessionID)
	h.rooms.Join(ev.UserID, c.sessionID)

	logrus.WithFields(logrus.Fields{
		"user_id":    ev.UserID,
		"session_id": c.sessionID,
		"online":     h.presence.Count(),
	}).Info("User joined personal room")

	h.broadcastPresence()
}

// deliverToRoom forwards a frame to every current member of the room. The
// sender is not excluded; an empty room is a silent no-op. A member whose
// queue is full or whose session is gone is torn down without affecting
// delivery to the rest of the room.
func (h *Hub) deliverToRoom(room string, frame []byte) {
	var failed []*Client
	for _, sessionID := range h.rooms.MembersOf(room) {
		client, ok := h.registry.Get(sessionID)
		if !ok {
			continue
		}
		if !h.registry.Send(client, frame) {
			failed = append(failed, client)
		}
	}
	h.dropFailedClients(failed)
}

// broadcastPresence sends the full online user-id set to every registered
// connection. Presence is global UI state, so the fan-out deliberately covers
// all connections, not just the affected rooms.
func (h *Hub) broadcastPresence() {
	users := h.presence.Snapshot()
	frame, err := MarshalEvent(EventUsersOnline, users)
	if err != nil {
		logrus.WithError(err).Warn("Failed to encode users-online frame")
		return
	}

	var failed []*Client
	for _, client := range h.registry.All() {
		if !h.registry.Send(client, frame) {
			failed = append(failed, client)
		}
	}
	h.dropFailedClients(failed)
}

func (h *Hub) dropFailedClients(failed []*Client) {
	for _, client := range failed {
		client.logger().Warn("Send queue full or session gone; dropping connection")
		h.teardownClient(client)
		if client.conn != nil {
			_ = client.conn.Close()
		}
	}
}

// shutdownClients closes every active client connection so the pump
// goroutines unwind.
func (h *Hub) shutdownClients() {
	clients := h.registry.All()
	logrus.WithField("count", len(clients)).Info("Shutting down all client connections")

	for _, client := range clients {
		if client.conn != nil {
			if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
				client.logger().WithError(err).Warn("Error closing client connection")
			}
		}
	}
}

// Shutdown initiates graceful shutdown of the hub and waits for all client
// goroutines to complete, or until the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	logrus.Info("Initiating hub shutdown")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logrus.Info("Hub shutdown completed")
		return nil
	case <-time.After(timeout):
		logrus.Warn("Hub shutdown timeout reached; some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
