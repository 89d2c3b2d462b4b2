// Package relay defines the wire protocol: a JSON envelope carrying a named
// event and its payload, decoded at the boundary into a closed set of typed
// variants so dispatch never touches free-form maps.
package relay

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Client-to-server event names.
const (
	EventJoinUserRoom     = "join-user-room"
	EventJoinRoom         = "join-room"
	EventLeaveRoom        = "leave-room"
	EventSendMessage      = "send-message"
	EventSendNotification = "send-notification"
	EventMarkMessageRead  = "mark-message-read"
	EventTypingStart      = "typing-start"
	EventTypingStop       = "typing-stop"
	EventPing             = "ping"
)

// Server-to-client event names.
const (
	EventNewMessage      = "new-message"
	EventNewNotification = "new-notification"
	EventMessageRead     = "message-read"
	EventUserTyping      = "user-typing"
	EventUsersOnline     = "users-online"
	EventPong            = "pong"
)

// ErrUnknownEvent reports an event name outside the protocol's fixed set.
var ErrUnknownEvent = errors.New("unknown event name")

// Event is one decoded client-to-server protocol event. The set of
// implementations is closed; dispatch switches over it exhaustively.
type Event interface {
	eventName() string
}

// JoinUserRoom declares the connection's user identity and establishes
// presence.
type JoinUserRoom struct {
	UserID string
}

// JoinRoom subscribes the calling connection to a conversation room.
type JoinRoom struct {
	RoomID string
}

// LeaveRoom unsubscribes the calling connection from a conversation room.
type LeaveRoom struct {
	RoomID string
}

// SendMessage relays a chat message to the recipient's personal room and,
// when a conversation id is present, to that conversation room as well.
type SendMessage struct {
	ToUserID       string
	ConversationID string
	Payload        map[string]any
}

// SendNotification relays a notification to the target user's personal room.
type SendNotification struct {
	UserID  string
	Payload map[string]any
}

// MarkMessageRead echoes a read receipt to the original recipient's personal
// room with the payload unchanged.
type MarkMessageRead struct {
	RecipientID string
	Payload     map[string]any
}

// Typing relays a typing indicator to the recipient's personal room as a
// normalized {userId, isTyping} payload.
type Typing struct {
	UserID      string
	RecipientID string
	IsTyping    bool
}

// Ping requests a pong reply to the sender only.
type Ping struct{}

func (JoinUserRoom) eventName() string     { return EventJoinUserRoom }
func (JoinRoom) eventName() string         { return EventJoinRoom }
func (LeaveRoom) eventName() string        { return EventLeaveRoom }
func (SendMessage) eventName() string      { return EventSendMessage }
func (SendNotification) eventName() string { return EventSendNotification }
func (MarkMessageRead) eventName() string  { return EventMarkMessageRead }
func (Typing) eventName() string           { return EventTypingStart }
func (Ping) eventName() string             { return EventPing }

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ParseEvent decodes a raw inbound frame into a typed event, validating the
// required fields for the event name. Any failure means the frame is dropped
// by the caller; there is no error channel back to the sender.
func ParseEvent(raw []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	payload := make(map[string]any)
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", env.Event, err)
		}
	}

	switch env.Event {
	case EventJoinUserRoom:
		userID, err := requireString(payload, "userId", env.Event)
		if err != nil {
			return nil, err
		}
		return JoinUserRoom{UserID: userID}, nil

	case EventJoinRoom:
		roomID, err := requireString(payload, "roomId", env.Event)
		if err != nil {
			return nil, err
		}
		return JoinRoom{RoomID: roomID}, nil

	case EventLeaveRoom:
		roomID, err := requireString(payload, "roomId", env.Event)
		if err != nil {
			return nil, err
		}
		return LeaveRoom{RoomID: roomID}, nil

	case EventSendMessage:
		toUserID, err := requireString(payload, "toUserId", env.Event)
		if err != nil {
			return nil, err
		}
		conversationID, _ := payload["conversationId"].(string)
		return SendMessage{
			ToUserID:       toUserID,
			ConversationID: conversationID,
			Payload:        payload,
		}, nil

	case EventSendNotification:
		userID, err := requireString(payload, "userId", env.Event)
		if err != nil {
			return nil, err
		}
		return SendNotification{UserID: userID, Payload: payload}, nil

	case EventMarkMessageRead:
		recipientID, err := requireString(payload, "recipientId", env.Event)
		if err != nil {
			return nil, err
		}
		return MarkMessageRead{RecipientID: recipientID, Payload: payload}, nil

	case EventTypingStart, EventTypingStop:
		userID, err := requireString(payload, "userId", env.Event)
		if err != nil {
			return nil, err
		}
		recipientID, err := requireString(payload, "recipientId", env.Event)
		if err != nil {
			return nil, err
		}
		return Typing{
			UserID:      userID,
			RecipientID: recipientID,
			IsTyping:    env.Event == EventTypingStart,
		}, nil

	case EventPing:
		return Ping{}, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
}

func requireString(payload map[string]any, field, event string) (string, error) {
	value, ok := payload[field].(string)
	if !ok || value == "" {
		return "", fmt.Errorf("%s: missing required field %q", event, field)
	}
	return value, nil
}

// MarshalEvent encodes a server-to-client frame in the wire envelope. Data may
// be nil for events that carry no payload, such as pong; an empty online set
// still serializes as an explicit empty array.
func MarshalEvent(event string, data any) ([]byte, error) {
	if data == nil {
		return json.Marshal(struct {
			Event string `json:"event"`
		}{Event: event})
	}
	frame := struct {
		Event string `json:"event"`
		Data  any    `json:"data"`
	}{Event: event, Data: data}
	return json.Marshal(frame)
}
