// Package server defines the chat event variants exchanged over the live
// connection and the helpers that encode them at the transport boundary.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Event names used on the wire.
const (
	EventUserJoined = "userJoined"
	EventUserLeft   = "userLeft"
	EventMsg        = "msg"
)

// ErrUnknownEvent is returned by DecodeEvent for an unrecognized event name.
var ErrUnknownEvent = errors.New("unknown event")

// Event is one of JoinedEvent, LeftEvent or ChatEvent.
type Event interface {
	EventName() string
}

// JoinedEvent announces a new connection together with the full list of
// connected usernames.
type JoinedEvent struct {
	Users     []string `json:"users"`
	ServerMsg string   `json:"serverMsg"`
}

// EventName implements Event.
func (JoinedEvent) EventName() string { return EventUserJoined }

// LeftEvent announces a closed connection and the remaining usernames.
type LeftEvent struct {
	Users     []string `json:"users"`
	ServerMsg string   `json:"serverMsg"`
}

// EventName implements Event.
func (LeftEvent) EventName() string { return EventUserLeft }

// ChatEvent carries chat text. Inbound it is the raw text a client typed;
// outbound it is prefixed with the sender's username.
type ChatEvent struct {
	Msg string `json:"msg"`
}

// EventName implements Event.
func (ChatEvent) EventName() string { return EventMsg }

// envelope is the frame layout: {"event": name, "data": payload}.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// BroadcastMessage is a chat line submitted by a client for fan-out.
type BroadcastMessage struct {
	Sender *Client
	Text   string
}

// EncodeEvent wraps ev in an envelope and marshals it.
func EncodeEvent(ev Event) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encoding %s payload: %w", ev.EventName(), err)
	}
	return json.Marshal(envelope{Event: ev.EventName(), Data: data})
}

// DecodeEvent parses a frame into its typed variant.
func DecodeEvent(raw []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decoding envelope: %w", err)
	}

	var (
		ev  Event
		err error
	)
	switch env.Event {
	case EventUserJoined:
		var e JoinedEvent
		err = unmarshalData(env.Data, &e)
		ev = e
	case EventUserLeft:
		var e LeftEvent
		err = unmarshalData(env.Data, &e)
		ev = e
	case EventMsg:
		var e ChatEvent
		err = unmarshalData(env.Data, &e)
		ev = e
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
	if err != nil {
		return nil, fmt.Errorf("decoding %s payload: %w", env.Event, err)
	}
	return ev, nil
}

func unmarshalData(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

func joinedMessage(username string) string { return username + " has joined..." }

func leftMessage(username string) string { return username + " has left ..." }

func chatLine(username, text string) string { return username + ": " + text }

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
