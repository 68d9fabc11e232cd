package ws

import (
	"context"
	"encoding/json"
)

// Event is a frame sent to the client.
type Event struct {
	Type    string          `json:"type"`
	TraceID string          `json:"trace_id,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// Request is a frame received from the client.
type Request struct {
	Action  string `json:"action" validate:"required,oneof=move sync"`
	Move    string `json:"move" validate:"required_if=Action move,max=16"`
	TraceID string `json:"trace_id" validate:"max=64"`
}

type EventHandler func(ctx context.Context, req Request, c *Client) error

const (
	ActionMove = "move"
	ActionSync = "sync"
)

const (
	EventState = "state"
	EventError = "error"
)

const (
	CodeBadRequest   = "bad_request"
	CodeIllegalMove  = "illegal_move"
	CodeRoomNotFound = "room_not_found"
	CodeStoreError   = "store_error"
	CodeInternal     = "internal"
)

type PayloadError struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Errors  []string `json:"errors,omitempty"`
}

func NewEvent(evtType string, payload any) (Event, error) {
	b, err := json.Marshal(payload)

	if err != nil {
		return Event{}, err
	}

	return NewEventStruct(evtType, b, ""), nil
}

func NewErrorEvent(traceId string, payload PayloadError) (Event, error) {
	b, err := json.Marshal(payload)

	if err != nil {
		return Event{}, err
	}

	return NewEventStruct(EventError, b, traceId), nil
}

func NewEventStruct(evtType string, payload []byte, traceId string) Event {
	return Event{
		Type:    evtType,
		TraceID: traceId,
		Payload: payload,
	}
}
