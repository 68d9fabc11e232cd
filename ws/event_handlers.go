package ws

import (
	"context"
	"errors"

	"github.com/judgegodwins/chess-relay/room"
)

// MoveHandler applies a move for the client's room. On success the new state
// reaches the client through the room broadcast.
func MoveHandler(ctx context.Context, req Request, c *Client) error {
	_, err := c.manager.registry.ApplyPlayerMove(ctx, c.roomID, req.Move)
	return err
}

// SyncHandler sends the current room state to the requesting client only.
// If the engine is still due to move, for example after a failed reply, the
// reply is retried.
func SyncHandler(ctx context.Context, req Request, c *Client) error {
	snap, ok := c.manager.registry.Snapshot(c.roomID)
	if !ok {
		return room.ErrRoomNotFound
	}

	evt, err := NewEvent(EventState, snap)
	if err != nil {
		return err
	}
	evt.TraceID = req.TraceID

	if err := c.PushToEgress(evt); err != nil {
		return err
	}

	// queued after the sync reply so the engine's move arrives second
	c.manager.registry.MaybeTriggerEngineReply(c.roomID)

	return nil
}

// errorPayload maps handler errors to what the client is told.
func errorPayload(err error) PayloadError {
	var illegal *room.IllegalMoveError
	var storeErr *room.StoreError

	switch {
	case errors.As(err, &illegal):
		return PayloadError{Code: CodeIllegalMove, Message: err.Error()}
	case errors.As(err, &storeErr):
		return PayloadError{Code: CodeStoreError, Message: "could not save the move, try again"}
	case errors.Is(err, room.ErrRoomNotFound):
		return PayloadError{Code: CodeRoomNotFound, Message: err.Error()}
	case errors.Is(err, errUnknownAction):
		return PayloadError{Code: CodeBadRequest, Message: err.Error()}
	}

	return PayloadError{Code: CodeInternal, Message: "something went wrong"}
}
