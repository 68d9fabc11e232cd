package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/judgegodwins/chess-relay/http_utils"
	"github.com/judgegodwins/chess-relay/room"
	"github.com/judgegodwins/chess-relay/util"
	"go.uber.org/zap"
)

var (
	pongWait     = 10 * time.Second
	pingInterval = (pongWait * 9) / 10
	writeWait    = 5 * time.Second
)

const (
	maxFrameSize = 4096
	egressSize   = 64
)

var (
	errClientClosed = errors.New("client closed")
	errEgressFull   = errors.New("client egress full")
)

// Client is one websocket connection attached to a room. It implements
// room.Session.
type Client struct {
	id         string
	roomID     string
	connection *websocket.Conn
	manager    *Manager
	logger     *zap.Logger

	mu     sync.RWMutex
	closed bool
	egress chan Event
	err    chan error
}

func NewClient(conn *websocket.Conn, manager *Manager, roomID string) *Client {
	id := uuid.NewString()

	return &Client{
		id:         id,
		roomID:     roomID,
		connection: conn,
		manager:    manager,
		logger:     manager.logger.With(zap.String("session_id", id), zap.String("room_id", roomID)),
		egress:     make(chan Event, egressSize),
		err:        make(chan error, 2),
	}
}

func (c *Client) ID() string {
	return c.id
}

// Send queues a state event without blocking.
func (c *Client) Send(snap room.Snapshot) error {
	evt, err := NewEvent(EventState, snap)
	if err != nil {
		return err
	}

	return c.PushToEgress(evt)
}

// PushToEgress queues evt for the write pump. It fails instead of blocking
// when the client is closed or too far behind. A client that falls behind is
// disconnected, since the room has already dropped it.
func (c *Client) PushToEgress(evt Event) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return errClientClosed
	}

	select {
	case c.egress <- evt:
		return nil
	default:
		c.handleError(errEgressFull)
		return errEgressFull
	}
}

func (c *Client) pushError(traceID string, payload PayloadError) {
	evt, err := NewErrorEvent(traceID, payload)
	if err != nil {
		c.logger.Error("could not build error event", zap.Error(err))
		return
	}

	if err := c.PushToEgress(evt); err != nil {
		c.logger.Debug("could not queue error event", zap.Error(err))
	}
}

// Reads incoming frames from the client's websocket connection
func (c *Client) readMessages(ctx context.Context) {
	c.connection.SetReadLimit(maxFrameSize)

	if err := c.connection.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.handleError(err)
		return
	}

	c.connection.SetPongHandler(c.pongHandler)

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, payload, err := c.connection.ReadMessage()

			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					c.logger.Warn("error reading message", zap.Error(err))
				}
				c.handleError(err)
				return
			}

			var req Request

			if err := json.Unmarshal(payload, &req); err != nil {
				c.pushError("", PayloadError{Code: CodeBadRequest, Message: "malformed frame"})
				continue
			}

			if res, ok := http_utils.ValidateStruct(util.Validate, req); !ok {
				c.pushError(req.TraceID, PayloadError{
					Code:    CodeBadRequest,
					Message: res.Message,
					Errors:  res.Errors,
				})
				continue
			}

			if err := c.manager.routeEvent(ctx, req, c); err != nil {
				c.logger.Debug("request failed",
					zap.String("action", req.Action),
					zap.String("trace_id", req.TraceID),
					zap.Error(err),
				)
				c.pushError(req.TraceID, errorPayload(err))
			}
		}
	}
}

// writes events pushed to the client's egress channel
func (c *Client) writeMessages(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case message := <-c.egress:
			data, err := json.Marshal(message)

			if err != nil {
				c.handleError(err)
				return
			}

			_ = c.connection.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.connection.WriteMessage(websocket.TextMessage, data); err != nil {
				c.handleError(err)
				return
			}
		case <-ticker.C:
			_ = c.connection.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.handleError(err)
				return
			}
		}
	}
}

// Sets a new read deadline when a pong is received for a ping message.
func (c *Client) pongHandler(string) error {
	return c.connection.SetReadDeadline(time.Now().Add(pongWait))
}

// handleError reports a pump failure to ServeWS, which then tears the
// connection down. Only the first error matters.
func (c *Client) handleError(e error) {
	select {
	case c.err <- e:
	default:
	}
}

func (c *Client) Err() <-chan error {
	return c.err
}

// close stops further sends. Broadcasts to a closed client fail and drop it
// from the room.
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
}
