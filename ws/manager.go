package ws

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/judgegodwins/chess-relay/http_utils"
	"github.com/judgegodwins/chess-relay/room"
	"github.com/judgegodwins/chess-relay/util"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

var errUnknownAction = errors.New("there is no such action")

type ClientList map[string]*Client

type Manager struct {
	clients ClientList
	sync.RWMutex
	handlers map[string]EventHandler
	registry *room.Registry
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

type ManagerOptions struct {
	Registry       *room.Registry
	AllowedOrigins []string
	Logger         *zap.Logger
}

func NewManager(opts ManagerOptions) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &Manager{
		clients:  make(ClientList),
		handlers: make(map[string]EventHandler),
		registry: opts.Registry,
		logger:   logger.Named("ws"),
	}

	m.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     checkOrigin(opts.AllowedOrigins),
	}

	m.setupEventHandlers()

	return m
}

func (m *Manager) setupEventHandlers() {
	m.handlers[ActionMove] = MoveHandler
	m.handlers[ActionSync] = SyncHandler
}

func (m *Manager) routeEvent(ctx context.Context, req Request, c *Client) error {
	if handler, ok := m.handlers[req.Action]; ok {
		return handler(ctx, req, c)
	}

	return errUnknownAction
}

func (m *Manager) addClient(client *Client) {
	m.Lock()
	defer m.Unlock()

	m.clients[client.id] = client
}

func (m *Manager) removeClient(client *Client) {
	m.Lock()
	defer m.Unlock()

	if _, ok := m.clients[client.id]; ok {
		client.connection.Close()
		delete(m.clients, client.id)
	}
}

// ClientCount returns the number of open connections.
func (m *Manager) ClientCount() int {
	m.RLock()
	defer m.RUnlock()

	return len(m.clients)
}

// Websocket connection handler for /ws/game/:room_id
func (m *Manager) ServeWS(c *gin.Context) {
	roomID := c.Param("room_id")

	if !util.ValidRoomID(roomID) {
		c.JSON(http.StatusBadRequest, http_utils.NewBaseResponse(false, "invalid room id"))
		return
	}

	conn, err := m.upgrader.Upgrade(c.Writer, c.Request, nil)

	if err != nil {
		// the upgrader has already replied to the client
		m.logger.Warn("error upgrading to websocket connection", zap.Error(err))
		return
	}

	client := NewClient(conn, m, roomID)

	m.addClient(client)

	ctx, cancel := context.WithCancel(c.Request.Context())

	defer func() {
		cancel()
		client.close()
		m.registry.Leave(roomID, client)

		// WriteControl is safe alongside a write pump that has not exited yet
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
			client.logger.Debug("error sending close message", zap.Error(err))
		}

		m.removeClient(client)
	}()

	// the initial state is queued on the egress before the pumps start
	if _, err := m.registry.Join(ctx, roomID, client); err != nil {
		client.logger.Warn("join failed", zap.Error(err))

		evt, evtErr := NewErrorEvent("", errorPayload(err))
		if evtErr == nil {
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteJSON(evt)
		}
		return
	}

	client.logger.Info("client connected")

	go client.readMessages(ctx)
	go client.writeMessages(ctx)

	err = <-client.Err()

	client.logger.Info("client disconnected", zap.Error(err))
}

func checkOrigin(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 || lo.Contains(allowed, "*") {
		return func(r *http.Request) bool { return true }
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		// non-browser clients send no origin
		return origin == "" || lo.Contains(allowed, origin)
	}
}
