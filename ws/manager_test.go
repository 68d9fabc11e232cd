package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/judgegodwins/chess-relay/engine"
	"github.com/judgegodwins/chess-relay/room"
	"github.com/judgegodwins/chess-relay/rules"
	"github.com/judgegodwins/chess-relay/store"
	"github.com/judgegodwins/chess-relay/util"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const afterE4Board = "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b"

func newTestServer(t *testing.T, s store.Store, origins ...string) (*httptest.Server, *room.Registry) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	registry := room.NewRegistry(room.Options{Store: s, Rules: rules.New()})
	t.Cleanup(registry.Close)

	if len(origins) == 0 {
		origins = []string{"*"}
	}
	m := NewManager(ManagerOptions{Registry: registry, AllowedOrigins: origins})

	router := gin.New()
	router.GET("/ws/game/:room_id", m.ServeWS)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return srv, registry
}

func dial(t *testing.T, srv *httptest.Server, roomID string, header http.Header) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/game/" + roomID
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var evt Event
	require.NoError(t, conn.ReadJSON(&evt))
	return evt
}

func readState(t *testing.T, conn *websocket.Conn) room.Snapshot {
	t.Helper()

	evt := readEvent(t, conn)
	require.Equal(t, EventState, evt.Type)

	var snap room.Snapshot
	require.NoError(t, json.Unmarshal(evt.Payload, &snap))
	return snap
}

func readError(t *testing.T, conn *websocket.Conn) (Event, PayloadError) {
	t.Helper()

	evt := readEvent(t, conn)
	require.Equal(t, EventError, evt.Type)

	var payload PayloadError
	require.NoError(t, json.Unmarshal(evt.Payload, &payload))
	return evt, payload
}

func requireSilent(t *testing.T, conn *websocket.Conn) {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)

	var netErr interface{ Timeout() bool }
	require.ErrorAs(t, err, &netErr)
	require.True(t, netErr.Timeout())
}

func TestJoinReceivesState(t *testing.T) {
	srv, _ := newTestServer(t, store.NewMemoryStore())

	conn := dial(t, srv, "r1", nil)

	snap := readState(t, conn)
	require.Equal(t, "r1", snap.RoomID)
	require.Equal(t, util.DefaultFEN, snap.Position)
	require.Equal(t, "white", snap.Turn)
}

func TestJoinReceivesStoredPosition(t *testing.T) {
	s := store.NewMemoryStore()
	require.NoError(t, s.Put(context.Background(), &store.Record{
		RoomID:   "r1",
		Position: afterE4Board + " KQkq e3 0 1",
		Turn:     "black",
	}))

	srv, _ := newTestServer(t, s)
	conn := dial(t, srv, "r1", nil)

	snap := readState(t, conn)
	require.True(t, strings.HasPrefix(snap.Position, afterE4Board), snap.Position)
	require.Equal(t, "black", snap.Turn)
}

func TestMoveIsBroadcast(t *testing.T) {
	srv, _ := newTestServer(t, store.NewMemoryStore())

	a := dial(t, srv, "r1", nil)
	readState(t, a)
	b := dial(t, srv, "r1", nil)
	readState(t, b)

	require.NoError(t, a.WriteJSON(Request{Action: ActionMove, Move: "e2e4"}))

	for _, conn := range []*websocket.Conn{a, b} {
		snap := readState(t, conn)
		require.True(t, strings.HasPrefix(snap.Position, afterE4Board), snap.Position)
		require.Equal(t, "e2e4", snap.LastMove)
		require.Equal(t, "black", snap.Turn)
	}
}

func TestIllegalMoveOnlyReachesSender(t *testing.T) {
	srv, _ := newTestServer(t, store.NewMemoryStore())

	a := dial(t, srv, "r1", nil)
	readState(t, a)
	b := dial(t, srv, "r1", nil)
	readState(t, b)

	require.NoError(t, a.WriteJSON(Request{Action: ActionMove, Move: "e2e5", TraceID: "t-1"}))

	evt, payload := readError(t, a)
	require.Equal(t, "t-1", evt.TraceID)
	require.Equal(t, CodeIllegalMove, payload.Code)

	requireSilent(t, b)
}

func TestBadFrames(t *testing.T) {
	srv, _ := newTestServer(t, store.NewMemoryStore())

	conn := dial(t, srv, "r1", nil)
	readState(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	_, payload := readError(t, conn)
	require.Equal(t, CodeBadRequest, payload.Code)

	require.NoError(t, conn.WriteJSON(Request{Action: "resign"}))
	_, payload = readError(t, conn)
	require.Equal(t, CodeBadRequest, payload.Code)
	require.NotEmpty(t, payload.Errors)

	require.NoError(t, conn.WriteJSON(Request{Action: ActionMove}))
	_, payload = readError(t, conn)
	require.Equal(t, CodeBadRequest, payload.Code)

	// the connection survives bad frames
	require.NoError(t, conn.WriteJSON(Request{Action: ActionSync, TraceID: "s-1"}))
	evt := readEvent(t, conn)
	require.Equal(t, EventState, evt.Type)
	require.Equal(t, "s-1", evt.TraceID)
}

func TestDisconnectLeavesRoom(t *testing.T) {
	srv, registry := newTestServer(t, store.NewMemoryStore())

	a := dial(t, srv, "r1", nil)
	readState(t, a)
	b := dial(t, srv, "r1", nil)
	readState(t, b)

	snap, ok := registry.Snapshot("r1")
	require.True(t, ok)
	require.Equal(t, 2, snap.Sessions)

	require.NoError(t, b.Close())

	require.Eventually(t, func() bool {
		snap, ok := registry.Snapshot("r1")
		return ok && snap.Sessions == 1
	}, 2*time.Second, 10*time.Millisecond)

	// the remaining member keeps playing
	require.NoError(t, a.WriteJSON(Request{Action: ActionMove, Move: "e4"}))
	require.Equal(t, "e2e4", readState(t, a).LastMove)
}

func TestRejectsInvalidRoomID(t *testing.T) {
	srv, _ := newTestServer(t, store.NewMemoryStore())

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/game/bad%20room"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCheckOrigin(t *testing.T) {
	srv, _ := newTestServer(t, store.NewMemoryStore(), "http://allowed.example")

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/game/r1"

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"http://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn := dial(t, srv, "r1", http.Header{"Origin": {"http://allowed.example"}})
	readState(t, conn)
}

func TestSlowClientIsDisconnected(t *testing.T) {
	registry := room.NewRegistry(room.Options{Store: store.NewMemoryStore(), Rules: rules.New()})
	t.Cleanup(registry.Close)

	m := NewManager(ManagerOptions{Registry: registry})

	slow := &Client{
		id:      "slow",
		roomID:  "r1",
		manager: m,
		logger:  zap.NewNop(),
		egress:  make(chan Event, 1),
		err:     make(chan error, 2),
	}

	ctx := context.Background()

	// the join snapshot fills the only slot
	_, err := registry.Join(ctx, "r1", slow)
	require.NoError(t, err)

	_, err = registry.ApplyPlayerMove(ctx, "r1", "e2e4")
	require.NoError(t, err)

	select {
	case err := <-slow.Err():
		require.ErrorIs(t, err, errEgressFull)
	case <-time.After(time.Second):
		t.Fatal("slow client was not told to disconnect")
	}

	snap, ok := registry.Snapshot("r1")
	require.True(t, ok)
	require.Zero(t, snap.Sessions)
}

type flakyEngine struct {
	calls atomic.Int32
}

// BestMove fails the first call and answers e7e5 afterwards.
func (e *flakyEngine) BestMove(ctx context.Context, position string, budget time.Duration) (string, error) {
	if e.calls.Add(1) == 1 {
		return "", &engine.Error{Kind: engine.Unavailable}
	}
	return "e7e5", nil
}

func TestSyncRetriesEngineReply(t *testing.T) {
	gin.SetMode(gin.TestMode)

	eng := &flakyEngine{}
	registry := room.NewRegistry(room.Options{
		Store:      store.NewMemoryStore(),
		Rules:      rules.New(),
		Engine:     eng,
		EngineSide: rules.Black,
		MoveTime:   10 * time.Millisecond,
	})
	t.Cleanup(registry.Close)

	m := NewManager(ManagerOptions{Registry: registry, AllowedOrigins: []string{"*"}})
	router := gin.New()
	router.GET("/ws/game/:room_id", m.ServeWS)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	conn := dial(t, srv, "r1", nil)
	readState(t, conn)

	require.NoError(t, conn.WriteJSON(Request{Action: ActionMove, Move: "e2e4"}))
	require.Equal(t, "black", readState(t, conn).Turn)

	require.Eventually(t, func() bool {
		return eng.calls.Load() == 1
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, conn.WriteJSON(Request{Action: ActionSync, TraceID: "retry"}))

	evt := readEvent(t, conn)
	require.Equal(t, "retry", evt.TraceID)

	snap := readState(t, conn)
	require.Equal(t, room.ByEngine, snap.By)
	require.Equal(t, "e7e5", snap.LastMove)
	require.Equal(t, "white", snap.Turn)
}
