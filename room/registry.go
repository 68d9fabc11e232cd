// Package room maps room ids to live games and their connected sessions.
package room

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/judgegodwins/chess-relay/engine"
	"github.com/judgegodwins/chess-relay/rules"
	"github.com/judgegodwins/chess-relay/store"
	"github.com/judgegodwins/chess-relay/util"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("github.com/judgegodwins/chess-relay/room")

// EngineGrace is added to the move time when bounding an engine call.
const EngineGrace = time.Second

// Rules validates moves against a position.
type Rules interface {
	ValidateAndApply(position, move string) (rules.Result, error)
	Describe(position string) (rules.Result, error)
}

type Options struct {
	Store store.Store
	Rules Rules
	// Engine may be nil, in which case both sides are played by sessions.
	Engine     engine.Bridge
	EngineSide rules.Side
	MoveTime   time.Duration
	Logger     *zap.Logger
}

type Registry struct {
	mu     sync.Mutex
	rooms  map[string]*Room
	closed bool

	store      store.Store
	rules      Rules
	engine     engine.Bridge
	engineSide rules.Side
	moveTime   time.Duration
	logger     *zap.Logger

	// engine replies run under baseCtx so Close can cancel them
	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewRegistry(opts Options) *Registry {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	side := opts.EngineSide
	if side == "" {
		side = rules.Black
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Registry{
		rooms:      make(map[string]*Room),
		store:      opts.Store,
		rules:      opts.Rules,
		engine:     opts.Engine,
		engineSide: side,
		moveTime:   opts.MoveTime,
		logger:     logger.Named("room"),
		baseCtx:    ctx,
		cancel:     cancel,
	}
}

func (r *Registry) getOrCreate(roomID string) *Room {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		rm = newRoom(roomID, time.Now())
		r.rooms[roomID] = rm
	}

	return rm
}

func (r *Registry) lookup(roomID string) *Room {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.rooms[roomID]
}

// Join attaches s to the room, loading the room from the store the first
// time it is seen. The current snapshot is delivered to s before Join
// returns, so it always precedes later broadcasts.
func (r *Registry) Join(ctx context.Context, roomID string, s Session) (Snapshot, error) {
	ctx, span := tracer.Start(ctx, "room.join", trace.WithAttributes(
		attribute.String("room.id", roomID),
		attribute.String("session.id", s.ID()),
	))
	defer span.End()

	if !util.ValidRoomID(roomID) {
		return Snapshot{}, ErrInvalidRoomID
	}

	for {
		rm := r.getOrCreate(roomID)

		rm.guard.Lock()

		// lost a race with the janitor; the next lookup creates a fresh room
		if rm.evicted {
			rm.guard.Unlock()
			continue
		}

		if !rm.loaded {
			if err := r.load(ctx, rm); err != nil {
				rm.guard.Unlock()
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return Snapshot{}, err
			}
		}

		rm.attach(s)

		snap := rm.snapshot()
		if err := s.Send(snap); err != nil {
			rm.detach(s.ID(), time.Now())
			rm.guard.Unlock()
			return Snapshot{}, err
		}

		// a room reloaded on the engine's turn, or left there by a failed
		// reply, would otherwise never move again
		due := r.engineDue(rm)

		rm.guard.Unlock()

		r.logger.Debug("session joined",
			zap.String("room_id", roomID),
			zap.String("session_id", s.ID()),
		)

		if due {
			r.MaybeTriggerEngineReply(roomID)
		}

		return snap, nil
	}
}

// load must be called with guard held.
func (r *Registry) load(ctx context.Context, rm *Room) error {
	record, err := r.store.Get(ctx, rm.id)
	if errors.Is(err, store.ErrNotFound) {
		record = &store.Record{RoomID: rm.id, Position: util.DefaultFEN}
	} else if err != nil {
		return &StoreError{Op: "get", Err: err}
	}

	res, err := r.rules.Describe(record.Position)
	if err != nil {
		return &StoreError{Op: "get", Err: err}
	}

	rm.position = res.Position
	rm.turn = res.Turn
	rm.status = res.Status
	rm.playerWhite = record.PlayerWhite
	rm.playerBlack = record.PlayerBlack
	rm.loaded = true

	return nil
}

// Leave removes s from the room. Unknown rooms and sessions are ignored.
// The room itself stays in memory until the janitor evicts it.
func (r *Registry) Leave(roomID string, s Session) {
	rm := r.lookup(roomID)
	if rm == nil {
		return
	}

	if rm.detach(s.ID(), time.Now()) {
		r.logger.Debug("session left",
			zap.String("room_id", roomID),
			zap.String("session_id", s.ID()),
		)
	}
}

// ApplyPlayerMove validates move, persists the result, commits it and
// broadcasts the new snapshot to every member. If the engine is due to
// reply, the reply is scheduled once the room is released.
func (r *Registry) ApplyPlayerMove(ctx context.Context, roomID, move string) (Snapshot, error) {
	ctx, span := tracer.Start(ctx, "room.apply_move", trace.WithAttributes(
		attribute.String("room.id", roomID),
		attribute.String("move", move),
	))
	defer span.End()

	// a session disconnecting mid-move does not cancel the move
	ctx = context.WithoutCancel(ctx)

	rm := r.lookup(roomID)
	if rm == nil {
		return Snapshot{}, ErrRoomNotFound
	}

	rm.guard.Lock()

	if rm.evicted || !rm.loaded {
		rm.guard.Unlock()
		return Snapshot{}, ErrRoomNotFound
	}

	if r.engineDue(rm) {
		rm.guard.Unlock()
		return Snapshot{}, &IllegalMoveError{Move: move, Reason: "waiting for the engine to move"}
	}

	snap, err := r.apply(ctx, rm, move, ByPlayer)
	rm.guard.Unlock()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Snapshot{}, err
	}

	r.MaybeTriggerEngineReply(roomID)

	return snap, nil
}

// apply runs validate, persist, commit and broadcast. Must be called with
// guard held.
func (r *Registry) apply(ctx context.Context, rm *Room, move, by string) (Snapshot, error) {
	res, err := r.rules.ValidateAndApply(rm.position, move)
	if err != nil {
		var illegal *rules.IllegalMoveError
		if errors.As(err, &illegal) {
			return Snapshot{}, &IllegalMoveError{Move: move, Reason: illegal.Reason}
		}
		return Snapshot{}, &IllegalMoveError{Move: move, Reason: err.Error()}
	}

	record := &store.Record{
		RoomID:      rm.id,
		Position:    res.Position,
		Turn:        string(res.Turn),
		PlayerWhite: rm.playerWhite,
		PlayerBlack: rm.playerBlack,
		UpdatedAt:   time.Now().UTC(),
	}

	if err := r.store.Put(ctx, record); err != nil {
		return Snapshot{}, &StoreError{Op: "put", Err: err}
	}

	rm.position = res.Position
	rm.turn = res.Turn
	rm.status = res.Status
	rm.lastMove = res.Move
	rm.by = by

	snap := rm.snapshot()
	r.broadcast(rm, snap)

	r.logger.Info("move applied",
		zap.String("room_id", rm.id),
		zap.String("move", res.Move),
		zap.String("by", by),
		zap.String("status", string(res.Status)),
	)

	return snap, nil
}

// broadcast sends snap to every member. Sessions that fail are removed.
func (r *Registry) broadcast(rm *Room, snap Snapshot) {
	for _, s := range rm.sessions() {
		if err := s.Send(snap); err != nil {
			r.logger.Debug("dropping session after failed send",
				zap.String("room_id", rm.id),
				zap.String("session_id", s.ID()),
				zap.Error(err),
			)
			rm.detach(s.ID(), time.Now())
		}
	}
}

// engineDue reports whether the engine should move next. Must be called with
// guard held.
func (r *Registry) engineDue(rm *Room) bool {
	return r.engine != nil && rm.loaded && !rm.evicted && !rm.status.Terminal() && rm.turn == r.engineSide
}

// MaybeTriggerEngineReply schedules an engine move for the room if an engine
// is configured, the game is still running and it is the engine's turn.
func (r *Registry) MaybeTriggerEngineReply(roomID string) {
	if r.engine == nil {
		return
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		r.engineReply(r.baseCtx, roomID)
	}()
}

func (r *Registry) engineReply(ctx context.Context, roomID string) {
	ctx, span := tracer.Start(ctx, "room.engine_reply", trace.WithAttributes(
		attribute.String("room.id", roomID),
	))
	defer span.End()

	rm := r.lookup(roomID)
	if rm == nil {
		return
	}

	rm.guard.Lock()
	defer rm.guard.Unlock()

	if !r.engineDue(rm) {
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, r.moveTime+EngineGrace)
	defer cancel()

	move, err := r.engine.BestMove(callCtx, rm.position, r.moveTime)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.Warn("engine reply failed",
			zap.String("room_id", roomID),
			zap.Error(err),
		)
		return
	}

	if _, err := r.apply(ctx, rm, move, ByEngine); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.Warn("engine move rejected",
			zap.String("room_id", roomID),
			zap.String("move", move),
			zap.Error(err),
		)
	}
}

// Snapshot returns the current state of a room held in memory.
func (r *Registry) Snapshot(roomID string) (Snapshot, bool) {
	rm := r.lookup(roomID)
	if rm == nil {
		return Snapshot{}, false
	}

	rm.guard.Lock()
	defer rm.guard.Unlock()

	if rm.evicted || !rm.loaded {
		return Snapshot{}, false
	}

	snap := rm.snapshot()
	snap.Sessions = rm.memberCount()

	return snap, true
}

// Len returns the number of rooms held in memory.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.rooms)
}

// EvictIdle drops rooms that have had no sessions since before now-ttl.
// Rooms busy with a move are skipped. Stored records are kept.
func (r *Registry) EvictIdle(now time.Time, ttl time.Duration) int {
	r.mu.Lock()
	candidates := make([]*Room, 0, len(r.rooms))
	for _, rm := range r.rooms {
		candidates = append(candidates, rm)
	}
	r.mu.Unlock()

	evicted := 0

	for _, rm := range candidates {
		if !rm.guard.TryLock() {
			continue
		}

		since, empty := rm.idleSince()
		if empty && now.Sub(since) >= ttl {
			r.mu.Lock()
			if r.rooms[rm.id] == rm {
				delete(r.rooms, rm.id)
			}
			r.mu.Unlock()

			rm.evicted = true
			evicted++
		}

		rm.guard.Unlock()
	}

	return evicted
}

// Close cancels pending engine replies and waits for them to finish.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()
}
