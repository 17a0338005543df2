// Package session composes the fetch → store → socket pipeline for one
// attached game. The server stays the sole source of truth: pushes and
// re-fetches replace the snapshot wholesale, and local move validation
// is advisory only.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/demerle/liars-dice/internal/api"
	"github.com/demerle/liars-dice/internal/game"
	"github.com/demerle/liars-dice/internal/ws"
)

// Inbound message classification. game_update payloads are trusted as
// complete snapshots; join/leave notifications are not, and trigger an
// authoritative re-fetch instead.
const (
	msgGameUpdate   = "game_update"
	msgPlayerJoined = "player_joined"
	msgPlayerLeft   = "player_left"
	msgError        = "error"
)

var ErrAlreadyAttached = errors.New("already attached")
var ErrNotAttached = errors.New("not attached")

// Event is the coordinator's status surface toward the UI.
type Event interface{ isSessionEvent() }

type Connected struct{}
type Disconnected struct{}

// ConnectionLost is terminal: the reconnection budget is spent and the
// session needs a manual reattach.
type ConnectionLost struct{ Err error }

// GameError carries a server-sent error message; the snapshot is left
// untouched.
type GameError struct{ Message string }

func (Connected) isSessionEvent()      {}
func (Disconnected) isSessionEvent()   {}
func (ConnectionLost) isSessionEvent() {}
func (GameError) isSessionEvent()      {}

type loopMsg interface{ isLoopMsg() }

// fetchDone posts a completed re-fetch back into the loop. A push that
// arrives after the fetch response simply wins by landing later.
type fetchDone struct {
	snap *game.Snapshot
	err  error
}

func (fetchDone) isLoopMsg() {}

// Coordinator owns one game's synchronization: the canonical store, the
// connection manager, and the classification of everything inbound.
type Coordinator struct {
	gameID   int64
	username string
	api      *api.Client
	store    *game.Store
	log      *zap.Logger

	inbox  chan loopMsg
	events chan Event

	mu       sync.Mutex
	conn     *ws.Manager
	ctx      context.Context
	cancel   context.CancelFunc
	attached bool
	detached bool
}

// New builds a coordinator for one game. username is the acting player,
// used for the turn gate on outbound moves.
func New(client *api.Client, username string, gameID int64, log *zap.Logger) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{
		gameID:   gameID,
		username: username,
		api:      client,
		store:    game.NewStore(),
		log:      log.With(zap.Int64("gameId", gameID)),
		inbox:    make(chan loopMsg, 16),
		events:   make(chan Event, 16),
	}
}

// Store exposes the canonical snapshot for readers and subscribers.
func (c *Coordinator) Store() *game.Store { return c.store }

// Events is the status stream: connect/disconnect, terminal connection
// loss, server-sent errors.
func (c *Coordinator) Events() <-chan Event { return c.events }

// ConnectionState reports the socket's current state.
func (c *Coordinator) ConnectionState() ws.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ws.StateIdle
	}
	return c.conn.State()
}

// Attach performs the initial authoritative fetch, installs the result,
// and opens the real-time connection. ctx bounds the whole session.
func (c *Coordinator) Attach(ctx context.Context) error {
	c.mu.Lock()
	if c.attached || c.detached {
		c.mu.Unlock()
		return ErrAlreadyAttached
	}
	c.attached = true
	c.mu.Unlock()

	snap, err := c.fetch(ctx)
	if err != nil {
		c.mu.Lock()
		c.attached = false
		c.mu.Unlock()
		return fmt.Errorf("initial fetch: %w", err)
	}
	c.store.Replace(snap)

	c.mu.Lock()
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.conn = ws.NewManager(c.api.SocketURL(fmt.Sprintf("/game/%d", c.gameID)), c.log)
	c.conn.Open(c.ctx)
	loopCtx, conn := c.ctx, c.conn
	c.mu.Unlock()

	go c.loop(loopCtx, conn)
	return nil
}

// Detach closes the connection intentionally (no reconnection), stops
// the loop, and drops all store subscriptions. Terminal.
func (c *Coordinator) Detach() {
	c.mu.Lock()
	if !c.attached || c.detached {
		c.mu.Unlock()
		return
	}
	c.detached = true
	conn, cancel := c.conn, c.cancel
	c.mu.Unlock()

	if conn != nil {
		conn.Close(websocket.StatusNormalClosure)
	}
	if cancel != nil {
		cancel()
	}
	c.store.Close()
	c.log.Info("detached")
}

// SubmitMove gates the candidate through the validator and, only if
// legal, posts it. The snapshot is not touched here: the server's push
// is the only confirmation that the move was accepted.
func (c *Coordinator) SubmitMove(ctx context.Context, mv game.Move) error {
	c.mu.Lock()
	attached := c.attached && !c.detached
	c.mu.Unlock()
	if !attached {
		return ErrNotAttached
	}

	snap := c.store.Current()
	if err := game.CheckMove(mv, c.store.LastMove(), snap.IsTurn(c.username)); err != nil {
		return err
	}

	if err := c.api.Post(ctx, fmt.Sprintf("/games/%d/move", c.gameID), mv, nil); err != nil {
		return fmt.Errorf("submit move: %w", err)
	}
	return nil
}

// StartGame asks the server to begin the game and installs the snapshot
// it returns.
func (c *Coordinator) StartGame(ctx context.Context) error {
	var snap game.Snapshot
	if err := c.api.Post(ctx, fmt.Sprintf("/games/%d/start", c.gameID), nil, &snap); err != nil {
		return fmt.Errorf("start game: %w", err)
	}
	c.store.Replace(&snap)
	return nil
}

// History fetches the game's move log.
func (c *Coordinator) History(ctx context.Context) ([]game.Move, error) {
	var moves []game.Move
	if err := c.api.Get(ctx, fmt.Sprintf("/games/%d/history", c.gameID), &moves); err != nil {
		return nil, fmt.Errorf("game history: %w", err)
	}
	return moves, nil
}

func (c *Coordinator) fetch(ctx context.Context) (*game.Snapshot, error) {
	var snap game.Snapshot
	if err := c.api.Get(ctx, fmt.Sprintf("/games/%d", c.gameID), &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (c *Coordinator) loop(ctx context.Context, conn *ws.Manager) {
	for {
		select {
		case <-ctx.Done():
			return

		case m := <-c.inbox:
			switch msg := m.(type) {
			case fetchDone:
				if msg.err != nil {
					c.log.Warn("re-fetch failed", zap.Error(msg.err))
					c.emit(GameError{Message: "failed to refresh game state"})
					break
				}
				c.store.Replace(msg.snap)
			}

		case ev := <-conn.Events():
			switch e := ev.(type) {
			case ws.Connected:
				c.emit(Connected{})
			case ws.Disconnected:
				c.emit(Disconnected{})
			case ws.ConnectionLost:
				c.emit(ConnectionLost{Err: e.Err})
			case ws.Inbound:
				c.classify(ctx, e.Envelope)
			}
		}
	}
}

func (c *Coordinator) classify(ctx context.Context, env ws.Envelope) {
	switch env.Type {
	case msgGameUpdate:
		var snap game.Snapshot
		if err := json.Unmarshal(env.Data, &snap); err != nil {
			c.log.Warn("dropping game_update with bad payload", zap.Error(err))
			return
		}
		c.store.Replace(&snap)

	case msgPlayerJoined, msgPlayerLeft:
		// Not trusted to carry a consistent snapshot: re-fetch off the
		// loop and apply the result when it lands.
		go func() {
			snap, err := c.fetch(ctx)
			select {
			case c.inbox <- fetchDone{snap: snap, err: err}:
			case <-ctx.Done():
			}
		}()

	case msgError:
		c.log.Warn("server error message", zap.String("message", env.Message))
		c.emit(GameError{Message: env.Message})

	default:
		c.log.Info("ignoring unknown message type", zap.String("type", env.Type))
	}
}

func (c *Coordinator) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		c.log.Warn("dropping session event, consumer not keeping up")
	}
}
