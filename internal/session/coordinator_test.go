package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/demerle/liars-dice/internal/api"
	"github.com/demerle/liars-dice/internal/game"
)

// fakeBackend is a miniature of the real server: the game endpoints plus
// the /ws/game/{gameId} socket, with hooks to mutate the "authoritative"
// snapshot and push envelopes.
type fakeBackend struct {
	t *testing.T

	mu   sync.Mutex
	snap game.Snapshot

	fetches atomic.Int32
	moves   []game.Move

	conns chan *websocket.Conn
	srv   *httptest.Server
}

func newFakeBackend(t *testing.T, initial game.Snapshot) *fakeBackend {
	t.Helper()
	b := &fakeBackend{t: t, snap: initial, conns: make(chan *websocket.Conn, 4)}

	r := chi.NewRouter()
	r.Get("/games/{gameID}", func(w http.ResponseWriter, req *http.Request) {
		b.fetches.Add(1)
		b.mu.Lock()
		snap := b.snap
		b.mu.Unlock()
		writeOK(w, snap)
	})
	r.Post("/games/{gameID}/move", func(w http.ResponseWriter, req *http.Request) {
		var mv game.Move
		if err := json.NewDecoder(req.Body).Decode(&mv); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"success":false,"message":"bad move"}`))
			return
		}
		b.mu.Lock()
		b.moves = append(b.moves, mv)
		b.mu.Unlock()
		writeOK(w, nil)
	})
	r.Post("/games/{gameID}/start", func(w http.ResponseWriter, req *http.Request) {
		b.mu.Lock()
		b.snap.Status = game.StatusInProgress
		snap := b.snap
		b.mu.Unlock()
		writeOK(w, snap)
	})
	r.Get("/games/{gameID}/history", func(w http.ResponseWriter, req *http.Request) {
		writeOK(w, []game.Move{
			{PlayerUsername: "alice", Type: game.MoveBid, BidQuantity: 2, BidFaceValue: 3},
			{PlayerUsername: "bob", Type: game.MoveChallenge},
		})
	})
	r.Get("/ws/game/{gameID}", func(w http.ResponseWriter, req *http.Request) {
		conn, err := websocket.Accept(w, req, nil)
		if err != nil {
			return
		}
		b.conns <- conn
		// Hold the session open until the client goes away.
		for {
			if _, _, err := conn.Read(req.Context()); err != nil {
				return
			}
		}
	})

	b.srv = httptest.NewServer(r)
	t.Cleanup(b.srv.Close)
	return b
}

func writeOK(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	resp := map[string]any{"success": true}
	if data != nil {
		resp["data"] = data
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func (b *fakeBackend) setSnapshot(snap game.Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.snap = snap
}

func (b *fakeBackend) recordedMoves() []game.Move {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]game.Move(nil), b.moves...)
}

// awaitConn returns the next accepted socket so the test can push.
func (b *fakeBackend) awaitConn() *websocket.Conn {
	b.t.Helper()
	select {
	case conn := <-b.conns:
		return conn
	case <-time.After(3 * time.Second):
		b.t.Fatalf("client never connected")
		return nil // unreachable
	}
}

func (b *fakeBackend) push(conn *websocket.Conn, payload string) {
	b.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, []byte(payload)); err != nil {
		b.t.Errorf("push: %v", err)
	}
}

func inProgressSnapshot(round int) game.Snapshot {
	return game.Snapshot{
		GameID:                7,
		Status:                game.StatusInProgress,
		CurrentPlayerUsername: "alice",
		RoundNumber:           round,
		Players: []game.Player{
			{Username: "alice", DiceCount: 5, Active: true, PlayerOrder: 0},
			{Username: "bob", DiceCount: 5, Active: true, PlayerOrder: 1},
		},
	}
}

func attach(t *testing.T, b *fakeBackend, username string) *Coordinator {
	t.Helper()
	coord := New(api.New(b.srv.URL, nil, zap.NewNop()), username, 7, zap.NewNop())
	if err := coord.Attach(context.Background()); err != nil {
		t.Fatalf("attach: %v", err)
	}
	t.Cleanup(coord.Detach)
	return coord
}

// helper: receive one session event with a timeout so tests never hang
func recvEvent(t *testing.T, ch <-chan Event, within time.Duration) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(within):
		t.Fatalf("timed out waiting for session event")
		return nil // unreachable
	}
}

func recvSnapshot(t *testing.T, ch <-chan *game.Snapshot, within time.Duration) *game.Snapshot {
	t.Helper()
	select {
	case snap, ok := <-ch:
		if !ok {
			t.Fatalf("store subscription closed unexpectedly")
		}
		return snap
	case <-time.After(within):
		t.Fatalf("timed out waiting for snapshot")
		return nil // unreachable
	}
}

func TestAttach_FetchesThenConnects(t *testing.T) {
	assert := assert.New(t)
	b := newFakeBackend(t, inProgressSnapshot(1))

	coord := attach(t, b, "alice")
	b.awaitConn()

	snap := coord.Store().Current()
	if assert.NotNil(snap) {
		assert.Equal(1, snap.RoundNumber)
		assert.Equal(int64(7), snap.GameID)
	}
	assert.Equal(int32(1), b.fetches.Load())

	ev := recvEvent(t, coord.Events(), 3*time.Second)
	assert.IsType(Connected{}, ev)

	assert.ErrorIs(coord.Attach(context.Background()), ErrAlreadyAttached)
}

func TestGameUpdate_AppliedDirectlyWithoutRefetch(t *testing.T) {
	assert := assert.New(t)
	b := newFakeBackend(t, inProgressSnapshot(1))

	coord := attach(t, b, "alice")
	conn := b.awaitConn()

	updates, cancel := coord.Store().Subscribe()
	defer cancel()

	next := inProgressSnapshot(2)
	data, _ := json.Marshal(next)
	b.push(conn, `{"type":"game_update","data":`+string(data)+`}`)

	snap := recvSnapshot(t, updates, 3*time.Second)
	assert.Equal(2, snap.RoundNumber)
	assert.Equal(int32(1), b.fetches.Load(), "a trusted push must not trigger a fetch")
}

func TestPlayerJoined_TriggersRefetchNotDirectInstall(t *testing.T) {
	assert := assert.New(t)
	b := newFakeBackend(t, inProgressSnapshot(1))

	coord := attach(t, b, "alice")
	conn := b.awaitConn()

	updates, cancel := coord.Store().Subscribe()
	defer cancel()

	// The notification carries a payload, but it must never be
	// installed; the authoritative fetch result (round 3) wins.
	b.setSnapshot(inProgressSnapshot(3))
	decoy, _ := json.Marshal(inProgressSnapshot(99))
	b.push(conn, `{"type":"player_joined","data":`+string(decoy)+`,"message":"carol joined"}`)

	snap := recvSnapshot(t, updates, 3*time.Second)
	assert.Equal(3, snap.RoundNumber, "fetch-sourced snapshot expected, not the push payload")
	assert.Equal(int32(2), b.fetches.Load())
}

func TestPlayerLeft_TriggersRefetch(t *testing.T) {
	assert := assert.New(t)
	b := newFakeBackend(t, inProgressSnapshot(1))

	coord := attach(t, b, "alice")
	conn := b.awaitConn()

	updates, cancel := coord.Store().Subscribe()
	defer cancel()

	b.setSnapshot(inProgressSnapshot(4))
	b.push(conn, `{"type":"player_left","message":"bob left"}`)

	snap := recvSnapshot(t, updates, 3*time.Second)
	assert.Equal(4, snap.RoundNumber)
	assert.Equal(int32(2), b.fetches.Load())
}

func TestServerError_SurfacedWithoutMutation(t *testing.T) {
	assert := assert.New(t)
	b := newFakeBackend(t, inProgressSnapshot(1))

	coord := attach(t, b, "alice")
	conn := b.awaitConn()

	recvEvent(t, coord.Events(), 3*time.Second) // Connected

	b.push(conn, `{"type":"error","message":"Game not found."}`)

	ev := recvEvent(t, coord.Events(), 3*time.Second)
	gameErr, ok := ev.(GameError)
	if assert.True(ok, "expected GameError, got %T", ev) {
		assert.Equal("Game not found.", gameErr.Message)
	}
	assert.Equal(1, coord.Store().Current().RoundNumber, "snapshot must be untouched")
	assert.Equal(int32(1), b.fetches.Load())
}

func TestUnknownMessageType_Ignored(t *testing.T) {
	assert := assert.New(t)
	b := newFakeBackend(t, inProgressSnapshot(1))

	coord := attach(t, b, "alice")
	conn := b.awaitConn()

	updates, cancel := coord.Store().Subscribe()
	defer cancel()

	b.push(conn, `{"type":"chat","message":"hi"}`)

	// A later trusted update still flows; the unknown type changed
	// nothing.
	data, _ := json.Marshal(inProgressSnapshot(2))
	b.push(conn, `{"type":"game_update","data":`+string(data)+`}`)

	snap := recvSnapshot(t, updates, 3*time.Second)
	assert.Equal(2, snap.RoundNumber)
	assert.Equal(int32(1), b.fetches.Load())
}

func TestSubmitMove_IllegalNeverReachesServer(t *testing.T) {
	assert := assert.New(t)

	initial := inProgressSnapshot(1)
	lastMove := game.NewBid(3, 4)
	initial.LastMove = &lastMove
	b := newFakeBackend(t, initial)

	coord := attach(t, b, "bob") // alice's turn, not bob's
	b.awaitConn()

	err := coord.SubmitMove(context.Background(), game.NewBid(4, 1))
	assert.ErrorIs(err, game.ErrNotYourTurn)
	assert.Empty(b.recordedMoves())
}

func TestSubmitMove_TooLowBidRejectedLocally(t *testing.T) {
	assert := assert.New(t)

	initial := inProgressSnapshot(1)
	lastMove := game.NewBid(3, 4)
	initial.LastMove = &lastMove
	b := newFakeBackend(t, initial)

	coord := attach(t, b, "alice")
	b.awaitConn()

	err := coord.SubmitMove(context.Background(), game.NewBid(2, 6))
	assert.ErrorIs(err, game.ErrBidTooLow)
	assert.Empty(b.recordedMoves())
}

func TestSubmitMove_LegalPostedAndSnapshotUntouched(t *testing.T) {
	assert := assert.New(t)

	initial := inProgressSnapshot(1)
	lastMove := game.NewBid(3, 4)
	initial.LastMove = &lastMove
	b := newFakeBackend(t, initial)

	coord := attach(t, b, "alice")
	b.awaitConn()

	err := coord.SubmitMove(context.Background(), game.NewBid(4, 1))
	assert.NoError(err)

	moves := b.recordedMoves()
	if assert.Len(moves, 1) {
		assert.Equal(game.MoveBid, moves[0].Type)
		assert.Equal(4, moves[0].BidQuantity)
		assert.Equal(1, moves[0].BidFaceValue)
	}

	// No optimistic mutation: the store still shows the pre-move state
	// until the server pushes.
	snap := coord.Store().Current()
	assert.Equal(1, snap.RoundNumber)
	if assert.NotNil(snap.LastMove) {
		assert.Equal(3, snap.LastMove.BidQuantity)
	}
}

func TestStartGame_AppliesReturnedSnapshot(t *testing.T) {
	assert := assert.New(t)

	waiting := inProgressSnapshot(0)
	waiting.Status = game.StatusWaiting
	b := newFakeBackend(t, waiting)

	coord := attach(t, b, "alice")
	b.awaitConn()

	assert.NoError(coord.StartGame(context.Background()))
	assert.Equal(game.StatusInProgress, coord.Store().Current().Status)
}

func TestHistory_ReturnsMoveLog(t *testing.T) {
	assert := assert.New(t)
	b := newFakeBackend(t, inProgressSnapshot(1))

	coord := attach(t, b, "alice")
	b.awaitConn()

	moves, err := coord.History(context.Background())
	assert.NoError(err)
	if assert.Len(moves, 2) {
		assert.Equal("alice", moves[0].PlayerUsername)
		assert.True(moves[1].IsChallenge())
	}
}

func TestDetach_StopsEverything(t *testing.T) {
	assert := assert.New(t)
	b := newFakeBackend(t, inProgressSnapshot(1))

	coord := attach(t, b, "alice")
	b.awaitConn()

	updates, cancel := coord.Store().Subscribe()
	defer cancel()

	coord.Detach()

	// Subscriptions are released on detach.
	select {
	case _, ok := <-updates:
		assert.False(ok, "expected subscription to be closed")
	case <-time.After(3 * time.Second):
		t.Fatalf("subscription not closed on detach")
	}

	// And moves are refused afterwards.
	err := coord.SubmitMove(context.Background(), game.NewBid(4, 1))
	assert.ErrorIs(err, ErrNotAttached)
}
