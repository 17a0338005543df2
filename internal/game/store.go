package game

import "sync"

// Store holds the single canonical snapshot of one game. Writers replace
// the whole snapshot; there is no partial merge path. Subscribers get one
// notification per structurally distinct snapshot.
type Store struct {
	mu      sync.RWMutex
	snap    *Snapshot
	subs    map[int]chan *Snapshot
	nextSub int
	closed  bool
}

func NewStore() *Store {
	return &Store{subs: make(map[int]chan *Snapshot)}
}

// Replace atomically swaps the canonical snapshot. Replacing with a
// snapshot equal to the current one is a no-op for subscribers, so a
// duplicate push or a redundant re-fetch causes no duplicate side effects.
func (st *Store) Replace(s *Snapshot) {
	if s == nil {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.closed {
		return
	}
	if s.Equal(st.snap) {
		return
	}
	st.snap = s
	for id, ch := range st.subs {
		select {
		case ch <- s:
		default:
			// Subscriber is slow/full - drop them.
			close(ch)
			delete(st.subs, id)
		}
	}
}

// Current returns the latest snapshot, or nil before the first replace.
func (st *Store) Current() *Snapshot {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.snap
}

// LastMove returns the current snapshot's last move, or nil.
func (st *Store) LastMove() *Move {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if st.snap == nil {
		return nil
	}
	return st.snap.LastMove
}

// Subscribe registers for snapshot replacements. The returned cancel
// func must be called when done; the channel is closed on cancel or
// store close.
func (st *Store) Subscribe() (<-chan *Snapshot, func()) {
	st.mu.Lock()
	defer st.mu.Unlock()
	ch := make(chan *Snapshot, 8)
	if st.closed {
		close(ch)
		return ch, func() {}
	}
	id := st.nextSub
	st.nextSub++
	st.subs[id] = ch
	return ch, func() {
		st.mu.Lock()
		defer st.mu.Unlock()
		if c, ok := st.subs[id]; ok {
			close(c)
			delete(st.subs, id)
		}
	}
}

// Close drops all subscriptions. Further replaces are ignored.
func (st *Store) Close() {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.closed {
		return
	}
	st.closed = true
	for id, ch := range st.subs {
		close(ch)
		delete(st.subs, id)
	}
}
