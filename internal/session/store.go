package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ngabriel/parley/internal/fault"
)

// Store is the single authoritative in-memory representation of the current
// session. Only the turn controller mutates it; UI code observes snapshots
// through Subscribe, which keeps history ordering guarantees intact.
type Store struct {
	mu    sync.RWMutex
	sess  Session
	hooks []func(Session)
}

func NewStore() *Store {
	return &Store{sess: Session{Status: StatusIdle}}
}

// Subscribe registers a hook invoked with a snapshot after every mutation.
// Hooks run outside the store lock.
func (s *Store) Subscribe(hook func(Session)) {
	if hook == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, hook)
}

// StartSession generates a fresh session id and moves idle -> opening.
// History is cleared; the selection is fixed for the session's lifetime.
func (s *Store) StartSession(sel Selection) (string, error) {
	s.mu.Lock()
	if s.sess.Status != StatusIdle {
		status := s.sess.Status
		s.mu.Unlock()
		return "", fault.New(fault.KindInvalidState, "cannot start session while %s; reset first", status)
	}
	now := time.Now().UTC()
	s.sess = Session{
		ID:             uuid.NewString(),
		Selection:      sel,
		Status:         StatusOpening,
		StartedAt:      now,
		LastActivityAt: now,
	}
	id := s.sess.ID
	snap := clone(s.sess)
	s.mu.Unlock()

	s.notify(snap)
	return id, nil
}

// MarkActive moves opening -> active.
func (s *Store) MarkActive() error {
	return s.transition(StatusActive, StatusOpening)
}

// MarkEnding moves opening or active -> ending. This is the escape hatch:
// end-session is legal from every non-terminal state.
func (s *Store) MarkEnding() error {
	return s.transition(StatusEnding, StatusOpening, StatusActive)
}

// MarkEnded moves ending -> ended. Ended is terminal for this session id.
func (s *Store) MarkEnded() error {
	return s.transition(StatusEnded, StatusEnding)
}

func (s *Store) transition(to Status, from ...Status) error {
	s.mu.Lock()
	ok := false
	for _, f := range from {
		if s.sess.Status == f {
			ok = true
			break
		}
	}
	if !ok {
		status := s.sess.Status
		s.mu.Unlock()
		return fault.New(fault.KindInvalidState, "cannot move %s -> %s", status, to)
	}
	s.sess.Status = to
	s.sess.LastActivityAt = time.Now().UTC()
	snap := clone(s.sess)
	s.mu.Unlock()

	s.notify(snap)
	return nil
}

// AppendTurn appends strictly at the tail. Valid while opening or active.
func (s *Store) AppendTurn(turn Turn) (Turn, error) {
	s.mu.Lock()
	if s.sess.Status != StatusOpening && s.sess.Status != StatusActive {
		status := s.sess.Status
		s.mu.Unlock()
		return Turn{}, fault.New(fault.KindInvalidState, "cannot append turn while %s", status)
	}
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}
	s.sess.History = append(s.sess.History, turn)
	s.sess.LastActivityAt = time.Now().UTC()
	snap := clone(s.sess)
	s.mu.Unlock()

	s.notify(snap)
	return turn, nil
}

// RollbackTurn removes the tail turn iff it matches turnID. It exists for
// exactly one caller: undoing the optimistic user turn after a failed send,
// so history only ever reflects confirmed exchanges.
func (s *Store) RollbackTurn(turnID string) error {
	s.mu.Lock()
	n := len(s.sess.History)
	if n == 0 || s.sess.History[n-1].ID != turnID {
		s.mu.Unlock()
		return fault.New(fault.KindInvalidState, "turn %s is not the history tail", turnID)
	}
	s.sess.History = s.sess.History[:n-1]
	snap := clone(s.sess)
	s.mu.Unlock()

	s.notify(snap)
	return nil
}

// Reset returns to idle and clears all fields. Idempotent.
func (s *Store) Reset() {
	s.mu.Lock()
	s.sess = Session{Status: StatusIdle}
	snap := clone(s.sess)
	s.mu.Unlock()

	s.notify(snap)
}

// Snapshot returns a deep copy of the current session.
func (s *Store) Snapshot() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.sess)
}

func (s *Store) notify(snap Session) {
	s.mu.RLock()
	hooks := s.hooks
	s.mu.RUnlock()
	for _, hook := range hooks {
		hook(clone(snap))
	}
}

func clone(sess Session) Session {
	c := sess
	if sess.History != nil {
		c.History = make([]Turn, len(sess.History))
		copy(c.History, sess.History)
	}
	return c
}
