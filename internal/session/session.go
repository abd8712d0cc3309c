// Package session holds the process-local, per-operator dialog state used by
// multi-turn admin flows. Sessions are not persisted; a restart abandons
// half-finished input.
package session

import (
	"sync"
	"time"
)

type Flow string

const (
	FlowAddIdentity Flow = "add_identity"
	FlowScheduleJob Flow = "schedule_job"
)

// maxAge bounds how long an abandoned flow lingers before Get treats it as
// expired.
const maxAge = 10 * time.Minute

// Session is one in-progress dialog with an operator.
type Session struct {
	Operator  int64
	Flow      Flow
	Step      int
	Fields    map[string]string
	StartedAt time.Time
}

// Store is keyed by operator id. One live session per operator: starting a
// new flow replaces any previous one.
type Store struct {
	mu  sync.Mutex
	m   map[int64]*Session
	now func() time.Time
}

func NewStore() *Store {
	return &Store{m: map[int64]*Session{}, now: time.Now}
}

func (s *Store) Begin(operator int64, flow Flow) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := &Session{
		Operator:  operator,
		Flow:      flow,
		Fields:    map[string]string{},
		StartedAt: s.now(),
	}
	s.m[operator] = sess
	return sess
}

// Get returns the operator's live session, or nil. Stale sessions are
// dropped on access rather than by a sweeper; there is at most one operator.
func (s *Store) Get(operator int64) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.m[operator]
	if !ok {
		return nil
	}
	if s.now().Sub(sess.StartedAt) > maxAge {
		delete(s.m, operator)
		return nil
	}
	return sess
}

// Clear ends the operator's flow. Clearing an absent session is a no-op, so
// it is safe to call on every completed or unrelated command.
func (s *Store) Clear(operator int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, operator)
}
