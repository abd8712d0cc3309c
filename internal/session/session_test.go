package session

import (
	"testing"
	"time"
)

func TestLifecycle(t *testing.T) {
	t.Parallel()
	s := NewStore()

	if got := s.Get(1); got != nil {
		t.Fatalf("Get before Begin = %+v", got)
	}

	sess := s.Begin(1, FlowAddIdentity)
	sess.Fields["kind"] = "group"
	sess.Step = 1

	got := s.Get(1)
	if got == nil || got.Flow != FlowAddIdentity || got.Fields["kind"] != "group" {
		t.Fatalf("Get = %+v", got)
	}

	// One live session per operator: a new flow replaces the old one.
	s.Begin(1, FlowScheduleJob)
	if got := s.Get(1); got.Flow != FlowScheduleJob || got.Step != 0 {
		t.Fatalf("replaced session = %+v", got)
	}

	s.Clear(1)
	if got := s.Get(1); got != nil {
		t.Fatalf("Get after Clear = %+v", got)
	}
	s.Clear(1) // clearing again is a no-op
}

func TestStaleSessionExpires(t *testing.T) {
	t.Parallel()
	s := NewStore()
	now := time.Now()
	s.now = func() time.Time { return now }

	s.Begin(1, FlowAddIdentity)
	now = now.Add(maxAge + time.Second)
	if got := s.Get(1); got != nil {
		t.Fatalf("stale session survived: %+v", got)
	}
}

func TestSessionsAreOperatorScoped(t *testing.T) {
	t.Parallel()
	s := NewStore()
	s.Begin(1, FlowAddIdentity)
	s.Begin(2, FlowScheduleJob)

	if got := s.Get(1); got == nil || got.Flow != FlowAddIdentity {
		t.Fatalf("operator 1 session = %+v", got)
	}
	s.Clear(1)
	if got := s.Get(2); got == nil || got.Flow != FlowScheduleJob {
		t.Fatalf("operator 2 session affected by other clear: %+v", got)
	}
}
