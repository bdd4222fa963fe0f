package browser

import "testing"

func TestSessionLRUEvictsLeastRecentlyUsed(t *testing.T) {
	l := newSessionLRU(2)

	l.touch("a")
	l.touch("b")

	victim, ok := l.evictCandidate()
	if !ok || victim != "a" {
		t.Fatalf("evictCandidate = %q, %v; want a", victim, ok)
	}

	// Re-touching "a" makes "b" the oldest.
	l.touch("a")
	victim, ok = l.evictCandidate()
	if !ok || victim != "b" {
		t.Fatalf("evictCandidate after touch = %q, %v; want b", victim, ok)
	}
}

func TestSessionLRUNoEvictionBelowCap(t *testing.T) {
	l := newSessionLRU(3)
	l.touch("a")
	l.touch("b")

	if victim, ok := l.evictCandidate(); ok {
		t.Fatalf("unexpected eviction candidate %q below cap", victim)
	}
}

func TestSessionLRURemove(t *testing.T) {
	l := newSessionLRU(2)
	l.touch("a")
	l.touch("b")
	l.remove("a")

	if victim, ok := l.evictCandidate(); ok {
		t.Fatalf("unexpected eviction candidate %q after removal", victim)
	}

	l.touch("c")
	victim, ok := l.evictCandidate()
	if !ok || victim != "b" {
		t.Fatalf("evictCandidate = %q, %v; want b", victim, ok)
	}
}

func TestSessionLRUDefaultCap(t *testing.T) {
	l := newSessionLRU(0)
	if l.max != DefaultMaxSessions {
		t.Fatalf("max = %d, want default %d", l.max, DefaultMaxSessions)
	}
}
