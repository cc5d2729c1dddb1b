package peerview

import "testing"

func TestObserveUpserts(t *testing.T) {
	v := New()
	v.Observe(1, 5)
	v.Observe(1, 2)
	snap := v.Snapshot()
	if snap[1] != 2 {
		t.Fatalf("snapshot[1] = %d, want 2 (last write wins)", snap[1])
	}
}

func TestPickCheaperThanStrict(t *testing.T) {
	v := New()
	v.Observe(1, 5)
	if _, ok := v.PickCheaperThan(5); ok {
		t.Fatal("PickCheaperThan(5) found a peer at exactly 5, want strict <")
	}
	id, ok := v.PickCheaperThan(6)
	if !ok || id != 1 {
		t.Fatalf("PickCheaperThan(6) = (%d, %v), want (1, true)", id, ok)
	}
}

func TestPickCheaperThanTieBreaksOnSmallestID(t *testing.T) {
	v := New()
	v.Observe(2, 0)
	v.Observe(1, 0)
	v.Observe(3, 0)
	id, ok := v.PickCheaperThan(5)
	if !ok || id != 1 {
		t.Fatalf("PickCheaperThan(5) = (%d, %v), want (1, true)", id, ok)
	}
}

func TestPickCheaperThanEmptyView(t *testing.T) {
	v := New()
	if _, ok := v.PickCheaperThan(10); ok {
		t.Fatal("PickCheaperThan on empty view returned ok=true")
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	v := New()
	v.Observe(1, 4)
	snap := v.Snapshot()
	snap[1] = 999
	if got, _ := v.PickCheaperThan(1000); got != 1 {
		t.Fatal("mutating snapshot leaked into PeerView internal state")
	}
	if v.Snapshot()[1] != 4 {
		t.Fatal("mutating snapshot leaked into PeerView internal state")
	}
}
