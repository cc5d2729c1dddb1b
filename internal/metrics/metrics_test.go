package metrics

import "testing"

func TestObserveDepthAndGather(t *testing.T) {
	r := New()
	r.ObserveDepth(1, 5)
	r.IncTasksProcessed(1)
	r.IncOffloadSent(1)
	r.IncOffloadReceived(2)
	r.ObserveGossipTick(1, 0.005)

	families, err := r.Gatherer().Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	if len(families) == 0 {
		t.Fatal("Gather() returned no metric families")
	}
}

func TestSeparateRegistriesDontCollide(t *testing.T) {
	a := New()
	b := New()
	a.ObserveDepth(1, 3)
	b.ObserveDepth(1, 9)
	// Distinct underlying prometheus.Registry instances must not panic on
	// double-registration of the same metric name.
	if _, err := a.Gatherer().Gather(); err != nil {
		t.Fatalf("a.Gather() error = %v", err)
	}
	if _, err := b.Gatherer().Gather(); err != nil {
		t.Fatalf("b.Gather() error = %v", err)
	}
}
