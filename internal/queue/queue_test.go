package queue

import (
	"testing"
	"time"

	"taskmesh/internal/task"
)

func TestPushPopFIFO(t *testing.T) {
	q := New()
	q.Push(task.New(1, 0))
	q.Push(task.New(2, 0))
	q.Push(task.New(3, 0))

	for _, want := range []int{1, 2, 3} {
		got, ok := q.PopBlocking()
		if !ok {
			t.Fatalf("PopBlocking() returned !ok, want task %d", want)
		}
		if got.ID() != want {
			t.Fatalf("PopBlocking() = %d, want %d", got.ID(), want)
		}
	}
}

func TestSizeTracksDepth(t *testing.T) {
	q := New()
	if q.Size() != 0 {
		t.Fatalf("Size() = %d, want 0", q.Size())
	}
	q.Push(task.New(1, 0))
	q.Push(task.New(2, 0))
	if q.Size() != 2 {
		t.Fatalf("Size() = %d, want 2", q.Size())
	}
	q.PopBlocking()
	if q.Size() != 1 {
		t.Fatalf("Size() = %d, want 1", q.Size())
	}
}

func TestPopBlockingWaitsThenWakes(t *testing.T) {
	q := New()
	done := make(chan task.Task, 1)
	go func() {
		got, ok := q.PopBlocking()
		if ok {
			done <- got
		}
	}()

	select {
	case <-done:
		t.Fatal("PopBlocking() returned before any push")
	case <-time.After(30 * time.Millisecond):
	}

	q.Push(task.New(42, 0))

	select {
	case got := <-done:
		if got.ID() != 42 {
			t.Fatalf("woke with task %d, want 42", got.ID())
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("PopBlocking() never woke after push")
	}
}

func TestCloseUnblocksAllWaiters(t *testing.T) {
	q := New()
	const waiters = 4
	results := make(chan bool, waiters)
	for i := 0; i < waiters; i++ {
		go func() {
			_, ok := q.PopBlocking()
			results <- ok
		}()
	}
	time.Sleep(20 * time.Millisecond)
	q.Close()

	for i := 0; i < waiters; i++ {
		select {
		case ok := <-results:
			if ok {
				t.Fatal("PopBlocking() returned ok=true on a closed empty queue")
			}
		case <-time.After(200 * time.Millisecond):
			t.Fatal("a waiter never woke after Close()")
		}
	}
}

func TestCloseDiscardsResidentTasks(t *testing.T) {
	q := New()
	q.Push(task.New(1, 0))
	q.Close()

	// Close discards whatever was still queued; nothing is delivered after.
	if q.Size() != 0 {
		t.Fatalf("Size() after Close() = %d, want 0", q.Size())
	}
	_, ok := q.PopBlocking()
	if ok {
		t.Fatal("expected PopBlocking() on closed queue to return ok=false")
	}
}

func TestPushFrontReinsertsAtHead(t *testing.T) {
	q := New()
	q.Push(task.New(1, 0))
	q.PushFront(task.New(2, 0))

	got, _ := q.PopBlocking()
	if got.ID() != 2 {
		t.Fatalf("PopBlocking() = %d, want 2 (reinserted head)", got.ID())
	}
}

func TestDrainEmptiesWithoutClosing(t *testing.T) {
	q := New()
	q.Push(task.New(1, 0))
	q.Push(task.New(2, 0))
	drained := q.Drain()
	if len(drained) != 2 {
		t.Fatalf("Drain() returned %d tasks, want 2", len(drained))
	}
	if q.Size() != 0 {
		t.Fatalf("Size() after Drain() = %d, want 0", q.Size())
	}
	// Still open: a push after Drain must succeed.
	q.Push(task.New(3, 0))
	if q.Size() != 1 {
		t.Fatalf("queue closed unexpectedly after Drain()")
	}
}

func TestPushAfterCloseIsNoop(t *testing.T) {
	q := New()
	q.Close()
	q.Push(task.New(1, 0))
	if q.Size() != 0 {
		t.Fatalf("Size() = %d, want 0 after push on closed queue", q.Size())
	}
}
