package message

import (
	"errors"
	"testing"

	"taskmesh/internal/task"
)

func TestLoadUpdateAccessors(t *testing.T) {
	m := NewLoadUpdate(1, 5)
	if m.Kind() != LoadUpdate {
		t.Fatalf("Kind() = %v, want LoadUpdate", m.Kind())
	}
	if m.Receiver() != Broadcast {
		t.Fatalf("Receiver() = %d, want Broadcast", m.Receiver())
	}
	d, err := m.Depth()
	if err != nil || d != 5 {
		t.Fatalf("Depth() = (%d, %v), want (5, nil)", d, err)
	}
	if _, err := m.Task(); !errors.Is(err, ErrWrongVariant) {
		t.Fatalf("Task() on LoadUpdate = %v, want ErrWrongVariant", err)
	}
}

func TestTaskTransferAccessors(t *testing.T) {
	tk := task.New(9, 10)
	m := NewTaskTransfer(0, 1, tk)
	if m.Sender() != 0 || m.Receiver() != 1 {
		t.Fatalf("sender/receiver = %d/%d, want 0/1", m.Sender(), m.Receiver())
	}
	got, err := m.Task()
	if err != nil {
		t.Fatalf("Task() returned error: %v", err)
	}
	if got.ID() != 9 {
		t.Fatalf("Task().ID() = %d, want 9", got.ID())
	}
	if _, err := m.Depth(); !errors.Is(err, ErrWrongVariant) {
		t.Fatalf("Depth() on TaskTransfer = %v, want ErrWrongVariant", err)
	}
}

func TestPeerDiscoveryIsBroadcast(t *testing.T) {
	m := NewPeerDiscovery(3)
	if m.Receiver() != Broadcast {
		t.Fatalf("Receiver() = %d, want Broadcast", m.Receiver())
	}
}

func TestStringShape(t *testing.T) {
	m := NewLoadUpdate(2, 4)
	s := m.String()
	want := "Message[LOAD_UPDATE from=2 to=* depth=4]"
	if s != want {
		t.Fatalf("String() = %q, want %q", s, want)
	}

	tm := NewTaskTransfer(2, 3, task.New(1, 5))
	if tm.String() != "Message[TASK_TRANSFER from=2 to=3 task=1]" {
		t.Fatalf("String() = %q", tm.String())
	}
}
