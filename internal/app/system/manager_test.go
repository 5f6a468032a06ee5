package system

import (
	"context"
	"errors"
	"testing"
)

type probeService struct {
	name     string
	startErr error
	events   *[]string
}

func (p probeService) Name() string { return p.name }

func (p probeService) Start(context.Context) error {
	if p.startErr != nil {
		return p.startErr
	}
	*p.events = append(*p.events, "start:"+p.name)
	return nil
}

func (p probeService) Stop(context.Context) error {
	*p.events = append(*p.events, "stop:"+p.name)
	return nil
}

func TestManagerStartOrderAndReverseStop(t *testing.T) {
	var events []string
	m := NewManager()
	for _, name := range []string{"a", "b", "c"} {
		if err := m.Register(probeService{name: name, events: &events}); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}

	ctx := context.Background()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	want := []string{"start:a", "start:b", "start:c", "stop:c", "stop:b", "stop:a"}
	if len(events) != len(want) {
		t.Fatalf("unexpected events %v", events)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("event %d = %s, want %s", i, events[i], want[i])
		}
	}
}

func TestManagerStartFailureUnwinds(t *testing.T) {
	var events []string
	m := NewManager()
	if err := m.Register(probeService{name: "ok", events: &events}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := m.Register(probeService{name: "bad", startErr: errors.New("boom"), events: &events}); err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := m.Start(context.Background()); err == nil {
		t.Fatal("expected start failure")
	}

	want := []string{"start:ok", "stop:ok"}
	if len(events) != len(want) || events[0] != want[0] || events[1] != want[1] {
		t.Fatalf("failed start must unwind started services, got %v", events)
	}
}

func TestManagerRejectsDuplicatesAndLateRegistration(t *testing.T) {
	var events []string
	m := NewManager()
	if err := m.Register(probeService{name: "dup", events: &events}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := m.Register(probeService{name: "dup", events: &events}); err == nil {
		t.Fatal("expected duplicate name rejection")
	}

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.Register(NoopService{ServiceName: "late"}); err == nil {
		t.Fatal("expected late registration rejection")
	}
}
