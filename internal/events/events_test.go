package events

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mkjhawar/NewAvanues-sub007/internal/types"
)

type chanSource struct {
	ch chan Event
}

func (s *chanSource) Events() <-chan Event { return s.ch }

func screenEvent(window string) Event {
	return Event{ScreenEvent: types.ScreenEvent{
		Package:   "com.example.mail",
		WindowID:  window,
		Title:     "Inbox",
		Kind:      types.EventScreenChanged,
		Timestamp: time.Now(),
	}}
}

func TestPumpDeliversAllEventsUnderCapacity(t *testing.T) {
	var mu sync.Mutex
	var got []string
	p := New(func(ctx context.Context, ev Event) {
		mu.Lock()
		got = append(got, ev.WindowID)
		mu.Unlock()
	}, Config{BufferSize: 16, Workers: 3})
	p.Start(context.Background())

	src := &chanSource{ch: make(chan Event)}
	p.Attach(src)

	const n = 10
	for i := 0; i < n; i++ {
		src.ch <- screenEvent(fmt.Sprintf("w%d", i))
	}
	close(src.ch)

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		done := len(got) == n
		mu.Unlock()
		if done {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("delivered %d of %d events", len(got), n)
		case <-time.After(5 * time.Millisecond):
		}
	}
	p.Stop()

	if p.Dropped() != 0 {
		t.Errorf("dropped = %d under capacity, want 0", p.Dropped())
	}
	seen := map[string]bool{}
	mu.Lock()
	for _, w := range got {
		if seen[w] {
			t.Errorf("event %s delivered twice", w)
		}
		seen[w] = true
	}
	mu.Unlock()
}

func TestPumpShedsOldestWhenSaturated(t *testing.T) {
	entered := make(chan string, 16)
	gate := make(chan struct{})
	p := New(func(ctx context.Context, ev Event) {
		entered <- ev.WindowID
		<-gate
	}, Config{BufferSize: 2, Workers: 1})
	p.Start(context.Background())

	// the single worker takes e1 and parks on the gate
	p.Offer(screenEvent("e1"))
	select {
	case w := <-entered:
		if w != "e1" {
			t.Fatalf("worker started on %s, want e1", w)
		}
	case <-time.After(time.Second):
		t.Fatalf("worker never picked up first event")
	}

	// buffer (cap 2) fills with e2, e3; e4 and e5 must shed the oldest
	for _, w := range []string{"e2", "e3", "e4", "e5"} {
		p.Offer(screenEvent(w))
	}
	if p.Dropped() != 2 {
		t.Fatalf("dropped = %d, want 2", p.Dropped())
	}

	close(gate)
	var survivors []string
	for i := 0; i < 2; i++ {
		select {
		case w := <-entered:
			survivors = append(survivors, w)
		case <-time.After(time.Second):
			t.Fatalf("only %d buffered events delivered after release", len(survivors))
		}
	}
	p.Stop()

	want := []string{"e4", "e5"}
	for i := range want {
		if survivors[i] != want[i] {
			t.Fatalf("survivors = %v, want %v (oldest shed first)", survivors, want)
		}
	}
}

func TestPumpStopIsIdempotent(t *testing.T) {
	p := New(func(ctx context.Context, ev Event) {}, Config{})
	p.Start(context.Background())
	p.Stop()
	p.Stop()
}
