package workload

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestStateConcurrentAdd(t *testing.T) {
	t.Parallel()
	var s State
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Add("x")
		}()
	}
	wg.Wait()
	if got := len(s.Get()); got != 100 {
		t.Errorf("len(Get()) = %d, want 100", got)
	}
}

func TestSimDuration(t *testing.T) {
	t.Parallel()
	sim := NewSim(nil)
	sim.Unit = time.Millisecond

	tests := []struct {
		id   uint32
		want time.Duration
	}{
		{0, 0},
		{1, time.Millisecond},
		{2, 12 * time.Millisecond},
		{6, 6 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := sim.Duration(tt.id); got != tt.want {
			t.Errorf("Duration(%d) = %s, want %s", tt.id, got, tt.want)
		}
	}
}

func TestSimPayloadAppendsID(t *testing.T) {
	t.Parallel()
	state := &State{}
	sim := NewSim(state)
	sim.Unit = time.Millisecond

	for _, id := range []uint32{0, 13, 1} {
		if err := sim.Payload(id)(context.Background()); err != nil {
			t.Fatalf("Payload(%d): %v", id, err)
		}
	}
	if got := state.Get(); got != "0131" {
		t.Errorf("Get() = %q, want %q", got, "0131")
	}
}

func TestSimPayloadCanceled(t *testing.T) {
	t.Parallel()
	state := &State{}
	sim := NewSim(state)
	sim.Unit = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := sim.Payload(3)(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Payload(3) = %v, want context.DeadlineExceeded", err)
	}
	if got := state.Get(); got != "" {
		t.Errorf("Get() = %q after cancellation, want empty", got)
	}
}
