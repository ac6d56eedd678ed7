package api

import (
	"context"
	"testing"
	"time"
)

func TestCallPacerPacing(t *testing.T) {
	// 6000 rpm is one permit every 10ms, and zero burst percent clamps the
	// bucket to a single token
	pacer := newCallPacer(6000, 0)

	start := time.Now()
	for i := 0; i < 5; i++ {
		if err := pacer.Wait(context.Background()); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
	}
	elapsed := time.Since(start)

	// First permit is free, the remaining four are paced at 10ms each
	if elapsed < 30*time.Millisecond {
		t.Errorf("5 waits finished in %v, expected pacing to stretch them past 30ms", elapsed)
	}
	if elapsed > 250*time.Millisecond {
		t.Errorf("5 waits took %v, far slower than the configured rate", elapsed)
	}
}

func TestCallPacerBurst(t *testing.T) {
	// 10% of 6000 rpm is a burst of 600, so five calls pass immediately
	pacer := newCallPacer(6000, 10)

	start := time.Now()
	for i := 0; i < 5; i++ {
		if err := pacer.Wait(context.Background()); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("burst waits took %v, expected immediate", elapsed)
	}
}

func TestCallPacerDisabled(t *testing.T) {
	pacer := newCallPacer(0, 15)

	start := time.Now()
	for i := 0; i < 100; i++ {
		if err := pacer.Wait(context.Background()); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("disabled pacer waited %v, expected no pacing", elapsed)
	}
}

func TestCallPacerCancellation(t *testing.T) {
	// 60 rpm leaves the second wait blocked for about a second, long enough
	// to observe the cancellation
	pacer := newCallPacer(60, 0)
	if err := pacer.Wait(context.Background()); err != nil {
		t.Fatalf("first Wait() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	if err := pacer.Wait(ctx); err == nil {
		t.Error("Wait() succeeded despite cancellation")
	}
}

func TestCallPacerBurstFloor(t *testing.T) {
	// 1% of 30 rpm rounds down to zero permits; the floor keeps one
	pacer := newCallPacer(30, 1)
	if err := pacer.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
}
