package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNextTickAligned(t *testing.T) {
	s := New(Options{Interval: time.Hour, AlignToStart: true}, zerolog.Nop())

	now := time.Date(2026, 8, 31, 10, 17, 30, 0, time.UTC)
	next := s.nextTick(now)
	want := time.Date(2026, 8, 31, 11, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("nextTick = %v, want %v", next, want)
	}
}

func TestNextTickUnaligned(t *testing.T) {
	s := New(Options{Interval: time.Hour}, zerolog.Nop())

	now := time.Date(2026, 8, 31, 10, 17, 30, 0, time.UTC)
	next := s.nextTick(now)
	if !next.Equal(now.Add(time.Hour)) {
		t.Fatalf("nextTick = %v, want now+interval", next)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	s := New(Options{Interval: 10 * time.Millisecond}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	ticks := 0
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Run(ctx, func(context.Context, time.Time) error {
			ticks++
			if ticks >= 2 {
				cancel()
			}
			return nil
		})
	}()

	select {
	case err := <-errCh:
		if err != context.Canceled {
			t.Fatalf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
	if ticks < 2 {
		t.Fatalf("ticks = %d, want at least 2", ticks)
	}
}

func TestNewPanicsOnZeroInterval(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for zero interval")
		}
	}()
	New(Options{}, zerolog.Nop())
}
