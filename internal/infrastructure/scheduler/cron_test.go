package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestStartRejectsInvalidSchedule(t *testing.T) {
	t.Parallel()

	s := NewCronScheduler("every now and then", nil)
	if err := s.Start(context.Background(), func(time.Time) {}); err == nil {
		t.Fatal("expected parse error")
	}
	if s.Running() {
		t.Fatal("scheduler must not run after a failed start")
	}
}

func TestStartRequiresJob(t *testing.T) {
	t.Parallel()

	if err := NewCronScheduler("@every 1s", nil).Start(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil job")
	}
}

func TestSchedulerFiresAndStops(t *testing.T) {
	t.Parallel()

	fired := make(chan time.Time, 4)
	s := NewCronScheduler("@every 1s", nil)
	if err := s.Start(context.Background(), func(at time.Time) { fired <- at }); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.Start(context.Background(), func(time.Time) {}); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}

	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("job never fired")
	}

	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if s.Running() {
		t.Fatal("scheduler still running after stop")
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("second stop must be a no-op: %v", err)
	}
}

func TestSchedulerStopsWithContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	s := NewCronScheduler("@every 1h", nil)
	if err := s.Start(ctx, func(time.Time) {}); err != nil {
		t.Fatalf("start: %v", err)
	}
	cancel()

	deadline := time.Now().Add(3 * time.Second)
	for s.Running() {
		if time.Now().After(deadline) {
			t.Fatal("scheduler ignored context cancellation")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
