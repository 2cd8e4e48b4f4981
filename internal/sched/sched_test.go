package sched

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestFire_SkipsWhileRunning(t *testing.T) {
	var runs int32
	var once sync.Once
	release := make(chan struct{})
	started := make(chan struct{})

	j := &Job{
		Name: "slow",
		Fn: func(ctx context.Context) error {
			atomic.AddInt32(&runs, 1)
			once.Do(func() { close(started) })
			<-release
			return nil
		},
	}
	s := New(nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.fire(context.Background(), j)
	}()
	<-started

	// Second firing while the first is in flight must be a no-op.
	s.fire(context.Background(), j)
	if got := atomic.LoadInt32(&runs); got != 1 {
		t.Fatalf("overlapping fire ran the job: runs = %d", got)
	}

	close(release)
	wg.Wait()

	// Slot is free again; release is closed so this run completes.
	s.fire(context.Background(), j)
	if got := atomic.LoadInt32(&runs); got != 2 {
		t.Fatalf("runs after release = %d, want 2", got)
	}
}

func TestFire_RecoversFromPanic(t *testing.T) {
	j := &Job{
		Name: "boom",
		Fn: func(ctx context.Context) error {
			panic("worker blew up")
		},
	}
	s := New(nil)

	// Must not escape fire.
	s.fire(context.Background(), j)

	// The slot must be released after a panic.
	ran := false
	j.Fn = func(ctx context.Context) error {
		ran = true
		return nil
	}
	s.fire(context.Background(), j)
	if !ran {
		t.Error("run slot not released after panic")
	}
}

func TestFire_ErrorDoesNotStopJob(t *testing.T) {
	var runs int
	j := &Job{
		Name: "flaky",
		Fn: func(ctx context.Context) error {
			runs++
			if runs == 1 {
				return errors.New("transient")
			}
			return nil
		},
	}
	s := New(nil)
	s.fire(context.Background(), j)
	s.fire(context.Background(), j)
	if runs != 2 {
		t.Errorf("runs = %d, want 2", runs)
	}
}

func TestRun_StartupAndShutdown(t *testing.T) {
	var startup int32
	s := New(nil)
	s.Add(&Job{
		Name:         "bootstrap",
		Interval:     time.Hour,
		RunAtStartup: true,
		Fn: func(ctx context.Context) error {
			atomic.AddInt32(&startup, 1)
			return nil
		},
	})
	s.Add(&Job{
		Name:     "periodic",
		Interval: time.Hour,
		Fn: func(ctx context.Context) error {
			t.Error("hour-interval job fired during a short run")
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if atomic.LoadInt32(&startup) != 1 {
		t.Errorf("startup runs = %d, want 1", startup)
	}
}
