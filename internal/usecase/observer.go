package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"ReviewGuard/internal/document"
)

const observerBuffer = 64

// ObserverStats counts what the observer did with notifications. Every
// trigger lands in exactly one of Triggered (a cycle ran) or Coalesced.
type ObserverStats struct {
	Triggered int64 `json:"triggered"`
	Coalesced int64 `json:"coalesced"`
	Forgotten int64 `json:"forgotten"`
}

// Observer turns document mutations into scan cycles. Additions start a
// cycle unless one is already running, in which case the trigger is dropped.
// Mutations caused by annotation markup are ignored.
type Observer struct {
	session *Session
	logger  *slog.Logger

	mu     sync.Mutex
	cancel func()
	done   chan struct{}
	cycles sync.WaitGroup

	triggered atomic.Int64
	coalesced atomic.Int64
	forgotten atomic.Int64
}

// NewObserver builds an observer for the session's document.
func NewObserver(session *Session, logger *slog.Logger) *Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Observer{session: session, logger: logger}
}

// Start subscribes to the document. The subscription is active when Start
// returns.
func (o *Observer) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.cancel != nil {
		return nil
	}

	events, cancel := o.session.Document().Subscribe(observerBuffer)
	o.cancel = cancel
	o.done = make(chan struct{})
	go o.loop(ctx, events, o.done)
	return nil
}

// Stop unsubscribes and waits for running cycles to finish.
func (o *Observer) Stop() {
	o.mu.Lock()
	cancel, done := o.cancel, o.done
	o.cancel, o.done = nil, nil
	o.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	o.cycles.Wait()
}

// Stats returns counters since construction.
func (o *Observer) Stats() ObserverStats {
	return ObserverStats{
		Triggered: o.triggered.Load(),
		Coalesced: o.coalesced.Load(),
		Forgotten: o.forgotten.Load(),
	}
}

func (o *Observer) loop(ctx context.Context, events <-chan document.Mutation, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-events:
			if !ok {
				return
			}
			o.handle(ctx, m)
		}
	}
}

func (o *Observer) handle(ctx context.Context, m document.Mutation) {
	if m.Source == document.SourceAnnotation {
		return
	}
	if len(m.Removed) > 0 {
		if n := o.session.Renderer().Forget(m.Removed); n > 0 {
			o.forgotten.Add(int64(n))
		}
	}
	if len(m.Added) == 0 {
		return
	}
	o.trigger(ctx)
}

func (o *Observer) trigger(ctx context.Context) {
	if o.session.InFlight() {
		o.coalesced.Add(1)
		o.logger.Debug("scan trigger coalesced")
		return
	}

	o.cycles.Add(1)
	go func() {
		defer o.cycles.Done()
		_, err := o.session.RunCycle(ctx)
		if errors.Is(err, ErrCycleInFlight) {
			o.coalesced.Add(1)
			return
		}
		o.triggered.Add(1)
	}()
}
