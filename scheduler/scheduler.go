// Package scheduler runs agent cycles one after another at a fixed
// interval.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/becomeliminal/nim-autopilot/core"
	"github.com/becomeliminal/nim-autopilot/metrics"
	"github.com/becomeliminal/nim-autopilot/state"
)

// ErrAlreadyRunning is returned by Run while another Run is in progress.
var ErrAlreadyRunning = errors.New("scheduler: already running")

// CycleRunner runs one cycle.
type CycleRunner interface {
	RunCycle(ctx context.Context, st core.AgentState) (core.AgentState, error)
}

// Scheduler chains cycles: the next wait only starts once the previous
// cycle has returned, so two cycles never overlap however long one takes.
type Scheduler struct {
	runner   CycleRunner
	interval time.Duration
	store    state.Store
	metrics  *metrics.Recorder

	running atomic.Bool

	mu      sync.RWMutex
	current core.AgentState
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithCheckpoints saves the state to store after every successful cycle.
func WithCheckpoints(store state.Store) Option {
	return func(s *Scheduler) { s.store = store }
}

// WithMetrics records cycle outcomes and durations.
func WithMetrics(r *metrics.Recorder) Option {
	return func(s *Scheduler) { s.metrics = r }
}

// New creates a scheduler that waits interval between cycles.
func New(runner CycleRunner, interval time.Duration, opts ...Option) *Scheduler {
	s := &Scheduler{runner: runner, interval: interval}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the state after the most recent cycle.
func (s *Scheduler) State() core.AgentState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Run runs the first cycle immediately, then one cycle per interval until
// ctx is done. A cycle in flight when ctx is cancelled runs to completion.
// Cycle errors and panics are logged and the schedule continues.
func (s *Scheduler) Run(ctx context.Context, initial core.AgentState) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer s.running.Store(false)

	s.setState(initial)
	log.Printf("[SCHEDULER] starting, interval %s", s.interval)

	st := initial
	for {
		if err := ctx.Err(); err != nil {
			log.Printf("[SCHEDULER] stopped after %d cycles", st.CycleCount)
			return err
		}

		st = s.runOnce(ctx, st)

		timer := time.NewTimer(s.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Printf("[SCHEDULER] stopped after %d cycles", st.CycleCount)
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// runOnce runs a cycle and returns the state to continue from. The
// previous state is kept when the cycle fails.
func (s *Scheduler) runOnce(ctx context.Context, prev core.AgentState) (next core.AgentState) {
	start := time.Now()
	outcome := metrics.OutcomeOK
	next = prev

	defer func() {
		if r := recover(); r != nil {
			log.Printf("[SCHEDULER] cycle panicked: %v", r)
			outcome = metrics.OutcomePanic
			next = prev
		}
		if s.metrics != nil {
			s.metrics.ObserveCycle(outcome, time.Since(start))
		}
	}()

	st, err := s.runner.RunCycle(context.WithoutCancel(ctx), prev)
	if err != nil {
		log.Printf("[SCHEDULER] cycle failed: %v", err)
		outcome = metrics.OutcomeError
		return prev
	}

	s.setState(st)
	log.Printf("[SCHEDULER] cycle %d done in %s", st.CycleCount, time.Since(start).Round(time.Millisecond))

	if s.store != nil {
		if err := s.save(ctx, st); err != nil {
			log.Printf("[SCHEDULER] %v", err)
		}
	}
	return st
}

func (s *Scheduler) save(ctx context.Context, st core.AgentState) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.store.Save(ctx, st); err != nil {
		return fmt.Errorf("checkpoint failed: %w", err)
	}
	return nil
}

func (s *Scheduler) setState(st core.AgentState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = st
}
