// Package runtime supervises the engine's long-running tasks — the four
// ingress loops, the risk-monitor loop and the delivery loop — under one
// shared tomb, adapted from the teacher's internal/worker.go WorkerPool:
// the same t.Go/t.Dying supervision idiom, generalized from a fixed-size
// worker pool pulling off one task channel to a small named set of
// distinct long-running loops.
package runtime

import (
	"context"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"
)

// Task is one supervised long-running function. It must return promptly
// once t.Dying() is closed.
type Task func(t *tomb.Tomb) error

// Supervisor runs a fixed set of named tasks under one tomb, exactly the
// way the teacher's WorkerPool runs a fixed set of workers under one.
type Supervisor struct {
	tomb *tomb.Tomb
	ctx  context.Context
}

// New creates a Supervisor whose tomb is tied to ctx: cancelling ctx
// (e.g. via signal.NotifyContext) kills every supervised task.
func New(ctx context.Context) *Supervisor {
	t, ctx := tomb.WithContext(ctx)
	return &Supervisor{tomb: t, ctx: ctx}
}

// Go starts name under supervision. If it returns a non-nil error the
// whole tomb dies, tearing down every other supervised task.
func (s *Supervisor) Go(name string, task Task) {
	s.tomb.Go(func() error {
		log.Info().Str("task", name).Msg("task starting")
		err := task(s.tomb)
		if err != nil {
			log.Error().Err(err).Str("task", name).Msg("task exited with error")
		} else {
			log.Info().Str("task", name).Msg("task exited")
		}
		return err
	})
}

// Context returns the tomb-scoped context, cancelled the moment any
// supervised task dies or the parent context is cancelled.
func (s *Supervisor) Context() context.Context {
	return s.ctx
}

// Wait blocks until every supervised task has exited, returning the
// first non-nil error any of them returned, if any.
func (s *Supervisor) Wait() error {
	return s.tomb.Wait()
}

// Kill requests every supervised task to stop.
func (s *Supervisor) Kill(err error) {
	s.tomb.Kill(err)
}
