// Copyright (c) 2026 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package connection

import (
	"context"
	"runtime/debug"
	"sync"

	"github.com/rs/zerolog"
)

type job func(ctx context.Context)

// worker runs jobs of one event channel serially, in the order they were enqueued.
type worker struct {
	name  string
	queue chan job
	log   zerolog.Logger

	lock    sync.RWMutex
	stopped bool
}

func newWorker(name string, size int, log zerolog.Logger) *worker {
	return &worker{
		name:  name,
		queue: make(chan job, size),
		log:   log.With().Str("worker", name).Logger(),
	}
}

func (w *worker) enqueue(fn job) {
	w.lock.RLock()
	defer w.lock.RUnlock()
	if w.stopped {
		w.log.Warn().Msg("Dropping event enqueued after shutdown")
		return
	}
	select {
	case w.queue <- fn:
	default:
		w.log.Warn().Int("queue_size", cap(w.queue)).Msg("Worker queue is full, waiting for space")
		w.queue <- fn
	}
}

// run processes jobs until stop is called and the queue is drained.
func (w *worker) run(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	for fn := range w.queue {
		w.safeRun(ctx, fn)
	}
}

func (w *worker) safeRun(ctx context.Context, fn job) {
	defer func() {
		if err := recover(); err != nil {
			w.log.Error().
				Any("panic", err).
				Str("stack", string(debug.Stack())).
				Msg("Event handler panicked")
		}
	}()
	fn(ctx)
}

func (w *worker) stop() {
	w.lock.Lock()
	defer w.lock.Unlock()
	if !w.stopped {
		w.stopped = true
		close(w.queue)
	}
}

func (w *worker) pending() int {
	return len(w.queue)
}
