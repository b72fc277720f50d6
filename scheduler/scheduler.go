// Copyright (c) 2026 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package scheduler runs periodic jobs on cron schedules.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/adhocore/gronx"
	"github.com/rs/zerolog"
)

var (
	ErrJobRunning = errors.New("job is already running")
	ErrUnknownJob = errors.New("unknown job")
)

// Job is a named function run on a cron schedule.
type Job struct {
	Name string
	Cron string
	Run  func(ctx context.Context)
}

type entry struct {
	Job
	running atomic.Bool
}

// Scheduler runs jobs in the configured time zone. A job never overlaps with itself.
type Scheduler struct {
	loc *time.Location
	log zerolog.Logger
	now func() time.Time

	lock    sync.Mutex
	jobs    map[string]*entry
	baseCtx context.Context
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock replaces the function used to read the current time.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

// New creates an empty scheduler. Cron expressions are evaluated in loc.
func New(loc *time.Location, log zerolog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		loc:     loc,
		log:     log,
		now:     time.Now,
		jobs:    make(map[string]*entry),
		baseCtx: context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add registers a job. It must be called before Run.
func (s *Scheduler) Add(job Job) error {
	if !gronx.New().IsValid(job.Cron) {
		return fmt.Errorf("invalid cron expression %q for job %s", job.Cron, job.Name)
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	if _, exists := s.jobs[job.Name]; exists {
		return fmt.Errorf("job %s is already registered", job.Name)
	}
	s.jobs[job.Name] = &entry{Job: job}
	return nil
}

// Next returns the first tick of the named job after ref.
func (s *Scheduler) Next(name string, ref time.Time) (time.Time, error) {
	s.lock.Lock()
	e, ok := s.jobs[name]
	s.lock.Unlock()
	if !ok {
		return time.Time{}, ErrUnknownJob
	}
	return gronx.NextTickAfter(e.Cron, ref.In(s.loc), false)
}

// Run starts a schedule loop for every job and blocks until ctx is cancelled and all running
// jobs have returned.
func (s *Scheduler) Run(ctx context.Context) {
	s.lock.Lock()
	s.baseCtx = ctx
	entries := make([]*entry, 0, len(s.jobs))
	for _, e := range s.jobs {
		entries = append(entries, e)
	}
	s.lock.Unlock()

	var wg sync.WaitGroup
	for _, e := range entries {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.loop(ctx, e)
		}()
	}
	wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, e *entry) {
	log := s.log.With().Str("job", e.Name).Str("cron", e.Cron).Logger()
	log.Info().Msg("Job scheduled")
	for {
		now := s.now().In(s.loc)
		next, err := gronx.NextTickAfter(e.Cron, now, false)
		if err != nil {
			log.Err(err).Msg("Failed to compute next tick")
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}
		log.Debug().Time("next_run", next).Msg("Waiting for next tick")
		select {
		case <-time.After(next.Sub(now)):
			if err = s.runEntry(ctx, e); err != nil {
				log.Warn().Err(err).Msg("Skipping tick")
			}
		case <-ctx.Done():
			return
		}
	}
}

// RunNow runs the named job immediately unless it's already running.
func (s *Scheduler) RunNow(name string) error {
	s.lock.Lock()
	e, ok := s.jobs[name]
	ctx := s.baseCtx
	s.lock.Unlock()
	if !ok {
		return ErrUnknownJob
	}
	return s.runEntry(ctx, e)
}

func (s *Scheduler) runEntry(ctx context.Context, e *entry) (err error) {
	if !e.running.CompareAndSwap(false, true) {
		return ErrJobRunning
	}
	defer e.running.Store(false)
	log := s.log.With().Str("job", e.Name).Logger()
	defer func() {
		if p := recover(); p != nil {
			log.Error().Any("panic", p).Str("stack", string(debug.Stack())).Msg("Job panicked")
			err = fmt.Errorf("job %s panicked: %v", e.Name, p)
		}
	}()
	start := s.now()
	log.Info().Msg("Running job")
	e.Run(log.WithContext(ctx))
	log.Debug().Dur("duration", s.now().Sub(start)).Msg("Job finished")
	return nil
}
