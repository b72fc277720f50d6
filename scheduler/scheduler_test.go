// Copyright (c) 2026 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var wib = time.FixedZone("WIB", 7*60*60)

func TestAddRejectsInvalidCron(t *testing.T) {
	s := New(wib, zerolog.Nop())
	assert.Error(t, s.Add(Job{Name: "broken", Cron: "every day at noon", Run: func(context.Context) {}}))
	require.NoError(t, s.Add(Job{Name: "restart", Cron: "5 14 * * *", Run: func(context.Context) {}}))
	assert.Error(t, s.Add(Job{Name: "restart", Cron: "5 14 * * *", Run: func(context.Context) {}}))
}

func TestNextUsesLocation(t *testing.T) {
	s := New(wib, zerolog.Nop())
	require.NoError(t, s.Add(Job{Name: "restart", Cron: "5 14 * * *", Run: func(context.Context) {}}))

	next, err := s.Next("restart", time.Date(2026, 10, 17, 2, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, next.Equal(time.Date(2026, 10, 17, 14, 5, 0, 0, wib)), next.String())

	next, err = s.Next("restart", time.Date(2026, 10, 17, 14, 5, 0, 0, wib))
	require.NoError(t, err)
	assert.True(t, next.Equal(time.Date(2026, 10, 18, 14, 5, 0, 0, wib)), next.String())

	_, err = s.Next("missing", time.Now())
	assert.ErrorIs(t, err, ErrUnknownJob)
}

func TestRunNowDoesNotOverlap(t *testing.T) {
	s := New(wib, zerolog.Nop())
	started := make(chan struct{})
	release := make(chan struct{})
	var runs atomic.Int32
	require.NoError(t, s.Add(Job{Name: "blocklist", Cron: "0 14 * * *", Run: func(context.Context) {
		runs.Add(1)
		close(started)
		<-release
	}}))

	done := make(chan error, 1)
	go func() {
		done <- s.RunNow("blocklist")
	}()
	<-started
	assert.ErrorIs(t, s.RunNow("blocklist"), ErrJobRunning)
	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, int32(1), runs.Load())
	assert.ErrorIs(t, s.RunNow("missing"), ErrUnknownJob)
}

func TestRunNowRecoversPanic(t *testing.T) {
	s := New(wib, zerolog.Nop())
	require.NoError(t, s.Add(Job{Name: "broken", Cron: "* * * * *", Run: func(context.Context) {
		panic("boom")
	}}))
	assert.Error(t, s.RunNow("broken"))
	// The running flag must be cleared after a panic.
	err := s.RunNow("broken")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrJobRunning)
}

func TestRunFiresOnTick(t *testing.T) {
	justBefore := time.Date(2026, 10, 17, 14, 4, 59, 990_000_000, wib)
	s := New(wib, zerolog.Nop(), WithClock(func() time.Time { return justBefore }))
	var runs atomic.Int32
	require.NoError(t, s.Add(Job{Name: "blocklist", Cron: "* * * * *", Run: func(context.Context) {
		runs.Add(1)
	}}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	require.Eventually(t, func() bool { return runs.Load() >= 1 }, 5*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run didn't return after cancel")
	}
}
