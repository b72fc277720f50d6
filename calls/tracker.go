// Copyright (c) 2026 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package calls correlates call events into call log entries.
//
// Three independent producers write through one Writer: call lifecycle events keyed by call ID
// (HandleLifecycle), duration-bearing call summaries (HandleResult) and call stub notifications
// (HandleStub). Only the lifecycle feed has state.
package calls

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"go.mau.fi/whatsarchive/archive"
	"go.mau.fi/whatsarchive/events"
	"go.mau.fi/whatsarchive/metrics"
	"go.mau.fi/whatsarchive/types"
)

// DefaultTombstoneTTL is how long finalized call IDs are remembered.
const DefaultTombstoneTTL = time.Hour

// Identity provides the ID of the archiving account.
type Identity interface {
	OwnID() types.ContactID
}

// Session is a call in the live table.
type Session struct {
	CallID     string
	Contact    types.ContactID
	Direction  types.Direction
	Kind       types.CallKind
	StartedAt  time.Time
	AcceptedAt time.Time
	Outcome    types.CallOutcome
}

// IsAccepted returns true if an accept event has been seen for the call.
func (s *Session) IsAccepted() bool {
	return !s.AcceptedAt.IsZero()
}

func (s *Session) typeString(suffix string) string {
	return fmt.Sprintf("Panggilan %s %s %s", s.Kind.Label(), s.Direction.CallLabel(), suffix)
}

// Tracker is the keyed call state machine.
type Tracker struct {
	writer       *Writer
	identity     Identity
	log          zerolog.Logger
	now          func() time.Time
	tombstoneTTL time.Duration

	lock     sync.Mutex
	live     map[string]*Session
	finished map[string]time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock replaces the function used to timestamp call transitions.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// WithTombstoneTTL changes how long finalized call IDs are remembered.
func WithTombstoneTTL(ttl time.Duration) Option {
	return func(t *Tracker) {
		t.tombstoneTTL = ttl
	}
}

// NewTracker creates a call tracker writing through the given writer.
func NewTracker(writer *Writer, identity Identity, log zerolog.Logger, opts ...Option) *Tracker {
	t := &Tracker{
		writer:       writer,
		identity:     identity,
		log:          log,
		now:          time.Now,
		tombstoneTTL: DefaultTombstoneTTL,
		live:         make(map[string]*Session),
		finished:     make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// HandleLifecycle applies one lifecycle event to the live table and writes the resulting line.
// Events for unknown or already finalized call IDs are ignored.
func (t *Tracker) HandleLifecycle(ctx context.Context, evt *events.CallLifecycle) {
	var line *Line
	switch evt.Status {
	case events.CallOffer:
		line = t.offer(evt)
	case events.CallAccept:
		line = t.accept(evt)
	case events.CallReject, events.CallTimeout, events.CallTerminate:
		line = t.finish(evt)
	default:
		t.log.Debug().Str("call_id", evt.CallID).Stringer("status", evt.Status).Msg("Ignoring unknown call status")
	}
	if line != nil {
		line.Feed = metrics.FeedLifecycle
		_ = t.writer.Write(ctx, *line)
	}
}

func (t *Tracker) offer(evt *events.CallLifecycle) *Line {
	now := t.now()
	t.lock.Lock()
	defer t.lock.Unlock()
	if _, exists := t.live[evt.CallID]; exists {
		t.log.Debug().Str("call_id", evt.CallID).Msg("Ignoring duplicate call offer")
		return nil
	} else if _, finalized := t.finished[evt.CallID]; finalized {
		t.log.Debug().Str("call_id", evt.CallID).Msg("Ignoring offer for finalized call")
		return nil
	}
	sess := &Session{
		CallID:    evt.CallID,
		Contact:   evt.From,
		Direction: types.DirectionInbound,
		Kind:      types.CallKindFromVideo(evt.Video),
		StartedAt: now,
		Outcome:   types.OutcomePending,
	}
	if own := t.identity.OwnID(); !own.IsEmpty() && evt.From == own {
		sess.Direction = types.DirectionOutbound
		sess.Contact = evt.To
	}
	t.live[evt.CallID] = sess
	return &Line{Contact: sess.Contact, Type: sess.typeString("(Berdering)"), At: now}
}

func (t *Tracker) accept(evt *events.CallLifecycle) *Line {
	now := t.now()
	t.lock.Lock()
	defer t.lock.Unlock()
	sess, ok := t.live[evt.CallID]
	if !ok || sess.IsAccepted() {
		return nil
	}
	sess.AcceptedAt = now
	return &Line{Contact: sess.Contact, Type: sess.typeString("Diterima"), At: now}
}

func (t *Tracker) finish(evt *events.CallLifecycle) *Line {
	now := t.now()
	t.lock.Lock()
	defer t.lock.Unlock()
	sess, ok := t.live[evt.CallID]
	if !ok {
		return nil
	}
	delete(t.live, evt.CallID)
	t.pruneTombstones(now)
	t.finished[evt.CallID] = now

	line := &Line{Contact: sess.Contact, At: now}
	switch evt.Status {
	case events.CallReject:
		sess.Outcome = types.OutcomeRejected
		line.Type = sess.typeString("Ditolak")
	case events.CallTimeout:
		sess.Outcome = types.OutcomeTimedOut
		line.Type = sess.typeString("Tak Terjawab")
	case events.CallTerminate:
		if sess.IsAccepted() {
			sess.Outcome = types.OutcomeAcceptedAndEnded
			line.Type = sess.typeString("Selesai")
			line.Duration = archive.FormatDuration(now.Sub(sess.AcceptedAt))
		} else {
			sess.Outcome = types.OutcomeMissed
			line.Type = sess.typeString("Tak Terjawab")
		}
	}
	t.log.Debug().
		Str("call_id", sess.CallID).
		Stringer("outcome", sess.Outcome).
		Msg("Call finalized")
	return line
}

// pruneTombstones must be called with the lock held.
func (t *Tracker) pruneTombstones(now time.Time) {
	for callID, finishedAt := range t.finished {
		if now.Sub(finishedAt) > t.tombstoneTTL {
			delete(t.finished, callID)
		}
	}
}

// Pending returns the number of calls in the live table.
func (t *Tracker) Pending() int {
	t.lock.Lock()
	defer t.lock.Unlock()
	return len(t.live)
}

// Get returns a copy of the live session for the call ID.
func (t *Tracker) Get(callID string) (Session, bool) {
	t.lock.Lock()
	defer t.lock.Unlock()
	sess, ok := t.live[callID]
	if !ok {
		return Session{}, false
	}
	return *sess, true
}
