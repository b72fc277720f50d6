// Copyright (c) 2026 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package blocklist tracks changes to the account's block list.
package blocklist

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"go.mau.fi/whatsarchive/archive"
	"go.mau.fi/whatsarchive/metrics"
	"go.mau.fi/whatsarchive/types"
)

// Action labels as they appear in the block action log.
const (
	ActionBlocked   = "diblokir"
	ActionUnblocked = "dibuka blokir"
)

// Fetcher retrieves the current remote block list.
type Fetcher interface {
	FetchBlocklist(ctx context.Context) ([]types.ContactID, error)
}

// Snapshot is an unordered set of blocked contacts.
type Snapshot map[types.ContactID]struct{}

// NewSnapshot builds a snapshot from a list of contacts. Duplicates collapse.
func NewSnapshot(ids ...types.ContactID) Snapshot {
	snap := make(Snapshot, len(ids))
	for _, id := range ids {
		snap[id] = struct{}{}
	}
	return snap
}

// Contains returns true if the contact is in the snapshot.
func (s Snapshot) Contains(id types.ContactID) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the members of the snapshot in lexical order.
func (s Snapshot) Sorted() []types.ContactID {
	ids := make([]types.ContactID, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Diff is the result of reconciling two snapshots.
type Diff struct {
	Blocked   []types.ContactID
	Unblocked []types.ContactID
}

// IsEmpty returns true if nothing changed.
func (d Diff) IsEmpty() bool {
	return len(d.Blocked) == 0 && len(d.Unblocked) == 0
}

// Reconcile returns the contacts that were added to (blocked) and removed from (unblocked) the
// list between previous and current. Both slices are sorted.
func Reconcile(previous, current Snapshot) Diff {
	var diff Diff
	for id := range current {
		if !previous.Contains(id) {
			diff.Blocked = append(diff.Blocked, id)
		}
	}
	for id := range previous {
		if !current.Contains(id) {
			diff.Unblocked = append(diff.Unblocked, id)
		}
	}
	slices.Sort(diff.Blocked)
	slices.Sort(diff.Unblocked)
	return diff
}

// Reconciler keeps the previous snapshot and writes block actions and listings to the store.
type Reconciler struct {
	store   *archive.Store
	fetcher Fetcher
	log     zerolog.Logger
	now     func() time.Time

	lock     sync.Mutex
	previous Snapshot
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithClock replaces the function used to timestamp log entries.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		r.now = now
	}
}

// NewReconciler creates a reconciler with an empty previous snapshot.
func NewReconciler(store *archive.Store, fetcher Fetcher, log zerolog.Logger, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:    store,
		fetcher:  fetcher,
		log:      log,
		now:      time.Now,
		previous: Snapshot{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Reconciler) fetch(ctx context.Context) (Snapshot, error) {
	ids, err := r.fetcher.FetchBlocklist(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch block list: %w", err)
	}
	return NewSnapshot(ids...), nil
}

// Refresh fetches the current list, logs one action per changed contact and replaces the
// previous snapshot. A failed fetch leaves everything untouched.
func (r *Reconciler) Refresh(ctx context.Context) {
	r.lock.Lock()
	defer r.lock.Unlock()
	current, err := r.fetch(ctx)
	if err != nil {
		r.log.Err(err).Msg("Failed to refresh block list")
		return
	}
	diff := Reconcile(r.previous, current)
	at := r.now()
	for _, id := range diff.Blocked {
		r.writeAction(at, ActionBlocked, id)
	}
	for _, id := range diff.Unblocked {
		r.writeAction(at, ActionUnblocked, id)
	}
	r.previous = current
	if !diff.IsEmpty() {
		r.log.Info().
			Int("blocked", len(diff.Blocked)).
			Int("unblocked", len(diff.Unblocked)).
			Msg("Block list changed")
	}
}

func (r *Reconciler) writeAction(at time.Time, action string, id types.ContactID) {
	entry := fmt.Sprintf("Waktu: %s | Aksi: %s | Kontak: %s\n", r.store.Timestamp(at), action, id)
	if err := r.store.AppendBlockAction(entry); err != nil {
		r.log.Err(err).Str("contact", id.String()).Str("action", action).Msg("Failed to save block action")
		return
	}
	metrics.BlocklistActions.WithLabelValues(action).Inc()
}

// Bootstrap fetches the current list, stores it as the previous snapshot and dumps it to the
// listing log.
func (r *Reconciler) Bootstrap(ctx context.Context) {
	r.lock.Lock()
	defer r.lock.Unlock()
	current, err := r.fetch(ctx)
	if err != nil {
		r.log.Err(err).Msg("Failed to bootstrap block list")
		return
	}
	r.previous = current
	r.dump(current)
}

// Snapshot fetches the current list and dumps it to the listing log without touching the
// previous snapshot.
func (r *Reconciler) Snapshot(ctx context.Context) {
	current, err := r.fetch(ctx)
	if err != nil {
		r.log.Err(err).Msg("Failed to take block list snapshot")
		return
	}
	r.dump(current)
}

// Previous returns a copy of the previous snapshot.
func (r *Reconciler) Previous() Snapshot {
	r.lock.Lock()
	defer r.lock.Unlock()
	return NewSnapshot(r.previous.Sorted()...)
}

// FormatListing renders a full block list dump.
func FormatListing(ts string, snap Snapshot) string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Waktu: %s\n", ts)
	if len(snap) == 0 {
		buf.WriteString("Tidak ada nomor yang diblokir.\n")
	} else {
		buf.WriteString("Kontak Diblokir:\n")
		for _, id := range snap.Sorted() {
			fmt.Fprintf(&buf, "- %s\n", id)
		}
	}
	buf.WriteString("\n---\n\n")
	return buf.String()
}

func (r *Reconciler) dump(snap Snapshot) {
	if err := r.store.AppendBlockListing(FormatListing(r.store.Timestamp(r.now()), snap)); err != nil {
		r.log.Err(err).Msg("Failed to save block list")
		return
	}
	r.log.Info().Int("count", len(snap)).Msg("Saved block list")
}
