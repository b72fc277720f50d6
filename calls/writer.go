// Copyright (c) 2026 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package calls

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"go.mau.fi/whatsarchive/archive"
	"go.mau.fi/whatsarchive/metrics"
	"go.mau.fi/whatsarchive/types"
)

// NameResolver looks up the display name of a contact. An empty string means the name is unknown.
type NameResolver interface {
	ContactName(ctx context.Context, id types.ContactID) string
}

// Line is one entry of a contact's call log.
type Line struct {
	Contact types.ContactID
	Type    string
	// Duration is omitted from the entry when empty.
	Duration string
	At       time.Time
	Feed     string
}

// Writer is the single sink that all call feeds write through.
type Writer struct {
	store *archive.Store
	names NameResolver
	log   zerolog.Logger
}

// NewWriter creates a call log writer. names may be nil.
func NewWriter(store *archive.Store, names NameResolver, log zerolog.Logger) *Writer {
	return &Writer{store: store, names: names, log: log}
}

// Format renders the line as it appears in calls.log.
func (w *Writer) Format(ctx context.Context, line Line) string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Waktu: %s | Tipe: %s | Kontak: %s", w.store.Timestamp(line.At), line.Type, w.contactLabel(ctx, line.Contact))
	if line.Duration != "" {
		fmt.Fprintf(&buf, " | Durasi: %s", line.Duration)
	}
	buf.WriteByte('\n')
	return buf.String()
}

// Write appends the line to the contact's call log for the day of line.At.
func (w *Writer) Write(ctx context.Context, line Line) error {
	err := w.store.AppendCall(line.Contact, line.At, w.Format(ctx, line))
	if err != nil {
		w.log.Err(err).Str("contact", line.Contact.String()).Str("type", line.Type).Msg("Failed to save call log")
		return err
	}
	metrics.CallLines.WithLabelValues(line.Feed).Inc()
	w.log.Info().
		Str("contact", line.Contact.String()).
		Str("type", line.Type).
		Str("duration", line.Duration).
		Msg("Logged call")
	return nil
}

func (w *Writer) contactLabel(ctx context.Context, id types.ContactID) string {
	if w.names == nil {
		return id.String()
	}
	if name := w.names.ContactName(ctx, id); name != "" {
		return fmt.Sprintf("%s (%s)", name, id)
	}
	return id.String()
}
