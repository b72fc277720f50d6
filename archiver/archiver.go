// Copyright (c) 2026 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package archiver turns message events into message log entries and saved media files.
package archiver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"go.mau.fi/whatsarchive/archive"
	"go.mau.fi/whatsarchive/events"
	"go.mau.fi/whatsarchive/metrics"
	"go.mau.fi/whatsarchive/types"
)

// Session is the part of the protocol session the archiver needs.
type Session interface {
	OwnID() types.ContactID
	DownloadMedia(ctx context.Context, msg *events.Message) ([]byte, error)
}

// Archiver writes one log entry per archivable message.
type Archiver struct {
	store   *archive.Store
	session Session
	log     zerolog.Logger
	now     func() time.Time
}

// Option configures an Archiver.
type Option func(*Archiver)

// WithClock replaces the function used to read the capture time of messages.
func WithClock(now func() time.Time) Option {
	return func(a *Archiver) {
		a.now = now
	}
}

// New creates an Archiver writing to the given store.
func New(store *archive.Store, session Session, log zerolog.Logger, opts ...Option) *Archiver {
	a := &Archiver{
		store:   store,
		session: session,
		log:     log,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ShouldArchive returns false for status broadcasts and protocol stub notifications.
func ShouldArchive(evt *events.Message) bool {
	return evt != nil && !evt.IsBroadcast && !evt.IsStub
}

// HandleMessage archives a single message. Errors are logged and never returned, so that one
// broken message can't stop the ones after it.
func (a *Archiver) HandleMessage(ctx context.Context, evt *events.Message) {
	if !ShouldArchive(evt) {
		return
	}
	log := a.log.With().Str("message_id", evt.ID).Str("chat", evt.Chat.String()).Logger()
	if err := a.archive(log.WithContext(ctx), evt); err != nil {
		log.Err(err).Msg("Failed to archive message")
	}
}

func (a *Archiver) archive(ctx context.Context, evt *events.Message) error {
	now := a.now()
	body := evt.Body()
	entryText := body
	if evt.Media != nil {
		if relPath, ok := a.saveMedia(ctx, evt, now); ok {
			entryText = strings.TrimSpace(fmt.Sprintf("[MEDIA DISIMPAN: %s] %s", relPath, body))
		}
	}
	if entryText == "" {
		return nil
	}

	own := a.session.OwnID()
	fromLabel, toLabel := "USER: "+evt.Chat.String(), "BOT: "+own.String()
	if evt.FromMe {
		fromLabel, toLabel = toLabel, fromLabel
	}
	entry := fmt.Sprintf(
		"Waktu: %s\nDari: %s\nUntuk: %s\nPesan: %s\n\n---\n\n",
		a.store.Timestamp(now), fromLabel, toLabel, entryText,
	)
	if err := a.store.AppendMessage(evt.Chat, now, entry); err != nil {
		return err
	}
	metrics.MessagesArchived.WithLabelValues(evt.Direction().String()).Inc()
	zerolog.Ctx(ctx).Info().
		Str("from", fromLabel).
		Str("to", toLabel).
		Str("text", entryText).
		Msg("Archived message")
	return nil
}

// saveMedia downloads and stores the attachment. It returns false if there is nothing to reference
// in the log entry, in which case the text part is archived alone.
func (a *Archiver) saveMedia(ctx context.Context, evt *events.Message, now time.Time) (string, bool) {
	log := zerolog.Ctx(ctx)
	data, err := a.session.DownloadMedia(ctx, evt)
	if errors.Is(err, events.ErrNoMedia) {
		log.Debug().Msg("Message has no downloadable media")
		return "", false
	} else if err != nil {
		metrics.MediaFailures.Inc()
		log.Err(err).Msg("Failed to download media")
		return "", false
	}
	fileName := archive.MediaFileName(evt.Media.MimeType, evt.Media.FileName)
	relPath, err := a.store.WriteMedia(evt.Chat, now, fileName, data)
	if err != nil {
		metrics.MediaFailures.Inc()
		log.Err(err).Msg("Failed to save media")
		return "", false
	}
	metrics.MediaSaved.Inc()
	log.Debug().
		Str("path", relPath).
		Str("size", humanize.Bytes(uint64(len(data)))).
		Msg("Saved media")
	return relPath, true
}
