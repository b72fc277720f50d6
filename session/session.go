// Copyright (c) 2026 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package session defines the capabilities that archival components get from the live session.
package session

import (
	"context"
	"errors"

	"go.mau.fi/whatsarchive/events"
	"go.mau.fi/whatsarchive/types"
)

// ErrNoSession is returned by session capabilities when no account is paired yet.
var ErrNoSession = errors.New("no paired session")

// Session is the shared handle to the logged-in account.
type Session interface {
	// OwnID returns the ID of the archiving account, or an empty ID before pairing.
	OwnID() types.ContactID
	// DownloadMedia fetches the decrypted payload of the media attached to msg.
	// It returns events.ErrNoMedia when the message has nothing downloadable.
	DownloadMedia(ctx context.Context, msg *events.Message) ([]byte, error)
	// FetchBlocklist returns the current remote block list.
	FetchBlocklist(ctx context.Context) ([]types.ContactID, error)
	// ContactName returns the best known display name of a contact, or an empty string.
	ContactName(ctx context.Context, id types.ContactID) string
}
