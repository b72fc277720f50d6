// Copyright (c) 2026 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package types contains the small value types shared by the whatsarchive packages.
package types

import (
	"strings"
)

// ContactID is the stable identifier of a conversation peer, in the non-AD JID form
// (e.g. 6281234567890@s.whatsapp.net).
type ContactID string

// EmptyContact is the zero ContactID.
const EmptyContact ContactID = ""

// String returns the ContactID as a plain string.
func (id ContactID) String() string {
	return string(id)
}

// IsEmpty returns true if the ContactID is the zero value.
func (id ContactID) IsEmpty() bool {
	return id == EmptyContact
}

// User returns the part of the ID before the @ sign.
func (id ContactID) User() string {
	user, _, _ := strings.Cut(string(id), "@")
	return user
}

// Sanitized returns a filesystem-safe token for the ID. Every character outside
// [A-Za-z0-9] is replaced with an underscore, so the result can be used as a directory name.
func (id ContactID) Sanitized() string {
	if id.IsEmpty() {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, string(id))
}

// Direction is the direction of a message or call relative to the archiving account.
type Direction int

const (
	DirectionInbound Direction = iota
	DirectionOutbound
)

func (d Direction) String() string {
	if d == DirectionOutbound {
		return "outbound"
	}
	return "inbound"
}

// CallLabel returns the word used for the direction in call log types.
func (d Direction) CallLabel() string {
	if d == DirectionOutbound {
		return "Keluar"
	}
	return "Masuk"
}
