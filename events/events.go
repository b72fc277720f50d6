// Copyright (c) 2026 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package events contains the platform-independent events that the session adapter
// emits to the connection manager.
package events

import (
	"errors"
	"time"

	"go.mau.fi/whatsarchive/types"
)

// ErrNoMedia is returned by media downloads when the message has nothing to download.
// It is an expected condition and is not reported as a failure.
var ErrNoMedia = errors.New("message has no downloadable media")

// Opened is emitted when the session has connected and authenticated.
type Opened struct{}

// Closed is emitted when the session has been closed by the remote side or failed to connect.
//
// LoggedOut is true when the close is terminal and the device needs to be paired again.
type Closed struct {
	LoggedOut bool
	Reason    string
}

// QR is emitted while connecting an unpaired device. The codes should be rendered one by one.
type QR struct {
	Codes []string
}

// MediaType is the kind of media payload attached to a message.
type MediaType int

const (
	MediaImage MediaType = iota + 1
	MediaVideo
	MediaAudio
	MediaDocument
)

// Media describes a media attachment. The payload itself is fetched on demand through the session.
type Media struct {
	Type     MediaType
	MimeType string
	FileName string
	Size     uint64
}

// Message is emitted for every new inbound or outbound message.
type Message struct {
	ID        string
	Chat      types.ContactID
	Sender    types.ContactID
	FromMe    bool
	Timestamp time.Time

	// IsBroadcast is set for messages on the status broadcast channel.
	IsBroadcast bool
	// IsStub is set for protocol notifications that aren't authored content.
	IsStub bool

	Text         string
	ExtendedText string
	ImageCaption string
	VideoCaption string

	Media *Media

	// Raw is the protocol-level message, handed back to the session when downloading media.
	Raw any
}

// Body returns the first non-empty of the plain text, extended text, image caption and
// video caption fields.
func (m *Message) Body() string {
	for _, part := range []string{m.Text, m.ExtendedText, m.ImageCaption, m.VideoCaption} {
		if part != "" {
			return part
		}
	}
	return ""
}

// Direction returns DirectionOutbound for messages sent by the archiving account.
func (m *Message) Direction() types.Direction {
	if m.FromMe {
		return types.DirectionOutbound
	}
	return types.DirectionInbound
}

// CallStatus is the stage of a call lifecycle event.
type CallStatus int

const (
	CallOffer CallStatus = iota + 1
	CallAccept
	CallReject
	CallTimeout
	CallTerminate
)

var callStatusNames = map[CallStatus]string{
	CallOffer:     "offer",
	CallAccept:    "accept",
	CallReject:    "reject",
	CallTimeout:   "timeout",
	CallTerminate: "terminate",
}

func (cs CallStatus) String() string {
	name, ok := callStatusNames[cs]
	if !ok {
		return "unknown"
	}
	return name
}

// CallLifecycle is emitted for each stage of a call, keyed by CallID.
//
// From is the originator of the call and To is the other party.
type CallLifecycle struct {
	CallID    string
	From      types.ContactID
	To        types.ContactID
	Video     bool
	Status    CallStatus
	Timestamp time.Time
}

// CallResult is a single summary event for a finished call, carrying its duration.
type CallResult struct {
	Contact   types.ContactID
	Video     bool
	Duration  time.Duration
	Timestamp time.Time
}

// StubCode is the closed set of call-related protocol stub notifications.
type StubCode int

const (
	StubUnknown StubCode = iota
	StubCallMissedVoice
	StubCallMissedVideo
	StubCallMissedGroupVoice
	StubCallMissedGroupVideo
	StubCallEnded
)

// CallStub is a call-related stub notification found in a chat.
type CallStub struct {
	Contact   types.ContactID
	FromMe    bool
	Code      StubCode
	Timestamp time.Time
}

// BlocklistChanged is emitted when the remote block list has changed.
type BlocklistChanged struct{}
