// Copyright (c) 2026 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package types

// CallKind is the media kind of a call.
type CallKind int

const (
	CallVoice CallKind = iota
	CallVideo
)

// CallKindFromVideo returns CallVideo if video is true and CallVoice otherwise.
func CallKindFromVideo(video bool) CallKind {
	if video {
		return CallVideo
	}
	return CallVoice
}

func (k CallKind) String() string {
	if k == CallVideo {
		return "video"
	}
	return "voice"
}

// Label returns the word used for the kind in call log types.
func (k CallKind) Label() string {
	if k == CallVideo {
		return "Video"
	}
	return "Suara"
}

// CallOutcome is the state of a call record.
type CallOutcome int

const (
	OutcomePending CallOutcome = iota
	OutcomeAcceptedAndEnded
	OutcomeRejected
	OutcomeTimedOut
	OutcomeMissed
)

var outcomeNames = map[CallOutcome]string{
	OutcomePending:          "pending",
	OutcomeAcceptedAndEnded: "accepted-and-ended",
	OutcomeRejected:         "rejected",
	OutcomeTimedOut:         "timed-out",
	OutcomeMissed:           "missed",
}

func (o CallOutcome) String() string {
	name, ok := outcomeNames[o]
	if !ok {
		return "unknown"
	}
	return name
}

// IsFinal returns true for every outcome except OutcomePending.
func (o CallOutcome) IsFinal() bool {
	return o != OutcomePending
}
