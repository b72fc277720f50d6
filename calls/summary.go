// Copyright (c) 2026 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package calls

import (
	"context"
	"fmt"

	"go.mau.fi/whatsarchive/archive"
	"go.mau.fi/whatsarchive/events"
	"go.mau.fi/whatsarchive/metrics"
	"go.mau.fi/whatsarchive/types"
)

// HandleResult writes a duration-bearing call summary. It doesn't touch the live table and
// doesn't need a prior offer.
func (t *Tracker) HandleResult(ctx context.Context, evt *events.CallResult) {
	kind := types.CallKindFromVideo(evt.Video)
	at := evt.Timestamp
	if at.IsZero() {
		at = t.now()
	}
	line := Line{
		Contact:  evt.Contact,
		Duration: archive.FormatDuration(evt.Duration),
		At:       at,
		Feed:     metrics.FeedResult,
	}
	if evt.Duration > 0 {
		line.Type = fmt.Sprintf("Panggilan %s Terhubung dan Berakhir", kind.Label())
	} else {
		line.Type = fmt.Sprintf("Panggilan %s Berakhir", kind.Label())
	}
	_ = t.writer.Write(ctx, line)
}

type stubMapping struct {
	kind    types.CallKind
	outcome types.CallOutcome
}

// stubMappings lists every call stub code that produces a log line. Codes that aren't in the
// map, including group call stubs and StubCallEnded, are ignored.
var stubMappings = map[events.StubCode]stubMapping{
	events.StubCallMissedVoice: {kind: types.CallVoice, outcome: types.OutcomeMissed},
	events.StubCallMissedVideo: {kind: types.CallVideo, outcome: types.OutcomeMissed},
}

var outcomeLabels = map[types.CallOutcome]string{
	types.OutcomeMissed: "Tak Terjawab",
}

// HandleStub writes an outgoing unanswered call record for missed-call stubs authored by the
// archiving account. Stubs from other senders and unmapped codes are ignored.
func (t *Tracker) HandleStub(ctx context.Context, evt *events.CallStub) {
	if !evt.FromMe {
		return
	}
	mapping, ok := stubMappings[evt.Code]
	if !ok {
		t.log.Debug().Int("stub_code", int(evt.Code)).Msg("Ignoring unmapped call stub")
		return
	}
	at := evt.Timestamp
	if at.IsZero() {
		at = t.now()
	}
	_ = t.writer.Write(ctx, Line{
		Contact: evt.Contact,
		Type:    fmt.Sprintf("Panggilan %s %s (%s)", mapping.kind.Label(), types.DirectionOutbound.CallLabel(), outcomeLabels[mapping.outcome]),
		At:      at,
		Feed:    metrics.FeedStub,
	})
}
