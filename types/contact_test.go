// Copyright (c) 2026 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContactIDSanitized(t *testing.T) {
	assert.Equal(t, "6281234567890_s_whatsapp_net", ContactID("6281234567890@s.whatsapp.net").Sanitized())
	assert.Equal(t, "120363_g_us", ContactID("120363@g.us").Sanitized())
	assert.Equal(t, "___etc_passwd", ContactID("../etc/passwd").Sanitized())
	assert.Equal(t, "unknown", EmptyContact.Sanitized())
}

func TestContactIDUser(t *testing.T) {
	assert.Equal(t, "6281234567890", ContactID("6281234567890@s.whatsapp.net").User())
	assert.Equal(t, "bare", ContactID("bare").User())
}

func TestLabels(t *testing.T) {
	assert.Equal(t, "Masuk", DirectionInbound.CallLabel())
	assert.Equal(t, "Keluar", DirectionOutbound.CallLabel())
	assert.Equal(t, "Suara", CallKindFromVideo(false).Label())
	assert.Equal(t, "Video", CallKindFromVideo(true).Label())
	assert.False(t, OutcomePending.IsFinal())
	assert.True(t, OutcomeTimedOut.IsFinal())
	assert.Equal(t, "accepted-and-ended", OutcomeAcceptedAndEnded.String())
}
