// Copyright (c) 2026 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package wasession

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mau.fi/util/ptr"
	waBinary "go.mau.fi/whatsmeow/binary"
	"go.mau.fi/whatsmeow/proto/waCommon"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/proto/waHistorySync"
	"go.mau.fi/whatsmeow/proto/waWeb"
	waTypes "go.mau.fi/whatsmeow/types"
	waEvents "go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"

	"go.mau.fi/whatsarchive/events"
	"go.mau.fi/whatsarchive/types"
)

var (
	ownJID  = waTypes.NewJID("6280000000000", waTypes.DefaultUserServer)
	peerJID = waTypes.NewJID("6281234567890", waTypes.DefaultUserServer)
	sentAt  = time.Unix(1792220000, 0)

	ownLID  = waTypes.NewJID("99887766554433", waTypes.HiddenUserServer)
	peerLID = waTypes.NewJID("11223344556677", waTypes.HiddenUserServer)
	own     = callIdentity{PN: ownJID, LID: ownLID, ResolvePN: func(lid waTypes.JID) waTypes.JID {
		if lid.User == peerLID.User {
			return peerJID
		}
		return waTypes.EmptyJID
	}}
)

func messageEvent(fromMe bool, msg *waE2E.Message) *waEvents.Message {
	return &waEvents.Message{
		Info: waTypes.MessageInfo{
			MessageSource: waTypes.MessageSource{
				Chat:     peerJID,
				Sender:   peerJID,
				IsFromMe: fromMe,
			},
			ID:        "3EB0ABCDEF",
			Timestamp: sentAt,
		},
		Message: msg,
	}
}

func TestTranslateConnection(t *testing.T) {
	assert.Equal(t, &events.Opened{}, translateConnection(&waEvents.Connected{}))
	assert.Equal(t, &events.Closed{Reason: "stream replaced"}, translateConnection(&waEvents.StreamReplaced{}))

	closed, ok := translateConnection(&waEvents.Disconnected{}).(*events.Closed)
	require.True(t, ok)
	assert.False(t, closed.LoggedOut)

	closed, ok = translateConnection(&waEvents.LoggedOut{}).(*events.Closed)
	require.True(t, ok)
	assert.True(t, closed.LoggedOut)

	closed, ok = translateConnection(&waEvents.ConnectFailure{Reason: waEvents.ConnectFailureLoggedOut}).(*events.Closed)
	require.True(t, ok)
	assert.True(t, closed.LoggedOut)

	closed, ok = translateConnection(&waEvents.ConnectFailure{Reason: waEvents.ConnectFailureReason(503)}).(*events.Closed)
	require.True(t, ok)
	assert.False(t, closed.LoggedOut)

	assert.Nil(t, translateConnection(&waEvents.Receipt{}))
}

func TestTranslateTextMessage(t *testing.T) {
	out, ok := translateMessage(messageEvent(true, &waE2E.Message{
		Conversation: proto.String("halo"),
	})).(*events.Message)
	require.True(t, ok)
	assert.Equal(t, "3EB0ABCDEF", out.ID)
	assert.Equal(t, types.ContactID("6281234567890@s.whatsapp.net"), out.Chat)
	assert.True(t, out.FromMe)
	assert.Equal(t, "halo", out.Body())
	assert.Nil(t, out.Media)
	assert.False(t, out.IsStub)
	assert.False(t, out.IsBroadcast)
}

func TestTranslateDocumentMessage(t *testing.T) {
	out, ok := translateMessage(messageEvent(false, &waE2E.Message{
		DocumentMessage: &waE2E.DocumentMessage{
			Mimetype:   proto.String("application/pdf"),
			FileName:   proto.String("invoice.pdf"),
			FileLength: ptr.Ptr(uint64(2048)),
		},
	})).(*events.Message)
	require.True(t, ok)
	require.NotNil(t, out.Media)
	assert.Equal(t, events.MediaDocument, out.Media.Type)
	assert.Equal(t, "invoice.pdf", out.Media.FileName)
	assert.Equal(t, uint64(2048), out.Media.Size)
	assert.Empty(t, out.Body())
	assert.NotNil(t, out.Raw)
}

func TestTranslateImageCaption(t *testing.T) {
	out, ok := translateMessage(messageEvent(false, &waE2E.Message{
		ImageMessage: &waE2E.ImageMessage{
			Mimetype: proto.String("image/jpeg"),
			Caption:  proto.String("liburan"),
		},
	})).(*events.Message)
	require.True(t, ok)
	assert.Equal(t, "liburan", out.Body())
	assert.Equal(t, events.MediaImage, out.Media.Type)
}

func TestTranslateStatusAndProtocolMessages(t *testing.T) {
	evt := messageEvent(false, &waE2E.Message{Conversation: proto.String("story")})
	evt.Info.Chat = waTypes.StatusBroadcastJID
	out := translateMessage(evt).(*events.Message)
	assert.True(t, out.IsBroadcast)

	out = translateMessage(messageEvent(false, &waE2E.Message{
		ProtocolMessage: &waE2E.ProtocolMessage{Type: waE2E.ProtocolMessage_REVOKE.Enum()},
	})).(*events.Message)
	assert.True(t, out.IsStub)

	assert.Nil(t, translateMessage(messageEvent(false, nil)))
}

func TestTranslateCallLogMessage(t *testing.T) {
	out, ok := translateMessage(messageEvent(true, &waE2E.Message{
		CallLogMesssage: &waE2E.CallLogMessage{
			IsVideo:      proto.Bool(true),
			DurationSecs: proto.Int64(125),
		},
	})).(*events.CallResult)
	require.True(t, ok)
	assert.True(t, out.Video)
	assert.Equal(t, 125*time.Second, out.Duration)
	assert.Equal(t, types.ContactID("6281234567890@s.whatsapp.net"), out.Contact)
}

func TestTranslateIncomingCall(t *testing.T) {
	meta := waTypes.BasicCallMeta{From: peerJID, CallCreator: peerJID, CallID: "CALL1", Timestamp: sentAt}
	offer := translateCall(own, &waEvents.CallOffer{
		BasicCallMeta: meta,
		Data:          &waBinary.Node{Tag: "offer", Content: []waBinary.Node{{Tag: "video"}}},
	})
	require.NotNil(t, offer)
	assert.Equal(t, events.CallOffer, offer.Status)
	assert.True(t, offer.Video)
	assert.Equal(t, "CALL1", offer.CallID)
	assert.Equal(t, types.ContactID("6281234567890@s.whatsapp.net"), offer.From)
	assert.Equal(t, types.ContactID("6280000000000@s.whatsapp.net"), offer.To)

	voice := translateCall(own, &waEvents.CallOffer{BasicCallMeta: meta, Data: &waBinary.Node{Tag: "offer"}})
	assert.False(t, voice.Video)

	assert.Equal(t, events.CallAccept, translateCall(own, &waEvents.CallAccept{BasicCallMeta: meta}).Status)
	assert.Equal(t, events.CallReject, translateCall(own, &waEvents.CallReject{BasicCallMeta: meta}).Status)
	assert.Equal(t, events.CallTimeout, translateCall(own, &waEvents.CallTerminate{BasicCallMeta: meta, Reason: "timeout"}).Status)
	assert.Equal(t, events.CallTerminate, translateCall(own, &waEvents.CallTerminate{BasicCallMeta: meta}).Status)
	assert.Nil(t, translateCall(own, &waEvents.Connected{}))
}

func TestTranslateOutgoingCallNotice(t *testing.T) {
	ownDevice := ownJID
	ownDevice.Device = 12
	out := translateCall(own, &waEvents.CallOfferNotice{
		BasicCallMeta: waTypes.BasicCallMeta{From: peerJID, CallCreator: ownDevice, CallID: "CALL2"},
		Media:         "video",
	})
	require.NotNil(t, out)
	assert.True(t, out.Video)
	assert.Equal(t, types.ContactID("6280000000000@s.whatsapp.net"), out.From)
	assert.Equal(t, types.ContactID("6281234567890@s.whatsapp.net"), out.To)
}

func TestTranslateOutgoingCallWithLIDCreator(t *testing.T) {
	ownLIDDevice := ownLID
	ownLIDDevice.Device = 3
	out := translateCall(own, &waEvents.CallOfferNotice{
		BasicCallMeta: waTypes.BasicCallMeta{From: peerJID, CallCreator: ownLIDDevice, CallCreatorAlt: ownJID, CallID: "CALL3"},
		Media:         "audio",
	})
	require.NotNil(t, out)
	assert.Equal(t, types.ContactID("6280000000000@s.whatsapp.net"), out.From)
	assert.Equal(t, types.ContactID("6281234567890@s.whatsapp.net"), out.To)

	// Without the alternate JID the own LID alone must still mark the call as outgoing.
	out = translateCall(own, &waEvents.CallOffer{
		BasicCallMeta: waTypes.BasicCallMeta{From: peerLID, CallCreator: ownLIDDevice, CallID: "CALL4"},
	})
	require.NotNil(t, out)
	assert.Equal(t, types.ContactID("6280000000000@s.whatsapp.net"), out.From)
	assert.Equal(t, types.ContactID("6281234567890@s.whatsapp.net"), out.To)
}

func TestTranslateIncomingCallWithLIDCreator(t *testing.T) {
	out := translateCall(own, &waEvents.CallOffer{
		BasicCallMeta: waTypes.BasicCallMeta{From: peerLID, CallCreator: peerLID, CallID: "CALL5"},
	})
	require.NotNil(t, out)
	assert.Equal(t, types.ContactID("6281234567890@s.whatsapp.net"), out.From)
	assert.Equal(t, types.ContactID("6280000000000@s.whatsapp.net"), out.To)

	unknown := waTypes.NewJID("55555555555555", waTypes.HiddenUserServer)
	out = translateCall(own, &waEvents.CallAccept{
		BasicCallMeta: waTypes.BasicCallMeta{From: unknown, CallCreator: unknown, CallID: "CALL6"},
	})
	require.NotNil(t, out)
	assert.Equal(t, types.ContactID("55555555555555@lid"), out.From)
}

func TestTranslateHistorySync(t *testing.T) {
	stub := func(stubType waWeb.WebMessageInfo_StubType, fromMe bool) *waHistorySync.HistorySyncMsg {
		return &waHistorySync.HistorySyncMsg{
			Message: &waWeb.WebMessageInfo{
				Key:              &waCommon.MessageKey{FromMe: proto.Bool(fromMe), ID: proto.String("X")},
				MessageTimestamp: proto.Uint64(uint64(sentAt.Unix())),
				MessageStubType:  stubType.Enum(),
			},
		}
	}
	stubs := translateHistorySync(&waEvents.HistorySync{Data: &waHistorySync.HistorySync{
		Conversations: []*waHistorySync.Conversation{{
			ID: proto.String(peerJID.String()),
			Messages: []*waHistorySync.HistorySyncMsg{
				stub(waWeb.WebMessageInfo_CALL_MISSED_VOICE, true),
				stub(waWeb.WebMessageInfo_CALL_MISSED_GROUP_VIDEO, false),
				{Message: &waWeb.WebMessageInfo{Key: &waCommon.MessageKey{FromMe: proto.Bool(true)}}},
			},
		}},
	}})
	require.Len(t, stubs, 2)
	assert.Equal(t, &events.CallStub{
		Contact:   "6281234567890@s.whatsapp.net",
		FromMe:    true,
		Code:      events.StubCallMissedVoice,
		Timestamp: sentAt,
	}, stubs[0])
	assert.Equal(t, events.StubCallMissedGroupVideo, stubs[1].Code)
}
