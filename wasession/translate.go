// Copyright (c) 2026 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package wasession

import (
	"fmt"
	"time"

	waBinary "go.mau.fi/whatsmeow/binary"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/proto/waWeb"
	waTypes "go.mau.fi/whatsmeow/types"
	waEvents "go.mau.fi/whatsmeow/types/events"

	"go.mau.fi/whatsarchive/events"
	"go.mau.fi/whatsarchive/types"
)

func contactID(jid waTypes.JID) types.ContactID {
	if jid.IsEmpty() {
		return ""
	}
	return types.ContactID(jid.ToNonAD().String())
}

// translateConnection maps connection state events. It returns nil for other events.
func translateConnection(rawEvt any) any {
	switch evt := rawEvt.(type) {
	case *waEvents.Connected:
		return &events.Opened{}
	case *waEvents.Disconnected:
		return &events.Closed{Reason: "disconnected"}
	case *waEvents.StreamReplaced:
		return &events.Closed{Reason: "stream replaced"}
	case *waEvents.TemporaryBan:
		return &events.Closed{Reason: evt.String()}
	case *waEvents.ClientOutdated:
		return &events.Closed{Reason: "client outdated"}
	case *waEvents.ConnectFailure:
		return &events.Closed{
			LoggedOut: evt.Reason.IsLoggedOut(),
			Reason:    fmt.Sprintf("connect failure %d: %s", int(evt.Reason), evt.Message),
		}
	case *waEvents.LoggedOut:
		return &events.Closed{LoggedOut: true, Reason: fmt.Sprintf("logged out (reason %d)", int(evt.Reason))}
	default:
		return nil
	}
}

// translateMessage converts a message event into either a message or, for call log messages,
// a call result.
func translateMessage(evt *waEvents.Message) any {
	msg := evt.Message
	if msg == nil {
		return nil
	}
	chat := contactID(evt.Info.Chat)
	if callLog := msg.GetCallLogMesssage(); callLog != nil {
		return &events.CallResult{
			Contact:   chat,
			Video:     callLog.GetIsVideo(),
			Duration:  time.Duration(callLog.GetDurationSecs()) * time.Second,
			Timestamp: evt.Info.Timestamp,
		}
	}
	out := &events.Message{
		ID:           string(evt.Info.ID),
		Chat:         chat,
		Sender:       contactID(evt.Info.Sender),
		FromMe:       evt.Info.IsFromMe,
		Timestamp:    evt.Info.Timestamp,
		IsBroadcast:  evt.Info.Chat == waTypes.StatusBroadcastJID,
		IsStub:       msg.GetProtocolMessage() != nil,
		Text:         msg.GetConversation(),
		ExtendedText: msg.GetExtendedTextMessage().GetText(),
		ImageCaption: msg.GetImageMessage().GetCaption(),
		VideoCaption: msg.GetVideoMessage().GetCaption(),
		Media:        extractMedia(msg),
		Raw:          msg,
	}
	return out
}

func extractMedia(msg *waE2E.Message) *events.Media {
	switch {
	case msg.GetImageMessage() != nil:
		img := msg.GetImageMessage()
		return &events.Media{Type: events.MediaImage, MimeType: img.GetMimetype(), Size: img.GetFileLength()}
	case msg.GetVideoMessage() != nil:
		vid := msg.GetVideoMessage()
		return &events.Media{Type: events.MediaVideo, MimeType: vid.GetMimetype(), Size: vid.GetFileLength()}
	case msg.GetAudioMessage() != nil:
		aud := msg.GetAudioMessage()
		return &events.Media{Type: events.MediaAudio, MimeType: aud.GetMimetype(), Size: aud.GetFileLength()}
	case msg.GetDocumentMessage() != nil:
		doc := msg.GetDocumentMessage()
		return &events.Media{
			Type:     events.MediaDocument,
			MimeType: doc.GetMimetype(),
			FileName: doc.GetFileName(),
			Size:     doc.GetFileLength(),
		}
	default:
		return nil
	}
}

func hasVideoChild(node *waBinary.Node) bool {
	if node == nil {
		return false
	}
	_, ok := node.GetOptionalChildByTag("video")
	return ok
}

// callIdentity is the archiving account as it can appear in call signalling.
type callIdentity struct {
	PN  waTypes.JID
	LID waTypes.JID
	// ResolvePN maps a hidden user (LID) JID to its phone number JID. It returns an empty JID if
	// the mapping is unknown. May be nil.
	ResolvePN func(lid waTypes.JID) waTypes.JID
}

func (ci callIdentity) isOwn(jid waTypes.JID) bool {
	switch jid.Server {
	case waTypes.DefaultUserServer:
		return !ci.PN.IsEmpty() && jid.User == ci.PN.User
	case waTypes.HiddenUserServer:
		return !ci.LID.IsEmpty() && jid.User == ci.LID.User
	default:
		return false
	}
}

// toPN returns the phone number form of jid, so that calls of a contact share the directory of
// its messages. Unresolvable LIDs are returned as-is.
func (ci callIdentity) toPN(jid waTypes.JID) waTypes.JID {
	if jid.Server != waTypes.HiddenUserServer {
		return jid
	} else if ci.isOwn(jid) {
		return ci.PN
	} else if ci.ResolvePN != nil {
		if pn := ci.ResolvePN(jid.ToNonAD()); !pn.IsEmpty() {
			return pn
		}
	}
	return jid
}

// translateCall converts call signalling events into lifecycle events. It returns nil for
// other events.
func translateCall(own callIdentity, rawEvt any) *events.CallLifecycle {
	var meta waTypes.BasicCallMeta
	out := &events.CallLifecycle{}
	switch evt := rawEvt.(type) {
	case *waEvents.CallOffer:
		meta = evt.BasicCallMeta
		out.Status = events.CallOffer
		out.Video = hasVideoChild(evt.Data)
	case *waEvents.CallOfferNotice:
		meta = evt.BasicCallMeta
		out.Status = events.CallOffer
		out.Video = evt.Media == "video"
	case *waEvents.CallAccept:
		meta = evt.BasicCallMeta
		out.Status = events.CallAccept
	case *waEvents.CallReject:
		meta = evt.BasicCallMeta
		out.Status = events.CallReject
	case *waEvents.CallTerminate:
		meta = evt.BasicCallMeta
		out.Status = events.CallTerminate
		if evt.Reason == "timeout" {
			out.Status = events.CallTimeout
		}
	default:
		return nil
	}
	out.CallID = meta.CallID
	out.Timestamp = meta.Timestamp
	originator := meta.CallCreator
	if originator.Server == waTypes.HiddenUserServer && !meta.CallCreatorAlt.IsEmpty() {
		originator = meta.CallCreatorAlt
	}
	if originator.IsEmpty() {
		originator = meta.From
	}
	if own.isOwn(originator) {
		out.From = contactID(own.PN)
		out.To = contactID(own.toPN(meta.From))
	} else {
		out.From = contactID(own.toPN(originator))
		out.To = contactID(own.PN)
	}
	return out
}

var stubCodes = map[waWeb.WebMessageInfo_StubType]events.StubCode{
	waWeb.WebMessageInfo_CALL_MISSED_VOICE:       events.StubCallMissedVoice,
	waWeb.WebMessageInfo_CALL_MISSED_VIDEO:       events.StubCallMissedVideo,
	waWeb.WebMessageInfo_CALL_MISSED_GROUP_VOICE: events.StubCallMissedGroupVoice,
	waWeb.WebMessageInfo_CALL_MISSED_GROUP_VIDEO: events.StubCallMissedGroupVideo,
}

// translateHistorySync extracts call stubs from a history sync blob.
func translateHistorySync(evt *waEvents.HistorySync) []*events.CallStub {
	var stubs []*events.CallStub
	for _, conv := range evt.Data.GetConversations() {
		chat, err := waTypes.ParseJID(conv.GetID())
		if err != nil {
			continue
		}
		for _, histMsg := range conv.GetMessages() {
			webMsg := histMsg.GetMessage()
			code, ok := stubCodes[webMsg.GetMessageStubType()]
			if !ok {
				continue
			}
			stubs = append(stubs, &events.CallStub{
				Contact:   contactID(chat),
				FromMe:    webMsg.GetKey().GetFromMe(),
				Code:      code,
				Timestamp: time.Unix(int64(webMsg.GetMessageTimestamp()), 0),
			})
		}
	}
	return stubs
}
