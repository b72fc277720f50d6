// Copyright (c) 2026 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package wasession adapts a whatsmeow client to the session interfaces used by the archiver.
package wasession

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"go.mau.fi/whatsmeow"
	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	waTypes "go.mau.fi/whatsmeow/types"
	waEvents "go.mau.fi/whatsmeow/types/events"

	"go.mau.fi/whatsarchive/events"
	"go.mau.fi/whatsarchive/session"
	"go.mau.fi/whatsarchive/types"
)

// Browser name shown in the linked devices list when pairing with a code.
const pairDisplayName = "Chrome (Windows)"

// Client wraps a whatsmeow client.
type Client struct {
	wa  *whatsmeow.Client
	log zerolog.Logger

	handlerLock sync.RWMutex
	handler     func(any)
	handlerID   uint32
}

var _ session.Session = (*Client)(nil)

// New wraps the given whatsmeow client. Automatic reconnection is disabled, since the connection
// manager owns reconnects.
func New(wa *whatsmeow.Client, log zerolog.Logger) *Client {
	wa.EnableAutoReconnect = false
	c := &Client{wa: wa, log: log}
	c.handlerID = wa.AddEventHandler(c.handleEvent)
	return c
}

// SetEventHandler sets the function that receives translated events.
func (c *Client) SetEventHandler(fn func(any)) {
	c.handlerLock.Lock()
	c.handler = fn
	c.handlerLock.Unlock()
}

// Close detaches the adapter from the whatsmeow client.
func (c *Client) Close() {
	c.wa.RemoveEventHandler(c.handlerID)
}

func (c *Client) emit(evt any) {
	c.handlerLock.RLock()
	fn := c.handler
	c.handlerLock.RUnlock()
	if fn != nil {
		fn(evt)
	}
}

func (c *Client) handleEvent(rawEvt any) {
	if evt := translateConnection(rawEvt); evt != nil {
		c.emit(evt)
		return
	}
	switch evt := rawEvt.(type) {
	case *waEvents.Message:
		if out := translateMessage(evt); out != nil {
			c.emit(out)
		}
	case *waEvents.CallOffer, *waEvents.CallOfferNotice, *waEvents.CallAccept, *waEvents.CallReject, *waEvents.CallTerminate:
		if out := translateCall(c.callIdentity(), evt); out != nil {
			c.emit(out)
		}
	case *waEvents.Blocklist:
		c.emit(&events.BlocklistChanged{})
	case *waEvents.HistorySync:
		stubs := translateHistorySync(evt)
		if len(stubs) > 0 {
			c.log.Debug().Int("count", len(stubs)).Msg("Found call stubs in history sync")
		}
		for _, stub := range stubs {
			c.emit(stub)
		}
	case *waEvents.PairSuccess:
		c.log.Info().Str("jid", evt.ID.String()).Str("platform", evt.Platform).Msg("Pairing successful")
	}
}

func (c *Client) ownJID() waTypes.JID {
	if c.wa.Store.ID == nil {
		return waTypes.EmptyJID
	}
	return *c.wa.Store.ID
}

func (c *Client) callIdentity() callIdentity {
	return callIdentity{
		PN:        c.ownJID(),
		LID:       c.wa.Store.LID,
		ResolvePN: c.resolvePN,
	}
}

func (c *Client) resolvePN(lid waTypes.JID) waTypes.JID {
	if c.wa.Store.LIDs == nil {
		return waTypes.EmptyJID
	}
	pn, err := c.wa.Store.LIDs.GetPNForLID(context.Background(), lid)
	if err != nil {
		c.log.Debug().Err(err).Str("lid", lid.String()).Msg("Failed to resolve phone number for LID")
		return waTypes.EmptyJID
	}
	return pn
}

// Connect opens the websocket. When the device isn't paired yet, pairing codes are emitted as
// events.QR until pairing succeeds or the codes run out.
func (c *Client) Connect(ctx context.Context) error {
	if c.wa.Store.ID == nil {
		qrChan, err := c.wa.GetQRChannel(ctx)
		if err != nil && !errors.Is(err, whatsmeow.ErrQRStoreContainsID) {
			return fmt.Errorf("failed to get QR channel: %w", err)
		} else if err == nil {
			go c.forwardQR(qrChan)
		}
	}
	return c.wa.Connect()
}

func (c *Client) forwardQR(qrChan <-chan whatsmeow.QRChannelItem) {
	for item := range qrChan {
		switch item.Event {
		case "code":
			c.emit(&events.QR{Codes: []string{item.Code}})
		case "success":
			c.log.Info().Msg("QR pairing completed")
		case "timeout":
			c.emit(&events.Closed{Reason: "pairing timed out"})
		case "error":
			c.log.Err(item.Error).Msg("QR pairing failed")
			c.emit(&events.Closed{Reason: "pairing failed"})
		default:
			c.log.Warn().Str("qr_event", item.Event).Msg("Unexpected QR channel event")
		}
	}
}

// PairPhone requests a pairing code for logging in with a phone number instead of a QR code.
func (c *Client) PairPhone(ctx context.Context, phone string) (string, error) {
	return c.wa.PairPhone(ctx, phone, true, whatsmeow.PairClientChrome, pairDisplayName)
}

// Disconnect closes the websocket.
func (c *Client) Disconnect() {
	c.wa.Disconnect()
}

// IsConnected returns true if the websocket is connected.
func (c *Client) IsConnected() bool {
	return c.wa.IsConnected()
}

// IsLoggedIn returns true if the websocket is connected and authenticated.
func (c *Client) IsLoggedIn() bool {
	return c.wa.IsLoggedIn()
}

// OwnID returns the non-AD JID of the paired account.
func (c *Client) OwnID() types.ContactID {
	return contactID(c.ownJID())
}

// DownloadMedia downloads the media attached to a message event created by this adapter.
func (c *Client) DownloadMedia(ctx context.Context, msg *events.Message) ([]byte, error) {
	raw, ok := msg.Raw.(*waE2E.Message)
	if !ok || raw == nil {
		return nil, events.ErrNoMedia
	}
	data, err := c.wa.DownloadAny(ctx, raw)
	if errors.Is(err, whatsmeow.ErrNothingDownloadableFound) {
		return nil, events.ErrNoMedia
	} else if err != nil {
		return nil, fmt.Errorf("failed to download media: %w", err)
	}
	return data, nil
}

// FetchBlocklist returns the current block list from the server.
func (c *Client) FetchBlocklist(ctx context.Context) ([]types.ContactID, error) {
	if c.wa.Store.ID == nil {
		return nil, session.ErrNoSession
	}
	list, err := c.wa.GetBlocklist(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]types.ContactID, 0, len(list.JIDs))
	for _, jid := range list.JIDs {
		ids = append(ids, contactID(jid))
	}
	return ids, nil
}

// ContactName returns the full, push or business name stored for the contact.
func (c *Client) ContactName(ctx context.Context, id types.ContactID) string {
	jid, err := waTypes.ParseJID(id.String())
	if err != nil || c.wa.Store.Contacts == nil {
		return ""
	}
	info, err := c.wa.Store.Contacts.GetContact(ctx, jid)
	if err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Str("contact", id.String()).Msg("Failed to get contact info")
		return ""
	} else if !info.Found {
		return ""
	}
	for _, name := range []string{info.FullName, info.PushName, info.BusinessName} {
		if name != "" {
			return name
		}
	}
	return ""
}
