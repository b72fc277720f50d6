// Copyright (c) 2026 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package main

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/mdp/qrterminal/v3"
	"github.com/rs/zerolog"
	"github.com/skip2/go-qrcode"

	"go.mau.fi/whatsarchive/config"
	"go.mau.fi/whatsarchive/wasession"
)

// pairingClient renders pairing QR codes and requests a phone pairing code once per QR session.
type pairingClient struct {
	*wasession.Client
	cfg config.SessionConfig
	log zerolog.Logger

	lock          sync.Mutex
	codeRequested bool
}

func newPairingClient(client *wasession.Client, cfg config.SessionConfig, log zerolog.Logger) *pairingClient {
	return &pairingClient{
		Client: client,
		cfg:    cfg,
		log:    log.With().Str("component", "pairing").Logger(),
	}
}

// Connect starts a new QR session.
func (pc *pairingClient) Connect(ctx context.Context) error {
	pc.lock.Lock()
	pc.codeRequested = false
	pc.lock.Unlock()
	return pc.Client.Connect(ctx)
}

// ShowQR is called by the connection manager for every QR code.
func (pc *pairingClient) ShowQR(codes []string) {
	if len(codes) == 0 {
		return
	}
	code := codes[0]
	fmt.Println("Scan this QR code with WhatsApp (Linked devices):")
	qrterminal.GenerateHalfBlock(code, qrterminal.L, os.Stdout)
	if pc.cfg.QRFile != "" {
		if err := qrcode.WriteFile(code, qrcode.Medium, 512, pc.cfg.QRFile); err != nil {
			pc.log.Err(err).Str("path", pc.cfg.QRFile).Msg("Failed to save QR code image")
		} else {
			pc.log.Info().Str("path", pc.cfg.QRFile).Msg("Saved QR code image")
		}
	}
	if pc.cfg.PhoneNumber == "" {
		return
	}
	pc.lock.Lock()
	alreadyRequested := pc.codeRequested
	pc.codeRequested = true
	pc.lock.Unlock()
	if !alreadyRequested {
		go pc.requestPairingCode()
	}
}

func (pc *pairingClient) requestPairingCode() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	code, err := pc.PairPhone(ctx, pc.cfg.PhoneNumber)
	if err != nil {
		pc.log.Err(err).Str("phone", pc.cfg.PhoneNumber).Msg("Failed to request pairing code")
		return
	}
	pc.log.Info().Str("code", code).Msg("Pairing code requested")
	fmt.Printf("Pairing code for +%s: %s\n", pc.cfg.PhoneNumber, code)
	fmt.Printf("Or open https://wa.me/pair/%s on the phone\n", code)
}
