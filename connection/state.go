// Copyright (c) 2026 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package connection

import (
	"fmt"
)

// State is the state of the connection lifecycle.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosedRetryable
	StateClosedTerminal
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosedRetryable:
		return "closed"
	case StateClosedTerminal:
		return "logged out"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// IsTerminal returns true if the state can't be left without re-authenticating.
func (s State) IsTerminal() bool {
	return s == StateClosedTerminal
}
