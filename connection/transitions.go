// Copyright (c) 2026 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package connection

import (
	"sync"
)

// transitionQueue holds connection state events for the state machine. Pushing never blocks and
// never drops, so a close event can't be lost while the state machine is busy.
type transitionQueue struct {
	lock    sync.Mutex
	pending []any
	notify  chan struct{}
}

func newTransitionQueue() *transitionQueue {
	return &transitionQueue{notify: make(chan struct{}, 1)}
}

func (q *transitionQueue) push(evt any) {
	q.lock.Lock()
	q.pending = append(q.pending, evt)
	q.lock.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// take removes and returns every queued event in arrival order.
func (q *transitionQueue) take() []any {
	q.lock.Lock()
	defer q.lock.Unlock()
	evts := q.pending
	q.pending = nil
	return evts
}
