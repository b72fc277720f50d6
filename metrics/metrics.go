// Copyright (c) 2026 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package metrics contains the prometheus collectors updated by the archival pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "whatsarchive"

var (
	MessagesArchived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_archived_total",
			Help:      "Number of message entries appended to message logs.",
		},
		[]string{"direction"},
	)

	MediaSaved = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "media_saved_total",
			Help:      "Number of media files written to the archive.",
		},
	)

	MediaFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "media_failures_total",
			Help:      "Number of media attachments that could not be downloaded or stored.",
		},
	)

	CallLines = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "call_lines_total",
			Help:      "Number of call log lines written, by producing feed.",
		},
		[]string{"feed"},
	)

	BlocklistActions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocklist_actions_total",
			Help:      "Number of block and unblock entries written.",
		},
		[]string{"action"},
	)

	Reconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_total",
			Help:      "Number of times the session was re-established after a retryable close.",
		},
	)

	SessionState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_state",
			Help:      "Current connection state (0 connecting, 1 open, 2 closed retryable, 3 closed terminal).",
		},
	)
)

// Feed labels for CallLines.
const (
	FeedResult    = "result"
	FeedLifecycle = "lifecycle"
	FeedStub      = "stub"
)

func init() {
	prometheus.MustRegister(MessagesArchived)
	prometheus.MustRegister(MediaSaved)
	prometheus.MustRegister(MediaFailures)
	prometheus.MustRegister(CallLines)
	prometheus.MustRegister(BlocklistActions)
	prometheus.MustRegister(Reconnects)
	prometheus.MustRegister(SessionState)
}
