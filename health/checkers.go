// Copyright (c) 2026 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package health

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"go.mau.fi/whatsarchive/connection"
)

// Session is the part of the connection manager the session checker reads.
type Session interface {
	State() connection.State
	SessionID() string
	QueueLength() int
}

// SessionChecker reports the connection state of the archived account.
type SessionChecker struct {
	session Session
}

// NewSessionChecker creates a session health checker.
func NewSessionChecker(session Session) *SessionChecker {
	return &SessionChecker{session: session}
}

func (sc *SessionChecker) Name() string {
	return "session"
}

func (sc *SessionChecker) Check(_ context.Context) ComponentHealth {
	state := sc.session.State()
	details := map[string]any{
		"state":         state.String(),
		"session_id":    sc.session.SessionID(),
		"queued_events": sc.session.QueueLength(),
	}
	switch state {
	case connection.StateOpen:
		return ComponentHealth{Status: StatusHealthy, Timestamp: time.Now(), Details: details}
	case connection.StateClosedTerminal:
		return ComponentHealth{
			Status:    StatusUnhealthy,
			Message:   "session logged out, pairing required",
			Timestamp: time.Now(),
			Details:   details,
		}
	default:
		return ComponentHealth{
			Status:    StatusDegraded,
			Message:   "session is reconnecting",
			Timestamp: time.Now(),
			Details:   details,
		}
	}
}

// WritableDir is a directory that can be checked for write access.
type WritableDir interface {
	CheckWritable() error
}

// ArchiveChecker checks that the archive directories accept writes.
type ArchiveChecker struct {
	dir WritableDir
}

// NewArchiveChecker creates an archive directory health checker.
func NewArchiveChecker(dir WritableDir) *ArchiveChecker {
	return &ArchiveChecker{dir: dir}
}

func (ac *ArchiveChecker) Name() string {
	return "archive"
}

func (ac *ArchiveChecker) Check(_ context.Context) ComponentHealth {
	if err := ac.dir.CheckWritable(); err != nil {
		return ComponentHealth{
			Status:    StatusUnhealthy,
			Message:   fmt.Sprintf("archive is not writable: %v", err),
			Timestamp: time.Now(),
		}
	}
	return ComponentHealth{Status: StatusHealthy, Timestamp: time.Now()}
}

// DatabaseChecker checks connectivity of the credential store database.
type DatabaseChecker struct {
	pool *pgxpool.Pool
}

// NewDatabaseChecker creates a database health checker.
func NewDatabaseChecker(pool *pgxpool.Pool) *DatabaseChecker {
	return &DatabaseChecker{pool: pool}
}

func (dc *DatabaseChecker) Name() string {
	return "database"
}

func (dc *DatabaseChecker) Check(ctx context.Context) ComponentHealth {
	start := time.Now()
	var result int
	err := dc.pool.QueryRow(ctx, "SELECT 1").Scan(&result)
	latency := time.Since(start)
	if err != nil {
		return ComponentHealth{
			Status:    StatusUnhealthy,
			Message:   fmt.Sprintf("database query failed: %v", err),
			Timestamp: time.Now(),
			Details: map[string]any{
				"latency": latency.String(),
			},
		}
	}

	status := StatusHealthy
	if latency > 100*time.Millisecond {
		status = StatusDegraded
	}
	stat := dc.pool.Stat()
	return ComponentHealth{
		Status:    status,
		Timestamp: time.Now(),
		Details: map[string]any{
			"latency":  latency.String(),
			"acquired": stat.AcquiredConns(),
			"idle":     stat.IdleConns(),
			"max":      stat.MaxConns(),
		},
	}
}

// Lock is a single-writer lock whose ownership can be verified.
type Lock interface {
	Verify(ctx context.Context) (bool, error)
}

// LeadershipChecker reports whether this instance holds the archive lock.
type LeadershipChecker struct {
	lock Lock
}

// NewLeadershipChecker creates a lock health checker.
func NewLeadershipChecker(lock Lock) *LeadershipChecker {
	return &LeadershipChecker{lock: lock}
}

func (lc *LeadershipChecker) Name() string {
	return "leadership"
}

func (lc *LeadershipChecker) Check(ctx context.Context) ComponentHealth {
	held, err := lc.lock.Verify(ctx)
	if err != nil {
		return ComponentHealth{
			Status:    StatusDegraded,
			Message:   fmt.Sprintf("failed to verify archive lock: %v", err),
			Timestamp: time.Now(),
		}
	} else if !held {
		return ComponentHealth{
			Status:    StatusUnhealthy,
			Message:   "archive lock is not held",
			Timestamp: time.Now(),
		}
	}
	return ComponentHealth{
		Status:    StatusHealthy,
		Timestamp: time.Now(),
		Details:   map[string]any{"is_leader": true},
	}
}
