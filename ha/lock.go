// Copyright (c) 2026 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package ha makes sure only one connector instance archives an account at a time.
package ha

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// ErrLockLost is returned by Watch when the advisory lock is no longer held.
var ErrLockLost = errors.New("archive lock lost")

const (
	initialRetryDelay = 1 * time.Second
	maxRetryDelay     = 30 * time.Second
)

// GenerateLockID derives a stable advisory lock ID from an instance name.
func GenerateLockID(identifier string) int64 {
	hash := sha256.Sum256([]byte(identifier))
	lockID := int64(binary.BigEndian.Uint64(hash[:8]))
	if lockID < 0 {
		lockID = -lockID
	}
	return lockID
}

// Lock is a PostgreSQL session advisory lock. Advisory locks belong to a backend connection, so
// the lock keeps one pooled connection checked out for as long as it's held.
type Lock struct {
	pool   *pgxpool.Pool
	lockID int64
	log    zerolog.Logger

	mu   sync.Mutex
	conn *pgxpool.Conn
}

// NewLock creates a lock for the given instance name.
func NewLock(pool *pgxpool.Pool, name string, log zerolog.Logger) *Lock {
	return &Lock{
		pool:   pool,
		lockID: GenerateLockID(name),
		log:    log.With().Str("lock_name", name).Logger(),
	}
}

// TryAcquire attempts to take the lock without blocking.
func (l *Lock) TryAcquire(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn != nil {
		return true, nil
	}
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to acquire connection: %w", err)
	}
	var acquired bool
	err = conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&acquired)
	if err != nil {
		conn.Release()
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	} else if !acquired {
		conn.Release()
		return false, nil
	}
	l.conn = conn
	l.log.Info().Int64("lock_id", l.lockID).Msg("Acquired archive lock")
	return true, nil
}

// Acquire blocks until the lock is taken or ctx is cancelled, retrying with exponential backoff.
func (l *Lock) Acquire(ctx context.Context) error {
	backoff := initialRetryDelay
	for {
		acquired, err := l.TryAcquire(ctx)
		if err != nil {
			return err
		} else if acquired {
			return nil
		}
		l.log.Info().Stringer("retry_in", backoff).Msg("Archive lock is held by another instance")
		select {
		case <-time.After(backoff):
			backoff = min(backoff*2, maxRetryDelay)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Verify checks that the lock is still held by this instance's connection.
func (l *Lock) Verify(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return false, nil
	}
	var held bool
	err := l.conn.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM pg_locks
			WHERE locktype='advisory'
			AND ((classid::bigint << 32) | objid::bigint)=$1
			AND pid=pg_backend_pid()
		)
	`, l.lockID).Scan(&held)
	if err != nil {
		return false, fmt.Errorf("failed to verify lock: %w", err)
	}
	return held, nil
}

// Watch verifies the lock every interval and returns ErrLockLost as soon as it isn't held.
// It returns nil when ctx is cancelled.
func (l *Lock) Watch(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			held, err := l.Verify(checkCtx)
			cancel()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				l.log.Err(err).Msg("Failed to verify archive lock")
				continue
			} else if !held {
				l.log.Warn().Msg("Lost archive lock")
				return ErrLockLost
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// Release unlocks and returns the dedicated connection to the pool.
func (l *Lock) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil
	}
	conn := l.conn
	l.conn = nil
	defer conn.Release()
	var released bool
	err := conn.QueryRow(ctx, "SELECT pg_advisory_unlock($1)", l.lockID).Scan(&released)
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	} else if !released {
		return errors.New("lock was not held")
	}
	l.log.Info().Msg("Released archive lock")
	return nil
}
