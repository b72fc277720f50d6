// Copyright (c) 2026 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package whatsarchive archives the messages, calls and block list changes of a WhatsApp account
// into per-contact, per-day text logs.
package whatsarchive

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"go.mau.fi/whatsarchive/archive"
	"go.mau.fi/whatsarchive/archiver"
	"go.mau.fi/whatsarchive/blocklist"
	"go.mau.fi/whatsarchive/calls"
	"go.mau.fi/whatsarchive/config"
	"go.mau.fi/whatsarchive/connection"
	"go.mau.fi/whatsarchive/health"
	"go.mau.fi/whatsarchive/scheduler"
)

var (
	// ErrScheduledRestart is returned by Run when the restart job fired.
	ErrScheduledRestart = errors.New("scheduled restart")
	// ErrLoggedOut is returned by Run when the account was logged out and needs to be paired again.
	ErrLoggedOut = connection.ErrLoggedOut
)

const (
	JobRestart   = "restart"
	JobBlocklist = "blocklist"
)

// Client is the protocol client the connector drives.
type Client interface {
	connection.Client
	SetEventHandler(fn func(any))
}

// Lock is a single-writer lock held for the whole run.
type Lock interface {
	Acquire(ctx context.Context) error
	Watch(ctx context.Context, interval time.Duration) error
	Verify(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Options configure a Connector.
type Options struct {
	LogDir     string
	BlockedDir string
	Location   *time.Location

	Connection   connection.Config
	TombstoneTTL time.Duration

	// Cron expressions in Location. Empty expressions disable the job.
	RestartCron   string
	BlocklistCron string

	Lock              Lock
	LockCheckInterval time.Duration

	OnQR func(codes []string)
}

// OptionsFromConfig converts the loaded configuration into connector options.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	loc, err := cfg.Location()
	if err != nil {
		return Options{}, err
	}
	return Options{
		LogDir:     cfg.Archive.LogDir(),
		BlockedDir: cfg.Archive.BlockedDir(),
		Location:   loc,
		Connection: connection.Config{
			InitialBackoff: cfg.Connection.InitialBackoff,
			MaxBackoff:     cfg.Connection.MaxBackoff,
			QueueSize:      cfg.Connection.QueueSize,
		},
		TombstoneTTL:      cfg.Calls.TombstoneTTL,
		RestartCron:       cfg.Schedule.Restart,
		BlocklistCron:     cfg.Schedule.Blocklist,
		LockCheckInterval: cfg.HA.CheckInterval,
	}, nil
}

// Connector wires the archival components to one client.
type Connector struct {
	Store      *archive.Store
	Archiver   *archiver.Archiver
	Calls      *calls.Tracker
	Blocklist  *blocklist.Reconciler
	Manager    *connection.Manager
	Scheduler  *scheduler.Scheduler
	Health     *health.Monitor
	Client     Client
	Log        zerolog.Logger
	lock       Lock
	lockCheck  time.Duration
	runningJob sync.Mutex
	cancelRun  context.CancelCauseFunc
}

// NewConnector builds every component and subscribes the manager to the client's events.
func NewConnector(client Client, opts Options, log zerolog.Logger) (*Connector, error) {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	store := archive.NewStore(opts.LogDir, opts.BlockedDir, archive.WithLocation(opts.Location))
	callOpts := []calls.Option{}
	if opts.TombstoneTTL > 0 {
		callOpts = append(callOpts, calls.WithTombstoneTTL(opts.TombstoneTTL))
	}
	c := &Connector{
		Store:     store,
		Archiver:  archiver.New(store, client, log.With().Str("component", "archiver").Logger()),
		Calls:     calls.NewTracker(calls.NewWriter(store, client, log.With().Str("component", "calls").Logger()), client, log.With().Str("component", "calls").Logger(), callOpts...),
		Blocklist: blocklist.NewReconciler(store, client, log.With().Str("component", "blocklist").Logger()),
		Scheduler: scheduler.New(opts.Location, log.With().Str("component", "scheduler").Logger()),
		Health:    health.NewMonitor(log.With().Str("component", "health").Logger()),
		Client:    client,
		Log:       log,
		lock:      opts.Lock,
		lockCheck: opts.LockCheckInterval,
	}
	if c.lockCheck <= 0 {
		c.lockCheck = 10 * time.Second
	}
	c.Manager = connection.NewManager(client, connection.Handlers{
		Messages:  c.Archiver,
		Calls:     c.Calls,
		Blocklist: c.Blocklist,
		OnQR:      opts.OnQR,
	}, opts.Connection, log.With().Str("component", "connection").Logger())
	client.SetEventHandler(c.Manager.Dispatch)

	if opts.RestartCron != "" {
		err := c.Scheduler.Add(scheduler.Job{Name: JobRestart, Cron: opts.RestartCron, Run: c.restartJob})
		if err != nil {
			return nil, err
		}
	}
	if opts.BlocklistCron != "" {
		err := c.Scheduler.Add(scheduler.Job{Name: JobBlocklist, Cron: opts.BlocklistCron, Run: c.blocklistJob})
		if err != nil {
			return nil, err
		}
	}

	c.Health.AddChecker(health.NewLivenessChecker())
	c.Health.AddChecker(health.NewSessionChecker(c.Manager))
	c.Health.AddChecker(health.NewArchiveChecker(store))
	if c.lock != nil {
		c.Health.AddChecker(health.NewLeadershipChecker(c.lock))
	}
	return c, nil
}

// IsOpen returns true while the session is open.
func (c *Connector) IsOpen() bool {
	return c.Manager.IsOpen()
}

func (c *Connector) restartJob(ctx context.Context) {
	zerolog.Ctx(ctx).Info().Msg("Scheduled restart, stopping connector")
	c.runningJob.Lock()
	cancel := c.cancelRun
	c.runningJob.Unlock()
	if cancel != nil {
		cancel(ErrScheduledRestart)
	}
}

func (c *Connector) blocklistJob(ctx context.Context) {
	if !c.Manager.IsOpen() {
		zerolog.Ctx(ctx).Warn().Msg("Session isn't connected, skipping block list update")
		return
	}
	c.Blocklist.Snapshot(ctx)
}

// Run holds the lock (if configured), starts the scheduler and keeps the session alive until ctx
// is cancelled, the account is logged out, the lock is lost or the restart job fires.
func (c *Connector) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	c.runningJob.Lock()
	c.cancelRun = cancel
	c.runningJob.Unlock()

	if c.lock != nil {
		c.Log.Info().Msg("Waiting for archive lock")
		if err := c.lock.Acquire(ctx); err != nil {
			return fmt.Errorf("failed to acquire archive lock: %w", err)
		}
		defer func() {
			releaseCtx, releaseCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer releaseCancel()
			if err := c.lock.Release(releaseCtx); err != nil {
				c.Log.Err(err).Msg("Failed to release archive lock")
			}
		}()
	}

	var wg sync.WaitGroup
	defer wg.Wait()
	if c.lock != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.lock.Watch(ctx, c.lockCheck); err != nil {
				cancel(err)
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		c.Scheduler.Run(ctx)
	}()

	err := c.Manager.Run(ctx)
	cancel(nil)
	if err != nil {
		return err
	} else if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
		return cause
	}
	return nil
}
