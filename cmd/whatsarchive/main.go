// Copyright (c) 2026 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"go.mau.fi/util/exzerolog"
	"go.mau.fi/whatsmeow"
	waStore "go.mau.fi/whatsmeow/store"
	waLog "go.mau.fi/whatsmeow/util/log"

	"go.mau.fi/whatsarchive"
	"go.mau.fi/whatsarchive/config"
	"go.mau.fi/whatsarchive/ha"
	"go.mau.fi/whatsarchive/health"
	"go.mau.fi/whatsarchive/wasession"
)

func main() {
	err := newRootCommand().Execute()
	switch {
	case err == nil:
	case errors.Is(err, whatsarchive.ErrScheduledRestart):
		// The process supervisor starts a fresh instance.
	default:
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "whatsarchive",
		Short:         "Archive WhatsApp messages, calls and block list changes to text logs",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath, cmd.Flags().Changed("config"))
			if err != nil {
				_, _ = fmt.Fprintln(os.Stderr, err)
				return err
			}
			log, err := newLogger(cfg.Logging)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			err = run(log.WithContext(ctx), cfg, log)
			switch {
			case err == nil:
				log.Info().Msg("Shutdown complete")
			case errors.Is(err, whatsarchive.ErrScheduledRestart):
				log.Info().Msg("Exiting for scheduled restart")
			case errors.Is(err, whatsarchive.ErrLoggedOut):
				log.Error().Msg("Session was logged out, delete the credential store and pair again")
			default:
				log.Err(err).Msg("Connector stopped with error")
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "config.yaml", "path to the YAML config file")
	return cmd
}

func newLogger(cfg config.LoggingConfig) (*zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	var output io.Writer = os.Stdout
	if cfg.Format != "json" {
		output = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.DateTime}
	}
	log := zerolog.New(output).Level(level).With().Timestamp().Logger()
	exzerolog.SetupDefaults(&log)
	return &log, nil
}

func run(ctx context.Context, cfg *config.Config, log *zerolog.Logger) error {
	waStore.SetOSInfo("Windows", [3]uint32{10, 0, 0})
	creds, err := openCredentialStore(ctx, cfg.Database, log.With().Str("component", "database").Logger())
	if err != nil {
		return err
	}
	defer creds.Close()
	device, err := creds.container.GetFirstDevice(ctx)
	if err != nil {
		return fmt.Errorf("failed to load device: %w", err)
	}

	wa := whatsmeow.NewClient(device, waLog.Zerolog(log.With().Str("component", "whatsmeow").Logger()))
	sess := wasession.New(wa, log.With().Str("component", "session").Logger())
	defer sess.Close()
	pairing := newPairingClient(sess, cfg.Session, *log)

	opts, err := whatsarchive.OptionsFromConfig(cfg)
	if err != nil {
		return err
	}
	opts.OnQR = pairing.ShowQR
	if cfg.HA.Enabled {
		opts.Lock = ha.NewLock(creds.pool, cfg.HA.InstanceName, log.With().Str("component", "ha").Logger())
	}
	conn, err := whatsarchive.NewConnector(pairing, opts, *log)
	if err != nil {
		return err
	}
	if creds.pool != nil {
		conn.Health.AddChecker(health.NewDatabaseChecker(creds.pool))
	}

	if cfg.Server.Enabled {
		srv := newServer(cfg.Server, conn)
		go func() {
			log.Info().Str("listen", cfg.Server.Listen).Msg("Starting HTTP status server")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Err(err).Msg("HTTP status server failed")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	log.Info().Str("archive_dir", cfg.Archive.BaseDir).Str("timezone", cfg.Archive.Timezone).Msg("Starting connector")
	return conn.Run(ctx)
}
