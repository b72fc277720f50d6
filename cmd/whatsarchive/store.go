// Copyright (c) 2026 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/rs/zerolog"
	"go.mau.fi/whatsmeow/store/sqlstore"
	waLog "go.mau.fi/whatsmeow/util/log"

	"go.mau.fi/whatsarchive/config"
)

// credentialStore holds the whatsmeow device store and, for postgres, the pool it runs on.
type credentialStore struct {
	container *sqlstore.Container
	pool      *pgxpool.Pool
	db        *sql.DB
}

func openCredentialStore(ctx context.Context, cfg config.DatabaseConfig, log zerolog.Logger) (*credentialStore, error) {
	dbLog := waLog.Zerolog(log)
	switch cfg.Dialect {
	case config.DialectSQLite:
		container, err := sqlstore.New(ctx, config.DialectSQLite, cfg.URI, dbLog)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite credential store: %w", err)
		}
		return &credentialStore{container: container}, nil
	case config.DialectPostgres:
		poolCfg, err := pgxpool.ParseConfig(cfg.URI)
		if err != nil {
			return nil, fmt.Errorf("failed to parse database uri: %w", err)
		}
		if cfg.MaxConns > 0 {
			poolCfg.MaxConns = cfg.MaxConns
		}
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		db := stdlib.OpenDBFromPool(pool)
		container := sqlstore.NewWithDB(db, config.DialectPostgres, dbLog)
		if err = container.Upgrade(ctx); err != nil {
			_ = db.Close()
			pool.Close()
			return nil, fmt.Errorf("failed to upgrade credential store: %w", err)
		}
		log.Debug().Int32("max_conns", poolCfg.MaxConns).Msg("Opened postgres credential store")
		return &credentialStore{container: container, pool: pool, db: db}, nil
	default:
		return nil, fmt.Errorf("unsupported database dialect %q", cfg.Dialect)
	}
}

func (cs *credentialStore) Close() {
	_ = cs.container.Close()
	if cs.db != nil {
		_ = cs.db.Close()
	}
	if cs.pool != nil {
		cs.pool.Close()
	}
}
