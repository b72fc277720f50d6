// Copyright (c) 2026 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.mau.fi/whatsarchive/connection"
)

type fakeSession struct {
	state connection.State
}

func (fs fakeSession) State() connection.State { return fs.state }
func (fs fakeSession) SessionID() string       { return "run-1" }
func (fs fakeSession) QueueLength() int        { return 0 }

type fakeDir struct {
	err error
}

func (fd fakeDir) CheckWritable() error { return fd.err }

type fakeLock struct {
	held bool
	err  error
}

func (fl fakeLock) Verify(context.Context) (bool, error) { return fl.held, fl.err }

func TestSessionChecker(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, StatusHealthy, NewSessionChecker(fakeSession{connection.StateOpen}).Check(ctx).Status)
	assert.Equal(t, StatusDegraded, NewSessionChecker(fakeSession{connection.StateConnecting}).Check(ctx).Status)
	assert.Equal(t, StatusDegraded, NewSessionChecker(fakeSession{connection.StateClosedRetryable}).Check(ctx).Status)
	assert.Equal(t, StatusUnhealthy, NewSessionChecker(fakeSession{connection.StateClosedTerminal}).Check(ctx).Status)
}

func TestLeadershipChecker(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, StatusHealthy, NewLeadershipChecker(fakeLock{held: true}).Check(ctx).Status)
	assert.Equal(t, StatusUnhealthy, NewLeadershipChecker(fakeLock{}).Check(ctx).Status)
	assert.Equal(t, StatusDegraded, NewLeadershipChecker(fakeLock{err: errors.New("conn closed")}).Check(ctx).Status)
}

func TestMonitorAggregates(t *testing.T) {
	hm := NewMonitor(zerolog.Nop())
	hm.AddChecker(NewLivenessChecker())
	hm.AddChecker(NewArchiveChecker(fakeDir{}))
	assert.Equal(t, StatusHealthy, hm.Check(context.Background()).Status)

	hm.AddChecker(NewSessionChecker(fakeSession{connection.StateConnecting}))
	assert.Equal(t, StatusDegraded, hm.Check(context.Background()).Status)

	hm.AddChecker(NewArchiveChecker(fakeDir{err: errors.New("read-only file system")}))
	report := hm.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, report.Status)
	assert.Len(t, report.Components, 3)
	assert.Contains(t, report.Components["archive"].Message, "read-only file system")
}

func TestHandle(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hm := NewMonitor(zerolog.Nop())
	hm.AddChecker(NewSessionChecker(fakeSession{connection.StateClosedTerminal}))
	router := gin.New()
	router.GET("/health", hm.Handle)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var report Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, StatusUnhealthy, report.Status)
	assert.Equal(t, "logged out", report.Components["session"].Details["state"])
}

func TestWorse(t *testing.T) {
	assert.Equal(t, StatusDegraded, worse(StatusHealthy, StatusDegraded))
	assert.Equal(t, StatusUnhealthy, worse(StatusUnhealthy, StatusDegraded))
	assert.Equal(t, StatusHealthy, worse(StatusHealthy, StatusHealthy))
}
