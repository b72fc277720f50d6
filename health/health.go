// Copyright (c) 2026 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package health aggregates the health of the connector's components for the status server.
package health

import (
	"context"
	"maps"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Status is the state of one component or of the whole connector.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

var statusSeverity = map[Status]int{
	StatusHealthy:   0,
	StatusDegraded:  1,
	StatusUnhealthy: 2,
}

// worse returns whichever of the two statuses is more severe.
func worse(a, b Status) Status {
	if statusSeverity[b] > statusSeverity[a] {
		return b
	}
	return a
}

// ComponentHealth is the result of one checker.
type ComponentHealth struct {
	Status    Status         `json:"status"`
	Message   string         `json:"message,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`
}

// Report is the aggregated result served on /health. Its status is the worst component status.
type Report struct {
	Status     Status                     `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Components map[string]ComponentHealth `json:"components"`
}

type Checker interface {
	Name() string
	Check(ctx context.Context) ComponentHealth
}

// Monitor runs all registered checkers concurrently.
type Monitor struct {
	lock     sync.RWMutex
	checkers map[string]Checker
	log      zerolog.Logger
}

func NewMonitor(log zerolog.Logger) *Monitor {
	return &Monitor{
		checkers: make(map[string]Checker),
		log:      log,
	}
}

// AddChecker registers a checker. A checker with the same name is replaced.
func (m *Monitor) AddChecker(checker Checker) {
	m.lock.Lock()
	m.checkers[checker.Name()] = checker
	m.lock.Unlock()
}

// Check runs every checker and waits for all of them.
func (m *Monitor) Check(ctx context.Context) Report {
	m.lock.RLock()
	checkers := maps.Clone(m.checkers)
	m.lock.RUnlock()

	var wg sync.WaitGroup
	var resultLock sync.Mutex
	report := Report{
		Status:     StatusHealthy,
		Components: make(map[string]ComponentHealth, len(checkers)),
	}
	for name, checker := range checkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result := checker.Check(ctx)
			resultLock.Lock()
			report.Components[name] = result
			report.Status = worse(report.Status, result.Status)
			resultLock.Unlock()
		}()
	}
	wg.Wait()
	report.Timestamp = time.Now()
	if report.Status != StatusHealthy {
		evt := m.log.Debug().Str("status", string(report.Status))
		for name, result := range report.Components {
			if result.Status != StatusHealthy {
				evt = evt.Str(name, result.Message)
			}
		}
		evt.Msg("Connector isn't fully healthy")
	}
	return report
}

// Handle serves the report as JSON. Only an unhealthy connector answers with 503.
func (m *Monitor) Handle(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()
	report := m.Check(ctx)
	code := http.StatusOK
	if report.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, report)
}

// LivenessChecker is healthy for as long as the process can answer, and reports the uptime.
type LivenessChecker struct {
	started time.Time
}

func NewLivenessChecker() *LivenessChecker {
	return &LivenessChecker{started: time.Now()}
}

func (lc *LivenessChecker) Name() string {
	return "liveness"
}

func (lc *LivenessChecker) Check(_ context.Context) ComponentHealth {
	return ComponentHealth{
		Status:    StatusHealthy,
		Timestamp: time.Now(),
		Details: map[string]any{
			"uptime": time.Since(lc.started).Truncate(time.Second).String(),
		},
	}
}
