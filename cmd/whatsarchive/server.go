// Copyright (c) 2026 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package main

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"go.mau.fi/whatsarchive"
	"go.mau.fi/whatsarchive/config"
)

func newServer(cfg config.ServerConfig, conn *whatsarchive.Connector) *http.Server {
	return &http.Server{
		Addr:              cfg.Listen,
		Handler:           newRouter(conn),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func newRouter(conn *whatsarchive.Connector) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "WhatsApp archive connector is running")
	})
	router.GET("/health", conn.Health.Handle)
	router.GET("/ready", func(c *gin.Context) {
		if !conn.IsOpen() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false, "state": conn.Manager.State().String()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ready": true, "session_id": conn.Manager.SessionID()})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return router
}
