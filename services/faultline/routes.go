// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package faultline

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/faultline/services/faultline/config"
)

// ServiceName names the service in spans.
const ServiceName = "faultline"

// RegisterRoutes registers the Faultline endpoints.
//
// Endpoints:
//
//	POST /analyze - Analyze one function
//	GET  /health  - Health check
//	GET  /metrics - Prometheus metrics
func RegisterRoutes(r gin.IRoutes, handlers *Handlers, cfg config.ServerConfig) {
	r.POST("/analyze",
		RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst),
		BodyLimitMiddleware(cfg.BodyLimitBytes),
		handlers.HandleAnalyze,
	)
	r.GET("/health", handlers.HandleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// NewRouter builds the gin engine with the service middleware applied.
//
// Description:
//
//	Recovery, request ids, metrics, otelgin tracing and CORS apply to every
//	route. Body and rate limits apply to /analyze only. Request logging is
//	enabled in debug mode.
func NewRouter(handlers *Handlers, cfg config.ServerConfig) *gin.Engine {
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestIDMiddleware())
	router.Use(MetricsMiddleware())
	router.Use(otelgin.Middleware(ServiceName))
	router.Use(CORSMiddleware(cfg.CORSOrigins))
	if cfg.Debug {
		router.Use(gin.Logger())
	}

	RegisterRoutes(router, handlers, cfg)
	return router
}
