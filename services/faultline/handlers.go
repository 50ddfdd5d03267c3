// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package faultline is the HTTP surface of the Faultline analysis service.
package faultline

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/faultline/services/faultline/analyzer"
	"github.com/AleutianAI/faultline/services/faultline/host"
)

// DefaultLanguage is used when a request names no language.
const DefaultLanguage = "javascript"

// Error strings for requests rejected before analysis.
const (
	ErrMsgInvalidRequest  = "Invalid request body"
	ErrMsgRequestTooLarge = "Request body too large"
	ErrMsgRateLimited     = "Too many requests"
)

// Submitter runs one analysis. *host.Host implements it.
type Submitter interface {
	Submit(ctx context.Context, code, language string) host.Outcome
}

// AnalyzeRequest is the POST /analyze body. Either language or lang may
// name the language.
type AnalyzeRequest struct {
	Code     string `json:"code"`
	Language string `json:"language"`
	Lang     string `json:"lang"`
}

// language resolves the requested language name.
func (r AnalyzeRequest) language() string {
	for _, name := range []string{r.Language, r.Lang} {
		if s := strings.TrimSpace(name); s != "" {
			return s
		}
	}
	return DefaultLanguage
}

// AnalyzeResponse is the POST /analyze response. Error and Details are set
// on failure only.
type AnalyzeResponse = host.Outcome

// HealthResponse is the GET /health response.
type HealthResponse struct {
	Status string `json:"status"`
}

// Handlers holds the HTTP handlers.
//
// Thread Safety: Safe for concurrent use.
type Handlers struct {
	submitter Submitter
}

// NewHandlers creates handlers over submitter.
func NewHandlers(submitter Submitter) *Handlers {
	return &Handlers{submitter: submitter}
}

// HandleAnalyze handles POST /analyze.
//
// Description:
//
//	Submits the code to the execution host and returns its outcome. Every
//	response carries findings and meta. Failures (timeout, worker error,
//	unsupported language, analyzer failure) answer 500 with error and
//	details, like a successful analysis answers 200 without them.
//
// Request Body:
//
//	{"code": "...", "language": "javascript"} or {"code": "...", "lang": "py"}
//
// Response:
//
//	200 OK: {findings, meta}
//	400 Bad Request: Malformed JSON
//	413 Request Entity Too Large: Body exceeds the configured limit
//	500 Internal Server Error: {findings: [], error, details, meta}
func (h *Handlers) HandleAnalyze(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleAnalyze")

	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			logger.Warn("request body too large", slog.Int64("limit", tooLarge.Limit))
			c.JSON(http.StatusRequestEntityTooLarge, rejected(ErrMsgRequestTooLarge, err.Error()))
			return
		}
		logger.Debug("invalid analyze request", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, rejected(ErrMsgInvalidRequest, err.Error()))
		return
	}

	language := req.language()
	out := h.submitter.Submit(c.Request.Context(), req.Code, language)

	if !out.Failed() && out.Meta.Error != nil {
		// The analysis ran but reported an error of its own.
		out.Error = *out.Meta.Error
		out.Findings = make([]analyzer.Finding, 0)
	}
	if out.Failed() {
		logger.Warn("analysis failed",
			slog.String("language", language),
			slog.String("error", out.Error),
			slog.String("details", out.Details),
		)
		c.JSON(http.StatusInternalServerError, out)
		return
	}

	logger.Debug("analysis complete",
		slog.String("language", language),
		slog.Int("findings", len(out.Findings)),
		slog.Int64("duration_ms", out.Meta.DurationMs),
	)
	c.JSON(http.StatusOK, AnalyzeResponse{Findings: out.Findings, Meta: out.Meta})
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// rejected builds the failure body for requests that never reached the host.
func rejected(msg, details string) AnalyzeResponse {
	m := msg
	return AnalyzeResponse{
		Findings: make([]analyzer.Finding, 0),
		Error:    msg,
		Details:  details,
		Meta:     analyzer.Meta{Error: &m},
	}
}
