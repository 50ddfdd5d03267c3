// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package host

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/AleutianAI/faultline/services/faultline/analyzer"
)

// Isolation modes.
const (
	ModeProcess   = "process"
	ModeInProcess = "inprocess"
)

// AnalyzeFunc runs one analysis. analyzer.Analyze satisfies it.
type AnalyzeFunc func(ctx context.Context, code, language string) analyzer.Result

// DefaultGracePeriod bounds how long Terminate waits for an in-process
// worker to observe cancellation.
const DefaultGracePeriod = 100 * time.Millisecond

// InProcessSpawner runs each analysis on its own goroutine.
//
// Description:
//
//	A goroutine cannot be killed, so termination cancels the worker's
//	context and waits up to the grace period for it to return. The
//	analysis checks its context between phases, so a canceled worker stops
//	at the next boundary.
type InProcessSpawner struct {
	analyze AnalyzeFunc
	grace   time.Duration
}

// NewInProcessSpawner creates a spawner over fn. A nil fn uses
// analyzer.Analyze.
func NewInProcessSpawner(fn AnalyzeFunc, grace time.Duration) *InProcessSpawner {
	if fn == nil {
		fn = analyzer.Analyze
	}
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	return &InProcessSpawner{analyze: fn, grace: grace}
}

// Spawn starts the analysis goroutine.
func (s *InProcessSpawner) Spawn(ctx context.Context, req Request) (Worker, error) {
	// Terminate cancels the worker; the host settles caller cancellation.
	wctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	w := &inProcessWorker{
		results: make(chan analyzer.Result, 1),
		errs:    make(chan error, 1),
		done:    make(chan struct{}),
		cancel:  cancel,
		grace:   s.grace,
	}

	go func() {
		defer close(w.done)
		defer func() {
			if r := recover(); r != nil {
				buf := make([]byte, 4096)
				n := runtime.Stack(buf, false)
				slog.Error("in-process worker panicked",
					slog.Any("panic", r),
					slog.String("stack", string(buf[:n])),
				)
				w.errs <- fmt.Errorf("worker panic: %v", r)
			}
		}()
		w.results <- s.analyze(wctx, req.Code, req.Language)
	}()

	return w, nil
}

type inProcessWorker struct {
	results chan analyzer.Result
	errs    chan error
	done    chan struct{}
	cancel  context.CancelFunc
	grace   time.Duration
	once    sync.Once
}

func (w *inProcessWorker) Results() <-chan analyzer.Result { return w.results }
func (w *inProcessWorker) Errors() <-chan error            { return w.errs }
func (w *inProcessWorker) Done() <-chan struct{}           { return w.done }

// Terminate cancels the worker and waits for it within the grace period.
func (w *inProcessWorker) Terminate() error {
	var err error
	w.once.Do(func() {
		w.cancel()
		timer := time.NewTimer(w.grace)
		defer timer.Stop()
		select {
		case <-w.done:
		case <-timer.C:
			err = fmt.Errorf("in-process worker did not stop within %s", w.grace)
		}
	})
	return err
}
