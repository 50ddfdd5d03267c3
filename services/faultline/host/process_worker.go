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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/AleutianAI/faultline/services/faultline/analyzer"
)

// WorkerCommand is the hidden subcommand that serves one analysis.
const WorkerCommand = "worker"

// maxStderrDetail bounds the stderr tail copied into error details.
const maxStderrDetail = 512

// ProcessSpawnerOption configures a ProcessSpawner.
type ProcessSpawnerOption func(*ProcessSpawner)

// WithCommand sets the worker argv. The default re-executes the current
// binary with the worker subcommand.
func WithCommand(argv ...string) ProcessSpawnerOption {
	return func(s *ProcessSpawner) {
		if len(argv) > 0 {
			s.argv = append([]string(nil), argv...)
		}
	}
}

// WithEnv appends environment entries ("KEY=value") for the worker.
func WithEnv(env ...string) ProcessSpawnerOption {
	return func(s *ProcessSpawner) {
		s.env = append(s.env, env...)
	}
}

// ProcessSpawner runs each analysis in a fresh child process.
//
// Description:
//
//	The request is written as JSON to the child's stdin and the child
//	writes one analyzer.Result as JSON to stdout. Stderr is kept for error
//	details. The child runs in its own process group and is killed and
//	reaped on Terminate.
//
// Thread Safety:
//
//	ProcessSpawner is safe for concurrent use.
type ProcessSpawner struct {
	argv []string
	env  []string
}

// NewProcessSpawner creates a ProcessSpawner.
func NewProcessSpawner(opts ...ProcessSpawnerOption) (*ProcessSpawner, error) {
	s := &ProcessSpawner{}
	for _, opt := range opts {
		opt(s)
	}
	if len(s.argv) == 0 {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("resolving worker executable: %w", err)
		}
		s.argv = []string{exe, WorkerCommand}
	}
	return s, nil
}

// Spawn starts the worker process.
//
// Description:
//
//	Start returns once the process is running. A reaper goroutine waits
//	for the exit, decodes stdout and delivers exactly one value on Results
//	or Errors unless the worker was terminated first. Done closes after the
//	process is reaped.
//
// Outputs:
//
//	Worker - The running worker.
//	error  - Encoding or process start failures.
func (s *ProcessSpawner) Spawn(ctx context.Context, req Request) (Worker, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding worker request: %w", err)
	}

	cmd := exec.Command(s.argv[0], s.argv[1:]...)
	cmd.Env = append(os.Environ(), s.env...)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second
	setupProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting worker %q: %w", s.argv[0], err)
	}

	w := &processWorker{
		cmd:     cmd,
		results: make(chan analyzer.Result, 1),
		errs:    make(chan error, 1),
		done:    make(chan struct{}),
	}
	go w.reap(&stdout, &stderr)
	return w, nil
}

type processWorker struct {
	cmd     *exec.Cmd
	results chan analyzer.Result
	errs    chan error
	done    chan struct{}

	mu         sync.Mutex
	terminated bool
	once       sync.Once
	killErr    error
}

func (w *processWorker) Results() <-chan analyzer.Result { return w.results }
func (w *processWorker) Errors() <-chan error            { return w.errs }
func (w *processWorker) Done() <-chan struct{}           { return w.done }

func (w *processWorker) reap(stdout, stderr *bytes.Buffer) {
	defer close(w.done)
	waitErr := w.cmd.Wait()

	w.mu.Lock()
	terminated := w.terminated
	w.mu.Unlock()
	if terminated {
		return
	}

	if waitErr != nil {
		w.errs <- fmt.Errorf("%w: %v%s", ErrWorkerExited, waitErr, stderrDetail(stderr))
		return
	}
	var res analyzer.Result
	if err := json.Unmarshal(stdout.Bytes(), &res); err != nil {
		w.errs <- fmt.Errorf("decoding worker output: %v%s", err, stderrDetail(stderr))
		return
	}
	w.results <- res
}

// Terminate kills the process group and waits for the reaper.
func (w *processWorker) Terminate() error {
	w.once.Do(func() {
		w.mu.Lock()
		w.terminated = true
		w.mu.Unlock()

		select {
		case <-w.done:
			return
		default:
		}
		if err := killProcessGroup(w.cmd); err != nil {
			w.killErr = fmt.Errorf("killing worker: %w", err)
		}
		<-w.done
	})
	return w.killErr
}

func stderrDetail(stderr *bytes.Buffer) string {
	text := strings.TrimSpace(stderr.String())
	if text == "" {
		return ""
	}
	if len(text) > maxStderrDetail {
		text = text[len(text)-maxStderrDetail:]
	}
	return "; stderr: " + text
}

