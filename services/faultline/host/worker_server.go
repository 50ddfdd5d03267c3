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
	"encoding/json"
	"fmt"
	"io"

	"github.com/AleutianAI/faultline/services/faultline/analyzer"
)

// maxWorkerRequest bounds the request a worker reads from its input.
const maxWorkerRequest = 8 << 20

// ServeWorker is the worker side of the process protocol.
//
// Description:
//
//	Reads one JSON Request from r, runs analyze and writes one JSON
//	analyzer.Result to w. analyze never fails, so an error here means the
//	protocol itself broke and the worker should exit non-zero.
//
// Inputs:
//
//	ctx     - Context passed to analyze.
//	r       - Request source, normally stdin.
//	w       - Result sink, normally stdout.
//	analyze - The analysis to run. Nil uses analyzer.Analyze.
func ServeWorker(ctx context.Context, r io.Reader, w io.Writer, analyze AnalyzeFunc) error {
	if analyze == nil {
		analyze = analyzer.Analyze
	}

	var req Request
	if err := json.NewDecoder(io.LimitReader(r, maxWorkerRequest)).Decode(&req); err != nil {
		return fmt.Errorf("decoding worker request: %w", err)
	}

	res := analyze(ctx, req.Code, req.Language)
	if err := json.NewEncoder(w).Encode(res); err != nil {
		return fmt.Errorf("encoding worker result: %w", err)
	}
	return nil
}
