// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/faultline/services/faultline/config"
	"github.com/AleutianAI/faultline/services/faultline/host"
)

// newWorkerCmd is the subprocess side of process isolation. It reads one
// request on stdin and writes one result on stdout; logs go to stderr.
func newWorkerCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:    host.WorkerCommand,
		Short:  "Serve one analysis over stdin/stdout",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			setupLogging(stderr, false)
			a, err := loadAnalyzer(cmd.Context(), os.Getenv(config.EnvRulesFile))
			if err != nil {
				return failure("worker: loading rules: %v", err)
			}
			if err := host.ServeWorker(cmd.Context(), stdin, stdout, a.Analyze); err != nil {
				return failure("worker: %v", err)
			}
			return nil
		},
	}
}
