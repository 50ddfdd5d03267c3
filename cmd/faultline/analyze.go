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
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/faultline/services/faultline/analyzer"
	"github.com/AleutianAI/faultline/services/faultline/ast"
	"github.com/AleutianAI/faultline/services/faultline/infer"
)

// analyzeFlags holds the root command's flag values.
type analyzeFlags struct {
	json    bool
	lang    string
	file    string
	issues  bool
	verbose bool
	rules   string
}

func newRootCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	flags := &analyzeFlags{}

	root := &cobra.Command{
		Use:   "faultline [--file] <path>",
		Short: "Infer the runtime assumptions a function makes",
		Long: `Faultline reads the first function in a JavaScript or Python file and
lists the assumptions its body makes about its inputs (non-null values,
existing properties, argument types), ranked issues included with --issues.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(stderr, flags.verbose)
			if flags.file == "" && len(args) == 1 {
				flags.file = args[0]
			}
			return runAnalyze(cmd, flags, stdout)
		},
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError("%v\n%s", err, usageMessage)
	})

	f := root.Flags()
	f.BoolVar(&flags.json, "json", false, "Print assumptions as JSON")
	f.StringVar(&flags.lang, "lang", "js", "Source language: js or python")
	f.StringVar(&flags.file, "file", "", "Path to the source file")
	f.BoolVar(&flags.issues, "issues", false, "Also print ranked issues")
	f.StringVar(&flags.rules, "rules", "", "Extra type-inference rules (YAML) appended to the built-in table")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Enable debug logging on stderr")

	root.AddCommand(newServeCmd())
	root.AddCommand(newWorkerCmd(stdin, stdout, stderr))
	return root
}

// cliLanguages are the language names the CLI accepts.
var cliLanguages = map[string]ast.Language{
	"js":     ast.LanguageJavaScript,
	"python": ast.LanguagePython,
}

// output is the --json document.
type output struct {
	Assumptions []infer.Assumption `json:"assumptions"`
	Issues      []infer.Issue      `json:"issues,omitempty"`
}

func runAnalyze(cmd *cobra.Command, flags *analyzeFlags, stdout io.Writer) error {
	if flags.file == "" {
		return usageError("%s", usageMessage)
	}
	lang, ok := cliLanguages[flags.lang]
	if !ok {
		return usageError("Unsupported language: %s. Supported: 'js' and 'python'.", flags.lang)
	}

	path, err := filepath.Abs(flags.file)
	if err != nil {
		return usageError("Failed to read %s: %v", flags.file, err)
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return usageError("Failed to read %s: %v", path, err)
	}

	ctx := cmd.Context()
	a, err := loadAnalyzer(ctx, flags.rules)
	if err != nil {
		return usageError("Failed to load rules: %v", err)
	}
	report, err := a.Report(ctx, string(src), lang)
	if err != nil {
		return failure("Error analyzing file: %v", err)
	}

	if flags.json {
		doc := output{Assumptions: report.Assumptions}
		if flags.issues {
			doc.Issues = report.Issues
		}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(doc); err != nil {
			return failure("Error writing output: %v", err)
		}
		return nil
	}

	fm := newFormatter(stdout)
	fmt.Fprintln(stdout, fm.Assumptions(report.Assumptions))
	if flags.issues {
		fmt.Fprintln(stdout, fm.Issues(report.Issues))
	}
	return nil
}

// loadAnalyzer returns the default analyzer, or one over the built-in
// rules extended with rulesPath.
func loadAnalyzer(ctx context.Context, rulesPath string) (*analyzer.Analyzer, error) {
	if rulesPath == "" {
		return analyzer.Default(ctx)
	}
	table, err := infer.LoadRuleTableWithExtras(ctx, rulesPath)
	if err != nil {
		return nil, err
	}
	return analyzer.New(table), nil
}
