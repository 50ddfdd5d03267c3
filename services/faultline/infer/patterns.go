// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package infer

import (
	"github.com/AleutianAI/faultline/services/faultline/ast"
	"github.com/AleutianAI/faultline/services/faultline/chain"
)

// patternFunc reports whether step i of c has the structure a rule needs
// beyond a method-name match.
type patternFunc func(t *RuleTable, lang ast.Language, c chain.Chain, i int) bool

// patterns are the structural matchers a rule may name in `pattern:`.
var patterns = map[string]patternFunc{
	"dict_get":             matchDictGet,
	"then_callback_string": matchThenCallbackString,
	"fetch_then_json":      matchFetchThenJSON,
}

// matchDictGet matches `d.get(key)` and `d.get(key, default)`.
func matchDictGet(_ *RuleTable, _ ast.Language, c chain.Chain, i int) bool {
	n := len(c.Links[i].Args)
	return n == 1 || n == 2
}

// matchThenCallbackString matches `p.then(v => v.<string method>(...))`.
func matchThenCallbackString(t *RuleTable, lang ast.Language, c chain.Chain, i int) bool {
	param, body, ok := firstCallback(c.Links[i])
	if !ok {
		return false
	}
	stringMethods := t.MethodsOfKind(lang, KindString)
	return callbackCallsMethod(param, body, func(name string) bool { return stringMethods[name] })
}

// matchFetchThenJSON matches `fetch(url).then(res => res.json())`, with
// fetch called bare or as a method (`window.fetch`).
func matchFetchThenJSON(_ *RuleTable, _ ast.Language, c chain.Chain, i int) bool {
	if i == 0 {
		return false
	}
	prev := c.Links[i-1]
	switch {
	case prev.Kind == chain.LinkCall && i == 1 && c.RootName() == "fetch":
	case prev.Kind == chain.LinkMethod && prev.Name == "fetch":
	default:
		return false
	}

	param, body, ok := firstCallback(c.Links[i])
	if !ok {
		return false
	}
	return callbackCallsMethod(param, body, func(name string) bool { return name == "json" })
}

// firstCallback returns the first parameter name and body of the inline
// function passed as the step's first argument.
func firstCallback(link chain.Link) (string, []ast.Statement, bool) {
	if len(link.Args) == 0 {
		return "", nil, false
	}
	fn, ok := link.Args[0].(*ast.FunctionExpression)
	if !ok || len(fn.Params) == 0 {
		return "", nil, false
	}
	return fn.Params[0].Name, fn.Body, true
}

// callbackCallsMethod reports whether any statement of body evaluates a
// chain rooted at param whose first step is a method accepted by match.
func callbackCallsMethod(param string, body []ast.Statement, match func(string) bool) bool {
	for _, stmt := range body {
		c := chain.Resolve(stmt.Target())
		if c.RootName() != param || len(c.Links) == 0 {
			continue
		}
		if first := c.Links[0]; first.Kind == chain.LinkMethod && match(first.Name) {
			return true
		}
	}
	return false
}
