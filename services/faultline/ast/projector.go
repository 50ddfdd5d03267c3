// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ast

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
)

// DefaultMaxSourceSize bounds the input a projection accepts (1MB, matching
// the HTTP body limit).
const DefaultMaxSourceSize = 1 << 20

// ErrSourceTooLarge is returned when source exceeds the projection limit.
var ErrSourceTooLarge = errors.New("source exceeds maximum size")

var tracer = otel.Tracer("faultline.ast")

// Projector turns source text into the canonical tree for one function.
//
// Description:
//
//	A projection is best-effort: source that does not match the expected
//	function shape yields a FunctionUnit with an empty body, never an error.
//	Errors are reserved for cancellation and inputs that cannot be read at
//	all (too large).
//
// Thread Safety:
//
//	Implementations must be safe for concurrent use.
type Projector interface {
	// Language returns the language this projector handles.
	Language() Language

	// Project extracts the first function from source.
	Project(ctx context.Context, source []byte) (*FunctionUnit, error)
}

// ProjectorFor returns the default projector for lang.
//
// Outputs:
//
//	Projector - Never nil on success.
//	error     - Wraps ErrUnsupportedLanguage for unknown languages.
func ProjectorFor(lang Language) (Projector, error) {
	switch lang {
	case LanguageJavaScript:
		return NewJavaScriptProjector(), nil
	case LanguagePython:
		return NewPythonProjector(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, lang)
	}
}
