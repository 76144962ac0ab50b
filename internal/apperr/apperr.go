// Package apperr defines the typed error taxonomy used across the ingestor,
// analyzer, generator, renderer, judges, and loop (spec §7).
package apperr

import (
	"errors"
	"fmt"
)

// Kind is one of the error categories the Loop knows how to react to.
type Kind string

const (
	// KindInput covers a malformed or unopenable PDF. Fatal to the caller.
	KindInput Kind = "INPUT_ERROR"
	// KindPageRange covers a requested page index outside the document.
	KindPageRange Kind = "PAGE_RANGE_ERROR"
	// KindCredential covers a missing or rejected model provider credential. Fatal.
	KindCredential Kind = "CREDENTIAL_ERROR"
	// KindGenerator covers an unparseable generator reply. Retryable.
	KindGenerator Kind = "GENERATOR_ERROR"
	// KindRender covers a browser navigation or wait timeout. Retryable.
	KindRender Kind = "RENDER_ERROR"
	// KindJudge covers a judge reply that failed to parse as JSON. Recorded, never fatal.
	KindJudge Kind = "JUDGE_ERROR"
	// KindTransientProvider covers a retryable network/5xx failure from a model provider.
	KindTransientProvider Kind = "TRANSIENT_PROVIDER_ERROR"
)

// Error is the typed error wrapper propagated between components.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target has the same Kind, so callers can write
// errors.Is(err, apperr.New(apperr.KindRender, "", nil)) or, more simply,
// check err.(*apperr.Error).Kind directly.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New constructs a typed Error.
func New(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Of reports the Kind of err if it is (or wraps) an *Error, and ok=false
// otherwise.
func Of(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Fatal reports whether a Kind should escape all the way to the CLI caller
// (spec §7 propagation policy: only InputError and CredentialError escape).
func (k Kind) Fatal() bool {
	return k == KindInput || k == KindPageRange || k == KindCredential
}
