// Package patcherr defines the distinct failure reasons the engine can
// surface, following the same wrap-with-context discipline the rest of the
// module uses (fmt.Errorf with %w) rather than a parallel exception
// hierarchy.
package patcherr

import (
	"errors"
	"fmt"
)

// Kind tags an error with which of the seven failure reasons produced it.
type Kind string

const (
	PolicyViolation   Kind = "policy_violation"
	PatchMalformed    Kind = "patch_malformed"
	PatchApplyFailed  Kind = "patch_apply_failed"
	VerificationFailed Kind = "verification_failed"
	ProviderError     Kind = "provider_error"
	SandboxError      Kind = "sandbox_error"
	AttestationError  Kind = "attestation_error"
)

// Error wraps an underlying cause with a Kind so callers can branch on
// errors.As without string-matching messages.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs a *Error for kind, wrapping err with an operation label.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err (or anything it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind == kind
	}
	return false
}

// Fatal reports whether an error of this kind must abort the session
// immediately rather than being recorded as an attempt outcome. Per the
// propagation policy: PolicyViolation, SandboxError, and AttestationError
// during creation are fatal; PatchMalformed, PatchApplyFailed,
// VerificationFailed, and ProviderError are attempt-scoped and never abort
// the session on their own.
func Fatal(kind Kind) bool {
	switch kind {
	case PolicyViolation, SandboxError, AttestationError:
		return true
	default:
		return false
	}
}
