// Package xerrors defines the closed error-kind taxonomy shared by the
// registry, cache, source, and transform packages.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package xerrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind identifies one of the closed set of error categories in the taxonomy.
// Components never return a bare error for an expected failure path; they
// wrap it with a Kind so the Job Runner can classify it without string
// matching.
type Kind string

const (
	// Registry
	KindNotFound            Kind = "not_found"
	KindDuplicate           Kind = "duplicate"
	KindInvalidRegistration Kind = "invalid_registration"

	// Cache
	KindCacheMiss      Kind = "cache_miss"
	KindCorruptedCache Kind = "corrupted_cache"
	KindConcurrentWrite Kind = "concurrent_write"

	// Source
	KindSourceTransport Kind = "source_transport"
	KindZipSlip         Kind = "zip_slip"
	KindOversizePayload Kind = "oversize_payload"

	// Transform
	KindParseError             Kind = "parse_error"
	KindUnsupportedInput       Kind = "unsupported_input"
	KindSchemaMismatch         Kind = "schema_mismatch"
	KindInvariantViolation     Kind = "invariant_violation"

	// Configuration (job config / stage config)
	KindConfiguration Kind = "configuration"
)

// Error is a typed, stack-carrying error. Kind() lets callers branch on
// category; Unwrap() preserves errors.Is/As compatibility with the wrapped
// cause.
type Error struct {
	kind  Kind
	msg   string
	cause error
}

func New(kind Kind, format string, args ...any) *Error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...), cause: errors.New(fmt.Sprintf(format, args...))}
}

func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	msg := fmt.Sprintf(format, args...)
	return &Error{kind: kind, msg: msg, cause: errors.Wrap(cause, msg)}
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("[%s] %s", e.kind, e.msg)
}

func (e *Error) Kind() Kind { return e.kind }

func (e *Error) Unwrap() error { return e.cause }

// StackTrace exposes the pkg/errors stack for the Job Runner's TaskError.
func (e *Error) StackTrace() errors.StackTrace {
	type tracer interface{ StackTrace() errors.StackTrace }
	if t, ok := e.cause.(tracer); ok {
		return t.StackTrace()
	}
	return nil
}

// Is reports whether err carries the given Kind, unwrapping through plain
// wrapped errors as needed.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.kind == kind
	}
	return false
}

// Convenience constructors for the most frequently raised kinds.

func NotFoundf(format string, args ...any) *Error {
	return New(KindNotFound, format, args...)
}

func Duplicatef(format string, args ...any) *Error {
	return New(KindDuplicate, format, args...)
}

func InvalidRegistrationf(format string, args ...any) *Error {
	return New(KindInvalidRegistration, format, args...)
}

func CacheMissf(format string, args ...any) *Error {
	return New(KindCacheMiss, format, args...)
}

func CorruptedCachef(format string, args ...any) *Error {
	return New(KindCorruptedCache, format, args...)
}

func ConcurrentWritef(format string, args ...any) *Error {
	return New(KindConcurrentWrite, format, args...)
}

func Configurationf(format string, args ...any) *Error {
	return New(KindConfiguration, format, args...)
}
