// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package ledgersync

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrOperationNotFound is returned when an operation id does not resolve to
// a queued operation.
var ErrOperationNotFound = errors.New("offline operation not found")

// ValidationError reports invalid caller input (unknown resolution strategy,
// unsupported operation type, oversized payload). It is never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NetworkError marks an executor failure caused by connectivity rather than
// by the replay target. Network failures are retried up to max_retries.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string { return "network error: " + e.Err.Error() }
func (e *NetworkError) Unwrap() error { return e.Err }

// ServerError marks any other executor failure. Retried the same way as
// NetworkError; the engine does not distinguish retryable server failures
// from permanent ones.
type ServerError struct {
	Err error
}

func (e *ServerError) Error() string { return "server error: " + e.Err.Error() }
func (e *ServerError) Unwrap() error { return e.Err }

// networkErrorPatterns are matched against executor error messages that are
// not already tagged as NetworkError at the boundary.
var networkErrorPatterns = []string{
	"network",
	"timeout",
	"timed out",
	"connection refused",
	"connection reset",
	"no such host",
	"unreachable",
	"broken pipe",
	"econnrefused",
	"etimedout",
}

// ClassifyExecError folds an arbitrary executor error into the closed
// NetworkError/ServerError taxonomy. Errors already tagged by an executor
// pass through unchanged; untagged errors fall back to message-pattern
// matching so plain transport errors still classify as network failures.
func ClassifyExecError(err error) error {
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return netErr
	}
	var srvErr *ServerError
	if errors.As(err, &srvErr) {
		return srvErr
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) || errors.Is(err, context.DeadlineExceeded) {
		return &NetworkError{Err: err}
	}
	msg := strings.ToLower(err.Error())
	for _, pat := range networkErrorPatterns {
		if strings.Contains(msg, pat) {
			return &NetworkError{Err: err}
		}
	}
	return &ServerError{Err: err}
}

// errorCode maps a classified executor error to the code recorded on the
// operation row.
func errorCode(err error) string {
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return CodeNetworkError
	}
	return CodeServerError
}
