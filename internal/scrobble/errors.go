// Scrobblerelay - Multi-Source Play Tracking and Scrobble Delivery
// Copyright 2026 C. Wadley (cwadley)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cwadley/scrobblerelay

package scrobble

import (
	"errors"
	"fmt"
)

// ConnectivityError wraps DNS, timeout, and connection failures. Always
// retryable, never an auth failure; the processor treats it as a loop-level
// condition (requeue and back off), not a per-item one.
type ConnectivityError struct {
	Op    string
	Cause error
}

// NewConnectivityError wraps a transport failure.
func NewConnectivityError(op string, cause error) *ConnectivityError {
	return &ConnectivityError{Op: op, Cause: cause}
}

// Error implements the error interface.
func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("connectivity: %s: %v", e.Op, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *ConnectivityError) Unwrap() error { return e.Cause }

// UpstreamError is an application-level rejection from a vendor service. The
// adapter classifies it: ShowStopper means the client is no longer usable
// (auth revoked, quota permanently exceeded) and the processor loop must
// stop; otherwise the one submission is dead-lettered and processing
// continues.
type UpstreamError struct {
	Message     string
	ShowStopper bool
	Cause       error
}

// NewUpstreamError creates a classified upstream error.
func NewUpstreamError(message string, showStopper bool, cause error) *UpstreamError {
	return &UpstreamError{Message: message, ShowStopper: showStopper, Cause: cause}
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *UpstreamError) Unwrap() error { return e.Cause }

// IsConnectivity reports whether err is a transport-level failure.
func IsConnectivity(err error) bool {
	var ce *ConnectivityError
	return errors.As(err, &ce)
}

// IsFatal reports whether err must stop the processor loop: connectivity
// loss or a show-stopper upstream rejection.
func IsFatal(err error) bool {
	if IsConnectivity(err) {
		return true
	}
	var ue *UpstreamError
	return errors.As(err, &ue) && ue.ShowStopper
}

// IsNonFatalUpstream reports whether err is an upstream rejection of a
// single submission, routable to the dead-letter store.
func IsNonFatalUpstream(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue) && !ue.ShowStopper
}
