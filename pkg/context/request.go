// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

// Package context carries request-scoped values shared by the API and the
// services it calls.
package context

import (
	"context"

	"github.com/google/uuid"
)

// RequestIDHeader is the header a request id is read from and echoed in.
const RequestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// WithRequestID returns ctx carrying a request id, generating one if ctx
// has none.
func WithRequestID(c context.Context) (context.Context, string) {
	if id := RequestID(c); id != "" {
		return c, id
	}
	id := uuid.New().String()
	return context.WithValue(c, requestIDKey{}, id), id
}

// FromRequestID returns ctx carrying reqID.
func FromRequestID(c context.Context, reqID string) context.Context {
	return context.WithValue(c, requestIDKey{}, reqID)
}

// RequestID returns the request id in ctx, or "".
func RequestID(c context.Context) string {
	id, _ := c.Value(requestIDKey{}).(string)
	return id
}
