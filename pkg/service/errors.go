// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/LeeDigitalWorks/podm/pkg/coordinator"
	"github.com/LeeDigitalWorks/podm/pkg/store"
)

// ErrorCode represents a business-level error code
type ErrorCode int

const (
	ErrCodeNone ErrorCode = iota
	ErrCodeRequestValidation
	ErrCodeNotFound
	ErrCodeResourceStateMismatch
	ErrCodeAllocationFailed
	ErrCodeEntityOperation
	ErrCodeUnsupportedOperation
	ErrCodeAssetNotAvailable
	ErrCodeTimeout
	ErrCodeNoRetriesLeft
	ErrCodePersistence
	ErrCodeInternalError
)

var codeNames = map[ErrorCode]string{
	ErrCodeNone:                  "None",
	ErrCodeRequestValidation:     "RequestValidation",
	ErrCodeNotFound:              "NotFound",
	ErrCodeResourceStateMismatch: "ResourceStateMismatch",
	ErrCodeAllocationFailed:      "AllocationFailed",
	ErrCodeEntityOperation:       "EntityOperation",
	ErrCodeUnsupportedOperation:  "UnsupportedOperation",
	ErrCodeAssetNotAvailable:     "AssetNotAvailable",
	ErrCodeTimeout:               "Timeout",
	ErrCodeNoRetriesLeft:         "NoRetriesLeft",
	ErrCodePersistence:           "Persistence",
	ErrCodeInternalError:         "InternalError",
}

func (c ErrorCode) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("ErrorCode(%d)", int(c))
}

// Error is returned by the node, allocation and fabric services and mapped
// to an HTTP response by the API layer.
type Error struct {
	Code    ErrorCode
	Message string
	// Violations lists individual request problems for RequestValidation.
	Violations Violations
	// RetryAfter is set for AssetNotAvailable.
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus maps the code to a response status.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case ErrCodeRequestValidation:
		return http.StatusBadRequest
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeResourceStateMismatch, ErrCodeAllocationFailed:
		return http.StatusConflict
	case ErrCodeUnsupportedOperation:
		return http.StatusNotImplemented
	case ErrCodeAssetNotAvailable, ErrCodeTimeout, ErrCodeNoRetriesLeft, ErrCodePersistence:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func NewValidationError(message string, violations Violations) *Error {
	return &Error{Code: ErrCodeRequestValidation, Message: message, Violations: violations}
}

// NewNotFoundError uses the message clients see for unresolvable URIs.
func NewNotFoundError(uri fmt.Stringer) *Error {
	return &Error{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("Provided URI %s could not be resolved", uri),
	}
}

func NewStateMismatchError(format string, args ...any) *Error {
	return &Error{Code: ErrCodeResourceStateMismatch, Message: fmt.Sprintf(format, args...)}
}

func NewAllocationFailedError() *Error {
	return &Error{
		Code:    ErrCodeAllocationFailed,
		Message: "There are no computer systems available for this allocation request.",
	}
}

func NewEntityOperationError(message string, err error) *Error {
	return &Error{Code: ErrCodeEntityOperation, Message: message, Err: err}
}

func NewUnsupportedOperationError(message string) *Error {
	return &Error{Code: ErrCodeUnsupportedOperation, Message: message}
}

func NewAssetNotAvailableError(message string, retryAfter time.Duration) *Error {
	return &Error{Code: ErrCodeAssetNotAvailable, Message: message, RetryAfter: retryAfter}
}

func NewTimeoutError(err error) *Error {
	return &Error{Code: ErrCodeTimeout, Message: "operation timed out", Err: err}
}

func NewPersistenceError(err error) *Error {
	return &Error{Code: ErrCodePersistence, Message: "persistence failure", Err: err}
}

func NewInternalError(err error) *Error {
	return &Error{Code: ErrCodeInternalError, Message: "internal error", Err: err}
}

// CodeOf returns the code of the first *Error in err's chain, or
// ErrCodeInternalError when there is none.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ErrCodeNone
	}
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr.Code
	}
	return ErrCodeInternalError
}

func IsNotFound(err error) bool {
	return CodeOf(err) == ErrCodeNotFound
}

// Wrap gives err a code. Errors that carry one are returned unchanged.
// Lock and context timeouts become Timeout, missing store records become
// NotFound and anything else is a Persistence failure.
func Wrap(err error) error {
	var svcErr *Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &svcErr):
		return err
	case errors.Is(err, coordinator.ErrLockTimeout),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return NewTimeoutError(err)
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrKindMismatch):
		return &Error{Code: ErrCodeNotFound, Message: "Referenced resource could not be resolved", Err: err}
	default:
		return NewPersistenceError(err)
	}
}
