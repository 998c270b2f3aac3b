// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrServiceUnavailable is returned while a service's circuit is open.
var ErrServiceUnavailable = errors.New("external service unavailable")

// HTTPError is a response with status >= 400.
type HTTPError struct {
	StatusCode int
	Method     string
	URL        string
	Body       []byte
}

func (e *HTTPError) Error() string {
	body := string(e.Body)
	if len(body) > 256 {
		body = body[:256] + "..."
	}
	return fmt.Sprintf("%s %s: %d %s: %s", e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode), body)
}

func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}

// StatusCode returns the HTTP status of an HTTPError in err's chain, or 0.
func StatusCode(err error) int {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.StatusCode
	}
	return 0
}

// serverSide reports failures that say nothing about the request itself:
// transport errors and 5xx responses other than 501.
func serverSide(err error) bool {
	if err == nil {
		return false
	}
	code := StatusCode(err)
	if code == 0 {
		return true
	}
	return code >= 500 && code != http.StatusNotImplemented
}

// fallbackable reports failures for which a cached GET body may be served.
func fallbackable(err error) bool {
	if errors.Is(err, ErrServiceUnavailable) {
		return true
	}
	switch StatusCode(err) {
	case 0:
		return true
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}
