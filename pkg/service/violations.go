// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"fmt"
	"strings"
)

// Violations collects request validation problems in the order found.
type Violations []string

func (v *Violations) Add(format string, args ...any) {
	*v = append(*v, fmt.Sprintf(format, args...))
}

func (v Violations) HasViolations() bool { return len(v) > 0 }

func (v Violations) String() string {
	return strings.Join(v, "; ")
}

// Err returns a RequestValidation error, or nil when empty.
func (v Violations) Err(message string) error {
	if !v.HasViolations() {
		return nil
	}
	return NewValidationError(message, v)
}
