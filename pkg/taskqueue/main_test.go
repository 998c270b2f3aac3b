// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package taskqueue

import (
	"testing"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
