// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package node

import (
	"testing"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// keep-alive connections to the fake Redfish services close
		// asynchronously after the servers shut down
		goleak.IgnoreAnyFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreAnyFunction("net/http.(*persistConn).writeLoop"),
	)
}
