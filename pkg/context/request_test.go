// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package context

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithRequestID(t *testing.T) {
	t.Parallel()

	ctx, id := WithRequestID(context.Background())
	assert.NotEmpty(t, id)
	assert.Equal(t, id, RequestID(ctx))

	// an existing id is kept
	ctx2, id2 := WithRequestID(ctx)
	assert.Equal(t, id, id2)
	assert.Equal(t, ctx, ctx2)
}

func TestFromRequestID(t *testing.T) {
	t.Parallel()

	assert.Empty(t, RequestID(context.Background()))
	ctx := FromRequestID(context.Background(), "req-1")
	assert.Equal(t, "req-1", RequestID(ctx))
}
