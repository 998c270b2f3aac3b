// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeeDigitalWorks/podm/pkg/model"
	"github.com/LeeDigitalWorks/podm/pkg/taskqueue"
)

func TestEmitter_QueuesNotification(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q := taskqueue.NewMemoryQueue()
	defer q.Close()

	e := NewEmitter(EmitterConfig{Queue: q, Enabled: true})
	require.True(t, e.IsEnabled())

	node := &model.ComposedNode{ID: "n1"}
	node.ODataID = model.NodeURI("n1")
	e.EmitNode(ctx, ResourceAttached, node, "/redfish/v1/Drives/abc-1", "")

	tasks, err := q.List(ctx, taskqueue.TaskFilter{Type: taskqueue.TaskTypeNotification})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "n1", tasks[0].Key)

	n, err := taskqueue.UnmarshalPayload[Notification](tasks[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, ResourceAttached, n.Type)
	assert.Equal(t, model.NodeURI("n1"), n.Node)
	assert.Equal(t, model.ODataID("/redfish/v1/Drives/abc-1"), n.Resource)
	assert.Equal(t, tasks[0].ID, n.ID)
	assert.False(t, n.Timestamp.IsZero())
}

func TestEmitter_Disabled(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q := taskqueue.NewMemoryQueue()
	defer q.Close()

	for _, e := range []*Emitter{NoopEmitter(), NewEmitter(EmitterConfig{Queue: q}), NewEmitter(EmitterConfig{Enabled: true})} {
		assert.False(t, e.IsEnabled())
		e.Emit(ctx, Notification{Type: NodeDeleted, NodeID: "n1"})
	}
	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Pending)
}

func TestEmitter_NilIsDisabled(t *testing.T) {
	t.Parallel()
	var e *Emitter
	assert.False(t, e.IsEnabled())
}
