// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/LeeDigitalWorks/podm/pkg/allocation"
	"github.com/LeeDigitalWorks/podm/pkg/model"
	"github.com/LeeDigitalWorks/podm/pkg/redfish"
	"github.com/LeeDigitalWorks/podm/pkg/service/node"
)

type mockNodes struct {
	mock.Mock
}

var _ node.Service = (*mockNodes)(nil)

func (m *mockNodes) Get(ctx context.Context, id string) (*node.Node, error) {
	args := m.Called(ctx, id)
	n, _ := args.Get(0).(*node.Node)
	return n, args.Error(1)
}

func (m *mockNodes) List(ctx context.Context) (*redfish.Collection, error) {
	args := m.Called(ctx)
	c, _ := args.Get(0).(*redfish.Collection)
	return c, args.Error(1)
}

func (m *mockNodes) Assemble(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockNodes) Reset(ctx context.Context, id string, resetType model.ResetType) error {
	return m.Called(ctx, id, resetType).Error(0)
}

func (m *mockNodes) AttachResource(ctx context.Context, id string, req *node.ResourceRequest) error {
	return m.Called(ctx, id, req).Error(0)
}

func (m *mockNodes) DetachResource(ctx context.Context, id string, req *node.ResourceRequest) error {
	return m.Called(ctx, id, req).Error(0)
}

func (m *mockNodes) AttachResourceActionInfo(ctx context.Context, id string) (*node.ActionInfo, error) {
	args := m.Called(ctx, id)
	info, _ := args.Get(0).(*node.ActionInfo)
	return info, args.Error(1)
}

func (m *mockNodes) DetachResourceActionInfo(ctx context.Context, id string) (*node.ActionInfo, error) {
	args := m.Called(ctx, id)
	info, _ := args.Get(0).(*node.ActionInfo)
	return info, args.Error(1)
}

func (m *mockNodes) Update(ctx context.Context, id string, patch *node.Patch) (*node.Node, error) {
	args := m.Called(ctx, id, patch)
	n, _ := args.Get(0).(*node.Node)
	return n, args.Error(1)
}

func (m *mockNodes) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockNodes) ForceDelete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

type mockAllocator struct {
	mock.Mock
}

func (m *mockAllocator) Allocate(ctx context.Context, req *allocation.RequestedNode) (*model.ComposedNode, error) {
	args := m.Called(ctx, req)
	n, _ := args.Get(0).(*model.ComposedNode)
	return n, args.Error(1)
}

type mockFabrics struct {
	mock.Mock
}

func (m *mockFabrics) CreateZone(ctx context.Context, fabricID model.ODataID, endpoints []model.ODataID) (*model.Zone, error) {
	args := m.Called(ctx, fabricID, endpoints)
	z, _ := args.Get(0).(*model.Zone)
	return z, args.Error(1)
}

func (m *mockFabrics) UpdateZone(ctx context.Context, zoneID model.ODataID, endpoints []model.ODataID) (*model.Zone, error) {
	args := m.Called(ctx, zoneID, endpoints)
	z, _ := args.Get(0).(*model.Zone)
	return z, args.Error(1)
}

func (m *mockFabrics) DeleteZone(ctx context.Context, zoneID model.ODataID) error {
	return m.Called(ctx, zoneID).Error(0)
}

type mockRegistrar struct {
	mock.Mock
}

func (m *mockRegistrar) Register(ctx context.Context, baseURL string) (*model.ExternalService, error) {
	args := m.Called(ctx, baseURL)
	svc, _ := args.Get(0).(*model.ExternalService)
	return svc, args.Error(1)
}

type mockSink struct {
	mock.Mock
}

func (m *mockSink) Add(serviceUUID string, events []redfish.Event) error {
	return m.Called(serviceUUID, events).Error(0)
}
