// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package node

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeeDigitalWorks/podm/pkg/allocation"
	"github.com/LeeDigitalWorks/podm/pkg/audit"
	"github.com/LeeDigitalWorks/podm/pkg/coordinator"
	"github.com/LeeDigitalWorks/podm/pkg/discovery"
	"github.com/LeeDigitalWorks/podm/pkg/events"
	"github.com/LeeDigitalWorks/podm/pkg/model"
	"github.com/LeeDigitalWorks/podm/pkg/redfish"
	"github.com/LeeDigitalWorks/podm/pkg/redfish/client"
	"github.com/LeeDigitalWorks/podm/pkg/redfish/redfishtest"
	"github.com/LeeDigitalWorks/podm/pkg/service"
	"github.com/LeeDigitalWorks/podm/pkg/store"
	"github.com/LeeDigitalWorks/podm/pkg/store/memory"
	"github.com/LeeDigitalWorks/podm/pkg/taskqueue"
)

const testServiceUUID = "4a1f0c2e-7d3b-4e5a-9c6f-112233445566"

func local(p string) model.ODataID {
	return redfish.LocalURI(testServiceUUID, p)
}

type recorder struct {
	mu      sync.Mutex
	records []audit.Record
}

func (r *recorder) Record(rec audit.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
}

func (r *recorder) actions() map[string]audit.Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]audit.Outcome)
	for _, rec := range r.records {
		out[rec.Action] = rec.Outcome
	}
	return out
}

type fixture struct {
	svc   Service
	alloc allocation.Service
	rack  *redfishtest.Service
	store *memory.Store
	queue *taskqueue.MemoryQueue
	audit *recorder
}

// newFixture discovers a rack and wires the node service over it.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := t.Context()
	rack := redfishtest.NewService(t, testServiceUUID)
	rack.AddRack()

	st := memory.New()
	q := taskqueue.NewMemoryQueue()
	t.Cleanup(func() { _ = q.Close() })

	cfg := client.DefaultConfig()
	cfg.RetryMax = 0
	cfg.Timeout = time.Second
	cfg.RPS = 0
	pool := client.NewPool(ctx, st.Services(), cfg)
	t.Cleanup(pool.Close)

	require.NoError(t, st.Services().Put(ctx, &model.ExternalService{
		ODataID: model.ServiceURI(testServiceUUID),
		UUID:    testServiceUUID,
		BaseURL: rack.URL(),
	}))

	coord := coordinator.NewLocal(5 * time.Second)
	emitter := events.NewEmitter(events.EmitterConfig{Queue: q, Enabled: true})
	require.NoError(t, discovery.New(discovery.Config{}, st, pool, coord, q, emitter).Discover(ctx, testServiceUUID))

	alloc, err := allocation.NewService(allocation.Config{Store: st, Coordinator: coord, Emitter: emitter})
	require.NoError(t, err)

	rec := &recorder{}
	svc, err := NewService(Config{
		Store:       st,
		Clients:     pool,
		Coordinator: coord,
		Emitter:     emitter,
		Audit:       rec,
	})
	require.NoError(t, err)
	return &fixture{svc: svc, alloc: alloc, rack: rack, store: st, queue: q, audit: rec}
}

func (f *fixture) allocate(t *testing.T, req *allocation.RequestedNode) *model.ComposedNode {
	t.Helper()
	n, err := f.alloc.Allocate(t.Context(), req)
	require.NoError(t, err)
	return n
}

// withVolume allocates a node with the rack's NVMe over fabrics volume.
func (f *fixture) withVolume(t *testing.T) *model.ComposedNode {
	t.Helper()
	gib := 50.0
	return f.allocate(t, &allocation.RequestedNode{
		Name:         "db",
		RemoteDrives: []allocation.RequestedRemoteDrive{{CapacityGiB: &gib, Protocol: model.ProtocolNVMeOverFabrics}},
	})
}

func (f *fixture) assembled(t *testing.T, n *model.ComposedNode) *model.ComposedNode {
	t.Helper()
	require.NoError(t, f.svc.Assemble(t.Context(), n.ID))
	return f.node(t, n.ID)
}

func (f *fixture) node(t *testing.T, id string) *model.ComposedNode {
	t.Helper()
	n, err := f.store.Nodes().Get(t.Context(), id)
	require.NoError(t, err)
	return n
}

func (f *fixture) endpoint(t *testing.T, id model.ODataID) *model.Endpoint {
	t.Helper()
	e, err := store.GetAs[*model.Endpoint](t.Context(), f.store.Resources(), id)
	require.NoError(t, err)
	return e
}

func (f *fixture) allocated(t *testing.T, id model.ODataID) bool {
	t.Helper()
	r, err := f.store.Resources().Get(t.Context(), id)
	require.NoError(t, err)
	return r.Base().Allocated
}

// requests returns the mutations of method received at paths with prefix.
func (f *fixture) requests(method, prefix string) []redfishtest.Request {
	var out []redfishtest.Request
	for _, r := range f.rack.Requests(method) {
		if strings.HasPrefix(r.Path, prefix) {
			out = append(out, r)
		}
	}
	return out
}

func (f *fixture) notifications(t *testing.T) []events.EventType {
	t.Helper()
	tasks, err := f.queue.List(t.Context(), taskqueue.TaskFilter{Type: taskqueue.TaskTypeNotification})
	require.NoError(t, err)
	var out []events.EventType
	for _, task := range tasks {
		n, err := taskqueue.UnmarshalPayload[events.Notification](task.Payload)
		require.NoError(t, err)
		out = append(out, n.Type)
	}
	return out
}

func zoneBody(paths ...string) map[string]any {
	eps := make([]any, 0, len(paths))
	for _, p := range paths {
		eps = append(eps, map[string]any{"@odata.id": p})
	}
	return map[string]any{"Links": map[string]any{"Endpoints": eps}}
}

func codeOf(t *testing.T, err error) service.ErrorCode {
	t.Helper()
	require.Error(t, err)
	return service.CodeOf(err)
}

func violations(t *testing.T, err error) service.Violations {
	t.Helper()
	var svcErr *service.Error
	require.ErrorAs(t, err, &svcErr)
	return svcErr.Violations
}

func TestNewService(t *testing.T) {
	t.Parallel()
	st := memory.New()
	pool := client.NewPool(t.Context(), st.Services(), client.DefaultConfig())
	t.Cleanup(pool.Close)
	coord := coordinator.NewLocal(time.Second)

	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "missing store", cfg: Config{Clients: pool, Coordinator: coord}, wantErr: "Store is required"},
		{name: "missing clients", cfg: Config{Store: st, Coordinator: coord}, wantErr: "Clients is required"},
		{name: "missing coordinator", cfg: Config{Store: st, Clients: pool}, wantErr: "Coordinator is required"},
		{name: "valid", cfg: Config{Store: st, Clients: pool, Coordinator: coord}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := NewService(tt.cfg)
			if tt.wantErr != "" {
				assert.EqualError(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, svc)
		})
	}
}

func TestAssemble_CreatesZonesAndAppliesBoot(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	n := f.assembled(t, f.withVolume(t))

	assert.Equal(t, model.NodeAssembled, n.State)
	assert.Equal(t, model.StatusEnabledOK, n.Status)
	require.Len(t, n.Zones, 1)

	posts := f.requests(http.MethodPost, redfishtest.NVMeFabricPath+"/Zones")
	require.Len(t, posts, 1)
	assert.Equal(t, zoneBody(redfishtest.NVMeTargetPath), posts[0].Body)

	z, err := store.GetAs[*model.Zone](t.Context(), f.store.Resources(), n.Zones[0])
	require.NoError(t, err)
	assert.Equal(t, local(redfishtest.NVMeFabricPath), z.Fabric)
	assert.Equal(t, []model.ODataID{local(redfishtest.NVMeTargetPath)}, z.Endpoints)
	assert.Equal(t, n.ODataID, z.Node)
	assert.Equal(t, z.ODataID, f.endpoint(t, local(redfishtest.NVMeTargetPath)).Zone)

	patches := f.requests(http.MethodPatch, redfishtest.SystemPath)
	require.Len(t, patches, 1)
	assert.Equal(t, map[string]any{"Boot": map[string]any{
		"BootSourceOverrideEnabled": "Disabled",
		"BootSourceOverrideTarget":  "None",
	}}, patches[0].Body)

	assert.Contains(t, f.notifications(t), events.NodeAssembled)
	assert.Equal(t, audit.OutcomeSuccess, f.audit.actions()["Assemble"])
}

func TestAssemble_RejectsAssembledNode(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	n := f.assembled(t, f.withVolume(t))

	err := f.svc.Assemble(t.Context(), n.ID)
	assert.Equal(t, service.ErrCodeResourceStateMismatch, codeOf(t, err))
	assert.Len(t, f.requests(http.MethodPost, redfishtest.NVMeFabricPath), 1)
	assert.Equal(t, audit.OutcomeFailure, f.audit.actions()["Assemble"])
}

func TestAssemble_UnknownNode(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	err := f.svc.Assemble(t.Context(), "missing")
	assert.Equal(t, service.ErrCodeNotFound, codeOf(t, err))
}

func TestAssemble_UnreachableServiceRetriesLater(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	n := f.withVolume(t)

	svc, err := f.store.Services().Get(t.Context(), testServiceUUID)
	require.NoError(t, err)
	svc.Reachable = false
	require.NoError(t, f.store.Services().Put(t.Context(), svc))

	err = f.svc.Assemble(t.Context(), n.ID)
	var svcErr *service.Error
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, service.ErrCodeAssetNotAvailable, svcErr.Code)
	assert.Equal(t, DefaultAssetRetryAfter, svcErr.RetryAfter)
	assert.Equal(t, model.NodeAllocated, f.node(t, n.ID).State)
	assert.Empty(t, f.rack.Requests(""))
}

func TestAssemble_FailureRemovesZonesAndAllowsRetry(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	n := f.withVolume(t)

	f.rack.Fail(redfishtest.SystemPath, http.StatusInternalServerError)
	err := f.svc.Assemble(t.Context(), n.ID)
	assert.Equal(t, service.ErrCodeEntityOperation, codeOf(t, err))

	failed := f.node(t, n.ID)
	assert.Equal(t, model.NodeFailed, failed.State)
	assert.Equal(t, model.StatusEnabledCritical, failed.Status)
	assert.Empty(t, failed.Zones)

	posts := f.requests(http.MethodPost, redfishtest.NVMeFabricPath+"/Zones")
	require.Len(t, posts, 1)
	deletes := f.requests(http.MethodDelete, redfishtest.NVMeFabricPath+"/Zones")
	require.Len(t, deletes, 1)
	assert.Contains(t, f.notifications(t), events.NodeAssemblyFailed)

	f.rack.Fail(redfishtest.SystemPath, 0)
	n = f.assembled(t, n)
	assert.Equal(t, model.NodeAssembled, n.State)
	assert.Len(t, n.Zones, 1)
}

func TestReset(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	n := f.assembled(t, f.withVolume(t))

	require.NoError(t, f.svc.Reset(t.Context(), n.ID, model.ResetOn))

	posts := f.requests(http.MethodPost, redfishtest.SystemPath+"/Actions/ComputerSystem.Reset")
	require.Len(t, posts, 1)
	assert.Equal(t, map[string]any{"ResetType": "On"}, posts[0].Body)

	sys, err := store.GetAs[*model.ComputerSystem](t.Context(), f.store.Resources(), local(redfishtest.SystemPath))
	require.NoError(t, err)
	assert.Equal(t, model.PowerStateOn, sys.PowerState)
	assert.Contains(t, f.notifications(t), events.NodeReset)
}

func TestReset_Rejected(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	n := f.withVolume(t)

	err := f.svc.Reset(t.Context(), n.ID, model.ResetOn)
	assert.Equal(t, service.ErrCodeResourceStateMismatch, codeOf(t, err))

	f.assembled(t, n)
	err = f.svc.Reset(t.Context(), n.ID, model.ResetNmi)
	assert.Equal(t, service.ErrCodeRequestValidation, codeOf(t, err))
	assert.Equal(t, service.Violations{"ResetType: Nmi is not allowed"}, violations(t, err))
	assert.Empty(t, f.requests(http.MethodPost, redfishtest.SystemPath))
}

func TestGet(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	n := f.assembled(t, f.withVolume(t))

	doc, err := f.svc.Get(t.Context(), n.ID)
	require.NoError(t, err)
	assert.Equal(t, n.ODataID, doc.ODataID)
	assert.Equal(t, model.NodeAssembled, doc.ComposedNodeState)
	assert.Equal(t, redfishtest.SystemUUID, doc.UUID)
	assert.Equal(t, model.PowerStateOff, doc.PowerState)
	require.NotNil(t, doc.Links.ComputerSystem)
	assert.Equal(t, local(redfishtest.SystemPath), doc.Links.ComputerSystem.ODataID)
	assert.Equal(t, []model.Link{local(redfishtest.VolumePath).Link()}, doc.Links.Storage)
	assert.Len(t, doc.Links.Zones, 1)
	assert.Equal(t, 1, doc.Processors.Count)
	assert.Equal(t, "Intel Xeon Gold 6148", doc.Processors.Model)
	require.NotNil(t, doc.Memory.TotalSystemMemoryGiB)
	assert.InDelta(t, 16.0, *doc.Memory.TotalSystemMemoryGiB, 0.001)
	assert.Equal(t, n.ODataID.String()+"/Actions/ComposedNode.Reset", doc.Actions.Reset.Target)
	assert.Equal(t, []model.ResetType{
		model.ResetOn, model.ResetForceOff, model.ResetGracefulShutdown,
		model.ResetGracefulRestart, model.ResetForceRestart,
	}, doc.Actions.Reset.AllowableValues)
	assert.Equal(t, n.ODataID.String()+"/AttachResourceActionInfo", doc.Actions.AttachResource.ActionInfo)
	assert.NotNil(t, doc.Oem.IntelRackScale.TaggedValues)
}

func TestGet_PowerState(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	n := f.withVolume(t)

	f.rack.Update(redfishtest.SystemPath, map[string]any{"PowerState": "On"})
	doc, err := f.svc.Get(t.Context(), n.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PowerStateOn, doc.PowerState)

	// unreadable system falls back to the discovered value
	f.rack.Fail(redfishtest.SystemPath, http.StatusNotFound)
	doc, err = f.svc.Get(t.Context(), n.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PowerStateOff, doc.PowerState)
}

func TestList(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	n := f.withVolume(t)

	coll, err := f.svc.List(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "/redfish/v1/Nodes", coll.ODataID)
	assert.Equal(t, []model.Link{n.ODataID.Link()}, coll.Members)
	assert.Equal(t, 1, coll.MembersCount)
}

func TestUpdate(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	n := f.assembled(t, f.withVolume(t))

	patch, err := DecodePatch(strings.NewReader(`{
		"Name": "db-1",
		"Boot": {"BootSourceOverrideEnabled": "Once", "BootSourceOverrideTarget": "Pxe"},
		"ClearTPMOnDelete": false,
		"Oem": {"Intel_RackScale": {"TaggedValues": {"owner": "ops", "rack": 7}}}
	}`))
	require.NoError(t, err)
	doc, err := f.svc.Update(t.Context(), n.ID, patch)
	require.NoError(t, err)

	assert.Equal(t, "db-1", doc.Name)
	assert.Equal(t, "Once", doc.Boot.BootSourceOverrideEnabled)
	assert.Equal(t, "Pxe", doc.Boot.BootSourceOverrideTarget)
	assert.False(t, doc.ClearTPMOnDelete)
	assert.Equal(t, map[string]any{"owner": "ops", "rack": float64(7)}, doc.Oem.IntelRackScale.TaggedValues)

	patches := f.requests(http.MethodPatch, redfishtest.SystemPath)
	require.Len(t, patches, 2)
	assert.Equal(t, map[string]any{"Boot": map[string]any{
		"BootSourceOverrideEnabled": "Once",
		"BootSourceOverrideTarget":  "Pxe",
	}}, patches[1].Body)

	patch, err = DecodePatch(strings.NewReader(`{"Oem": {"Intel_RackScale": {"TaggedValues": {"owner": null}}}}`))
	require.NoError(t, err)
	doc, err = f.svc.Update(t.Context(), n.ID, patch)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"rack": float64(7)}, doc.Oem.IntelRackScale.TaggedValues)
	assert.Len(t, f.requests(http.MethodPatch, redfishtest.SystemPath), 2)
}

func TestUpdate_AllocatedNodeKeepsBootLocal(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	n := f.withVolume(t)

	patch, err := DecodePatch(strings.NewReader(`{"Boot": {"BootSourceOverrideTarget": "Hdd"}}`))
	require.NoError(t, err)
	_, err = f.svc.Update(t.Context(), n.ID, patch)
	require.NoError(t, err)

	assert.Equal(t, "Hdd", f.node(t, n.ID).Boot.BootSourceOverrideTarget)
	assert.Empty(t, f.rack.Requests(http.MethodPatch))
}

func TestUpdate_Invalid(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	n := f.withVolume(t)

	patch, err := DecodePatch(strings.NewReader(`{
		"Name": "",
		"Boot": {"BootSourceOverrideEnabled": "Always", "BootSourceOverrideTarget": "Usb"}
	}`))
	require.NoError(t, err)
	_, err = f.svc.Update(t.Context(), n.ID, patch)
	assert.Equal(t, service.ErrCodeRequestValidation, codeOf(t, err))
	assert.Equal(t, service.Violations{
		"Name: may not be empty",
		"Boot.BootSourceOverrideEnabled: Always is not allowed",
		"Boot.BootSourceOverrideTarget: Usb is not allowed",
	}, violations(t, err))
	assert.Equal(t, "db", f.node(t, n.ID).Name)
}

func TestDecodePatch(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{name: "valid", body: `{"Description": "x"}`},
		{name: "unknown property", body: `{"ComposedNodeState": "Assembled"}`, wantErr: true},
		{name: "empty", body: ``, wantErr: true},
		{name: "malformed", body: `{"Name": 1}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p, err := DecodePatch(strings.NewReader(tt.body))
			if tt.wantErr {
				assert.Equal(t, service.ErrCodeRequestValidation, codeOf(t, err))
				return
			}
			require.NoError(t, err)
			require.NotNil(t, p.Description)
			assert.Equal(t, "x", *p.Description)
		})
	}
}

func TestDelete(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	n := f.assembled(t, f.withVolume(t))
	zone := n.Zones[0]
	z, err := store.GetAs[*model.Zone](t.Context(), f.store.Resources(), zone)
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(t.Context(), n.ID))

	deletes := f.rack.Requests(http.MethodDelete)
	require.Len(t, deletes, 1)
	assert.Equal(t, z.SourceURI, deletes[0].Path)

	patches := f.requests(http.MethodPatch, redfishtest.SystemPath)
	require.Len(t, patches, 2)
	assert.Equal(t, map[string]any{"Oem": map[string]any{
		"Intel_RackScale": map[string]any{"ClearTPMOnRestart": true},
	}}, patches[1].Body)

	_, err = f.store.Nodes().Get(t.Context(), n.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = f.store.Resources().Get(t.Context(), zone)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.False(t, f.allocated(t, local(redfishtest.SystemPath)))
	assert.False(t, f.allocated(t, local(redfishtest.VolumePath)))
	assert.False(t, f.allocated(t, local(redfishtest.NVMeTargetPath)))
	assert.Empty(t, f.endpoint(t, local(redfishtest.NVMeTargetPath)).Zone)
	assert.Contains(t, f.notifications(t), events.NodeDeleted)
}

func TestDelete_AllocatedNode(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	n := f.withVolume(t)

	require.NoError(t, f.svc.Delete(t.Context(), n.ID))
	assert.Empty(t, f.rack.Requests(http.MethodDelete))
	assert.False(t, f.allocated(t, local(redfishtest.VolumePath)))
}

func TestDelete_WhileAssembling(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	n := f.withVolume(t)
	n.State = model.NodeAssembling
	require.NoError(t, f.store.Nodes().Update(t.Context(), n))

	err := f.svc.Delete(t.Context(), n.ID)
	assert.Equal(t, service.ErrCodeResourceStateMismatch, codeOf(t, err))
	assert.Empty(t, f.rack.Requests(""))
}

func TestDelete_FailureThenForceDelete(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	n := f.assembled(t, f.withVolume(t))
	z, err := store.GetAs[*model.Zone](t.Context(), f.store.Resources(), n.Zones[0])
	require.NoError(t, err)

	f.rack.Fail(z.SourceURI, http.StatusInternalServerError)
	err = f.svc.Delete(t.Context(), n.ID)
	assert.Equal(t, service.ErrCodeEntityOperation, codeOf(t, err))
	assert.Equal(t, model.NodeFailed, f.node(t, n.ID).State)

	before := len(f.rack.Requests(""))
	require.NoError(t, f.svc.ForceDelete(t.Context(), n.ID))
	assert.Len(t, f.rack.Requests(""), before)

	_, err = f.store.Nodes().Get(t.Context(), n.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.False(t, f.allocated(t, local(redfishtest.VolumePath)))
	assert.Equal(t, audit.OutcomeSuccess, f.audit.actions()["ForceDelete"])
}

type keyRecorder struct {
	coordinator.Coordinator
	mu   sync.Mutex
	keys []string
}

func (r *keyRecorder) Run(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	r.mu.Lock()
	r.keys = append(r.keys, key)
	r.mu.Unlock()
	return r.Coordinator.Run(ctx, key, fn)
}

func (r *keyRecorder) taken() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.keys...)
}

func TestZoneChangesHoldFabricServiceKeys(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	n := f.bare(t)

	const fabricService = "b7e2c4d1-0a9f-4c3e-8d2b-665544332211"
	require.NoError(t, f.store.Resources().Put(t.Context(), &model.Fabric{Meta: model.Meta{
		ODataID:     redfish.LocalURI(fabricService, "/redfish/v1/Fabrics/NVMeoE"),
		ID:          "NVMeoE",
		ServiceUUID: fabricService,
	}}))
	impl := f.svc.(*serviceImpl)
	rec := &keyRecorder{Coordinator: impl.coord}
	impl.coord = rec

	err := f.svc.DetachResource(t.Context(), n.ID, resource(local(redfishtest.PCIeDrivePath), ""))
	assert.Equal(t, service.ErrCodeRequestValidation, codeOf(t, err))
	assert.Equal(t, []string{testServiceUUID, fabricService}, rec.taken())

	require.NoError(t, f.svc.Delete(t.Context(), n.ID))
	assert.Equal(t, []string{testServiceUUID, fabricService, testServiceUUID, fabricService}, rec.taken())
}
