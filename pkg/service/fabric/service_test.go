// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package fabric

import (
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeeDigitalWorks/podm/pkg/coordinator"
	"github.com/LeeDigitalWorks/podm/pkg/discovery"
	"github.com/LeeDigitalWorks/podm/pkg/model"
	"github.com/LeeDigitalWorks/podm/pkg/redfish"
	"github.com/LeeDigitalWorks/podm/pkg/redfish/client"
	"github.com/LeeDigitalWorks/podm/pkg/redfish/redfishtest"
	"github.com/LeeDigitalWorks/podm/pkg/service"
	"github.com/LeeDigitalWorks/podm/pkg/store"
	"github.com/LeeDigitalWorks/podm/pkg/store/memory"
)

const testServiceUUID = "4a1f0c2e-7d3b-4e5a-9c6f-112233445566"

func local(p string) model.ODataID {
	return redfish.LocalURI(testServiceUUID, p)
}

type fixture struct {
	svc   Service
	rack  *redfishtest.Service
	store *memory.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := t.Context()
	rack := redfishtest.NewService(t, testServiceUUID)
	rack.AddRack()

	st := memory.New()
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
	d := discovery.New(discovery.Config{}, st, pool, coord, nil, nil)
	require.NoError(t, d.Discover(ctx, testServiceUUID))

	svc, err := NewService(Config{Store: st, Clients: pool, Coordinator: coord, Discoverer: d})
	require.NoError(t, err)
	return &fixture{svc: svc, rack: rack, store: st}
}

func (f *fixture) endpoint(t *testing.T, p string) *model.Endpoint {
	t.Helper()
	e, err := store.GetAs[*model.Endpoint](t.Context(), f.store.Resources(), local(p))
	require.NoError(t, err)
	return e
}

func (f *fixture) pcieZone(t *testing.T) *model.Zone {
	t.Helper()
	z, err := f.svc.CreateZone(t.Context(), local(redfishtest.PCIeFabricPath), []model.ODataID{
		local(redfishtest.InitiatorPath),
		local(redfishtest.PCIeTargetPath),
	})
	require.NoError(t, err)
	return z
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
		{name: "without discoverer", cfg: Config{Store: st, Clients: pool, Coordinator: coord}},
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

func TestCreateZone(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	z := f.pcieZone(t)

	posts := f.rack.Requests(http.MethodPost)
	require.Len(t, posts, 1)
	assert.Equal(t, redfishtest.PCIeFabricPath+"/Zones", posts[0].Path)
	assert.Equal(t, zoneBody(redfishtest.InitiatorPath, redfishtest.PCIeTargetPath), posts[0].Body)

	assert.Equal(t, local(redfishtest.PCIeFabricPath+"/Zones/101"), z.ODataID)
	assert.Equal(t, local(redfishtest.PCIeFabricPath), z.Fabric)
	assert.ElementsMatch(t, []model.ODataID{local(redfishtest.InitiatorPath), local(redfishtest.PCIeTargetPath)}, z.Endpoints)
	assert.Equal(t, z.ODataID, f.endpoint(t, redfishtest.InitiatorPath).Zone)
	assert.Equal(t, z.ODataID, f.endpoint(t, redfishtest.PCIeTargetPath).Zone)
}

func TestCreateZone_Rejected(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	pcie := local(redfishtest.PCIeFabricPath)
	fab, err := store.GetAs[*model.Fabric](t.Context(), f.store.Resources(), pcie)
	require.NoError(t, err)

	_, err = f.svc.CreateZone(t.Context(), "/redfish/v1/Fabrics/missing", nil)
	assert.Equal(t, service.ErrCodeNotFound, codeOf(t, err))

	foreign := local(redfishtest.NVMeTargetPath)
	_, err = f.svc.CreateZone(t.Context(), pcie, []model.ODataID{foreign})
	assert.Equal(t, service.ErrCodeRequestValidation, codeOf(t, err))
	var svcErr *service.Error
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, service.Violations{
		fmt.Sprintf("Endpoint %s does not belong to fabric %s", foreign, fab.ID),
	}, svcErr.Violations)

	f.pcieZone(t)
	_, err = f.svc.CreateZone(t.Context(), pcie, []model.ODataID{local(redfishtest.PCIeTargetPath)})
	assert.Equal(t, service.ErrCodeResourceStateMismatch, codeOf(t, err))
	assert.Len(t, f.rack.Requests(http.MethodPost), 1)
}

func TestCreateZone_EndpointOwnedByNode(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	target := f.endpoint(t, redfishtest.PCIeTargetPath)
	target.Allocated = true
	require.NoError(t, f.store.Resources().Put(t.Context(), target))

	_, err := f.svc.CreateZone(t.Context(), local(redfishtest.PCIeFabricPath), []model.ODataID{
		local(redfishtest.InitiatorPath),
		target.ODataID,
	})
	assert.Equal(t, service.ErrCodeResourceStateMismatch, codeOf(t, err))
	assert.Empty(t, f.rack.Requests(http.MethodPost))
	assert.Empty(t, f.endpoint(t, redfishtest.InitiatorPath).Zone)
}

func TestUpdateZone(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	z := f.pcieZone(t)

	updated, err := f.svc.UpdateZone(t.Context(), z.ODataID, []model.ODataID{local(redfishtest.InitiatorPath)})
	require.NoError(t, err)

	patches := f.rack.Requests(http.MethodPatch)
	require.Len(t, patches, 1)
	assert.Equal(t, redfishtest.PCIeFabricPath+"/Zones/101", patches[0].Path)
	assert.Equal(t, zoneBody(redfishtest.InitiatorPath), patches[0].Body)

	assert.Equal(t, []model.ODataID{local(redfishtest.InitiatorPath)}, updated.Endpoints)
	assert.Equal(t, z.ODataID, f.endpoint(t, redfishtest.InitiatorPath).Zone)
	assert.Empty(t, f.endpoint(t, redfishtest.PCIeTargetPath).Zone)
}

func TestUpdateZone_KeepsMembersOwnedByNode(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	z := f.pcieZone(t)
	target := f.endpoint(t, redfishtest.PCIeTargetPath)
	require.Equal(t, z.ODataID, target.Zone)
	target.Allocated = true
	require.NoError(t, f.store.Resources().Put(t.Context(), target))

	_, err := f.svc.UpdateZone(t.Context(), z.ODataID, []model.ODataID{target.ODataID})
	require.NoError(t, err)
	assert.Len(t, f.rack.Requests(http.MethodPatch), 1)
}

func TestUpdateZone_UnknownZone(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	_, err := f.svc.UpdateZone(t.Context(), local(redfishtest.PCIeFabricPath+"/Zones/9"), nil)
	assert.Equal(t, service.ErrCodeNotFound, codeOf(t, err))
}

func TestDeleteZone(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	z := f.pcieZone(t)

	require.NoError(t, f.svc.DeleteZone(t.Context(), z.ODataID))

	deletes := f.rack.Requests(http.MethodDelete)
	require.Len(t, deletes, 1)
	assert.Equal(t, redfishtest.PCIeFabricPath+"/Zones/101", deletes[0].Path)
	_, err := f.store.Resources().Get(t.Context(), z.ODataID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Empty(t, f.endpoint(t, redfishtest.InitiatorPath).Zone)
	assert.Empty(t, f.endpoint(t, redfishtest.PCIeTargetPath).Zone)
}

func TestDeleteZone_OwnedByNode(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	z := f.pcieZone(t)
	z.Node = model.NodeURI("1")
	require.NoError(t, f.store.Resources().Put(t.Context(), z))

	err := f.svc.DeleteZone(t.Context(), z.ODataID)
	assert.Equal(t, service.ErrCodeResourceStateMismatch, codeOf(t, err))
	assert.Empty(t, f.rack.Requests(http.MethodDelete))
}

func TestDecodeZoneRequest(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		body    string
		want    []model.ODataID
		wantErr bool
	}{
		{
			name: "valid",
			body: `{"Links": {"Endpoints": [{"@odata.id": "/redfish/v1/Fabrics/a/Endpoints/1"}]}}`,
			want: []model.ODataID{"/redfish/v1/Fabrics/a/Endpoints/1"},
		},
		{name: "no endpoints", body: `{"Links": {}}`, want: []model.ODataID{}},
		{name: "null endpoint", body: `{"Links": {"Endpoints": [{}]}}`, wantErr: true},
		{name: "unknown property", body: `{"Name": "z"}`, wantErr: true},
		{name: "empty", body: ``, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req, err := DecodeZoneRequest(strings.NewReader(tt.body))
			if tt.wantErr {
				assert.Equal(t, service.ErrCodeRequestValidation, codeOf(t, err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, req.Endpoints())
		})
	}
}
