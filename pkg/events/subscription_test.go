// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeeDigitalWorks/podm/pkg/model"
	"github.com/LeeDigitalWorks/podm/pkg/redfish"
	"github.com/LeeDigitalWorks/podm/pkg/redfish/client"
	"github.com/LeeDigitalWorks/podm/pkg/store/memory"
	"github.com/LeeDigitalWorks/podm/pkg/taskqueue"
)

const (
	testServiceUUID   = "8d2c1e4a-0000-0000-0000-00000000000a"
	subscription1Path = "/redfish/v1/EventService/Subscriptions/1"
)

// fakeEventService serves the EventService resources of an external
// service from a path -> body map and records subscription POSTs.
type fakeEventService struct {
	mu     sync.Mutex
	bodies map[string]any
	posted []redfish.EventDestination
}

func (f *fakeEventService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r.Method == http.MethodPost {
		var d redfish.EventDestination
		_ = json.NewDecoder(r.Body).Decode(&d)
		f.posted = append(f.posted, d)
		w.Header().Set("Location", "/redfish/v1/EventService/Subscriptions/99")
		w.WriteHeader(http.StatusCreated)
		return
	}
	body, ok := f.bodies[r.URL.Path]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

func (f *fakeEventService) posts() []redfish.EventDestination {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.posted
}

type registrarFixture struct {
	registrar *SubscriptionRegistrar
	service   *fakeEventService
	store     *memory.Store
}

func newRegistrarFixture(t *testing.T, bodies map[string]any) *registrarFixture {
	t.Helper()
	fake := &fakeEventService{bodies: bodies}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	ctx := t.Context()
	st := memory.New()
	require.NoError(t, st.Services().Put(ctx, &model.ExternalService{UUID: testServiceUUID, BaseURL: srv.URL}))

	cfg := client.DefaultConfig()
	cfg.RetryMax = 0
	cfg.Timeout = time.Second
	pool := client.NewPool(ctx, st.Services(), cfg)
	t.Cleanup(pool.Close)

	return &registrarFixture{
		registrar: NewSubscriptionRegistrar(pool, st.Services(), "http://podm.local:8443/"),
		service:   fake,
		store:     st,
	}
}

func eventService(types ...redfish.EventType) redfish.EventService {
	return redfish.EventService{EventTypesForSubscription: types}
}

func members(ids ...string) map[string]any {
	links := make([]model.Link, 0, len(ids))
	for _, id := range ids {
		links = append(links, model.Link{ODataID: model.ODataID(id)})
	}
	return map[string]any{"Members": links}
}

func TestSubscriptionRegistrar_ListenerURL(t *testing.T) {
	t.Parallel()
	r := NewSubscriptionRegistrar(nil, nil, "http://podm.local:8443/")
	assert.Equal(t, "http://podm.local:8443/redfish/v1/EventListener/abc", r.ListenerURL("abc"))
}

func TestSubscriptionRegistrar_SubscribesWhenMissing(t *testing.T) {
	t.Parallel()
	f := newRegistrarFixture(t, map[string]any{
		subscriptionsPath: members(),
		eventServicePath:  eventService(redfish.EventAlert, redfish.EventResourceAdded),
	})

	ctx := t.Context()
	require.NoError(t, f.registrar.Ensure(ctx, testServiceUUID))

	posts := f.service.posts()
	require.Len(t, posts, 1)
	assert.Equal(t, f.registrar.ListenerURL(testServiceUUID), posts[0].Destination)
	assert.Equal(t, "podm", posts[0].Context)
	assert.Equal(t, "Redfish", posts[0].Protocol)
	assert.Equal(t, []redfish.EventType{redfish.EventAlert, redfish.EventResourceAdded}, posts[0].EventTypes)

	svc, err := f.store.Services().Get(ctx, testServiceUUID)
	require.NoError(t, err)
	assert.True(t, svc.EventingAvailable)
	assert.Equal(t, "/redfish/v1/EventService/Subscriptions/99", svc.SubscriptionURI)
}

func TestSubscriptionRegistrar_SubscribesNextToForeignSubscription(t *testing.T) {
	t.Parallel()
	f := newRegistrarFixture(t, map[string]any{
		subscriptionsPath: members(subscription1Path),
		subscription1Path: redfish.EventDestination{Destination: "/nonPodMDestination"},
		eventServicePath:  eventService(redfish.EventAlert),
	})
	require.NoError(t, f.registrar.Ensure(t.Context(), testServiceUUID))
	assert.Len(t, f.service.posts(), 1)
}

func TestSubscriptionRegistrar_NoPost(t *testing.T) {
	t.Parallel()

	listener := "http://podm.local:8443" + ListenerPath + testServiceUUID
	tests := []struct {
		name   string
		bodies map[string]any
	}{
		{
			name: "already subscribed",
			bodies: map[string]any{
				subscriptionsPath: members(subscription1Path),
				subscription1Path: redfish.EventDestination{Destination: listener},
				eventServicePath:  eventService(redfish.EventAlert),
			},
		},
		{
			name: "no supported event types",
			bodies: map[string]any{
				subscriptionsPath: members(),
				eventServicePath:  eventService(),
			},
		},
		{
			name: "members missing",
			bodies: map[string]any{
				subscriptionsPath: map[string]any{"Name": "Subscriptions"},
				eventServicePath:  eventService(redfish.EventAlert),
			},
		},
		{
			name: "destination missing",
			bodies: map[string]any{
				subscriptionsPath: members(subscription1Path),
				subscription1Path: map[string]any{"Name": "x"},
				eventServicePath:  eventService(redfish.EventAlert),
			},
		},
		{
			name: "subscription not readable",
			bodies: map[string]any{
				subscriptionsPath: members(subscription1Path),
				eventServicePath:  eventService(redfish.EventAlert),
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newRegistrarFixture(t, tt.bodies)
			require.NoError(t, f.registrar.Ensure(t.Context(), testServiceUUID))
			assert.Empty(t, f.service.posts())
		})
	}
}

func TestSubscriptionRegistrar_Handle(t *testing.T) {
	t.Parallel()
	f := newRegistrarFixture(t, map[string]any{
		subscriptionsPath: members(),
		eventServicePath:  eventService(redfish.EventStatusChange),
	})
	assert.Equal(t, taskqueue.TaskTypeEventSubscription, f.registrar.Type())

	task, err := taskqueue.NewServiceTask(taskqueue.TaskTypeEventSubscription, testServiceUUID, "register")
	require.NoError(t, err)
	require.NoError(t, f.registrar.Handle(t.Context(), task))
	assert.Len(t, f.service.posts(), 1)

	// unknown services fail so the task is retried
	task, err = taskqueue.NewServiceTask(taskqueue.TaskTypeEventSubscription, "unknown", "register")
	require.NoError(t, err)
	assert.Error(t, f.registrar.Handle(context.Background(), task))
}
