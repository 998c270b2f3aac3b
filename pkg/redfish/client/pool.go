// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/LeeDigitalWorks/podm/pkg/store"
)

// Pool hands out one Client per external service, created on first use
// from the stored service record.
type Pool struct {
	ctx      context.Context
	cfg      Config
	services store.ServiceStore

	mu      sync.Mutex
	clients map[string]*Client
}

func NewPool(ctx context.Context, services store.ServiceStore, cfg Config) *Pool {
	return &Pool{
		ctx:      ctx,
		cfg:      cfg,
		services: services,
		clients:  make(map[string]*Client),
	}
}

// Get returns the client for serviceUUID. A client whose base URL no longer
// matches the stored service is replaced.
func (p *Pool) Get(ctx context.Context, serviceUUID string) (*Client, error) {
	svc, err := p.services.Get(ctx, serviceUUID)
	if err != nil {
		return nil, fmt.Errorf("service %s: %w", serviceUUID, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[serviceUUID]; ok {
		if c.BaseURL() == trimURL(svc.BaseURL) {
			return c, nil
		}
		c.Close()
		delete(p.clients, serviceUUID)
	}
	c, err := New(p.ctx, serviceUUID, svc.BaseURL, p.cfg)
	if err != nil {
		return nil, err
	}
	p.clients[serviceUUID] = c
	return c, nil
}

// ForURL returns an unpooled client for a service that is not registered
// yet. The caller closes it.
func (p *Pool) ForURL(baseURL string) (*Client, error) {
	return New(p.ctx, "", baseURL, p.cfg)
}

func (p *Pool) Remove(serviceUUID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[serviceUUID]; ok {
		c.Close()
		delete(p.clients, serviceUUID)
	}
}

func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, c := range p.clients {
		c.Close()
		delete(p.clients, id)
	}
}

func trimURL(u string) string {
	return strings.TrimRight(u, "/")
}
