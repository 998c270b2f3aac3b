// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

// Package memory is an in-process store. Documents are kept JSON-encoded in
// google/btree indexes so callers never share mutable state with the store
// and listings come out in key order.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/btree"

	"github.com/LeeDigitalWorks/podm/pkg/model"
	"github.com/LeeDigitalWorks/podm/pkg/store"
)

const btreeDegree = 32

type doc struct {
	key  string
	kind model.Kind
	data []byte
}

func lessDoc(a, b doc) bool { return a.key < b.key }

type state struct {
	resources *btree.BTreeG[doc]
	nodes     *btree.BTreeG[doc]
	services  *btree.BTreeG[doc]
}

func newState() *state {
	return &state{
		resources: btree.NewG(btreeDegree, lessDoc),
		nodes:     btree.NewG(btreeDegree, lessDoc),
		services:  btree.NewG(btreeDegree, lessDoc),
	}
}

// clone is O(1); the trees share nodes copy-on-write.
func (s *state) clone() *state {
	return &state{
		resources: s.resources.Clone(),
		nodes:     s.nodes.Clone(),
		services:  s.services.Clone(),
	}
}

// Store implements store.Store in memory.
type Store struct {
	mu    sync.RWMutex
	state *state
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{state: newState()}
}

// view binds the sub-stores to a state and its locking discipline. The
// top-level view locks per call, a transaction view runs under the
// transaction's write lock and does not lock again.
type view struct {
	s      *Store
	st     func() *state
	locked bool
}

func (v *view) read(fn func(st *state) error) error {
	if !v.locked {
		v.s.mu.RLock()
		defer v.s.mu.RUnlock()
	}
	return fn(v.st())
}

func (v *view) write(fn func(st *state) error) error {
	if !v.locked {
		v.s.mu.Lock()
		defer v.s.mu.Unlock()
	}
	return fn(v.st())
}

func (s *Store) root() *view {
	return &view{s: s, st: func() *state { return s.state }}
}

func (s *Store) Nodes() store.NodeStore         { return nodes{s.root()} }
func (s *Store) Resources() store.ResourceStore { return resources{s.root()} }
func (s *Store) Services() store.ServiceStore   { return services{s.root()} }

// WithTx holds the write lock for the duration of fn and works on a
// snapshot that replaces the live state only when fn succeeds.
func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.state.clone()
	v := &view{s: s, st: func() *state { return snapshot }, locked: true}
	if err := fn(txView{v}); err != nil {
		return err
	}
	s.state = snapshot
	return nil
}

func (s *Store) Migrate(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

type txView struct{ v *view }

func (t txView) Nodes() store.NodeStore         { return nodes{t.v} }
func (t txView) Resources() store.ResourceStore { return resources{t.v} }
func (t txView) Services() store.ServiceStore   { return services{t.v} }

type resources struct{ v *view }

func (r resources) Put(ctx context.Context, res model.Resource) error {
	m := res.Base()
	if m.ODataID == "" {
		return fmt.Errorf("put %s: empty @odata.id", res.Kind())
	}
	data, err := model.Encode(res)
	if err != nil {
		return err
	}
	return r.v.write(func(st *state) error {
		st.resources.ReplaceOrInsert(doc{key: string(m.ODataID), kind: res.Kind(), data: data})
		return nil
	})
}

func (r resources) Get(ctx context.Context, id model.ODataID) (model.Resource, error) {
	var out model.Resource
	err := r.v.read(func(st *state) error {
		d, ok := st.resources.Get(doc{key: string(id)})
		if !ok {
			return fmt.Errorf("resource %s: %w", id, store.ErrNotFound)
		}
		var err error
		out, err = model.Decode(d.kind, d.data)
		return err
	})
	return out, err
}

func (r resources) List(ctx context.Context, filter store.ResourceFilter) ([]model.Resource, error) {
	var out []model.Resource
	err := r.v.read(func(st *state) error {
		var derr error
		visit := func(d doc) bool {
			if filter.Prefix != "" && !strings.HasPrefix(d.key, string(filter.Prefix)) {
				return false
			}
			if filter.Kind != "" && d.kind != filter.Kind {
				return true
			}
			res, err := model.Decode(d.kind, d.data)
			if err != nil {
				derr = err
				return false
			}
			if !filter.Match(d.kind, res.Base()) {
				return true
			}
			out = append(out, res)
			return filter.Limit <= 0 || len(out) < filter.Limit
		}
		if filter.Prefix != "" {
			st.resources.AscendGreaterOrEqual(doc{key: string(filter.Prefix)}, visit)
		} else {
			st.resources.Ascend(visit)
		}
		return derr
	})
	return out, err
}

func (r resources) Delete(ctx context.Context, id model.ODataID) error {
	return r.v.write(func(st *state) error {
		if _, ok := st.resources.Delete(doc{key: string(id)}); !ok {
			return fmt.Errorf("resource %s: %w", id, store.ErrNotFound)
		}
		return nil
	})
}

func (r resources) MarkAbsent(ctx context.Context, serviceUUID string, keep map[model.ODataID]struct{}) (int, error) {
	changed := 0
	err := r.v.write(func(st *state) error {
		var updates []doc
		var derr error
		st.resources.Ascend(func(d doc) bool {
			if _, kept := keep[model.ODataID(d.key)]; kept {
				return true
			}
			res, err := model.Decode(d.kind, d.data)
			if err != nil {
				derr = err
				return false
			}
			m := res.Base()
			if m.ServiceUUID != serviceUUID || m.Status.State == model.StateAbsent {
				return true
			}
			m.Status = model.StatusAbsent
			data, err := model.Encode(res)
			if err != nil {
				derr = err
				return false
			}
			updates = append(updates, doc{key: d.key, kind: d.kind, data: data})
			return true
		})
		if derr != nil {
			return derr
		}
		// the tree must not be mutated while ascending
		for _, d := range updates {
			st.resources.ReplaceOrInsert(d)
		}
		changed = len(updates)
		return nil
	})
	return changed, err
}

type nodes struct{ v *view }

func (n nodes) Create(ctx context.Context, node *model.ComposedNode) error {
	data, err := json.Marshal(node)
	if err != nil {
		return err
	}
	return n.v.write(func(st *state) error {
		if st.nodes.Has(doc{key: node.ID}) {
			return fmt.Errorf("node %s: %w", node.ID, store.ErrConflict)
		}
		st.nodes.ReplaceOrInsert(doc{key: node.ID, data: data})
		return nil
	})
}

func (n nodes) Get(ctx context.Context, id string) (*model.ComposedNode, error) {
	var out *model.ComposedNode
	err := n.v.read(func(st *state) error {
		d, ok := st.nodes.Get(doc{key: id})
		if !ok {
			return fmt.Errorf("node %s: %w", id, store.ErrNotFound)
		}
		out = &model.ComposedNode{}
		return json.Unmarshal(d.data, out)
	})
	return out, err
}

func (n nodes) Update(ctx context.Context, node *model.ComposedNode) error {
	data, err := json.Marshal(node)
	if err != nil {
		return err
	}
	return n.v.write(func(st *state) error {
		if !st.nodes.Has(doc{key: node.ID}) {
			return fmt.Errorf("node %s: %w", node.ID, store.ErrNotFound)
		}
		st.nodes.ReplaceOrInsert(doc{key: node.ID, data: data})
		return nil
	})
}

func (n nodes) Delete(ctx context.Context, id string) error {
	return n.v.write(func(st *state) error {
		if _, ok := st.nodes.Delete(doc{key: id}); !ok {
			return fmt.Errorf("node %s: %w", id, store.ErrNotFound)
		}
		return nil
	})
}

func (n nodes) List(ctx context.Context) ([]*model.ComposedNode, error) {
	var out []*model.ComposedNode
	err := n.v.read(func(st *state) error {
		var derr error
		st.nodes.Ascend(func(d doc) bool {
			node := &model.ComposedNode{}
			if derr = json.Unmarshal(d.data, node); derr != nil {
				return false
			}
			out = append(out, node)
			return true
		})
		return derr
	})
	return out, err
}

type services struct{ v *view }

func (s services) Put(ctx context.Context, svc *model.ExternalService) error {
	data, err := json.Marshal(svc)
	if err != nil {
		return err
	}
	return s.v.write(func(st *state) error {
		st.services.ReplaceOrInsert(doc{key: svc.UUID, data: data})
		return nil
	})
}

func (s services) Get(ctx context.Context, uuid string) (*model.ExternalService, error) {
	var out *model.ExternalService
	err := s.v.read(func(st *state) error {
		d, ok := st.services.Get(doc{key: uuid})
		if !ok {
			return fmt.Errorf("service %s: %w", uuid, store.ErrNotFound)
		}
		out = &model.ExternalService{}
		return json.Unmarshal(d.data, out)
	})
	return out, err
}

func (s services) List(ctx context.Context) ([]*model.ExternalService, error) {
	var out []*model.ExternalService
	err := s.v.read(func(st *state) error {
		var derr error
		st.services.Ascend(func(d doc) bool {
			svc := &model.ExternalService{}
			if derr = json.Unmarshal(d.data, svc); derr != nil {
				return false
			}
			out = append(out, svc)
			return true
		})
		return derr
	})
	return out, err
}

func (s services) Delete(ctx context.Context, uuid string) error {
	return s.v.write(func(st *state) error {
		if _, ok := st.services.Delete(doc{key: uuid}); !ok {
			return fmt.Errorf("service %s: %w", uuid, store.ErrNotFound)
		}
		return nil
	})
}
