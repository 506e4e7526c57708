// Copyright 2025 Sorint.lab
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied
// See the License for the specific language governing permissions and
// limitations under the License.

package resourcelock

import (
	"context"
	"sync"

	"github.com/sorintlab/errors"

	"agola.io/reslock/services/resourcelock/types"
)

// memStore is an in memory Store with optimistic transactions. Commits fail
// with ErrConflict when a resource lock read by the transaction changed in
// the meantime or when a conflict is injected.
type memStore struct {
	mu    sync.Mutex
	locks map[string]*types.ResourceLock

	// number of next commits that will fail with a conflict
	conflicts int
	// error returned by every transaction
	err error

	doCalls int
}

func newMemStore() *memStore {
	return &memStore{locks: map[string]*types.ResourceLock{}}
}

func (s *memStore) injectConflicts(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conflicts = n
}

func (s *memStore) setError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.err = err
}

func (s *memStore) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.doCalls
}

func (s *memStore) get(id string) *types.ResourceLock {
	l, ok := s.locks[id]
	if !ok {
		return nil
	}
	c := *l

	return &c
}

func (s *memStore) Get(ctx context.Context, id string) (*types.ResourceLock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return nil, s.err
	}

	return s.get(id), nil
}

func (s *memStore) Do(ctx context.Context, f func(tx Tx) error) error {
	s.mu.Lock()
	s.doCalls++
	err := s.err
	s.mu.Unlock()

	if err != nil {
		return err
	}

	tx := &memTx{s: s, reads: map[string]uint64{}, writes: map[string]*types.ResourceLock{}}
	if err := f(tx); err != nil {
		return errors.WithStack(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conflicts > 0 {
		s.conflicts--
		return errors.WithStack(ErrConflict)
	}

	for id, revision := range tx.reads {
		var curRevision uint64
		if l, ok := s.locks[id]; ok {
			curRevision = l.Revision
		}
		if curRevision != revision {
			return errors.WithStack(ErrConflict)
		}
	}

	for id, l := range tx.writes {
		s.locks[id] = l
	}

	return nil
}

type memTx struct {
	s *memStore

	reads  map[string]uint64
	writes map[string]*types.ResourceLock
}

func (t *memTx) Get(id string) (*types.ResourceLock, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	l := t.s.get(id)
	if _, ok := t.reads[id]; !ok {
		var revision uint64
		if l != nil {
			revision = l.Revision
		}
		t.reads[id] = revision
	}

	return l, nil
}

func (t *memTx) Create(l *types.ResourceLock) error {
	if _, ok := t.reads[l.ID]; !ok {
		t.reads[l.ID] = 0
	}

	l.Revision = 1
	c := *l
	t.writes[l.ID] = &c

	return nil
}

func (t *memTx) Update(l *types.ResourceLock) error {
	l.Revision++
	c := *l
	t.writes[l.ID] = &c

	return nil
}
