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

package redis

import (
	"context"
	"encoding/json"
	"slices"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/sorintlab/errors"

	"agola.io/reslock/internal/services/resourcelock"
	"agola.io/reslock/services/resourcelock/types"
)

const DefaultKeyPrefix = "reslock:"

// Store is a resourcelock.Store backed by redis. Transactions use WATCH on
// every read or created key and apply their writes in a MULTI/EXEC block, so
// a key changed by another client before EXEC aborts the transaction.
type Store struct {
	client    goredis.UniversalClient
	keyPrefix string
}

func NewStore(client goredis.UniversalClient, keyPrefix string) *Store {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}

	return &Store{client: client, keyPrefix: keyPrefix}
}

func (s *Store) key(id string) string {
	return s.keyPrefix + id
}

func (s *Store) Get(ctx context.Context, id string) (*types.ResourceLock, error) {
	l, err := s.get(ctx, s.client, id)
	return l, errors.WithStack(err)
}

func (s *Store) get(ctx context.Context, c getter, id string) (*types.ResourceLock, error) {
	data, err := c.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}

	var l *types.ResourceLock
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal resource lock %q", id)
	}

	return l, nil
}

// ListByOwner scans all the resource lock keys so its cost grows with the
// number of resource locks.
func (s *Store) ListByOwner(ctx context.Context, ownerID string) ([]*types.ResourceLock, error) {
	var ls []*types.ResourceLock

	iter := s.client.Scan(ctx, 0, s.keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		id := strings.TrimPrefix(iter.Val(), s.keyPrefix)
		l, err := s.get(ctx, s.client, id)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		// removed after the scan
		if l == nil {
			continue
		}
		if l.IsOwnedBy(ownerID) {
			ls = append(ls, l)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, errors.WithStack(err)
	}

	slices.SortFunc(ls, func(a, b *types.ResourceLock) int {
		return strings.Compare(a.ID, b.ID)
	})

	return ls, nil
}

func (s *Store) Do(ctx context.Context, f func(tx resourcelock.Tx) error) error {
	err := s.client.Watch(ctx, func(rtx *goredis.Tx) error {
		tx := &storeTx{ctx: ctx, s: s, rtx: rtx, watched: map[string]struct{}{}, writes: map[string][]byte{}}

		if err := f(tx); err != nil {
			return errors.WithStack(err)
		}

		if len(tx.writes) == 0 {
			return nil
		}

		_, err := rtx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			for key, data := range tx.writes {
				pipe.Set(ctx, key, data, 0)
			}
			return nil
		})
		return errors.WithStack(err)
	})
	if errors.Is(err, goredis.TxFailedErr) {
		return errors.Wrapf(resourcelock.ErrConflict, "%v", err)
	}

	return errors.WithStack(err)
}

type getter interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
}

type storeTx struct {
	ctx context.Context
	s   *Store
	rtx *goredis.Tx

	watched map[string]struct{}
	writes  map[string][]byte
}

// watch watches the key only the first time so a change happened after the
// first read isn't forgotten.
func (t *storeTx) watch(id string) error {
	key := t.s.key(id)
	if _, ok := t.watched[key]; ok {
		return nil
	}
	if err := t.rtx.Watch(t.ctx, key).Err(); err != nil {
		return errors.WithStack(err)
	}
	t.watched[key] = struct{}{}

	return nil
}

func (t *storeTx) Get(id string) (*types.ResourceLock, error) {
	if err := t.watch(id); err != nil {
		return nil, errors.WithStack(err)
	}

	l, err := t.s.get(t.ctx, t.rtx, id)
	return l, errors.WithStack(err)
}

func (t *storeTx) Create(l *types.ResourceLock) error {
	if l.Revision != 0 {
		return errors.Errorf("expected revision 0 got %d", l.Revision)
	}
	if err := t.watch(l.ID); err != nil {
		return errors.WithStack(err)
	}

	now := time.Now()
	l.Revision = 1
	l.CreationTime = now
	l.UpdateTime = now

	return errors.WithStack(t.set(l))
}

func (t *storeTx) Update(l *types.ResourceLock) error {
	if l.Revision < 1 {
		return errors.Errorf("expected revision > 0 got %d", l.Revision)
	}

	l.Revision++
	l.UpdateTime = time.Now()

	return errors.WithStack(t.set(l))
}

func (t *storeTx) set(l *types.ResourceLock) error {
	if !l.State.IsValid() {
		return errors.Errorf("invalid resource lock state %q", l.State)
	}

	data, err := json.Marshal(l)
	if err != nil {
		return errors.Wrapf(err, "failed to marshal resource lock %q", l.ID)
	}
	t.writes[t.s.key(l.ID)] = data

	return nil
}
