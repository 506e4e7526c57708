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

package db

import (
	"context"

	"github.com/sorintlab/errors"

	"agola.io/reslock/internal/services/resourcelock"
	"agola.io/reslock/internal/sqlg"
	"agola.io/reslock/internal/sqlg/sql"
	"agola.io/reslock/services/resourcelock/types"
)

// Store is a resourcelock.Store backed by a sql database.
type Store struct {
	d *DB
}

func NewStore(d *DB) *Store {
	return &Store{d: d}
}

func (s *Store) Get(ctx context.Context, id string) (*types.ResourceLock, error) {
	var l *types.ResourceLock
	err := s.d.Do(ctx, func(tx *sql.Tx) error {
		var err error
		l, err = s.d.GetResourceLock(tx, id)
		return errors.WithStack(err)
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return l, nil
}

func (s *Store) ListByOwner(ctx context.Context, ownerID string) ([]*types.ResourceLock, error) {
	var ls []*types.ResourceLock
	err := s.d.Do(ctx, func(tx *sql.Tx) error {
		var err error
		ls, err = s.d.GetResourceLocksByOwner(tx, ownerID)
		return errors.WithStack(err)
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return ls, nil
}

// Do executes f in a single transaction attempt. Serialization failures,
// locked databases and stale revisions are reported as
// resourcelock.ErrConflict.
func (s *Store) Do(ctx context.Context, f func(tx resourcelock.Tx) error) error {
	err := s.d.DoOnce(ctx, func(tx *sql.Tx) error {
		return f(&storeTx{d: s.d, tx: tx})
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, sqlg.ErrConcurrent) || sql.IsConflictError(err) {
		return errors.Wrapf(resourcelock.ErrConflict, "%v", err)
	}

	return errors.WithStack(err)
}

type storeTx struct {
	d  *DB
	tx *sql.Tx
}

func (t *storeTx) Get(id string) (*types.ResourceLock, error) {
	l, err := t.d.GetResourceLock(t.tx, id)
	return l, errors.WithStack(err)
}

func (t *storeTx) Create(l *types.ResourceLock) error {
	l.TxID = t.tx.ID()
	return errors.WithStack(t.d.InsertResourceLock(t.tx, l))
}

func (t *storeTx) Update(l *types.ResourceLock) error {
	return errors.WithStack(t.d.UpdateResourceLock(t.tx, l))
}
