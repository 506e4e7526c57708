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

	"github.com/sorintlab/errors"

	"agola.io/reslock/services/resourcelock/types"
)

// ErrConflict is returned by a store when a transaction couldn't be committed
// because another transaction changed the same resource lock.
var ErrConflict = errors.New("resource lock commit conflict")

// Store is the transactional storage of resource locks.
type Store interface {
	// Get reads the resource lock outside of any transaction. It returns nil
	// if the resource lock doesn't exist.
	Get(ctx context.Context, id string) (*types.ResourceLock, error)

	// Do executes f inside a single transaction, committing it when f
	// returns nil. A transaction that lost a race with another one returns
	// an error matching ErrConflict.
	Do(ctx context.Context, f func(tx Tx) error) error
}

// Tx provides access to resource locks inside a store transaction.
type Tx interface {
	// Get returns nil if the resource lock doesn't exist.
	Get(id string) (*types.ResourceLock, error)
	Create(l *types.ResourceLock) error
	Update(l *types.ResourceLock) error
}

// OwnerLister is implemented by stores able to list the resource locks held
// by an owner.
type OwnerLister interface {
	// ListByOwner returns the locked resource locks of ownerID ordered by id.
	ListByOwner(ctx context.Context, ownerID string) ([]*types.ResourceLock, error)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
