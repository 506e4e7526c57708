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

package sqlg

import (
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/sorintlab/errors"

	"agola.io/reslock/internal/sqlg/sql"
)

// ErrConcurrent is returned when an update didn't match the fetched revision
// since another transaction changed the object in the meantime.
var ErrConcurrent = errors.New("concurrent update")

type MigrateFunc func(tx *sql.Tx) error

type ObjectInfo struct {
	Name  string
	Table string
}

type ObjectMeta struct {
	// ID is the unique ID of the object.
	ID string `json:"id"`

	// CreationTime represents the time when this object has been created.
	CreationTime time.Time `json:"creationTime"`

	// UpdateTime represents the time when this object has been created/updated.
	UpdateTime time.Time `json:"updateTime"`

	// Revision is the object revision. It's populated by the fetch from the
	// database and checked on every update.
	Revision uint64 `json:"revision"`

	// TxID is the id of the transaction that created or fetched the object.
	TxID string `json:"-"`
}

// NewObjectMeta returns the meta of a new object created inside tx. If id is
// empty a random one is generated.
func NewObjectMeta(tx *sql.Tx, id string) ObjectMeta {
	if id == "" {
		id = uuid.Must(uuid.NewV4()).String()
	}

	return ObjectMeta{
		ID:   id,
		TxID: tx.ID(),
	}
}
