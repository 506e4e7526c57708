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
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/rs/zerolog"
	"github.com/sorintlab/errors"
	"gotest.tools/v3/assert"

	"agola.io/reslock/internal/services/common"
	"agola.io/reslock/internal/services/resourcelock"
	"agola.io/reslock/internal/sqlg"
	"agola.io/reslock/internal/sqlg/manager"
	"agola.io/reslock/internal/sqlg/sql"
	"agola.io/reslock/internal/testutil"
	"agola.io/reslock/services/resourcelock/types"
)

var ddlV1Postgres = []string{
	"create table if not exists resourcelock (id varchar NOT NULL, revision bigint NOT NULL, creation_time timestamptz NOT NULL, update_time timestamptz NOT NULL, state varchar NOT NULL, owner_id varchar, operation varchar, PRIMARY KEY (id))",
}

var ddlV1Sqlite3 = []string{
	"create table if not exists resourcelock (id varchar NOT NULL, revision bigint NOT NULL, creation_time timestamp NOT NULL, update_time timestamp NOT NULL, state varchar NOT NULL, owner_id varchar, operation varchar, PRIMARY KEY (id))",
}

func setupDB(t *testing.T, log zerolog.Logger, ctx context.Context) (*DB, *manager.DBManager) {
	sdb, lf, _ := testutil.CreateDB(t, log, ctx, t.TempDir())

	d, err := NewDB(log, sdb)
	testutil.NilError(t, err, "new db error")

	dbm := manager.NewDBManager(log, d, lf)

	return d, dbm
}

func newTestDB(t *testing.T, log zerolog.Logger, ctx context.Context) *DB {
	d, dbm := setupDB(t, log, ctx)

	err := common.SetupDB(ctx, dbm, false)
	testutil.NilError(t, err, "setup db error")

	return d
}

func TestInsertUpdateResourceLock(t *testing.T) {
	ctx := context.Background()
	log := testutil.NewLogger(t)

	d := newTestDB(t, log, ctx)

	var inserted *types.ResourceLock
	err := d.Do(ctx, func(tx *sql.Tx) error {
		l := types.NewResourceLock(sqlg.NewObjectMeta(tx, "resource01"))
		l.SetLocked("owner01", "CREATE")
		if err := d.InsertResourceLock(tx, l); err != nil {
			return errors.WithStack(err)
		}
		inserted = l

		return nil
	})
	testutil.NilError(t, err)
	assert.Equal(t, inserted.Revision, uint64(1))

	var l *types.ResourceLock
	err = d.Do(ctx, func(tx *sql.Tx) error {
		var err error
		l, err = d.GetResourceLock(tx, "resource01")
		return errors.WithStack(err)
	})
	testutil.NilError(t, err)

	// postgres has microsecond time precision
	assert.DeepEqual(t, l, inserted, cmpopts.IgnoreFields(sqlg.ObjectMeta{}, "TxID"), cmpopts.EquateApproxTime(time.Microsecond))

	err = d.Do(ctx, func(tx *sql.Tx) error {
		l, err := d.GetResourceLock(tx, "resource01")
		if err != nil {
			return errors.WithStack(err)
		}
		l.SetUnlocked()

		return errors.WithStack(d.UpdateResourceLock(tx, l))
	})
	testutil.NilError(t, err)

	err = d.Do(ctx, func(tx *sql.Tx) error {
		var err error
		l, err = d.GetResourceLock(tx, "resource01")
		return errors.WithStack(err)
	})
	testutil.NilError(t, err)

	assert.Equal(t, l.Revision, uint64(2))
	assert.Equal(t, l.State, types.ResourceLockStateUnlocked)
	assert.Assert(t, l.OwnerID == nil)
	assert.Assert(t, l.Operation == nil)
}

func TestUpdateResourceLockConcurrent(t *testing.T) {
	ctx := context.Background()
	log := testutil.NewLogger(t)

	d := newTestDB(t, log, ctx)

	err := d.Do(ctx, func(tx *sql.Tx) error {
		l := types.NewResourceLock(sqlg.NewObjectMeta(tx, "resource01"))
		return errors.WithStack(d.InsertResourceLock(tx, l))
	})
	testutil.NilError(t, err)

	err = d.Do(ctx, func(tx *sql.Tx) error {
		l, err := d.GetResourceLock(tx, "resource01")
		if err != nil {
			return errors.WithStack(err)
		}

		// simulate an update done by another transaction after the fetch
		l.Revision++
		l.SetLocked("owner01", "CREATE")

		return errors.WithStack(d.UpdateResourceLock(tx, l))
	})
	assert.Assert(t, errors.Is(err, sqlg.ErrConcurrent), "unexpected error: %v", err)

	var l *types.ResourceLock
	err = d.Do(ctx, func(tx *sql.Tx) error {
		var err error
		l, err = d.GetResourceLock(tx, "resource01")
		return errors.WithStack(err)
	})
	testutil.NilError(t, err)
	assert.Equal(t, l.Revision, uint64(1))
	assert.Assert(t, !l.IsLocked())
}

func TestUpdateResourceLockNotFetched(t *testing.T) {
	ctx := context.Background()
	log := testutil.NewLogger(t)

	d := newTestDB(t, log, ctx)

	var l *types.ResourceLock
	err := d.Do(ctx, func(tx *sql.Tx) error {
		l = types.NewResourceLock(sqlg.NewObjectMeta(tx, "resource01"))
		return errors.WithStack(d.InsertResourceLock(tx, l))
	})
	testutil.NilError(t, err)

	err = d.Do(ctx, func(tx *sql.Tx) error {
		l.SetLocked("owner01", "CREATE")
		return errors.WithStack(d.UpdateResourceLock(tx, l))
	})
	assert.ErrorContains(t, err, "object was not fetched by this transaction")
}

func TestGetResourceLocksByOwner(t *testing.T) {
	ctx := context.Background()
	log := testutil.NewLogger(t)

	d := newTestDB(t, log, ctx)

	locks := []struct {
		id      string
		ownerID string
	}{
		{id: "resource03", ownerID: "owner01"},
		{id: "resource01", ownerID: "owner01"},
		{id: "resource02", ownerID: "owner02"},
		{id: "resource04"},
	}

	err := d.Do(ctx, func(tx *sql.Tx) error {
		for _, rl := range locks {
			l := types.NewResourceLock(sqlg.NewObjectMeta(tx, rl.id))
			if rl.ownerID != "" {
				l.SetLocked(rl.ownerID, "CREATE")
			}
			if err := d.InsertResourceLock(tx, l); err != nil {
				return errors.WithStack(err)
			}
		}

		return nil
	})
	testutil.NilError(t, err)

	var ids []string
	err = d.Do(ctx, func(tx *sql.Tx) error {
		ls, err := d.GetResourceLocksByOwner(tx, "owner01")
		if err != nil {
			return errors.WithStack(err)
		}
		for _, l := range ls {
			ids = append(ids, l.ID)
		}

		return nil
	})
	testutil.NilError(t, err)

	if diff := cmp.Diff([]string{"resource01", "resource03"}, ids); diff != "" {
		t.Fatalf("unexpected resource locks (-want +got):\n%s", diff)
	}
}

func TestMigrate(t *testing.T) {
	ctx := context.Background()
	log := testutil.NewLogger(t)

	d, dbm := setupDB(t, log, ctx)

	err := dbm.Setup(ctx)
	testutil.NilError(t, err)

	var stmts []string
	switch d.DBType() {
	case sql.Postgres:
		stmts = ddlV1Postgres
	case sql.Sqlite3:
		stmts = ddlV1Sqlite3
	}

	err = dbm.Create(ctx, stmts, 1)
	testutil.NilError(t, err)

	err = common.SetupDB(ctx, dbm, false)
	assert.ErrorContains(t, err, "db requires migration, current version: 1, wanted version: 2")

	err = common.SetupDB(ctx, dbm, true)
	testutil.NilError(t, err)

	version, err := dbm.GetVersion(ctx)
	testutil.NilError(t, err)
	assert.Equal(t, version, uint(2))

	// an already migrated db is left as is
	err = common.SetupDB(ctx, dbm, false)
	testutil.NilError(t, err)
}

func TestStoreConflict(t *testing.T) {
	ctx := context.Background()
	log := testutil.NewLogger(t)

	d := newTestDB(t, log, ctx)
	s := NewStore(d)

	err := s.Do(ctx, func(tx resourcelock.Tx) error {
		l := types.NewResourceLock(sqlg.ObjectMeta{ID: "resource01"})
		l.SetLocked("owner01", "CREATE")
		return errors.WithStack(tx.Create(l))
	})
	testutil.NilError(t, err)

	// a stale revision is reported as a conflict
	err = s.Do(ctx, func(tx resourcelock.Tx) error {
		l, err := tx.Get("resource01")
		if err != nil {
			return errors.WithStack(err)
		}
		l.Revision++
		l.SetUnlocked()

		return errors.WithStack(tx.Update(l))
	})
	assert.Assert(t, resourcelock.IsConflict(err), "unexpected error: %v", err)

	// creating an already existing resource lock is reported as a conflict
	err = s.Do(ctx, func(tx resourcelock.Tx) error {
		l := types.NewResourceLock(sqlg.ObjectMeta{ID: "resource01"})
		l.SetLocked("owner02", "CREATE")
		return errors.WithStack(tx.Create(l))
	})
	assert.Assert(t, resourcelock.IsConflict(err), "unexpected error: %v", err)

	l, err := s.Get(ctx, "resource01")
	testutil.NilError(t, err)
	assert.Equal(t, l.Owner(), "owner01")

	l, err = s.Get(ctx, "resource02")
	testutil.NilError(t, err)
	assert.Assert(t, l == nil)
}
