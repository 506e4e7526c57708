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
	stdsql "database/sql"
	"time"

	sq "github.com/huandu/go-sqlbuilder"
	"github.com/rs/zerolog"
	"github.com/sorintlab/errors"

	"agola.io/reslock/internal/services/resourcelock/db/objects"
	"agola.io/reslock/internal/sqlg"
	"agola.io/reslock/internal/sqlg/sql"
	"agola.io/reslock/internal/util"
	"agola.io/reslock/services/resourcelock/types"
)

var (
	resourceLockSelectColumns = []string{"resourcelock.id", "resourcelock.revision", "resourcelock.creation_time", "resourcelock.update_time", "resourcelock.state", "resourcelock.owner_id", "resourcelock.operation"}

	resourceLockSelect = func() *sq.SelectBuilder {
		return sq.NewSelectBuilder().Select(resourceLockSelectColumns...).From("resourcelock")
	}
)

type DB struct {
	log zerolog.Logger
	sdb *sql.DB
}

func NewDB(log zerolog.Logger, sdb *sql.DB) (*DB, error) {
	return &DB{
		log: log,
		sdb: sdb,
	}, nil
}

func (d *DB) DBType() sql.Type {
	return d.sdb.Type()
}

func (d *DB) Version() uint {
	return objects.Version
}

func (d *DB) DDL() []string {
	switch d.DBType() {
	case sql.Postgres:
		return ddlPostgres
	case sql.Sqlite3:
		return ddlSqlite3
	}

	return nil
}

// Do executes f inside a transaction retrying it on serialization errors.
func (d *DB) Do(ctx context.Context, f func(tx *sql.Tx) error) error {
	return errors.WithStack(d.sdb.Do(ctx, f))
}

// DoOnce executes f inside a transaction without retrying it.
func (d *DB) DoOnce(ctx context.Context, f func(tx *sql.Tx) error) error {
	return errors.WithStack(d.sdb.DoOnce(ctx, f))
}

func (d *DB) ObjectsInfo() []sqlg.ObjectInfo {
	return objects.ObjectsInfo
}

func (d *DB) Flavor() sq.Flavor {
	switch d.sdb.Type() {
	case sql.Postgres:
		return sq.PostgreSQL
	case sql.Sqlite3:
		return sq.SQLite
	}

	return sq.PostgreSQL
}

func (d *DB) exec(tx *sql.Tx, rq sq.Builder) (stdsql.Result, error) {
	q, args := rq.BuildWithFlavor(d.Flavor())
	d.log.Trace().Msgf("q: %s, args: %s", q, util.Dump(args))

	r, err := tx.Exec(q, args...)
	return r, errors.WithStack(err)
}

func (d *DB) query(tx *sql.Tx, rq sq.Builder) (*stdsql.Rows, error) {
	q, args := rq.BuildWithFlavor(d.Flavor())
	d.log.Trace().Msgf("q: %s, args: %s", q, util.Dump(args))

	r, err := tx.Query(q, args...)
	return r, errors.WithStack(err)
}

func mustSingleRow[T any](s []*T) (*T, error) {
	if len(s) > 1 {
		return nil, errors.Errorf("too many rows returned")
	}
	if len(s) == 0 {
		return nil, nil
	}

	return s[0], nil
}

func (d *DB) GetResourceLock(tx *sql.Tx, resourceLockID string) (*types.ResourceLock, error) {
	q := resourceLockSelect()
	q.Where(q.E("id", resourceLockID))
	resourceLocks, err := d.fetchResourceLocks(tx, q)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	out, err := mustSingleRow(resourceLocks)
	return out, errors.WithStack(err)
}

// GetResourceLocksByOwner returns the resource locks currently held by
// ownerID ordered by id.
func (d *DB) GetResourceLocksByOwner(tx *sql.Tx, ownerID string) ([]*types.ResourceLock, error) {
	q := resourceLockSelect().OrderBy("id").Asc()
	q.Where(q.E("owner_id", ownerID), q.E("state", types.ResourceLockStateLocked))

	resourceLocks, err := d.fetchResourceLocks(tx, q)
	return resourceLocks, errors.WithStack(err)
}

func (d *DB) fetchResourceLocks(tx *sql.Tx, q sq.Builder) ([]*types.ResourceLock, error) {
	rows, err := d.query(tx, q)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer rows.Close()

	resourceLocks := []*types.ResourceLock{}
	for rows.Next() {
		v := &types.ResourceLock{}
		var state string
		if err := rows.Scan(&v.ID, &v.Revision, &v.CreationTime, &v.UpdateTime, &state, &v.OwnerID, &v.Operation); err != nil {
			return nil, errors.Wrap(err, "failed to scan rows")
		}
		v.State = types.ResourceLockState(state)
		v.TxID = tx.ID()

		resourceLocks = append(resourceLocks, v)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WithStack(err)
	}

	return resourceLocks, nil
}

func (d *DB) InsertResourceLock(tx *sql.Tx, v *types.ResourceLock) error {
	if v.Revision != 0 {
		return errors.Errorf("expected revision 0 got %d", v.Revision)
	}

	if v.TxID != tx.ID() {
		return errors.Errorf("object was not created by this transaction")
	}

	if !v.State.IsValid() {
		return errors.Errorf("invalid resource lock state %q", v.State)
	}

	v.Revision = 1

	now := time.Now()
	v.CreationTime = now
	v.UpdateTime = now

	q := sq.NewInsertBuilder()
	q.InsertInto("resourcelock").Cols("id", "revision", "creation_time", "update_time", "state", "owner_id", "operation").Values(v.ID, v.Revision, v.CreationTime, v.UpdateTime, string(v.State), v.OwnerID, v.Operation)

	if _, err := d.exec(tx, q); err != nil {
		v.Revision = 0
		return errors.Wrap(err, "failed to insert resourcelock")
	}

	return nil
}

// UpdateResourceLock replaces the resource lock state, owner and operation.
// It returns sqlg.ErrConcurrent when the resource lock revision in the
// database isn't the fetched one.
func (d *DB) UpdateResourceLock(tx *sql.Tx, v *types.ResourceLock) error {
	if v.Revision < 1 {
		return errors.Errorf("expected revision > 0 got %d", v.Revision)
	}

	if v.TxID != tx.ID() {
		return errors.Errorf("object was not fetched by this transaction")
	}

	if !v.State.IsValid() {
		return errors.Errorf("invalid resource lock state %q", v.State)
	}

	curRevision := v.Revision
	v.Revision++

	v.UpdateTime = time.Now()

	q := sq.NewUpdateBuilder()
	q.Update("resourcelock").Set(
		q.Assign("revision", v.Revision),
		q.Assign("update_time", v.UpdateTime),
		q.Assign("state", string(v.State)),
		q.Assign("owner_id", v.OwnerID),
		q.Assign("operation", v.Operation),
	).Where(q.E("id", v.ID), q.E("revision", curRevision))

	res, err := d.exec(tx, q)
	if err != nil {
		v.Revision = curRevision
		return errors.Wrap(err, "failed to update resourcelock")
	}

	rows, err := res.RowsAffected()
	if err != nil {
		v.Revision = curRevision
		return errors.Wrap(err, "failed to update resourcelock")
	}

	if rows != 1 {
		v.Revision = curRevision
		return sqlg.ErrConcurrent
	}

	return nil
}
