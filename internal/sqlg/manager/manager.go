// Copyright 2019 Sorint.lab
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

package manager

import (
	"context"
	stdsql "database/sql"
	"fmt"
	"sync"
	"time"

	sq "github.com/huandu/go-sqlbuilder"
	"github.com/rs/zerolog"
	"github.com/sorintlab/errors"

	"agola.io/reslock/internal/sqlg"
	"agola.io/reslock/internal/sqlg/lock"
	"agola.io/reslock/internal/sqlg/sql"
)

const (
	DBLockName = "dbupdate"
)

const (
	dbVersionTableName = "dbversion"
)

var (
	dbVersionTableDDLPostgres = fmt.Sprintf("create table if not exists %s (version int not null, time timestamptz not null)", dbVersionTableName)
	dbVersionTableDDLSqlite   = fmt.Sprintf("create table if not exists %s (version int not null, time text not null)", dbVersionTableName)
)

type DB interface {
	DBType() sql.Type
	Version() uint

	Do(ctx context.Context, f func(tx *sql.Tx) error) error

	MigrateFuncs() map[uint]sqlg.MigrateFunc

	DDL() []string
	ObjectsInfo() []sqlg.ObjectInfo
}

type DBManager struct {
	log zerolog.Logger
	d   DB
	lf  lock.LockFactory

	lock lock.Lock
	mu   sync.Mutex
}

func NewDBManager(log zerolog.Logger, d DB, lf lock.LockFactory) *DBManager {
	return &DBManager{log: log, d: d, lf: lf}
}

func (m *DBManager) sqFlavor() sq.Flavor {
	switch m.d.DBType() {
	case sql.Postgres:
		return sq.PostgreSQL
	case sql.Sqlite3:
		return sq.SQLite
	}

	return sq.PostgreSQL
}

func (m *DBManager) exec(tx *sql.Tx, rq sq.Builder) (stdsql.Result, error) {
	q, args := rq.BuildWithFlavor(m.sqFlavor())

	r, err := tx.Exec(q, args...)
	return r, errors.WithStack(err)
}

func (m *DBManager) Lock(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lock != nil {
		return errors.Errorf("lock already held")
	}

	l := m.lf.NewLock(DBLockName)
	if err := l.Lock(ctx); err != nil {
		return errors.Wrap(err, "failed to acquire database lock")
	}

	m.lock = l

	return nil
}

func (m *DBManager) Unlock() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lock == nil {
		return errors.Errorf("no lock")
	}

	err := m.lock.Unlock()
	m.lock = nil

	return errors.WithStack(err)
}

func (m *DBManager) WantedVersion() uint {
	return m.d.Version()
}

func (m *DBManager) DDL() []string {
	return m.d.DDL()
}

func (m *DBManager) GetVersion(ctx context.Context) (uint, error) {
	var curVersion uint
	err := m.d.Do(ctx, func(tx *sql.Tx) error {
		var err error
		curVersion, err = m.getVersion(tx)
		if err != nil {
			return errors.WithStack(err)
		}

		return nil
	})
	if err != nil {
		return 0, errors.WithStack(err)
	}

	return curVersion, nil
}

func (m *DBManager) getVersion(tx *sql.Tx) (uint, error) {
	var curVersion *uint
	s := sq.NewSelectBuilder()
	q, args := s.Select("max(version)").From(dbVersionTableName).Build()
	if err := tx.QueryRow(q, args...).Scan(&curVersion); err != nil {
		return 0, errors.Wrapf(err, "cannot get current %s version", dbVersionTableName)
	}

	if curVersion == nil {
		return 0, nil
	}

	return *curVersion, nil
}

func (m *DBManager) CheckVersion(curVersion, wantedVersion uint) error {
	if curVersion > wantedVersion {
		return errors.Errorf("current db schema version %d is greater than the supported db schema version %d", curVersion, wantedVersion)
	}

	return nil
}

func (m *DBManager) CheckMigrationRequired(curVersion, wantedVersion uint) (bool, error) {
	if err := m.CheckVersion(curVersion, wantedVersion); err != nil {
		return false, errors.WithStack(err)
	}

	return curVersion < wantedVersion, nil
}

func (m *DBManager) setVersion(tx *sql.Tx, version uint) error {
	q := sq.NewInsertBuilder()
	q.InsertInto(dbVersionTableName).Cols("version", "time").Values(version, time.Now())
	if _, err := m.exec(tx, q); err != nil {
		return errors.Wrapf(err, "failed to update %s table", dbVersionTableName)
	}

	return nil
}

func (m *DBManager) Drop(ctx context.Context) error {
	err := m.d.Do(ctx, func(tx *sql.Tx) error {
		tables := []string{}
		for _, oi := range m.d.ObjectsInfo() {
			tables = append(tables, oi.Table)
		}
		tables = append(tables, dbVersionTableName)

		for _, table := range tables {
			stmt := fmt.Sprintf("drop table if exists %s", table)
			if m.d.DBType() == sql.Postgres {
				stmt += " cascade"
			}
			if _, err := tx.Exec(stmt); err != nil {
				return errors.Wrapf(err, "failed to drop table %s", table)
			}
		}

		return nil
	})

	return errors.WithStack(err)
}

func (m *DBManager) Setup(ctx context.Context) error {
	var dbVersionTableDDL string
	switch m.d.DBType() {
	case sql.Postgres:
		dbVersionTableDDL = dbVersionTableDDLPostgres
	case sql.Sqlite3:
		dbVersionTableDDL = dbVersionTableDDLSqlite
	}

	err := m.d.Do(ctx, func(tx *sql.Tx) error {
		if _, err := tx.Exec(dbVersionTableDDL); err != nil {
			return errors.Wrapf(err, "failed to create %s table", dbVersionTableName)
		}

		return nil
	})

	return errors.WithStack(err)
}
