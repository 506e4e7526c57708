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
	"github.com/sorintlab/errors"

	"agola.io/reslock/internal/sqlg"
	"agola.io/reslock/internal/sqlg/sql"
)

func (d *DB) MigrateFuncs() map[uint]sqlg.MigrateFunc {
	return map[uint]sqlg.MigrateFunc{
		2: d.migrateV2,
	}
}

// migrateV2 adds the index used to list the locks held by an owner.
func (d *DB) migrateV2(tx *sql.Tx) error {
	var ddlPostgres = []string{
		"create index if not exists resourcelock_owner_id_idx on resourcelock(owner_id)",
	}

	var ddlSqlite3 = []string{
		"create index if not exists resourcelock_owner_id_idx on resourcelock(owner_id)",
	}

	var stmts []string
	switch d.sdb.Type() {
	case sql.Postgres:
		stmts = ddlPostgres
	case sql.Sqlite3:
		stmts = ddlSqlite3
	}

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return errors.WithStack(err)
		}
	}

	return nil
}
