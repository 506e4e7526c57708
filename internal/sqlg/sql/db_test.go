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

package sql_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/sorintlab/errors"
	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"

	"agola.io/reslock/internal/sqlg/sql"
	"agola.io/reslock/internal/testutil"
)

func fetchEntries(tx *sql.Tx) ([]string, error) {
	rows, err := tx.Query("select id from table01")
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer rows.Close()

	entries := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "failed to scan rows")
		}
		entries = append(entries, id)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WithStack(err)
	}

	return entries, nil
}

// TestPGSerializationError tests that db handles serialization errors by retrying the transaction n times and ensure that the result is the expected one
func TestPGSerializationError(t *testing.T) {
	if testutil.DBType(t) != sql.Postgres {
		t.Skip("DB_TYPE isn't postgres")
	}

	ctx := context.Background()
	log := testutil.NewLogger(t)

	sdb, _, _ := testutil.CreateDB(t, log, ctx, t.TempDir())
	defer sdb.Close()

	_, err := sdb.ExecContext(ctx, "create table if not exists table01 (id varchar, data varchar, PRIMARY KEY (id))")
	testutil.NilError(t, err)

	var mu sync.Mutex
	txErrors := []error{}

	// start a transaction, wait on channel to start, get all entries and add an entry only if there're no entries.
	insertEntryFn := func(txCount *uint32, ch chan struct{}) error {
		err := sdb.Do(ctx, func(tx *sql.Tx) error {
			atomic.AddUint32(txCount, 1)

			<-ch
			entries, err := fetchEntries(tx)
			if err != nil {
				return errors.WithStack(err)
			}

			if len(entries) != 0 {
				return nil
			}

			if _, err := tx.Exec(`insert into table01 values ('01', 'data')`); err != nil {
				return errors.WithStack(err)
			}

			return nil
		})
		return errors.WithStack(err)
	}

	// start two goroutines executing the transaction. One should fail at least
	// one time due to serialization error
	n := 2
	var wg sync.WaitGroup
	wg.Add(n)
	var txCount uint32

	ch := make(chan struct{})
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			if err := insertEntryFn(&txCount, ch); err != nil {
				mu.Lock()
				txErrors = append(txErrors, err)
				mu.Unlock()
			}
		}()
	}

	close(ch)

	wg.Wait()
	assert.Assert(t, cmp.Len(txErrors, 0))

	var entries []string
	err = sdb.Do(ctx, func(tx *sql.Tx) error {
		var err error
		entries, err = fetchEntries(tx)
		return errors.WithStack(err)
	})
	testutil.NilError(t, err)

	assert.Assert(t, cmp.Len(entries, 1))

	// there must be at least one retried tx, so at least n + 1 transactions
	assert.Assert(t, txCount >= uint32(n))
}

// TestSqlite3DoOnceConflict checks that a write transaction started while
// another one is open isn't retried and is reported as a conflict.
func TestSqlite3DoOnceConflict(t *testing.T) {
	if testutil.DBType(t) != sql.Sqlite3 {
		t.Skip("DB_TYPE isn't sqlite3")
	}

	ctx := context.Background()
	log := testutil.NewLogger(t)

	sdb, _, _ := testutil.CreateDB(t, log, ctx, t.TempDir())
	defer sdb.Close()

	_, err := sdb.ExecContext(ctx, "create table if not exists table01 (id varchar, data varchar, PRIMARY KEY (id))")
	testutil.NilError(t, err)

	tx, err := sdb.NewTx(ctx)
	testutil.NilError(t, err)

	_, err = tx.Exec(`insert into table01 values ('01', 'data')`)
	testutil.NilError(t, err)

	var called bool
	err = sdb.DoOnce(ctx, func(tx *sql.Tx) error {
		called = true
		return nil
	})
	assert.Assert(t, err != nil)
	assert.Assert(t, sql.IsConflictError(err), "unexpected error: %v", err)
	assert.Assert(t, !called)

	testutil.NilError(t, tx.Commit())

	var entries []string
	err = sdb.DoOnce(ctx, func(tx *sql.Tx) error {
		var err error
		entries, err = fetchEntries(tx)
		return errors.WithStack(err)
	})
	testutil.NilError(t, err)
	assert.DeepEqual(t, entries, []string{"01"})
}

func TestIsConflictError(t *testing.T) {
	assert.Assert(t, !sql.IsConflictError(nil))
	assert.Assert(t, !sql.IsConflictError(errors.New("some error")))
}
