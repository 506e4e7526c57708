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

package lock

import (
	"context"
	stdsql "database/sql"
	"hash/fnv"

	"github.com/sorintlab/errors"

	"agola.io/reslock/internal/sqlg/sql"
)

type PGLockFactory struct {
	db *sql.DB
}

func NewPGLockFactory(db *sql.DB) *PGLockFactory {
	return &PGLockFactory{db: db}
}

func (l *PGLockFactory) NewLock(key string) Lock {
	return NewPGLock(l.db, key)
}

// PGLock is a session level postgres advisory lock. The connection is kept
// out of the pool until Unlock.
type PGLock struct {
	db  *sql.DB
	key int64
	c   *stdsql.Conn
}

func NewPGLock(db *sql.DB, key string) *PGLock {
	return &PGLock{db: db, key: hash(key)}
}

func (l *PGLock) Lock(ctx context.Context) error {
	if l.c != nil {
		panic("db connection isn't nil")
	}
	c, err := l.db.Conn(ctx)
	if err != nil {
		return errors.WithStack(err)
	}
	if _, err := c.ExecContext(ctx, "select pg_advisory_lock($1)", l.key); err != nil {
		c.Close()
		return errors.WithStack(err)
	}
	l.c = c
	return nil
}

func (l *PGLock) TryLock(ctx context.Context) error {
	if l.c != nil {
		panic("db connection isn't nil")
	}
	c, err := l.db.Conn(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	var ok bool
	if err := c.QueryRowContext(ctx, "select pg_try_advisory_lock($1)", l.key).Scan(&ok); err != nil {
		c.Close()
		return errors.Wrap(err, "failed to scan rows")
	}

	if !ok {
		c.Close()
		return ErrLocked
	}

	l.c = c
	return nil
}

func (l *PGLock) Unlock() error {
	if l.c == nil {
		panic("db connection is nil")
	}
	_, _ = l.c.ExecContext(context.Background(), "select pg_advisory_unlock($1)", l.key)
	_ = l.c.Close()
	l.c = nil
	return nil
}

func hash(s string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return int64(h.Sum64())
}
