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

package reslock

import (
	"context"
	"os"
	"path/filepath"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/sorintlab/errors"

	"agola.io/reslock/internal/services/common"
	"agola.io/reslock/internal/services/config"
	"agola.io/reslock/internal/services/resourcelock"
	"agola.io/reslock/internal/services/resourcelock/db"
	"agola.io/reslock/internal/services/resourcelock/redis"
	"agola.io/reslock/internal/sqlg/lock"
	"agola.io/reslock/internal/sqlg/manager"
	"agola.io/reslock/internal/sqlg/sql"
)

const defaultDBName = "reslock.db"

// ResLock owns the resource lock store connections and the coordinator using
// them.
type ResLock struct {
	log zerolog.Logger
	c   *config.ResourceLock

	sdb   *sql.DB
	rdb   *goredis.Client
	store resourcelock.Store

	Coordinator *resourcelock.Coordinator
}

func NewResLock(ctx context.Context, log zerolog.Logger, c *config.ResourceLock) (*ResLock, error) {
	if c.Debug {
		log = log.Level(zerolog.DebugLevel)
	}

	s := &ResLock{
		log: log,
		c:   c,
	}

	switch c.Store.Type {
	case config.StoreTypeSQL:
		if err := s.setupSQLStore(ctx); err != nil {
			s.Close()
			return nil, errors.WithStack(err)
		}
	case config.StoreTypeRedis:
		if err := s.setupRedisStore(ctx); err != nil {
			s.Close()
			return nil, errors.WithStack(err)
		}
	default:
		return nil, errors.Errorf("unknown store type %q", c.Store.Type)
	}

	s.Coordinator = resourcelock.NewCoordinator(log, s.store, c)

	return s, nil
}

func (s *ResLock) setupSQLStore(ctx context.Context) error {
	dbConf := s.c.Store.DB
	connString := dbConf.ConnString
	if connString == "" && dbConf.Type == sql.Sqlite3 {
		if err := os.MkdirAll(s.c.DataDir, 0770); err != nil {
			return errors.Wrapf(err, "failed to create data dir %q", s.c.DataDir)
		}
		connString = filepath.Join(s.c.DataDir, defaultDBName)
	}

	sdb, err := sql.NewDB(dbConf.Type, connString)
	if err != nil {
		return errors.Wrapf(err, "new db error")
	}
	s.sdb = sdb

	d, err := db.NewDB(s.log, sdb)
	if err != nil {
		return errors.Wrapf(err, "new db error")
	}

	var lf lock.LockFactory
	switch dbConf.Type {
	case sql.Sqlite3:
		ll := lock.NewLocalLocks()
		lf = lock.NewLocalLockFactory(ll)
	case sql.Postgres:
		lf = lock.NewPGLockFactory(sdb)
	default:
		return errors.Errorf("unknown db type %q", dbConf.Type)
	}

	dbm := manager.NewDBManager(s.log, d, lf)
	if err := common.SetupDB(ctx, dbm, true); err != nil {
		return errors.Wrapf(err, "failed to setup db")
	}

	s.store = db.NewStore(d)

	return nil
}

func (s *ResLock) setupRedisStore(ctx context.Context) error {
	rc := s.c.Store.Redis

	s.rdb = goredis.NewClient(&goredis.Options{
		Addr:     rc.Address,
		Username: rc.Username,
		Password: rc.Password,
		DB:       rc.DB,
	})

	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return errors.Wrapf(err, "failed to connect to redis at %q", rc.Address)
	}

	s.store = redis.NewStore(s.rdb, rc.KeyPrefix)

	return nil
}

func (s *ResLock) Close() {
	if s.sdb != nil {
		if err := s.sdb.Close(); err != nil {
			s.log.Err(err).Msgf("failed to close db")
		}
	}
	if s.rdb != nil {
		if err := s.rdb.Close(); err != nil {
			s.log.Err(err).Msgf("failed to close redis client")
		}
	}
}
