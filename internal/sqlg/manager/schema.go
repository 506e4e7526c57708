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

package manager

import (
	"context"

	"github.com/sorintlab/errors"

	"agola.io/reslock/internal/sqlg"
	"agola.io/reslock/internal/sqlg/sql"
)

type migrationStep struct {
	version uint
	f       sqlg.MigrateFunc
}

// Create populates an empty db executing stmts and records version as the
// current schema version.
func (m *DBManager) Create(ctx context.Context, stmts []string, version uint) error {
	if err := m.CheckVersion(version, m.WantedVersion()); err != nil {
		return errors.WithStack(err)
	}

	err := m.d.Do(ctx, func(tx *sql.Tx) error {
		curVersion, err := m.getVersion(tx)
		if err != nil {
			return errors.WithStack(err)
		}
		if curVersion != 0 {
			return errors.Errorf("db already populated at version %d", curVersion)
		}

		m.log.Info().Msgf("creating db schema at version %d", version)
		for _, stmt := range stmts {
			if _, err := tx.Exec(stmt); err != nil {
				return errors.Wrapf(err, "failed to execute statement %q", stmt)
			}
		}

		return errors.WithStack(m.setVersion(tx, version))
	})

	return errors.WithStack(err)
}

// migrationSteps returns the ordered migrations needed to move the schema from
// curVersion to wantedVersion.
func (m *DBManager) migrationSteps(curVersion, wantedVersion uint) ([]migrationStep, error) {
	if err := m.CheckVersion(curVersion, wantedVersion); err != nil {
		return nil, errors.WithStack(err)
	}

	migrateFuncs := m.d.MigrateFuncs()

	var steps []migrationStep
	for v := curVersion + 1; v <= wantedVersion; v++ {
		f, ok := migrateFuncs[v]
		if !ok {
			return nil, errors.Errorf("missing migrate function to version %d", v)
		}
		steps = append(steps, migrationStep{version: v, f: f})
	}

	return steps, nil
}

// Migrate brings the db schema to the wanted version. Every migration step
// runs in its own transaction so a failed step leaves the db at the previous
// version.
func (m *DBManager) Migrate(ctx context.Context) error {
	curVersion, err := m.GetVersion(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	steps, err := m.migrationSteps(curVersion, m.WantedVersion())
	if err != nil {
		return errors.WithStack(err)
	}

	for _, step := range steps {
		m.log.Info().Msgf("migrating db schema from version %d to version %d", step.version-1, step.version)

		err := m.d.Do(ctx, func(tx *sql.Tx) error {
			if err := step.f(tx); err != nil {
				return errors.Wrapf(err, "failed to migrate to version %d", step.version)
			}

			return errors.WithStack(m.setVersion(tx, step.version))
		})
		if err != nil {
			return errors.WithStack(err)
		}
	}

	return nil
}
