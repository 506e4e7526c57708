package common

import (
	"context"

	"github.com/sorintlab/errors"

	"agola.io/reslock/internal/sqlg/manager"
)

// SetupDB creates the db schema at the wanted version when the db is empty.
// An existing db at an older version is migrated only when migrate is true.
func SetupDB(ctx context.Context, dbm *manager.DBManager, migrate bool) error {
	wantedVersion := dbm.WantedVersion()

	if err := dbm.Lock(ctx); err != nil {
		return errors.WithStack(err)
	}
	defer func() { _ = dbm.Unlock() }()

	if err := dbm.Setup(ctx); err != nil {
		return errors.Wrap(err, "setup db error")
	}

	curDBVersion, err := dbm.GetVersion(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	if err := dbm.CheckVersion(curDBVersion, wantedVersion); err != nil {
		return errors.WithStack(err)
	}

	if curDBVersion == 0 {
		if err := dbm.Create(ctx, dbm.DDL(), wantedVersion); err != nil {
			return errors.Wrap(err, "create db error")
		}
		return nil
	}

	migrationRequired, err := dbm.CheckMigrationRequired(curDBVersion, wantedVersion)
	if err != nil {
		return errors.WithStack(err)
	}
	if !migrationRequired {
		return nil
	}
	if !migrate {
		return errors.Errorf("db requires migration, current version: %d, wanted version: %d", curDBVersion, wantedVersion)
	}

	if err := dbm.Migrate(ctx); err != nil {
		return errors.Wrap(err, "migrate db error")
	}

	return nil
}
