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

package resourcelock

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/sorintlab/errors"

	"agola.io/reslock/internal/services/config"
	"agola.io/reslock/internal/sqlg"
	"agola.io/reslock/internal/util"
	"agola.io/reslock/services/resourcelock/types"
)

type UnlockResult int

const (
	UnlockResultUnlocked UnlockResult = 0
	UnlockResultNoop     UnlockResult = 1
)

func (r UnlockResult) String() string {
	switch r {
	case UnlockResultUnlocked:
		return "unlocked"
	case UnlockResultNoop:
		return "noop"
	}
	return "unknown"
}

// Coordinator provides advisory locks on named resources shared by
// independent processes. Every state transition is executed inside a store
// transaction and no lock state is kept in memory.
type Coordinator struct {
	log   zerolog.Logger
	store Store
	c     config.ResourceLock
}

func NewCoordinator(log zerolog.Logger, store Store, c *config.ResourceLock) *Coordinator {
	rc := config.DefaultResourceLock()
	if c != nil {
		rc = *c
	}

	return &Coordinator{
		log:   log,
		store: store,
		c:     rc,
	}
}

func validateID(name, v string) error {
	if v == "" {
		return util.NewErrInvalidArgument(errors.Errorf("empty %s", name))
	}
	return nil
}

// GetLock returns the current resource lock record or nil if it doesn't exist.
func (c *Coordinator) GetLock(ctx context.Context, id string) (*types.ResourceLock, error) {
	if err := validateID("resource lock id", id); err != nil {
		return nil, errors.WithStack(err)
	}

	l, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get resource lock %q", id)
	}

	return l, nil
}

// IsLocked reports whether the resource is locked. A missing resource lock is
// unlocked. The result is only a hint since it can be changed by another
// owner right after it's read.
func (c *Coordinator) IsLocked(ctx context.Context, id string) (bool, error) {
	l, err := c.GetLock(ctx, id)
	if err != nil {
		return false, errors.WithStack(err)
	}

	return l != nil && l.IsLocked(), nil
}

func (c *Coordinator) IsUnlocked(ctx context.Context, id string) (bool, error) {
	locked, err := c.IsLocked(ctx, id)
	if err != nil {
		return false, errors.WithStack(err)
	}

	return !locked, nil
}

// GetOwner returns the owner of the lock or an empty string when the resource
// is unlocked.
func (c *Coordinator) GetOwner(ctx context.Context, id string) (string, error) {
	l, err := c.GetLock(ctx, id)
	if err != nil {
		return "", errors.WithStack(err)
	}
	if l == nil {
		return "", nil
	}

	return l.Owner(), nil
}

// Lock acquires the lock using the default profile timings.
func (c *Coordinator) Lock(ctx context.Context, id, ownerID, operation string) (bool, error) {
	return c.LockWithProfile(ctx, c.c.DefaultProfile, id, ownerID, operation)
}

// LockWithProfile acquires the lock using the timings of the named profile.
func (c *Coordinator) LockWithProfile(ctx context.Context, profile, id, ownerID, operation string) (bool, error) {
	p, ok := c.c.Profiles[profile]
	if !ok {
		return false, util.NewErrInvalidArgument(errors.Errorf("unknown lock profile %q", profile))
	}

	return c.LockResource(ctx, id, ownerID, operation, p.Timeout, p.RetryInterval)
}

// OwnedLocks returns the resource locks held by ownerID ordered by resource
// id.
func (c *Coordinator) OwnedLocks(ctx context.Context, ownerID string) ([]*types.ResourceLock, error) {
	if err := validateID("owner id", ownerID); err != nil {
		return nil, errors.WithStack(err)
	}

	ol, ok := c.store.(OwnerLister)
	if !ok {
		return nil, errors.Errorf("store doesn't support listing resource locks by owner")
	}

	ls, err := ol.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list resource locks of owner %q", ownerID)
	}

	return ls, nil
}

// LockResource tries to acquire the lock on resource id for ownerID until it
// succeeds or the timeout expires, waiting retryInterval between attempts.
// It returns false when the lock wasn't acquired before the deadline or ctx
// was canceled. An owner already holding the lock acquires it again without
// changes.
func (c *Coordinator) LockResource(ctx context.Context, id, ownerID, operation string, timeout, retryInterval time.Duration) (bool, error) {
	if err := validateID("resource lock id", id); err != nil {
		return false, errors.WithStack(err)
	}
	if err := validateID("owner id", ownerID); err != nil {
		return false, errors.WithStack(err)
	}
	if err := validateID("operation", operation); err != nil {
		return false, errors.WithStack(err)
	}
	if timeout < 0 {
		return false, util.NewErrInvalidArgument(errors.Errorf("negative timeout %s", timeout))
	}
	if retryInterval < 0 {
		return false, util.NewErrInvalidArgument(errors.Errorf("negative retry interval %s", retryInterval))
	}

	deadline := time.Now().Add(timeout)
	for {
		if util.ContextCanceled(ctx) {
			return false, nil
		}

		acquired, err := c.tryLock(ctx, id, ownerID, operation)
		if err != nil {
			if util.ContextCanceled(ctx) {
				return false, nil
			}
			return false, errors.WithStack(err)
		}
		if acquired {
			acquiredCounter.Inc()
			c.log.Info().Msgf("resource %q locked by owner %q for operation %q", id, ownerID, operation)
			return true, nil
		}

		if !sleep(ctx, retryInterval) {
			return false, nil
		}

		if !time.Now().Before(deadline) {
			acquireTimeoutsCounter.Inc()
			c.log.Debug().Msgf("owner %q timed out waiting for resource %q", ownerID, id)
			return false, nil
		}
	}
}

// tryLock executes a single acquisition attempt. A commit conflict is
// reported as a failed attempt.
func (c *Coordinator) tryLock(ctx context.Context, id, ownerID, operation string) (bool, error) {
	acquireAttemptsCounter.Inc()

	var acquired bool
	err := c.store.Do(ctx, func(tx Tx) error {
		acquired = false

		l, err := tx.Get(id)
		if err != nil {
			return errors.WithStack(err)
		}

		if l == nil {
			l = types.NewResourceLock(sqlg.ObjectMeta{ID: id})
			l.SetLocked(ownerID, operation)
			if err := tx.Create(l); err != nil {
				return errors.WithStack(err)
			}
			acquired = true
			return nil
		}

		if l.IsLocked() {
			acquired = l.IsOwnedBy(ownerID)
			return nil
		}

		l.SetLocked(ownerID, operation)
		if err := tx.Update(l); err != nil {
			return errors.WithStack(err)
		}
		acquired = true

		return nil
	})
	if err != nil {
		if IsConflict(err) {
			conflictsCounter.WithLabelValues("lock").Inc()
			c.log.Debug().Msgf("commit conflict locking resource %q for owner %q", id, ownerID)
			return false, nil
		}
		return false, errors.WithStack(err)
	}

	return acquired, nil
}

// UnlockResource releases the lock on resource id held by ownerID. Releasing
// a missing or unlocked resource, or a resource locked by another owner,
// changes nothing and returns UnlockResultNoop.
// Commit conflicts are retried using the release retry configuration. When
// the retries are exhausted the returned error matches ErrConflict.
func (c *Coordinator) UnlockResource(ctx context.Context, id, ownerID string) (UnlockResult, error) {
	if err := validateID("resource lock id", id); err != nil {
		return UnlockResultNoop, errors.WithStack(err)
	}
	if err := validateID("owner id", ownerID); err != nil {
		return UnlockResultNoop, errors.WithStack(err)
	}

	var result UnlockResult
	err := retryOnConflict(releaseBackoff(c.c.ReleaseRetry), func() error {
		var err error
		result, err = c.unlockOnce(ctx, id, ownerID)
		if IsConflict(err) {
			conflictsCounter.WithLabelValues("unlock").Inc()
			c.log.Debug().Msgf("commit conflict unlocking resource %q for owner %q", id, ownerID)
		}
		return err
	})
	if err != nil {
		if IsConflict(err) {
			return UnlockResultNoop, errors.Wrapf(err, "failed to unlock resource %q: too many commit conflicts", id)
		}
		return UnlockResultNoop, errors.Wrapf(err, "failed to unlock resource %q", id)
	}

	releasesCounter.WithLabelValues(result.String()).Inc()
	if result == UnlockResultUnlocked {
		c.log.Info().Msgf("resource %q unlocked by owner %q", id, ownerID)
	}

	return result, nil
}

func (c *Coordinator) unlockOnce(ctx context.Context, id, ownerID string) (UnlockResult, error) {
	result := UnlockResultNoop
	err := c.store.Do(ctx, func(tx Tx) error {
		result = UnlockResultNoop

		l, err := tx.Get(id)
		if err != nil {
			return errors.WithStack(err)
		}
		if l == nil || !l.IsOwnedBy(ownerID) {
			return nil
		}

		l.SetUnlocked()
		if err := tx.Update(l); err != nil {
			return errors.WithStack(err)
		}
		result = UnlockResultUnlocked

		return nil
	})

	return result, errors.WithStack(err)
}

// sleep waits for d returning false if ctx is done before.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return !util.ContextCanceled(ctx)
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
