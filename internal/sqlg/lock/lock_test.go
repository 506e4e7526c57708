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

package lock

import (
	"context"
	"testing"
	"time"

	"gotest.tools/v3/assert"
)

func TestLocalLock(t *testing.T) {
	lf := NewLocalLockFactory(NewLocalLocks())

	l1 := lf.NewLock("dbupdate")
	l2 := lf.NewLock("dbupdate")

	assert.NilError(t, l1.Lock(context.Background()))
	assert.ErrorIs(t, l2.TryLock(context.Background()), ErrLocked)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Assert(t, l2.Lock(ctx) != nil)

	assert.NilError(t, l1.Unlock())
	assert.NilError(t, l2.TryLock(context.Background()))
	assert.NilError(t, l2.Unlock())

	// different keys don't interfere
	other := lf.NewLock("other")
	assert.NilError(t, l1.TryLock(context.Background()))
	assert.NilError(t, other.TryLock(context.Background()))
	assert.NilError(t, other.Unlock())
	assert.NilError(t, l1.Unlock())
}
