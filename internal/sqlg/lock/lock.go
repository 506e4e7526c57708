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

	"github.com/sorintlab/errors"
)

var ErrLocked = errors.New("already locked")

// LockFactory creates process or database wide exclusive locks. They are used
// to serialize schema changes between multiple instances and have nothing to
// do with the resource locks stored in the database.
type LockFactory interface {
	NewLock(key string) Lock
}

type Lock interface {
	Lock(ctx context.Context) error
	TryLock(ctx context.Context) error
	Unlock() error
}
