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

package types

import (
	"agola.io/reslock/internal/sqlg"
)

type ResourceLockState string

const (
	ResourceLockStateLocked   ResourceLockState = "locked"
	ResourceLockStateUnlocked ResourceLockState = "unlocked"
)

func (s ResourceLockState) IsValid() bool {
	switch s {
	case ResourceLockStateLocked, ResourceLockStateUnlocked:
		return true
	}
	return false
}

// ResourceLock is the persisted state of the lock on a resource. The object
// ID is the resource lock id.
//
// OwnerID and Operation are set only when State is locked.
type ResourceLock struct {
	sqlg.ObjectMeta

	State     ResourceLockState `json:"state"`
	OwnerID   *string           `json:"owner_id"`
	Operation *string           `json:"operation"`
}

func NewResourceLock(meta sqlg.ObjectMeta) *ResourceLock {
	return &ResourceLock{
		ObjectMeta: meta,
		State:      ResourceLockStateUnlocked,
	}
}

func (l *ResourceLock) IsLocked() bool {
	return l.State == ResourceLockStateLocked
}

func (l *ResourceLock) IsOwnedBy(ownerID string) bool {
	return l.IsLocked() && l.OwnerID != nil && *l.OwnerID == ownerID
}

// SetLocked replaces the lock state with a lock held by ownerID.
func (l *ResourceLock) SetLocked(ownerID, operation string) {
	l.State = ResourceLockStateLocked
	l.OwnerID = &ownerID
	l.Operation = &operation
}

// SetUnlocked replaces the lock state with an unlocked one, clearing owner
// and operation.
func (l *ResourceLock) SetUnlocked() {
	l.State = ResourceLockStateUnlocked
	l.OwnerID = nil
	l.Operation = nil
}

func (l *ResourceLock) Owner() string {
	if !l.IsLocked() || l.OwnerID == nil {
		return ""
	}
	return *l.OwnerID
}

func (l *ResourceLock) CurrentOperation() string {
	if !l.IsLocked() || l.Operation == nil {
		return ""
	}
	return *l.Operation
}
