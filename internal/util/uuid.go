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

package util

import (
	"github.com/gofrs/uuid/v5"
)

// UUIDGenerator generates an uuid for the provided name. It's used to create
// owner ids, tests use TestUUIDGenerator to get stable ones.
type UUIDGenerator interface {
	New(s string) uuid.UUID
}

type DefaultUUIDGenerator struct{}

func (u DefaultUUIDGenerator) New(s string) uuid.UUID {
	return uuid.Must(uuid.NewV4())
}

// TestUUIDGenerator returns the same uuid for the same name.
type TestUUIDGenerator struct{}

func (u TestUUIDGenerator) New(s string) uuid.UUID {
	return uuid.NewV5(uuid.NamespaceDNS, s)
}
