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

package util

import (
	"testing"

	"gotest.tools/v3/assert"
)

func TestUUIDGenerators(t *testing.T) {
	var g UUIDGenerator = TestUUIDGenerator{}
	assert.Equal(t, g.New("worker01"), g.New("worker01"))
	assert.Assert(t, g.New("worker01") != g.New("worker02"))

	dg := DefaultUUIDGenerator{}
	assert.Assert(t, dg.New("worker01") != dg.New("worker01"))
}
