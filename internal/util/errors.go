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
	"github.com/sorintlab/errors"
)

// ErrInvalidArgument represents an error caused by a missing or malformed
// caller provided argument.
// It's used to differentiate an internal error from a caller error.
type ErrInvalidArgument struct {
	Err error
}

func (e *ErrInvalidArgument) Error() string {
	return e.Err.Error()
}

func (e *ErrInvalidArgument) Unwrap() error {
	return e.Err
}

func NewErrInvalidArgument(err error) *ErrInvalidArgument {
	return &ErrInvalidArgument{Err: err}
}

func (*ErrInvalidArgument) Is(err error) bool {
	_, ok := err.(*ErrInvalidArgument)
	return ok
}

func IsInvalidArgument(err error) bool {
	return errors.Is(err, &ErrInvalidArgument{})
}
