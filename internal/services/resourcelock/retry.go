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
	"github.com/sorintlab/errors"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/util/retry"

	"agola.io/reslock/internal/services/config"
)

// releaseBackoff returns the backoff used for a release. The first attempt is
// not a retry so it adds a step to the configured ones.
func releaseBackoff(b config.Backoff) wait.Backoff {
	return wait.Backoff{
		Steps:    b.Steps + 1,
		Duration: b.Duration,
		Factor:   b.Factor,
		Jitter:   b.Jitter,
	}
}

// retryOnConflict calls fn until it returns an error not matching ErrConflict
// or the backoff steps are exhausted. In the latter case the last conflict
// error is returned.
func retryOnConflict(backoff wait.Backoff, fn func() error) error {
	return errors.WithStack(retry.OnError(backoff, IsConflict, fn))
}
