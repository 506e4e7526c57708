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

import "github.com/prometheus/client_golang/prometheus"

var (
	acquireAttemptsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reslock_acquire_attempts_total",
		Help: "Total number of transactional lock acquisition attempts",
	})
	acquiredCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reslock_acquired_total",
		Help: "Total number of successful lock acquisitions",
	})
	acquireTimeoutsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reslock_acquire_timeouts_total",
		Help: "Total number of lock acquisitions that reached their deadline",
	})
	conflictsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reslock_commit_conflicts_total",
		Help: "Total number of store commit conflicts",
	}, []string{"operation"})
	releasesCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reslock_releases_total",
		Help: "Total number of completed lock releases",
	}, []string{"result"})
)

// RegisterMetrics registers the resource lock metrics on the provided registry.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(acquireAttemptsCounter, acquiredCounter, acquireTimeoutsCounter, conflictsCounter, releasesCounter)
}
