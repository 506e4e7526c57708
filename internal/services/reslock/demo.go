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

package reslock

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/sorintlab/errors"
	"golang.org/x/sync/errgroup"

	"agola.io/reslock/internal/services/resourcelock"
	"agola.io/reslock/internal/util"
)

// DemoConfig configures a run of concurrent workers all entering the same
// critical section on a shared resource.
type DemoConfig struct {
	ResourceID string
	Operation  string
	Workers    int
	Iterations int
	// when false the workers enter the critical section without acquiring
	// the resource lock
	UseLocking    bool
	Timeout       time.Duration
	RetryInterval time.Duration
}

type DemoResult struct {
	Acquired    int
	NotAcquired int
	// MaxConcurrent is the max number of workers observed at the same time
	// inside the critical section
	MaxConcurrent int
}

type syncWriter struct {
	m sync.Mutex
	w io.Writer
}

func (w *syncWriter) printf(format string, args ...any) {
	w.m.Lock()
	defer w.m.Unlock()
	fmt.Fprintf(w.w, format, args...)
}

type demo struct {
	log   zerolog.Logger
	coord *resourcelock.Coordinator
	dc    DemoConfig
	out   *syncWriter

	active        atomic.Int32
	maxConcurrent atomic.Int32
	acquired      atomic.Int32
	notAcquired   atomic.Int32
}

// RunDemo starts dc.Workers workers, each one printing dc.Iterations lines to
// out from inside the critical section. With locking enabled the lines of a
// worker are never interleaved with the lines of another one.
func RunDemo(ctx context.Context, log zerolog.Logger, coord *resourcelock.Coordinator, uuidGen util.UUIDGenerator, dc DemoConfig, out io.Writer) (*DemoResult, error) {
	if dc.Workers < 1 {
		return nil, util.NewErrInvalidArgument(errors.Errorf("workers must be at least 1"))
	}
	if dc.Iterations < 1 {
		return nil, util.NewErrInvalidArgument(errors.Errorf("iterations must be at least 1"))
	}

	d := &demo{
		log:   log,
		coord: coord,
		dc:    dc,
		out:   &syncWriter{w: out},
	}

	eg, ctx := errgroup.WithContext(ctx)
	for i := 0; i < dc.Workers; i++ {
		ownerID := uuidGen.New(fmt.Sprintf("worker-%d", i)).String()
		eg.Go(func() error {
			return d.worker(ctx, ownerID)
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, errors.WithStack(err)
	}

	return &DemoResult{
		Acquired:      int(d.acquired.Load()),
		NotAcquired:   int(d.notAcquired.Load()),
		MaxConcurrent: int(d.maxConcurrent.Load()),
	}, nil
}

func (d *demo) worker(ctx context.Context, ownerID string) error {
	if !d.dc.UseLocking {
		d.criticalSection(ownerID)
		return nil
	}

	acquired, err := d.coord.LockResource(ctx, d.dc.ResourceID, ownerID, d.dc.Operation, d.dc.Timeout, d.dc.RetryInterval)
	if err != nil {
		return errors.WithStack(err)
	}
	if !acquired {
		d.notAcquired.Add(1)
		d.out.printf("%s could not get lock\n", ownerID)
		return nil
	}
	d.acquired.Add(1)

	d.criticalSection(ownerID)

	res, err := d.coord.UnlockResource(ctx, d.dc.ResourceID, ownerID)
	if err != nil {
		return errors.WithStack(err)
	}
	if res != resourcelock.UnlockResultUnlocked {
		return errors.Errorf("worker %s: unexpected unlock result %s", ownerID, res)
	}

	return nil
}

func (d *demo) criticalSection(ownerID string) {
	n := d.active.Add(1)
	defer d.active.Add(-1)

	for {
		cur := d.maxConcurrent.Load()
		if n <= cur || d.maxConcurrent.CompareAndSwap(cur, n) {
			break
		}
	}

	for i := 1; i <= d.dc.Iterations; i++ {
		d.out.printf("%s =====> %d\n", ownerID, i)
		runtime.Gosched()
	}
}
