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

package cmd

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/sorintlab/errors"
	"github.com/spf13/cobra"

	"agola.io/reslock/internal/services/reslock"
	"agola.io/reslock/internal/services/resourcelock"
	"agola.io/reslock/internal/util"
)

var cmdDemo = &cobra.Command{
	Use:   "demo",
	Short: "run concurrent workers sharing a resource, with or without the resource lock",
	Run: func(cmd *cobra.Command, args []string) {
		if err := demo(cmd, args); err != nil {
			log.Fatal().Err(err).Send()
		}
	},
}

type demoOptions struct {
	resource             string
	operation            string
	workers              int
	iterations           int
	noLocking            bool
	timeout              time.Duration
	retryInterval        time.Duration
	metricsListenAddress string
}

var demoOpts demoOptions

func init() {
	flags := cmdDemo.Flags()

	flags.StringVarP(&demoOpts.resource, "resource", "r", "RESOURCE1", "resource id")
	flags.StringVar(&demoOpts.operation, "operation", "OPERATION", "operation performed by the workers")
	flags.IntVar(&demoOpts.workers, "workers", 5, "number of concurrent workers")
	flags.IntVar(&demoOpts.iterations, "iterations", 10, "lines printed by every worker inside the critical section")
	flags.BoolVar(&demoOpts.noLocking, "no-locking", false, "enter the critical section without acquiring the resource lock")
	flags.DurationVar(&demoOpts.timeout, "timeout", 30*time.Second, "acquire timeout of every worker")
	flags.DurationVar(&demoOpts.retryInterval, "retry-interval", 200*time.Millisecond, "acquire retry interval of every worker")
	flags.StringVar(&demoOpts.metricsListenAddress, "metrics-listen-address", "", "if defined, expose prometheus metrics on this address while the demo runs")

	cmdResLock.AddCommand(cmdDemo)
}

func serveMetrics(addr string) *http.Server {
	reg := prometheus.NewRegistry()
	resourcelock.RegisterMetrics(reg)

	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods("GET")

	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		log.Info().Msgf("serving metrics on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Err(err).Msgf("metrics server error")
		}
	}()

	return srv
}

func demo(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	c, err := loadConfig()
	if err != nil {
		return errors.WithStack(err)
	}

	rl, err := newResLock(ctx, c)
	if err != nil {
		return errors.WithStack(err)
	}
	defer rl.Close()

	if demoOpts.metricsListenAddress != "" {
		srv := serveMetrics(demoOpts.metricsListenAddress)
		defer func() {
			if err := srv.Shutdown(ctx); err != nil {
				log.Err(err).Msgf("failed to shutdown metrics server")
			}
		}()
	}

	dc := reslock.DemoConfig{
		ResourceID:    demoOpts.resource,
		Operation:     demoOpts.operation,
		Workers:       demoOpts.workers,
		Iterations:    demoOpts.iterations,
		UseLocking:    !demoOpts.noLocking,
		Timeout:       demoOpts.timeout,
		RetryInterval: demoOpts.retryInterval,
	}

	res, err := reslock.RunDemo(ctx, log.Logger, rl.Coordinator, util.DefaultUUIDGenerator{}, dc, os.Stdout)
	if err != nil {
		return errors.WithStack(err)
	}

	log.Info().
		Int("acquired", res.Acquired).
		Int("notAcquired", res.NotAcquired).
		Int("maxConcurrent", res.MaxConcurrent).
		Msgf("demo completed")

	return nil
}
