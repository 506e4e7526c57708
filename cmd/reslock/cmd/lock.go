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
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sorintlab/errors"
	"github.com/spf13/cobra"
)

var cmdLock = &cobra.Command{
	Use:   "lock",
	Short: "acquire a resource lock",
	Run: func(cmd *cobra.Command, args []string) {
		if err := lock(cmd, args); err != nil {
			log.Fatal().Err(err).Send()
		}
	},
}

type lockOptions struct {
	resource      string
	owner         string
	operation     string
	profile       string
	timeout       time.Duration
	retryInterval time.Duration
}

var lockOpts lockOptions

func init() {
	flags := cmdLock.Flags()

	flags.StringVarP(&lockOpts.resource, "resource", "r", "", "resource id")
	flags.StringVarP(&lockOpts.owner, "owner", "o", "", "lock owner id")
	flags.StringVar(&lockOpts.operation, "operation", "", "operation performed while holding the lock")
	flags.StringVar(&lockOpts.profile, "profile", "", "lock profile name (defaults to the configured default profile)")
	flags.DurationVar(&lockOpts.timeout, "timeout", 0, "acquire timeout, overrides the profile timeout")
	flags.DurationVar(&lockOpts.retryInterval, "retry-interval", 0, "acquire retry interval, overrides the profile retry interval")

	for _, name := range []string{"resource", "owner", "operation"} {
		if err := cmdLock.MarkFlagRequired(name); err != nil {
			log.Fatal().Err(err).Send()
		}
	}

	cmdResLock.AddCommand(cmdLock)
}

func lock(cmd *cobra.Command, args []string) error {
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

	profileName := lockOpts.profile
	if profileName == "" {
		profileName = c.DefaultProfile
	}
	profile, ok := c.Profiles[profileName]
	if !ok {
		return errors.Errorf("unknown lock profile %q", profileName)
	}

	flags := cmd.Flags()
	if flags.Changed("timeout") {
		profile.Timeout = lockOpts.timeout
	}
	if flags.Changed("retry-interval") {
		profile.RetryInterval = lockOpts.retryInterval
	}

	acquired, err := rl.Coordinator.LockResource(ctx, lockOpts.resource, lockOpts.owner, lockOpts.operation, profile.Timeout, profile.RetryInterval)
	if err != nil {
		return errors.Wrapf(err, "failed to lock resource %q", lockOpts.resource)
	}
	if !acquired {
		return errors.Errorf("resource %q not acquired in %s", lockOpts.resource, profile.Timeout)
	}

	log.Info().Msgf("resource %q locked by %q", lockOpts.resource, lockOpts.owner)

	return nil
}
