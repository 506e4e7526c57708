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
	"os"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sorintlab/errors"
	"github.com/spf13/cobra"

	"agola.io/reslock/cmd"
	"agola.io/reslock/internal/services/config"
	"agola.io/reslock/internal/services/reslock"
)

func init() {
	cw := zerolog.ConsoleWriter{
		Out:                 os.Stderr,
		TimeFormat:          time.RFC3339Nano,
		FormatErrFieldValue: errors.FormatErrFieldValue,
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano

	log.Logger = log.With().Stack().Caller().Logger().Level(zerolog.InfoLevel).Output(cw)
}

var cmdResLock = &cobra.Command{
	Use:     "reslock",
	Short:   "advisory resource locks shared by independent processes",
	Version: cmd.Version,
	// just defined to make --version work
	PersistentPreRun: func(c *cobra.Command, args []string) {
		if resLockOpts.debug {
			log.Logger = log.Level(zerolog.DebugLevel)
		}
		if resLockOpts.detailedErrors {
			zerolog.ErrorMarshalFunc = errors.ErrorMarshalFunc
		}
	},
	Run: func(c *cobra.Command, args []string) {
		if err := c.Help(); err != nil {
			log.Fatal().Err(err).Send()
		}
	},
}

type resLockOptions struct {
	configPath     string
	dataDir        string
	debug          bool
	detailedErrors bool
}

var resLockOpts resLockOptions

func init() {
	flags := cmdResLock.PersistentFlags()

	flags.StringVar(&resLockOpts.configPath, "config", "", "config file path")
	flags.StringVar(&resLockOpts.dataDir, "data-dir", "/tmp/reslock", "data directory, used when no config file is provided")
	flags.BoolVarP(&resLockOpts.debug, "debug", "d", false, "debug")
	flags.BoolVar(&resLockOpts.detailedErrors, "detailed-errors", false, "enabled detailed errors logging")
}

// loadConfig reads the config file when provided or returns the default
// configuration using a sqlite store inside the data dir.
func loadConfig() (*config.ResourceLock, error) {
	if resLockOpts.configPath != "" {
		configPath, err := homedir.Expand(resLockOpts.configPath)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		c, err := config.Parse(configPath)
		if err != nil {
			return nil, errors.Wrapf(err, "cannot parse config")
		}
		return &c.ResourceLock, nil
	}

	dataDir, err := homedir.Expand(resLockOpts.dataDir)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	c := config.DefaultResourceLock()
	c.DataDir = dataDir
	if resLockOpts.debug {
		c.Debug = true
	}

	return &c, nil
}

func newResLock(ctx context.Context, c *config.ResourceLock) (*reslock.ResLock, error) {
	rl, err := reslock.NewResLock(ctx, log.Logger, c)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to setup resource lock store")
	}

	return rl, nil
}

func Execute() {
	if err := cmdResLock.Execute(); err != nil {
		os.Exit(1)
	}
}
