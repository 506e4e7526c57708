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
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/sorintlab/errors"
	"github.com/spf13/cobra"
)

var cmdUnlock = &cobra.Command{
	Use:   "unlock",
	Short: "release a resource lock",
	Run: func(cmd *cobra.Command, args []string) {
		if err := unlock(cmd, args); err != nil {
			log.Fatal().Err(err).Send()
		}
	},
}

type unlockOptions struct {
	resource string
	owner    string
}

var unlockOpts unlockOptions

func init() {
	flags := cmdUnlock.Flags()

	flags.StringVarP(&unlockOpts.resource, "resource", "r", "", "resource id")
	flags.StringVarP(&unlockOpts.owner, "owner", "o", "", "lock owner id")

	for _, name := range []string{"resource", "owner"} {
		if err := cmdUnlock.MarkFlagRequired(name); err != nil {
			log.Fatal().Err(err).Send()
		}
	}

	cmdResLock.AddCommand(cmdUnlock)
}

func unlock(cmd *cobra.Command, args []string) error {
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

	res, err := rl.Coordinator.UnlockResource(ctx, unlockOpts.resource, unlockOpts.owner)
	if err != nil {
		return errors.WithStack(err)
	}

	fmt.Println(res)

	return nil
}
