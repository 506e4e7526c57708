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
	"encoding/json"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/sorintlab/errors"
	"github.com/spf13/cobra"

	"agola.io/reslock/services/resourcelock/types"
)

var cmdStatus = &cobra.Command{
	Use:   "status",
	Short: "show the lock state of a resource or the resources locked by an owner",
	Run: func(cmd *cobra.Command, args []string) {
		if err := status(cmd, args); err != nil {
			log.Fatal().Err(err).Send()
		}
	},
}

type statusOptions struct {
	resource string
	owner    string
}

var statusOpts statusOptions

type resourceLockStatus struct {
	ID        string `json:"id"`
	State     string `json:"state"`
	OwnerID   string `json:"owner_id,omitempty"`
	Operation string `json:"operation,omitempty"`
}

func init() {
	flags := cmdStatus.Flags()

	flags.StringVarP(&statusOpts.resource, "resource", "r", "", "resource id")
	flags.StringVarP(&statusOpts.owner, "owner", "o", "", "list the resources locked by this owner")

	cmdStatus.MarkFlagsOneRequired("resource", "owner")
	cmdStatus.MarkFlagsMutuallyExclusive("resource", "owner")

	cmdResLock.AddCommand(cmdStatus)
}

func status(cmd *cobra.Command, args []string) error {
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

	if statusOpts.owner != "" {
		ls, err := rl.Coordinator.OwnedLocks(ctx, statusOpts.owner)
		if err != nil {
			return errors.WithStack(err)
		}
		for _, l := range ls {
			if err := printStatus(newResourceLockStatus(l.ID, l)); err != nil {
				return errors.WithStack(err)
			}
		}
		return nil
	}

	l, err := rl.Coordinator.GetLock(ctx, statusOpts.resource)
	if err != nil {
		return errors.WithStack(err)
	}

	return printStatus(newResourceLockStatus(statusOpts.resource, l))
}

func newResourceLockStatus(id string, l *types.ResourceLock) *resourceLockStatus {
	st := &resourceLockStatus{
		ID:    id,
		State: string(types.ResourceLockStateUnlocked),
	}
	if l != nil {
		st.State = string(l.State)
		st.OwnerID = l.Owner()
		st.Operation = l.CurrentOperation()
	}

	return st
}

func printStatus(st *resourceLockStatus) error {
	out, err := json.MarshalIndent(st, "", "\t")
	if err != nil {
		return errors.WithStack(err)
	}
	os.Stdout.Write(out)
	os.Stdout.Write([]byte("\n"))

	return nil
}
