// Copyright 2015 Matthew Holt and The Caddy Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package radsecdcmd implements the radsecd command.
package radsecdcmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/KimMachineGun/automemlimit/memlimit"
	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
)

const defaultConfigPath = "/etc/radsecd.conf"

var rootCmd = &cobra.Command{
	Use:   "radsecd",
	Short: "RADIUS/RadSec proxy",
	Long: `radsecd relays RADIUS requests between UDP clients and RadSec (RADIUS
over TLS) or UDP upstream servers, load-balancing across realms and
translating attributes between the two transports.`,
	SilenceUsage: true,
	Version:      Version(),
}

func init() {
	rootCmd.SetVersionTemplate("{{.Version}}\n")
	rootCmd.Flags().BoolP("version", "v", false, "print the version and exit")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}

// Main is the entry point called from package main. It configures
// GOMAXPROCS and the memory limit to match the container's cgroup
// quota, then executes the root command.
func Main() {
	if len(os.Args) == 0 {
		fmt.Fprintln(os.Stderr, "[FATAL] no arguments provided by OS; args[0] must be command")
		os.Exit(1)
	}

	bootstrapLog := zap.NewExample()
	undo, err := maxprocs.Set(maxprocs.Logger(bootstrapLog.Sugar().Infof))
	defer undo()
	if err != nil {
		bootstrapLog.Warn("failed to set GOMAXPROCS", zap.Error(err))
	}

	_, _ = memlimit.SetGoMemLimitWithOpts(
		memlimit.WithLogger(slog.New(zapslog.NewHandler(bootstrapLog.Core()))),
		memlimit.WithProvider(
			memlimit.ApplyFallback(
				memlimit.FromCgroup,
				memlimit.FromSystem,
			),
		),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
