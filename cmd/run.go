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

package radsecdcmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/radsecd/radsecd"
	"github.com/radsecd/radsecd/config"
	"github.com/radsecd/radsecd/engine"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run radsecd in the foreground",
	Long: `Loads the configuration file, resolves every client, server and
realm it names, and blocks relaying RADIUS traffic until a signal or a
fatal listener error terminates the process. Exit code 0 on a clean
shutdown, 1 on any fatal error.`,
	RunE: runE,
}

func init() {
	fl := runCmd.Flags()
	fl.StringP("config", "c", defaultConfigPath, "configuration file path")
	fl.IntP("debug", "d", 0, "debug level 1-4 (overrides the config file's LogLevel)")
	fl.BoolP("foreground", "f", false, "log to stderr instead of the configured destination")
	fl.BoolP("pretend", "p", false, "parse and resolve the config, then exit 0 without running")
}

func runE(cmd *cobra.Command, _ []string) error {
	fl := Flags{cmd.Flags()}

	resolved, err := config.LoadFile(fl.String("config"))
	if err != nil {
		return fmt.Errorf("radsecd: %w", err)
	}

	if debug := fl.Int("debug"); debug != 0 {
		resolved.LogLevel = debug
	}
	if fl.Bool("foreground") {
		resolved.LogDestination = "stderr"
	}

	if fl.Bool("pretend") {
		return nil
	}

	ctx, cancel := radsecd.NewContext(context.Background())
	defer cancel()

	logger, err := radsecd.Logging{Level: resolved.LogLevel, Destination: resolved.LogDestination}.Build(&ctx)
	if err != nil {
		return fmt.Errorf("radsecd: building logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	logger.Info("starting radsecd", zap.String("config", fl.String("config")))

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := engine.Run(sigCtx, logger, resolved); err != nil {
		return fmt.Errorf("radsecd: %w", err)
	}
	return nil
}
