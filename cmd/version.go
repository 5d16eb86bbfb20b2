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
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// importPath is the module path Version looks for in the build info's
// dependency list when radsecd is built as a dependency of another
// main module.
const importPath = "github.com/radsecd/radsecd"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Prints the version",
	RunE: func(cmd *cobra.Command, _ []string) error {
		fmt.Println(Version())
		return nil
	},
}

// Version reports this build's module version from the build info
// recorded by the go tool when radsecd is built as (or depends on)
// its own module, falling back to "unknown" when that information isn't
// available. A plain `go build` in the module's own directory records
// the main module version as "(devel)", which is what is returned then.
func Version() string {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	if bi.Main.Path == importPath && bi.Main.Version != "" {
		return bi.Main.Version
	}
	for _, dep := range bi.Deps {
		if dep.Path == importPath {
			return dep.Version
		}
	}
	return "unknown"
}
