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

// Package radsecd ties together the resolved configuration, the
// process logger, and the engine's listeners for one run of the
// proxy.
package radsecd

import "context"

// Context defines the lifetime of one run of the proxy: it wraps a
// standard context.Context and accumulates cleanup funcs to run when
// that run ends. Every component is wired directly in engine.Run, so
// the Context only has cleanup funcs to track.
type Context struct {
	context.Context
	cleanupFuncs []func()
}

// NewContext derives a Context from parent, returning it along with a
// cancel func that runs every registered cleanup (in reverse
// registration order, so a resource acquired after another is
// released first) before cancelling the underlying context.
func NewContext(parent context.Context) (Context, context.CancelFunc) {
	c, cancel := context.WithCancel(parent)
	ctx := Context{Context: c}
	wrapped := func() {
		for i := len(ctx.cleanupFuncs) - 1; i >= 0; i-- {
			ctx.cleanupFuncs[i]()
		}
		cancel()
	}
	return ctx, wrapped
}

// OnCancel registers f to run when this Context's cancel func is
// called. Logging.Build uses it to close the log file it opens.
func (ctx *Context) OnCancel(f func()) {
	ctx.cleanupFuncs = append(ctx.cleanupFuncs, f)
}
