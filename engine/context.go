package engine

import (
	"github.com/radsecd/radsecd/config"
	"github.com/radsecd/radsecd/peer"
	"github.com/radsecd/radsecd/realm"
	"go.uber.org/zap"
)

// Context bundles the resolved configuration and derived runtime
// state every ingress/egress/writer goroutine needs, so none of them
// carry a long individual parameter list.
type Context struct {
	Log *zap.Logger

	Rewrites map[string]config.RewriteConfig
	Router   *realm.Router
	Clients  *ClientRegistry
	Servers  []*peer.Server

	// SourceUDP and SourceTCP mirror the top-level config directives
	// of the same name: the local address the proxy dials upstream
	// servers from, left empty to let the OS pick one.
	SourceUDP string
	SourceTCP string
}

// forgetClient nulls out the originating-client reference in every
// in-flight request across every upstream server, under each server's
// request-table lock. Called when a TLS downstream disconnects; the
// egress path observes From == nil and drops the reply.
func (ic *Context) forgetClient(client *peer.Client) {
	for _, srv := range ic.Servers {
		srv.Lock()
		for id := 0; id < peer.MaxRequests; id++ {
			if req := srv.RequestAt(byte(id)); req != nil && req.From == client {
				req.From = nil
			}
		}
		srv.Unlock()
	}
}

// rewriteFor looks up a named Rewrite block, returning nil (a no-op
// for applyRewrite) if name is empty or unknown.
func (ic *Context) rewriteFor(name string) *config.RewriteConfig {
	if name == "" {
		return nil
	}
	rw, ok := ic.Rewrites[name]
	if !ok {
		return nil
	}
	return &rw
}
