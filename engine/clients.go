package engine

import (
	"net"
	"sync"

	"github.com/radsecd/radsecd/peer"
)

// ClientRegistry resolves an incoming packet's source to a live
// peer.Client, creating and caching UDP clients lazily on the first
// matching packet; once created they persist for the process
// lifetime. Every UDP client's Queue references the one shared reply
// queue drained by the UDP replier. TLS clients are created by the
// acceptor instead (engine/tlslisten.go), each with its own
// per-connection queue, and registered here by connection address;
// egress reaches a request's Client through the request itself.
type ClientRegistry struct {
	table      *peer.Table
	udpReplies peer.ReplySink

	mu  sync.Mutex
	udp map[string]*peer.Client
	tls map[string]*peer.Client
}

// NewClientRegistry returns a registry backed by the resolved Client
// PeerConfigs, searched in declared order by ClientRegistry.Resolve.
// udpReplies is the shared reply queue every UDP client is bound to.
func NewClientRegistry(clients []*peer.Config, udpReplies peer.ReplySink) *ClientRegistry {
	return &ClientRegistry{
		table:      peer.NewTable(clients),
		udpReplies: udpReplies,
		udp:        make(map[string]*peer.Client),
		tls:        make(map[string]*peer.Client),
	}
}

// ResolveUDP returns the live Client for a UDP datagram's source
// address, creating one on first sight from the matching PeerConfig.
// found is false if no Client config matches addr at all.
func (r *ClientRegistry) ResolveUDP(addr *net.UDPAddr) (client *peer.Client, found bool) {
	key := addr.IP.String()

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.udp[key]; ok {
		return c, true
	}

	conf, _, ok := r.table.FindConf(peer.NormalizeAddr(addr.IP), peer.Cursor{})
	if !ok {
		return nil, false
	}
	c := &peer.Client{Config: conf, Queue: r.udpReplies}
	r.udp[key] = c
	return c, true
}

// Table exposes the underlying address-matching table so the TLS
// acceptor can walk candidate configs sharing an address.
func (r *ClientRegistry) Table() *peer.Table { return r.table }

// RegisterTLS records a Client the TLS acceptor just accepted, keyed
// by its connection's remote address (host and port). A registration
// under a key that is already present replaces the previous entry; the
// old Client's queue is closed so any writer blocked on it wakes and
// the connection's goroutines exit.
func (r *ClientRegistry) RegisterTLS(key string, c *peer.Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.tls[key]; ok {
		if q, ok := old.Queue.(interface{ Close() }); ok {
			q.Close()
		}
	}
	r.tls[key] = c
}

// RemoveTLS drops the registration for a closed TLS connection.
func (r *ClientRegistry) RemoveTLS(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tls, key)
}
