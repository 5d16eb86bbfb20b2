package engine

import (
	"context"
	"crypto/tls"
	"net"
	"time"

	"github.com/radsecd/radsecd/internal/metrics"
	"github.com/radsecd/radsecd/peer"
	"github.com/radsecd/radsecd/tlsconf"
	"go.uber.org/zap"
)

// backoffDuration implements the reconnection back-off policy.
// lastTry is the server's LastConnectTry as observed before this
// attempt; wasUp reports whether the connection this reconnect is
// replacing had reached the Up state. A zero lastTry means this is
// startup: connect immediately.
func backoffDuration(lastTry time.Time, wasUp bool, now time.Time) time.Duration {
	if lastTry.IsZero() {
		return 0
	}
	if wasUp {
		return 2 * time.Second
	}
	elapsed := now.Sub(lastTry)
	switch {
	case elapsed < time.Second:
		return 2 * time.Second
	case elapsed < 60*time.Second:
		return elapsed
	case elapsed < 100000*time.Second:
		return 60 * time.Second
	default:
		return 0
	}
}

// Reconnect runs the TLS reconnection state machine for server:
// Idle -> Sleeping(d) -> Connecting -> Handshaking ->
// Verifying -> Up, retrying on any failure until ctx is cancelled.
// lastSeen must be the value of server.LastConnectTry the caller
// observed before deciding a reconnect was needed; if it no longer
// matches server.LastConnectTry by the time the reconnection mutex is
// acquired, another goroutine already reconnected and this call is a
// no-op, so reader and writer requesting a reconnect at the same time
// coalesce into a single handshake.
func Reconnect(ctx context.Context, ic *Context, server *peer.Server, lastSeen time.Time) {
	server.ReconnLock()
	defer server.ReconnUnlock()

	if !server.LastConnectTry.Equal(lastSeen) {
		return
	}

	log := ic.Log.With(zap.String("server", server.Config.Name))
	wasUp := server.ConnectionOK
	server.ConnectionOK = false
	metrics.M.ConnectionUp.WithLabelValues(server.Config.Name).Set(0)

	conf := server.Config
	verify := tlsconf.VerifyChainAndIdentity(conf.TLSContext.Roots(), conf.Host, conf.PrefixLen, conf.MatchRules(), MaxCertDepth)
	tlsCfg := conf.TLSContext.ClientTLSConfig(conf.Host, verify)

	for {
		now := time.Now()
		d := backoffDuration(lastSeen, wasUp, now)
		wasUp = false
		if d > 0 {
			t := time.NewTimer(d)
			select {
			case <-t.C:
			case <-ctx.Done():
				t.Stop()
				return
			}
		} else {
			// Startup: stamp the attempt so repeated early failures
			// start backing off instead of dialing in a tight loop.
			server.LastConnectTry = now
			lastSeen = now
		}

		dialer := &net.Dialer{LocalAddr: tcpSourceAddr(ic.SourceTCP)}
		rawConn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(conf.Host, conf.Port))
		if err != nil {
			log.Warn("tls connect failed", zap.Error(err))
			metrics.M.ReconnectsTotal.WithLabelValues(server.Config.Name, "connect_failed").Inc()
			continue
		}

		conn := tls.Client(rawConn, tlsCfg)
		hctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		err = conn.HandshakeContext(hctx)
		cancel()
		if err != nil {
			log.Warn("tls handshake or identity verification failed", zap.Error(err))
			conn.Close()
			metrics.M.ReconnectsTotal.WithLabelValues(server.Config.Name, "handshake_failed").Inc()
			continue
		}

		// LastConnectTry is only advanced on success, so the elapsed
		// time backoffDuration sees keeps growing across consecutive
		// failures instead of resetting on every attempt.
		server.LastConnectTry = time.Now()
		if server.Conn != nil {
			server.Conn.Close()
		}
		server.Conn = conn
		server.ConnectionOK = true
		metrics.M.ReconnectsTotal.WithLabelValues(server.Config.Name, "ok").Inc()
		metrics.M.ConnectionUp.WithLabelValues(server.Config.Name).Set(1)
		return
	}
}

// tcpSourceAddr resolves a SourceTCP directive ("host" or "host:port")
// to a *net.TCPAddr suitable for net.Dialer.LocalAddr, or nil to let
// the OS choose. Dialer.LocalAddr requires its concrete type match the
// network ("tcp" here), unlike ListenUDP which accepts *net.UDPAddr.
func tcpSourceAddr(hostport string) *net.TCPAddr {
	if hostport == "" {
		return nil
	}
	if _, _, err := net.SplitHostPort(hostport); err != nil {
		hostport = net.JoinHostPort(hostport, "0")
	}
	addr, err := net.ResolveTCPAddr("tcp", hostport)
	if err != nil {
		return nil
	}
	return addr
}
