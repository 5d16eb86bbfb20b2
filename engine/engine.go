package engine

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/radsecd/radsecd/config"
	"github.com/radsecd/radsecd/internal/metrics"
	"github.com/radsecd/radsecd/peer"
	"github.com/radsecd/radsecd/queue"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Run wires a Resolved configuration into a running proxy: it opens
// every listener and upstream connection the config describes. It
// returns an error if a socket cannot be opened; otherwise it blocks
// until every goroutine of its errgroup has returned: one per
// listener, the UDP reply writer, the shared UDP upstream reader, one
// writer per UDP upstream, and one lifecycle per TLS upstream (whose
// writer runs in a goroutine of its own outside the group). These
// goroutines log I/O errors rather than returning them.
func Run(ctx context.Context, log *zap.Logger, r *config.Resolved) error {
	udpReplies := queue.New(queue.DefaultCapacity)
	ic := &Context{
		Log:       log,
		Rewrites:  r.Rewrites,
		Router:    r.Router,
		Clients:   NewClientRegistry(r.Clients, udpReplies),
		SourceUDP: r.SourceUDP,
		SourceTCP: r.SourceTCP,
	}
	for _, srv := range r.Servers {
		ic.Servers = append(ic.Servers, srv)
	}

	g, gctx := errgroup.WithContext(ctx)

	udpServers := make(map[string]*peer.Server)
	for _, srv := range r.Servers {
		if srv.Config.Transport == peer.TransportUDP {
			for _, a := range srv.Config.Addrs {
				udpServers[net.JoinHostPort(a.String(), srv.Config.Port)] = srv
			}
		}
	}

	if len(udpServers) > 0 {
		upstreamConn, err := net.ListenUDP("udp", sourceAddr(r.SourceUDP))
		if err != nil {
			return fmt.Errorf("engine: opening upstream UDP socket: %w", err)
		}
		g.Go(func() error {
			runUDPUpstreamReader(gctx, ic, upstreamConn, udpServers)
			return nil
		})
		for _, srv := range r.Servers {
			if srv.Config.Transport != peer.TransportUDP {
				continue
			}
			srv.ConnectionOK = true
			metrics.M.ConnectionUp.WithLabelValues(srv.Config.Name).Set(1)
			srv := srv
			g.Go(func() error {
				RunWriter(gctx, ic, srv, udpTransmit(upstreamConn, srv), nil)
				return nil
			})
		}
	}

	for _, srv := range r.Servers {
		if srv.Config.Transport != peer.TransportTLS {
			continue
		}
		srv := srv
		g.Go(func() error {
			runTLSServerLifecycle(gctx, ic, srv)
			return nil
		})
	}

	authConn, err := net.ListenUDP("udp", mustResolveUDPAddr(r.ListenUDP))
	if err != nil {
		return fmt.Errorf("engine: opening auth UDP listener: %w", err)
	}
	authSock, err := NewUDP4Socket(authConn)
	if err != nil {
		return fmt.Errorf("engine: wrapping auth UDP listener: %w", err)
	}
	g.Go(func() error {
		ListenAndServeUDP(gctx, ic, authSock, ic.Clients)
		return nil
	})
	g.Go(func() error {
		RunUDPReplyWriter(gctx, ic, authSock, udpReplies)
		return nil
	})

	if r.ListenAccountingUDP != "" {
		acctConn, err := net.ListenUDP("udp", mustResolveUDPAddr(r.ListenAccountingUDP))
		if err != nil {
			return fmt.Errorf("engine: opening accounting UDP listener: %w", err)
		}
		acctSock, err := NewUDP4Socket(acctConn)
		if err != nil {
			return fmt.Errorf("engine: wrapping accounting UDP listener: %w", err)
		}
		g.Go(func() error {
			ListenAndServeUDP(gctx, ic, acctSock, ic.Clients)
			return nil
		})
	}

	ln, err := net.Listen("tcp", net.JoinHostPort("", r.ListenTCP))
	if err != nil {
		return fmt.Errorf("engine: opening TLS listener: %w", err)
	}
	g.Go(func() error {
		ListenAndServeTLS(gctx, ic, ln, r.TLSManager)
		return nil
	})

	return g.Wait()
}

func mustResolveUDPAddr(port string) *net.UDPAddr {
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort("", port))
	if err != nil {
		return nil
	}
	return addr
}

// sourceAddr resolves a SourceUDP/SourceTCP-style directive ("host" or
// "host:port") to the local address the proxy should dial upstream
// servers from. An empty directive leaves
// address selection to the OS (nil).
func sourceAddr(hostport string) *net.UDPAddr {
	if hostport == "" {
		return nil
	}
	if _, _, err := net.SplitHostPort(hostport); err != nil {
		hostport = net.JoinHostPort(hostport, "0")
	}
	addr, err := net.ResolveUDPAddr("udp", hostport)
	if err != nil {
		return nil
	}
	return addr
}

// udpTransmit returns a Transmit that sends req to server's resolved
// address over the shared upstream UDP socket.
func udpTransmit(conn *net.UDPConn, server *peer.Server) Transmit {
	port, _ := strconv.Atoi(server.Config.Port)
	return func(buf []byte) error {
		addr := &net.UDPAddr{IP: server.Config.Addrs[0], Port: port}
		_, err := conn.WriteToUDP(buf, addr)
		return err
	}
}

// runUDPUpstreamReader is the shared reader for every UDP upstream
// server: it dispatches each datagram to HandleEgress for the server
// whose resolved address matches the datagram's source.
func runUDPUpstreamReader(ctx context.Context, ic *Context, conn *net.UDPConn, servers map[string]*peer.Server) {
	go func() {
		<-ctx.Done()
		conn.Close()
	}()
	buf := make([]byte, 4096)
	for {
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			ic.Log.Warn("upstream udp read error", zap.Error(err))
			continue
		}
		srv, ok := servers[addr.String()]
		if !ok {
			ic.Log.Debug("dropping reply from unrecognized upstream", zap.Stringer("addr", addr))
			continue
		}
		raw := make([]byte, n)
		copy(raw, buf[:n])
		go HandleEgress(ic, srv, raw)
	}
}

// runTLSServerLifecycle owns one TLS upstream server's connection for
// the process lifetime: connect, run the writer and reader
// concurrently, and on connection loss trigger Reconnect and restart
// the reader against the new connection.
func runTLSServerLifecycle(ctx context.Context, ic *Context, srv *peer.Server) {
	Reconnect(ctx, ic, srv, time.Time{})

	reconnect := func() {
		srv.ReconnLock()
		lastSeen := srv.LastConnectTry
		srv.ReconnUnlock()
		Reconnect(ctx, ic, srv, lastSeen)
	}

	go RunWriter(ctx, ic, srv, tlsTransmit(srv), reconnect)

	header := make([]byte, 20)
	for {
		if ctx.Err() != nil {
			return
		}
		conn := srv.Conn
		if conn == nil {
			time.Sleep(time.Second)
			continue
		}
		if _, err := readFull(conn, header); err != nil {
			ic.Log.Warn("tls upstream read failed, reconnecting", zap.String("server", srv.Config.Name), zap.Error(err))
			reconnect()
			continue
		}
		declared := int(header[2])<<8 | int(header[3])
		if declared < 20 || declared > 4096 {
			reconnect()
			continue
		}
		buf := make([]byte, declared)
		copy(buf, header)
		if declared > 20 {
			if _, err := readFull(conn, buf[20:]); err != nil {
				reconnect()
				continue
			}
		}
		HandleEgress(ic, srv, buf)
	}
}

// tlsTransmit returns a Transmit that writes to server's current TLS
// connection, failing if none is established yet.
func tlsTransmit(server *peer.Server) Transmit {
	return func(buf []byte) error {
		conn := server.Conn
		if conn == nil {
			return fmt.Errorf("engine: no TLS connection to %s", server.Config.Name)
		}
		_, err := conn.Write(buf)
		return err
	}
}
