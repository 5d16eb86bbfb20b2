package engine

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net"

	"github.com/radsecd/radsecd/peer"
	"github.com/radsecd/radsecd/queue"
	"github.com/radsecd/radsecd/tlsconf"
	"go.uber.org/zap"
)

// ListenAndServeTLS accepts downstream RadSec connections on ln and
// hands each one to acceptOne. tlsMgr is not used: each candidate
// client config already carries its resolved TLS context.
func ListenAndServeTLS(ctx context.Context, ic *Context, ln net.Listener, tlsMgr *tlsconf.Manager) {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			ic.Log.Warn("tls accept error", zap.Error(err))
			continue
		}
		go acceptOne(ctx, ic, conn)
	}
}

// acceptOne serves one accepted downstream connection. The TLS
// handshake itself happens exactly once, using whichever
// address-matching client config is found first to
// supply the server's own certificate and trust store. Once the
// handshake completes, the presented chain is checked in turn against
// every client config sharing the peer's address (the cursor-based
// find_conf walk) until one passes verifyconfcert; a config whose own
// TLS context disagrees with the handshake's trust roots simply fails
// its own check and the walk moves to the next candidate.
func acceptOne(ctx context.Context, ic *Context, conn net.Conn) {
	remote, ok := conn.RemoteAddr().(*net.TCPAddr)
	if !ok {
		conn.Close()
		return
	}
	addr := peer.NormalizeAddr(remote.IP)
	table := ic.Clients.Table()

	handshakeConf, _, found := firstTLSCandidate(table, addr)
	if !found {
		ic.Log.Info("no client config matched TLS peer, closing", zap.Stringer("addr", remote))
		conn.Close()
		return
	}

	var peerCerts [][]byte
	cfg := handshakeConf.TLSContext.ServerTLSConfig(func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		peerCerts = rawCerts
		return nil
	})

	tlsConn := tls.Server(conn, cfg)
	if err := tlsConn.Handshake(); err != nil {
		ic.Log.Debug("TLS handshake failed", zap.Stringer("addr", remote), zap.Error(err))
		conn.Close()
		return
	}

	var cursor peer.Cursor
	for {
		conf, next, found := table.FindConf(addr, cursor)
		if !found {
			ic.Log.Info("TLS peer certificate matched no client config, closing", zap.Stringer("addr", remote))
			tlsConn.Close()
			return
		}
		cursor = next

		if conf.TLSContext == nil {
			continue
		}
		verify := tlsconf.VerifyChainAndIdentity(conf.TLSContext.Roots(), conf.Host, conf.PrefixLen, conf.MatchRules(), MaxCertDepth)
		if err := verify(peerCerts, nil); err != nil {
			ic.Log.Debug("candidate client config rejected peer certificate", zap.String("client", conf.Name), zap.Error(err))
			continue
		}

		client := &peer.Client{Config: conf, Conn: tlsConn, Queue: queue.New(queue.DefaultCapacity)}
		key := remote.String()
		ic.Clients.RegisterTLS(key, client)
		go runTLSReplyWriter(ctx, ic, client)
		serveTLSClient(ctx, ic, client, tlsConn)
		ic.Clients.RemoveTLS(key)
		ic.forgetClient(client)
		return
	}
}

// firstTLSCandidate returns the first address-matching client config
// that carries a TLS context, to supply the handshake's own
// certificate and ClientCAs pool. The chain it accepts at this stage
// is only trusted provisionally: VerifyPeerCertificate always returns
// nil here, and the real trust decision happens per-candidate in
// acceptOne once the handshake has completed.
func firstTLSCandidate(table *peer.Table, addr net.IP) (*peer.Config, peer.Cursor, bool) {
	var cursor peer.Cursor
	for {
		conf, next, found := table.FindConf(addr, cursor)
		if !found {
			return nil, cursor, false
		}
		cursor = next
		if conf.TLSContext != nil {
			return conf, cursor, true
		}
	}
}

// serveTLSClient reads framed RADIUS packets from a connected
// downstream client for the lifetime of the connection. RadSec frames
// each packet as exactly its own RFC 2865 header-length-prefixed
// bytes back to back on the stream (RFC 6614 section 2.3).
func serveTLSClient(ctx context.Context, ic *Context, client *peer.Client, conn *tls.Conn) {
	defer conn.Close()
	defer func() {
		if q, ok := client.Queue.(*queue.Queue); ok {
			q.Close()
		}
	}()

	header := make([]byte, 20)
	for {
		if _, err := readFull(conn, header); err != nil {
			if ctx.Err() == nil {
				ic.Log.Debug("tls client connection closed", zap.String("client", client.Config.Name), zap.Error(err))
			}
			return
		}
		declared := int(header[2])<<8 | int(header[3])
		if declared < 20 || declared > 4096 {
			ic.Log.Warn("tls client sent invalid length, closing", zap.String("client", client.Config.Name))
			return
		}
		buf := make([]byte, declared)
		copy(buf, header)
		if declared > 20 {
			if _, err := readFull(conn, buf[20:]); err != nil {
				return
			}
		}
		HandleIngress(ic, client, buf, nil)
	}
}

func readFull(conn *tls.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// runTLSReplyWriter drains a TLS Client's reply queue onto its own
// connection for the lifetime of the connection.
func runTLSReplyWriter(ctx context.Context, ic *Context, client *peer.Client) {
	q, ok := client.Queue.(*queue.Queue)
	if !ok {
		return
	}
	for {
		r, ok := q.Dequeue()
		if !ok {
			return
		}
		if _, err := client.Conn.Write(r.Buf); err != nil {
			ic.Log.Warn("tls reply write failed", zap.String("client", client.Config.Name), zap.Error(err))
			return
		}
	}
}
