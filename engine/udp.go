package engine

import (
	"context"
	"net"

	"github.com/radsecd/radsecd/queue"
	"go.uber.org/zap"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// udpSocket abstracts the golang.org/x/net/ipv4 and ipv6 PacketConn
// wrappers: both are needed because a single UDP listener is shared by
// every client of its address family, and a
// wildcard-bound net.PacketConn cannot report or choose which local
// address a datagram arrived on or must be sent from — std net has no
// such API on a PacketConn.
type udpSocket interface {
	ReadFromUDP(b []byte) (n int, dst net.IP, src *net.UDPAddr, err error)
	WriteToUDP(b []byte, dst net.IP, addr *net.UDPAddr) (int, error)
	Close() error
}

type udp4Socket struct{ pc *ipv4.PacketConn }

// NewUDP4Socket wraps an IPv4 ("udp4") listener with control-message
// support. Callers choose the family by how they dialed/listened;
// there is no reliable way to recover it from a bound PacketConn alone
// (a wildcard address carries no family hint of its own).
func NewUDP4Socket(conn net.PacketConn) (udpSocket, error) {
	pc := ipv4.NewPacketConn(conn)
	if err := pc.SetControlMessage(ipv4.FlagDst, true); err != nil {
		return nil, err
	}
	return &udp4Socket{pc: pc}, nil
}

func (s *udp4Socket) ReadFromUDP(b []byte) (int, net.IP, *net.UDPAddr, error) {
	n, cm, src, err := s.pc.ReadFrom(b)
	if err != nil {
		return 0, nil, nil, err
	}
	var dst net.IP
	if cm != nil {
		dst = cm.Dst
	}
	return n, dst, src.(*net.UDPAddr), nil
}

func (s *udp4Socket) WriteToUDP(b []byte, dst net.IP, addr *net.UDPAddr) (int, error) {
	var cm *ipv4.ControlMessage
	if dst != nil {
		cm = &ipv4.ControlMessage{Src: dst}
	}
	return s.pc.WriteTo(b, cm, addr)
}

func (s *udp4Socket) Close() error { return s.pc.Close() }

type udp6Socket struct{ pc *ipv6.PacketConn }

// NewUDP6Socket wraps an IPv6 ("udp6") listener with control-message
// support.
func NewUDP6Socket(conn net.PacketConn) (udpSocket, error) {
	pc := ipv6.NewPacketConn(conn)
	if err := pc.SetControlMessage(ipv6.FlagDst, true); err != nil {
		return nil, err
	}
	return &udp6Socket{pc: pc}, nil
}

func (s *udp6Socket) ReadFromUDP(b []byte) (int, net.IP, *net.UDPAddr, error) {
	n, cm, src, err := s.pc.ReadFrom(b)
	if err != nil {
		return 0, nil, nil, err
	}
	var dst net.IP
	if cm != nil {
		dst = cm.Dst
	}
	return n, dst, src.(*net.UDPAddr), nil
}

func (s *udp6Socket) WriteToUDP(b []byte, dst net.IP, addr *net.UDPAddr) (int, error) {
	var cm *ipv6.ControlMessage
	if dst != nil {
		cm = &ipv6.ControlMessage{Src: dst}
	}
	return s.pc.WriteTo(b, cm, addr)
}

func (s *udp6Socket) Close() error { return s.pc.Close() }

// udpReplyAddr is a reply's destination together with the local
// address the request arrived on, so the shared replier can answer
// from the interface the request came in on. It travels through the
// reply queue (and the request table's OrigAddr) as a net.Addr.
type udpReplyAddr struct {
	*net.UDPAddr
	local net.IP
}

// ListenAndServeUDP runs the UDP ingress path for one listening socket
// (the auth listener, or the accounting listener when
// ListenAccountingUDP is set): it reads datagrams and lazily resolves
// each source address to a Client via registry. Every UDP Client's
// Queue references the one shared reply queue drained by
// RunUDPReplyWriter.
func ListenAndServeUDP(ctx context.Context, ic *Context, sock udpSocket, registry *ClientRegistry) {
	go func() {
		<-ctx.Done()
		sock.Close()
	}()

	buf := make([]byte, 4096)
	for {
		n, dst, src, err := sock.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			ic.Log.Warn("udp read error", zap.Error(err))
			continue
		}

		client, found := registry.ResolveUDP(src)
		if !found {
			ic.Log.Debug("dropping datagram from unknown client", zap.Stringer("addr", src))
			continue
		}

		raw := make([]byte, n)
		copy(raw, buf[:n])
		go HandleIngress(ic, client, raw, &udpReplyAddr{UDPAddr: src, local: dst})
	}
}

// RunUDPReplyWriter drains the shared UDP reply queue onto the send
// socket until the queue is closed. All UDP clients enqueue onto this
// one queue; a single writer serializes their replies onto the shared
// socket pair.
func RunUDPReplyWriter(ctx context.Context, ic *Context, sock udpSocket, q *queue.Queue) {
	go func() {
		<-ctx.Done()
		q.Close()
	}()
	for {
		r, ok := q.Dequeue()
		if !ok {
			return
		}
		if ctx.Err() != nil {
			return
		}
		var local net.IP
		dst, ok := r.Dst.(*net.UDPAddr)
		if !ok {
			ra, ok := r.Dst.(*udpReplyAddr)
			if !ok {
				continue
			}
			dst, local = ra.UDPAddr, ra.local
		}
		if _, err := sock.WriteToUDP(r.Buf, local, dst); err != nil {
			ic.Log.Warn("udp reply write error", zap.Stringer("dst", dst), zap.Error(err))
		}
	}
}
