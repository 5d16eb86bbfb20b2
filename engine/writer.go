package engine

import (
	"context"
	"crypto/rand"
	"time"

	"github.com/radsecd/radsecd/internal/metrics"
	"github.com/radsecd/radsecd/peer"
	"github.com/radsecd/radsecd/radcrypto"
	"github.com/radsecd/radsecd/radius"
	"go.uber.org/zap"
)

// Transmit sends one request buffer to the upstream server, returning
// an error if the send itself failed (a dead TCP/TLS connection, a
// UDP sendto error). It does not wait for a reply.
type Transmit func(buf []byte) error

// RunWriter is the per-upstream-server writer loop: it wakes on new
// requests or its own retry/expiry/status-server
// timers, retransmits or expires each live request-table slot, and
// periodically synthesizes a Status-Server probe when the server has
// StatusServer enabled. reconnect is called (without the server lock
// held) when transmit fails on a TLS server; it runs the reconnection
// state machine in engine/reconnect.go, and the failed transmit is
// retried once after it returns.
func RunWriter(ctx context.Context, ic *Context, server *peer.Server, transmit Transmit, reconnect func()) {
	log := ic.Log.With(zap.String("server", server.Config.Name))

	if server.Config.StatusServer {
		server.Lock()
		if server.LastSend.IsZero() {
			server.LastSend = time.Now()
		}
		server.Unlock()
	}

	for {
		server.Lock()
		server.WaitForWork(nextDeadline(server))
		if ctx.Err() != nil {
			server.Unlock()
			return
		}

		now := time.Now()
		var toSend [][]byte
		inFlight := 0
		for id := 0; id < peer.MaxRequests; id++ {
			req := server.RequestAt(byte(id))
			if req == nil {
				continue
			}
			if req.Received {
				server.ClearAt(byte(id))
				continue
			}
			inFlight++

			maxTries := RequestRetries
			if server.Config.Transport == peer.TransportTLS || req.IsProbe {
				maxTries = 1
			}

			if req.Tries > 0 && req.Expiry.After(now) {
				continue
			}
			if req.Tries >= maxTries {
				if req.IsProbe {
					server.BumpLostStatSrv()
					metrics.M.LostStatSrv.WithLabelValues(server.Config.Name).Set(float64(server.LostStatSrv))
				}
				server.ClearAt(byte(id))
				inFlight--
				continue
			}

			if req.Tries > 0 {
				metrics.M.RetriesTotal.WithLabelValues(server.Config.Name).Inc()
			}
			if server.Config.Transport == peer.TransportTLS || req.IsProbe {
				req.Expiry = now.Add(RequestExpiry)
			} else {
				req.Expiry = now.Add(RequestExpiry / RequestRetries)
			}
			req.Tries++
			toSend = append(toSend, req.Buf)
		}
		metrics.M.RequestsInFlight.WithLabelValues(server.Config.Name).Set(float64(inFlight))

		statusProbe := maybeSynthesizeStatusProbe(server, now)
		if statusProbe != nil {
			metrics.M.StatusProbesTotal.WithLabelValues(server.Config.Name).Inc()
			toSend = append(toSend, statusProbe)
		}
		if len(toSend) > 0 {
			server.LastSend = now
		}
		server.Unlock()

		for _, buf := range toSend {
			err := transmit(buf)
			if err != nil && server.Config.Transport == peer.TransportTLS && reconnect != nil {
				log.Warn("transmit failed, reconnecting", zap.Error(err))
				reconnect()
				err = transmit(buf)
			}
			if err != nil {
				log.Warn("transmit failed", zap.Error(err))
			}
		}
	}
}

// nextDeadline computes when the writer should next wake even absent a
// new request: the earliest pending retry/expiry across the request
// table, or, with StatusServer enabled, the next probe time (the last
// send plus the period plus 0-7 seconds of jitter so a fleet of
// proxies doesn't probe in lockstep). Must be called with the lock
// held.
func nextDeadline(server *peer.Server) time.Time {
	var deadline time.Time
	if server.Config.StatusServer {
		deadline = server.LastSend.Add(StatusServerPeriod + statusJitter())
	} else {
		deadline = time.Now().Add(time.Hour)
	}
	for id := 0; id < peer.MaxRequests; id++ {
		req := server.RequestAt(byte(id))
		if req == nil || req.Received {
			continue
		}
		if req.Tries == 0 {
			return time.Now()
		}
		if req.Expiry.Before(deadline) {
			deadline = req.Expiry
		}
	}
	return deadline
}

// maybeSynthesizeStatusProbe builds and installs a Status-Server probe
// request in a free request-table slot if server has StatusServer
// enabled and StatusServerPeriod has elapsed since the last send. It
// returns the probe's wire bytes, or nil if none was due or the table
// was full. Must be called with the lock held.
func maybeSynthesizeStatusProbe(server *peer.Server, now time.Time) []byte {
	if !server.Config.StatusServer {
		return nil
	}
	if now.Sub(server.LastSend) < StatusServerPeriod {
		return nil
	}

	auth := make([]byte, 16)
	_, _ = rand.Read(auth)
	p := radius.NewReply(radius.CodeStatusServer, 0)
	p.SetAuthenticator(auth)
	_ = p.AppendAttr(radius.AttrMessageAuthenticator, make([]byte, 16))

	req := &peer.Request{IsProbe: true}
	id, ok := server.AllocateID(req)
	if !ok {
		return nil
	}
	p.SetID(id)
	if ma, ok := p.Get(radius.AttrMessageAuthenticator); ok {
		sum := radcrypto.ComputeMessageAuthenticator(p, ma, server.Config.Secret)
		copy(ma, sum)
	}
	req.Buf = append([]byte(nil), p.Bytes()...)
	req.Tries = 1
	req.Expiry = now.Add(RequestExpiry)
	return req.Buf
}

// statusJitter returns a 0..7 second probe jitter.
func statusJitter() time.Duration {
	var b [1]byte
	_, _ = rand.Read(b[:])
	return time.Duration(b[0]>>5) * time.Second
}
