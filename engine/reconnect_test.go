package engine

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/radsecd/radsecd/peer"
	"github.com/radsecd/radsecd/tlsconf"
	"go.uber.org/zap"
)

func TestBackoffDurationStartup(t *testing.T) {
	if d := backoffDuration(time.Time{}, false, time.Now()); d != 0 {
		t.Fatalf("startup (zero lastTry) should not sleep, got %v", d)
	}
}

func TestBackoffDurationPreviouslyUp(t *testing.T) {
	now := time.Now()
	if d := backoffDuration(now.Add(-time.Hour), true, now); d != 2*time.Second {
		t.Fatalf("reconnect of a previously-up server should sleep 2s, got %v", d)
	}
}

func TestBackoffDurationVeryRecentFailure(t *testing.T) {
	now := time.Now()
	if d := backoffDuration(now.Add(-500*time.Millisecond), false, now); d != 2*time.Second {
		t.Fatalf("elapsed < 1s should sleep 2s, got %v", d)
	}
}

func TestBackoffDurationMidRangeMirrorsElapsed(t *testing.T) {
	now := time.Now()
	elapsed := 30 * time.Second
	d := backoffDuration(now.Add(-elapsed), false, now)
	if d < elapsed-time.Second || d > elapsed+time.Second {
		t.Fatalf("1s <= elapsed < 60s should sleep ~elapsed (%v), got %v", elapsed, d)
	}
}

func TestBackoffDurationCapsAtSixtySeconds(t *testing.T) {
	now := time.Now()
	if d := backoffDuration(now.Add(-5*time.Minute), false, now); d != 60*time.Second {
		t.Fatalf("60s <= elapsed < 100000s should cap at 60s, got %v", d)
	}
}

func TestBackoffDurationTreatsStaleAsStartup(t *testing.T) {
	now := time.Now()
	if d := backoffDuration(now.Add(-200000*time.Second), false, now); d != 0 {
		t.Fatalf("elapsed >= 100000s should not sleep, got %v", d)
	}
}

// TestReconnectBackoffEscalates drives the full Reconnect loop against
// a listener that accepts and immediately closes every connection, so
// each handshake fails, and asserts the gap between consecutive dial
// attempts grows: because LastConnectTry only advances on success, the
// elapsed time feeding the back-off keeps accumulating across
// failures.
func TestReconnectBackoffEscalates(t *testing.T) {
	if testing.Short() {
		t.Skip("multi-second back-off timing test")
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	attempts := make(chan time.Time, 8)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			attempts <- time.Now()
			conn.Close()
		}
	}()

	_, port, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		t.Fatalf("SplitHostPort: %v", err)
	}
	srv := peer.NewServer(&peer.Config{
		Name:       "srv1",
		Transport:  peer.TransportTLS,
		Host:       "127.0.0.1",
		Port:       port,
		TLSContext: &tlsconf.Context{Name: "t"},
	})
	// Seed the last-success timestamp so the loop starts in the
	// back-off regime rather than the no-sleep startup path.
	srv.LastConnectTry = time.Now()
	ic := &Context{Log: zap.NewNop()}

	done := make(chan struct{})
	go func() {
		Reconnect(ctx, ic, srv, srv.LastConnectTry)
		close(done)
	}()

	var times []time.Time
	for len(times) < 3 {
		select {
		case ts := <-attempts:
			times = append(times, ts)
		case <-time.After(30 * time.Second):
			t.Fatalf("saw only %d dial attempts before timing out", len(times))
		}
	}
	cancel()
	<-done

	first := times[1].Sub(times[0])
	second := times[2].Sub(times[1])
	if second < first+500*time.Millisecond {
		t.Fatalf("back-off did not escalate: gaps %v then %v", first, second)
	}
}
