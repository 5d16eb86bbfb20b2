package engine

import (
	"testing"
	"time"

	"github.com/radsecd/radsecd/peer"
	"github.com/radsecd/radsecd/radcrypto"
	"github.com/radsecd/radsecd/radius"
)

func TestNextDeadlineImmediateWhenUntried(t *testing.T) {
	srv := peer.NewServer(&peer.Config{Name: "s1"})
	srv.Lock()
	defer srv.Unlock()
	srv.AllocateID(&peer.Request{})
	if d := nextDeadline(srv); d.After(time.Now().Add(time.Millisecond)) {
		t.Fatalf("expected an immediate deadline for a fresh request, got %v in the future", time.Until(d))
	}
}

func TestNextDeadlineUsesEarliestExpiry(t *testing.T) {
	srv := peer.NewServer(&peer.Config{Name: "s1"})
	srv.Lock()
	defer srv.Unlock()
	soon := time.Now().Add(2 * time.Second)
	later := time.Now().Add(10 * time.Second)
	srv.AllocateID(&peer.Request{Tries: 1, Expiry: later})
	srv.AllocateID(&peer.Request{Tries: 1, Expiry: soon})
	if d := nextDeadline(srv); d.After(soon.Add(time.Millisecond)) {
		t.Fatalf("expected deadline near %v, got %v", soon, d)
	}
}

func TestNextDeadlineSkipsReceivedSlots(t *testing.T) {
	srv := peer.NewServer(&peer.Config{Name: "s1"})
	srv.Lock()
	defer srv.Unlock()
	srv.AllocateID(&peer.Request{Tries: 1, Received: true, Expiry: time.Now().Add(time.Second)})
	d := nextDeadline(srv)
	if d.Before(time.Now().Add(StatusServerPeriod - time.Second)) {
		t.Fatalf("a received-only table should not contribute a deadline, got %v", time.Until(d))
	}
}

func TestNextDeadlineStatusServerPeriod(t *testing.T) {
	srv := peer.NewServer(&peer.Config{Name: "s1", StatusServer: true})
	srv.LastSend = time.Now()
	srv.Lock()
	defer srv.Unlock()
	d := nextDeadline(srv)
	lo := srv.LastSend.Add(StatusServerPeriod - time.Second)
	hi := srv.LastSend.Add(StatusServerPeriod + 8*time.Second)
	if d.Before(lo) || d.After(hi) {
		t.Fatalf("status-server deadline %v outside [%v, %v]", d, lo, hi)
	}
}

func TestMaybeSynthesizeStatusProbeSignsMessageAuthenticator(t *testing.T) {
	srv := peer.NewServer(&peer.Config{Name: "s1", Secret: "xyz", StatusServer: true})
	srv.LastSend = time.Now().Add(-StatusServerPeriod - time.Second)
	srv.Lock()
	defer srv.Unlock()

	buf := maybeSynthesizeStatusProbe(srv, time.Now())
	if buf == nil {
		t.Fatal("expected a probe packet")
	}
	p, err := radius.Parse(buf)
	if err != nil {
		t.Fatalf("probe did not parse: %v", err)
	}
	ma, ok := p.Get(radius.AttrMessageAuthenticator)
	if !ok {
		t.Fatal("probe should carry a Message-Authenticator")
	}
	if !radcrypto.VerifyMessageAuthenticator(p, ma, "xyz") {
		t.Fatal("probe Message-Authenticator should verify under the server secret")
	}
}

func TestMaybeSynthesizeStatusProbeSkipsWhenDisabled(t *testing.T) {
	srv := peer.NewServer(&peer.Config{Name: "s1", StatusServer: false})
	srv.Lock()
	defer srv.Unlock()
	if got := maybeSynthesizeStatusProbe(srv, time.Now()); got != nil {
		t.Fatal("expected no probe when StatusServer is disabled")
	}
}

func TestMaybeSynthesizeStatusProbeSkipsBeforePeriodElapses(t *testing.T) {
	srv := peer.NewServer(&peer.Config{Name: "s1", StatusServer: true})
	srv.LastSend = time.Now()
	srv.Lock()
	defer srv.Unlock()
	if got := maybeSynthesizeStatusProbe(srv, time.Now()); got != nil {
		t.Fatal("expected no probe before StatusServerPeriod elapses")
	}
}

func TestMaybeSynthesizeStatusProbeBuildsValidPacket(t *testing.T) {
	srv := peer.NewServer(&peer.Config{Name: "s1", StatusServer: true})
	srv.LastSend = time.Now().Add(-StatusServerPeriod - time.Second)
	srv.Lock()
	defer srv.Unlock()

	buf := maybeSynthesizeStatusProbe(srv, time.Now())
	if buf == nil {
		t.Fatal("expected a probe packet")
	}
	if len(buf) != 38 {
		t.Fatalf("probe length = %d, want 38", len(buf))
	}
	p, err := radius.Parse(buf)
	if err != nil {
		t.Fatalf("probe did not parse as a valid packet: %v", err)
	}
	if p.Code() != radius.CodeStatusServer {
		t.Fatalf("probe code = %v, want Status-Server", p.Code())
	}
	if _, ok := p.Get(radius.AttrMessageAuthenticator); !ok {
		t.Fatal("probe should carry a Message-Authenticator placeholder")
	}
	if req := srv.RequestAt(p.ID()); req == nil || !req.IsProbe {
		t.Fatal("probe should have installed an IsProbe request slot")
	}
}
