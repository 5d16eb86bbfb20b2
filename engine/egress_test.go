package engine

import (
	"crypto/md5"
	"testing"

	"github.com/radsecd/radsecd/config"
	"github.com/radsecd/radsecd/peer"
	"github.com/radsecd/radsecd/queue"
	"github.com/radsecd/radsecd/radcrypto"
	"github.com/radsecd/radsecd/radius"
	"go.uber.org/zap"
)

func TestHandleEgressRestoresDownstreamIdentityAndSigns(t *testing.T) {
	server := newTestServer("srv1", "upsecret")
	client := newTestClient("nas1", "downsecret")
	ic := &Context{Log: zap.NewNop(), Rewrites: map[string]config.RewriteConfig{}}

	origAuth := [16]byte{}
	for i := range origAuth {
		origAuth[i] = byte(i)
	}
	outboundAuth := make([]byte, 16)
	for i := range outboundAuth {
		outboundAuth[i] = byte(255 - i)
	}

	outbound := radius.NewReply(radius.CodeAccessRequest, 42)
	outbound.SetAuthenticator(outboundAuth)

	req := &peer.Request{
		OrigID:   9,
		OrigAuth: origAuth,
		From:     client,
		Tries:    1,
		Buf:      outbound.Bytes(),
	}
	server.Lock()
	id, ok := server.AllocateID(req)
	if !ok {
		t.Fatal("AllocateID failed")
	}
	server.Unlock()

	reply := radius.NewReply(radius.CodeAccessAccept, id)
	radcrypto.SignReply(reply, outboundAuth, server.Config.Secret)

	HandleEgress(ic, server, reply.Bytes())

	q := client.Queue.(*queue.Queue)
	r, ok := q.Dequeue()
	if !ok {
		t.Fatal("expected a reply enqueued to the client")
	}
	got, err := radius.Parse(r.Buf)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got.ID() != 9 {
		t.Fatalf("restored id = %d, want 9 (origid)", got.ID())
	}
	signed := append([]byte(nil), got.Bytes()...)
	copy(signed[4:20], origAuth[:])
	want := md5.Sum(append(signed, client.Config.Secret...))
	if string(got.Authenticator()) != string(want[:]) {
		t.Fatal("reply authenticator should be signed over the original downstream authenticator")
	}
	if !radcrypto.ValidAuth(got, origAuth[:], client.Config.Secret) {
		t.Fatal("reply should be validly signed with the downstream secret")
	}

	server.Lock()
	stillThere := server.RequestAt(id)
	server.Unlock()
	if stillThere == nil || !stillThere.Received {
		t.Fatal("request slot should be marked Received after a good reply")
	}
}

func TestHandleEgressDropsBadResponseAuthenticator(t *testing.T) {
	server := newTestServer("srv1", "upsecret")
	client := newTestClient("nas1", "downsecret")
	ic := &Context{Log: zap.NewNop(), Rewrites: map[string]config.RewriteConfig{}}

	outboundAuth := make([]byte, 16)
	outbound := radius.NewReply(radius.CodeAccessRequest, 1)
	outbound.SetAuthenticator(outboundAuth)

	req := &peer.Request{OrigID: 5, From: client, Tries: 1, Buf: outbound.Bytes()}
	server.Lock()
	id, _ := server.AllocateID(req)
	server.Unlock()

	reply := radius.NewReply(radius.CodeAccessAccept, id)
	reply.SetAuthenticator(make([]byte, 16)) // wrong: not signed at all

	HandleEgress(ic, server, reply.Bytes())

	q := client.Queue.(*queue.Queue)
	if q.Len() != 0 {
		t.Fatal("a reply with a bad Response Authenticator must not be forwarded")
	}
}

func TestHandleEgressIgnoresUntriedSlot(t *testing.T) {
	server := newTestServer("srv1", "upsecret")
	ic := &Context{Log: zap.NewNop(), Rewrites: map[string]config.RewriteConfig{}}

	req := &peer.Request{Tries: 0}
	server.Lock()
	id, _ := server.AllocateID(req)
	server.Unlock()

	reply := radius.NewReply(radius.CodeAccessAccept, id)
	reply.SetAuthenticator(make([]byte, 16))

	HandleEgress(ic, server, reply.Bytes())

	server.Lock()
	stillUntried := server.RequestAt(id)
	server.Unlock()
	if stillUntried == nil || stillUntried.Received {
		t.Fatal("an untried slot's reply must be ignored, not marked received")
	}
}
