package engine

import (
	"crypto/rand"
	"net"

	"github.com/radsecd/radsecd/internal/metrics"
	"github.com/radsecd/radsecd/peer"
	"github.com/radsecd/radsecd/radcrypto"
	"github.com/radsecd/radsecd/radius"
	"github.com/radsecd/radsecd/realm"
	"go.uber.org/zap"
)

// HandleIngress processes one request packet from client. from is the
// UDP source address for UDP clients, nil for
// TLS clients (the connection itself identifies the sender).
func HandleIngress(ic *Context, client *peer.Client, raw []byte, from net.Addr) {
	p, err := radius.Parse(raw)
	if err != nil {
		ic.Log.Debug("dropping malformed packet", zap.String("client", client.Config.Name), zap.Error(err))
		return
	}

	switch p.Code() {
	case radius.CodeAccessRequest:
		handleAccessRequest(ic, client, p, from)
	case radius.CodeAccountingRequest:
		handleAccountingRequest(ic, client, p, from)
	case radius.CodeStatusServer:
		handleStatusServer(ic, client, p, from)
	default:
		ic.Log.Debug("dropping unexpected request code", zap.String("client", client.Config.Name), zap.Stringer("code", p.Code()))
	}
}

func handleAccessRequest(ic *Context, client *peer.Client, p *radius.Packet, from net.Addr) {
	metrics.M.RequestsTotal.WithLabelValues(client.Config.Name, p.Code().String()).Inc()

	if ma, ok := p.Get(radius.AttrMessageAuthenticator); ok {
		if !radcrypto.VerifyMessageAuthenticator(p, ma, client.Config.Secret) {
			ic.Log.Info("dropping Access-Request with bad Message-Authenticator", zap.String("client", client.Config.Name))
			return
		}
	}

	applyRewrite(p, ic.rewriteFor(client.Config.RewriteName))

	origID := p.ID()

	userName, _ := p.Get(radius.AttrUserName)
	name := string(userName)

	var origUserName []byte
	if client.Config.RewriteAttr != nil {
		if rewritten, matched := rewriteUserName(client.Config.RewriteAttr, name); matched {
			origUserName = append([]byte(nil), userName...)
			if _, err := p.ResizeAttr(radius.AttrUserName, []byte(rewritten)); err != nil {
				ic.Log.Warn("rewriting User-Name", zap.Error(err))
				return
			}
			name = rewritten
		}
	}

	rl, ok := ic.Router.Match(name)
	if !ok {
		ic.Log.Debug("no realm matches User-Name, dropping", zap.String("client", client.Config.Name))
		return
	}
	server, ok := realm.SelectServer(rl)
	if !ok {
		if rl.ReplyMessage != "" {
			metrics.M.RejectsTotal.WithLabelValues(rl.Name).Inc()
			sendLocalReject(client, p, rl.ReplyMessage, from)
		}
		return
	}

	server.Lock()
	if server.FindDuplicate(client, origID) {
		server.Unlock()
		ic.Log.Debug("dropping duplicate Access-Request", zap.String("client", client.Config.Name), zap.Uint8("id", origID))
		metrics.M.DuplicatesTotal.WithLabelValues(client.Config.Name).Inc()
		return
	}

	origAuth := [16]byte{}
	copy(origAuth[:], p.Authenticator())

	freshAuth := make([]byte, 16)
	if _, err := rand.Read(freshAuth); err != nil {
		server.Unlock()
		ic.Log.Error("generating fresh authenticator", zap.Error(err))
		return
	}

	if v, ok := p.Get(radius.AttrUserPassword); ok {
		newVal, err := radcrypto.PwdRecrypt(v, client.Config.Secret, server.Config.Secret, origAuth[:], freshAuth)
		if err != nil {
			server.Unlock()
			ic.Log.Warn("re-encrypting User-Password", zap.Error(err))
			return
		}
		copy(v, newVal)
	}
	if v, ok := p.Get(radius.AttrTunnelPassword); ok {
		newVal, err := radcrypto.TunnelPwdRecrypt(v, client.Config.Secret, server.Config.Secret, origAuth[:], freshAuth)
		if err != nil || len(newVal) != len(v) {
			server.Unlock()
			ic.Log.Warn("re-encrypting Tunnel-Password", zap.Error(err))
			return
		}
		copy(v, newVal)
	}

	p.SetAuthenticator(freshAuth)

	req := &peer.Request{
		OrigID:       origID,
		OrigAuth:     origAuth,
		OrigUserName: origUserName,
		From:         client,
		OrigAddr:     from,
	}
	id, ok := server.AllocateID(req)
	if !ok {
		server.Unlock()
		ic.Log.Warn("upstream request table full, dropping", zap.String("server", server.Config.Name))
		return
	}
	p.SetID(id)

	if ma, ok := p.Get(radius.AttrMessageAuthenticator); ok {
		sum := radcrypto.ComputeMessageAuthenticator(p, ma, server.Config.Secret)
		copy(ma, sum)
	}

	req.Buf = append([]byte(nil), p.Bytes()...)
	server.SignalNewRequest()
	server.Unlock()
}

// handleAccountingRequest answers locally with an Accounting-Response;
// the request is not relayed upstream. Forwarding accounting with
// per-realm attribute filtering is a known follow-up.
func handleAccountingRequest(ic *Context, client *peer.Client, p *radius.Packet, from net.Addr) {
	metrics.M.RequestsTotal.WithLabelValues(client.Config.Name, p.Code().String()).Inc()
	userName, _ := p.Get(radius.AttrUserName)
	ic.Log.Info("accounting request", zap.String("client", client.Config.Name), zap.ByteString("user", userName))

	reqAuth := append([]byte(nil), p.Authenticator()...)
	reply := radius.NewReply(radius.CodeAccountingResponse, p.ID())
	radcrypto.SignReply(reply, reqAuth, client.Config.Secret)
	client.Queue.Enqueue(reply.Bytes(), from)
}

func handleStatusServer(ic *Context, client *peer.Client, p *radius.Packet, from net.Addr) {
	reqAuth := append([]byte(nil), p.Authenticator()...)
	reply := radius.NewReply(radius.CodeAccessAccept, p.ID())
	radcrypto.SignReply(reply, reqAuth, client.Config.Secret)
	client.Queue.Enqueue(reply.Bytes(), from)
}

// sendLocalReject builds and enqueues an Access-Reject carrying a
// realm's configured ReplyMessage, for when a realm matches but has no
// usable upstream server.
func sendLocalReject(client *peer.Client, p *radius.Packet, msg string, from net.Addr) {
	reqAuth := append([]byte(nil), p.Authenticator()...)
	reply := radius.NewReply(radius.CodeAccessReject, p.ID())
	_ = reply.AppendAttr(radius.AttrReplyMessage, []byte(msg))
	radcrypto.SignReply(reply, reqAuth, client.Config.Secret)
	client.Queue.Enqueue(reply.Bytes(), from)
}
