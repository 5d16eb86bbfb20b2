package engine

import (
	"github.com/radsecd/radsecd/internal/metrics"
	"github.com/radsecd/radsecd/peer"
	"github.com/radsecd/radsecd/radcrypto"
	"github.com/radsecd/radsecd/radius"
	"go.uber.org/zap"
)

// HandleEgress processes one reply packet received from server: it
// validates the reply against the matching
// in-flight Request, re-keys MS-MPPE attributes, restores the
// downstream identity fields, re-signs, and enqueues it on the
// originating Client's reply queue.
func HandleEgress(ic *Context, server *peer.Server, raw []byte) {
	p, err := radius.Parse(raw)
	if err != nil {
		ic.Log.Debug("dropping malformed reply", zap.String("server", server.Config.Name), zap.Error(err))
		return
	}
	switch p.Code() {
	case radius.CodeAccessAccept, radius.CodeAccessReject, radius.CodeAccessChallenge:
	default:
		ic.Log.Debug("dropping unexpected reply code", zap.String("server", server.Config.Name), zap.Stringer("code", p.Code()))
		return
	}

	server.Lock()
	defer server.Unlock()

	server.ConnectionOK = true
	server.LostStatSrv = 0
	metrics.M.ConnectionUp.WithLabelValues(server.Config.Name).Set(1)
	metrics.M.LostStatSrv.WithLabelValues(server.Config.Name).Set(0)

	req := server.RequestAt(p.ID())
	if req == nil || req.Tries == 0 || req.Received {
		metrics.M.DroppedRepliesTotal.WithLabelValues(server.Config.Name, "unmatched_id").Inc()
		return
	}

	reqAuth := append([]byte(nil), req.Buf[4:20]...)

	if !radcrypto.ValidAuth(p, reqAuth, server.Config.Secret) {
		ic.Log.Info("dropping reply with bad Response Authenticator", zap.String("server", server.Config.Name))
		metrics.M.DroppedRepliesTotal.WithLabelValues(server.Config.Name, "bad_response_authenticator").Inc()
		return
	}

	if ma, ok := p.Get(radius.AttrMessageAuthenticator); ok {
		saved := append([]byte(nil), p.Authenticator()...)
		p.SetAuthenticator(reqAuth)
		valid := radcrypto.VerifyMessageAuthenticator(p, ma, server.Config.Secret)
		p.SetAuthenticator(saved)
		if !valid {
			ic.Log.Info("dropping reply with bad Message-Authenticator", zap.String("server", server.Config.Name))
			metrics.M.DroppedRepliesTotal.WithLabelValues(server.Config.Name, "bad_message_authenticator").Inc()
			return
		}
	}

	metrics.M.RepliesTotal.WithLabelValues(server.Config.Name, p.Code().String()).Inc()

	if req.IsProbe {
		req.Received = true
		return
	}
	if req.From == nil {
		req.Received = true
		return
	}

	applyRewrite(p, ic.rewriteFor(server.Config.RewriteName))

	if v, ok := p.VSAValue(radius.VendorMicrosoft, radius.VSAMSMPPESendKey); ok {
		if newVal, err := radcrypto.MSMPPERecrypt(v, server.Config.Secret, req.From.Config.Secret, reqAuth, req.OrigAuth[:]); err == nil && len(newVal) == len(v) {
			copy(v, newVal)
		}
	}
	if v, ok := p.VSAValue(radius.VendorMicrosoft, radius.VSAMSMPPERecvKey); ok {
		if newVal, err := radcrypto.MSMPPERecrypt(v, server.Config.Secret, req.From.Config.Secret, reqAuth, req.OrigAuth[:]); err == nil && len(newVal) == len(v) {
			copy(v, newVal)
		}
	}

	p.SetID(req.OrigID)
	p.SetAuthenticator(req.OrigAuth[:])

	if req.OrigUserName != nil {
		if _, err := p.ResizeAttr(radius.AttrUserName, req.OrigUserName); err != nil {
			ic.Log.Warn("restoring original User-Name", zap.Error(err))
		}
	}

	if ma, ok := p.Get(radius.AttrMessageAuthenticator); ok {
		sum := radcrypto.ComputeMessageAuthenticator(p, ma, req.From.Config.Secret)
		copy(ma, sum)
	}

	radcrypto.SignReply(p, req.OrigAuth[:], req.From.Config.Secret)

	req.From.Queue.Enqueue(p.Bytes(), req.OrigAddr)
	req.Received = true
}
