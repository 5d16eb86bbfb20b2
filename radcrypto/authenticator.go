// Package radcrypto implements the RFC 2865/2869/2548 per-hop crypto
// operations the proxy needs to re-sign and re-encrypt a packet when
// forwarding it to a new peer: Response Authenticator sign/verify,
// Message-Authenticator compute/verify, and the User-Password,
// Tunnel-Password and MS-MPPE key stream ciphers. Every operation
// constructs its digest context per call, so all of them are safe for
// concurrent use.
package radcrypto

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/subtle"

	"github.com/radsecd/radsecd/radius"
)

// SignReply computes the Response Authenticator for an outbound reply
// and writes it into the packet's authenticator field. reqAuth is the
// authenticator of the request this is a reply to (RFC 2865 section 3):
//
//	MD5(code || id || length || reqAuth || attributes || secret)
func SignReply(p *radius.Packet, reqAuth []byte, secret string) {
	copy(p.Authenticator(), reqAuth)
	sum := computeAuth(p, secret)
	p.SetAuthenticator(sum)
}

// ValidAuth reports whether p's authenticator matches the Response
// Authenticator computed from reqAuth and secret.
func ValidAuth(p *radius.Packet, reqAuth []byte, secret string) bool {
	got := make([]byte, 16)
	copy(got, p.Authenticator())

	copy(p.Authenticator(), reqAuth)
	want := computeAuth(p, secret)
	copy(p.Authenticator(), got)

	return subtle.ConstantTimeCompare(got, want) == 1
}

func computeAuth(p *radius.Packet, secret string) []byte {
	h := md5.New()
	h.Write(p.Bytes())
	h.Write([]byte(secret))
	return h.Sum(nil)
}

// ComputeMessageAuthenticator returns the HMAC-MD5(secret) of p with
// the Message-Authenticator attribute's value temporarily zeroed, per
// RFC 2869 section 5.14. maValue must be the 16-byte slice of the
// packet's own Message-Authenticator attribute (as returned by
// radius.Packet.Get), so the zeroing and restoration happen in place.
func ComputeMessageAuthenticator(p *radius.Packet, maValue []byte, secret string) []byte {
	saved := make([]byte, len(maValue))
	copy(saved, maValue)
	for i := range maValue {
		maValue[i] = 0
	}

	mac := hmac.New(md5.New, []byte(secret))
	mac.Write(p.Bytes())
	sum := mac.Sum(nil)

	copy(maValue, saved)
	return sum
}

// VerifyMessageAuthenticator reports whether p's own Message-Authenticator
// attribute value is correct for secret. maValue is the attribute's
// value slice as found in p (must be 16 bytes).
func VerifyMessageAuthenticator(p *radius.Packet, maValue []byte, secret string) bool {
	if len(maValue) != 16 {
		return false
	}
	want := ComputeMessageAuthenticator(p, maValue, secret)
	return subtle.ConstantTimeCompare(maValue, want) == 1
}
