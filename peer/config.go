// Package peer holds the live and configured state of a RadSec
// neighbor: its PeerConfig (transport, address(es), secret, optional
// TLS context and match rules), the address-matching table used to
// find a PeerConfig for an incoming packet or connection, and the
// live Client/Server records with their request table and reply
// queue reference.
package peer

import (
	"net"
	"regexp"

	"github.com/radsecd/radsecd/tlsconf"
)

// Transport selects whether a peer speaks classic RADIUS/UDP or
// RadSec/TLS-over-TCP.
type Transport int

const (
	TransportUDP Transport = iota
	TransportTLS
)

// Per-transport defaults applied when a peer block leaves the field
// unset. RadSec prescribes a fixed shared secret, since the TLS layer
// carries the real authentication.
const (
	DefaultUDPPort   = "1812"
	DefaultTLSPort   = "2083"
	DefaultTLSSecret = "mysecret"
)

// RewriteAttrRule is the optional rewriteattribute predicate: a
// regular expression over User-Name plus a replacement template using
// \1..\9 back-references.
type RewriteAttrRule struct {
	Regex       *regexp.Regexp
	Replacement string
}

// Config is a PeerConfig: the static, resolved description of one
// downstream client or upstream server.
type Config struct {
	Name string

	Transport Transport
	Host      string
	Port      string

	// Addrs holds every address Host resolved to. PrefixLen == 255
	// means "match the sockaddr against each of these exactly";
	// otherwise it is a CIDR prefix length (0..32 for IPv4, 0..128
	// for IPv6) matched against Addrs[0] only.
	Addrs     []net.IP
	PrefixLen int

	Secret string

	TLSContext  *tlsconf.Context
	CNRegex     *regexp.Regexp
	SANURIRegex *regexp.Regexp

	RewriteName string
	RewriteAttr *RewriteAttrRule

	// StatusServer and DisplayName are meaningful for server configs
	// only.
	StatusServer bool
	DisplayName  string
}

// MatchRules adapts a Config's certificate predicates to the form
// tlsconf.VerifyConfCert expects.
func (c *Config) MatchRules() tlsconf.MatchRules {
	return tlsconf.MatchRules{CNRegex: c.CNRegex, SANURIRegex: c.SANURIRegex}
}
