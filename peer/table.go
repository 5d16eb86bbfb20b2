package peer

import "net"

// Table is an ordered set of Configs searched by address. Order is
// significant: it is both the declared configuration order and the
// order FindConf walks on each call.
type Table struct {
	configs []*Config
}

// NewTable returns a Table over configs in the given (declared) order.
func NewTable(configs []*Config) *Table {
	return &Table{configs: configs}
}

// Cursor resumes a FindConf walk. Its zero value starts from the
// beginning of the table.
type Cursor struct {
	next int
}

// FindConf returns the first Config at or after cursor whose resolved
// address set matches addr: PrefixLen == 255
// compares addr against every resolved address exactly; otherwise addr
// is checked against Addrs[0] under the CIDR described by PrefixLen.
// It returns the matching Config, an updated Cursor that resumes the
// search just past it (for the TLS acceptor's multi-candidate
// iteration), and ok=false once the table is exhausted.
//
// addr must already be normalized (IPv4-mapped-in-IPv6 folded to plain
// IPv4) by the caller, since that normalization happens once per
// accepted connection or datagram, not once per candidate.
func (t *Table) FindConf(addr net.IP, cursor Cursor) (*Config, Cursor, bool) {
	for i := cursor.next; i < len(t.configs); i++ {
		if addrMatches(t.configs[i], addr) {
			return t.configs[i], Cursor{next: i + 1}, true
		}
	}
	return nil, Cursor{next: len(t.configs)}, false
}

func addrMatches(c *Config, addr net.IP) bool {
	if len(c.Addrs) == 0 {
		return false
	}
	if c.PrefixLen == 255 {
		for _, a := range c.Addrs {
			if a.Equal(addr) {
				return true
			}
		}
		return false
	}
	base := c.Addrs[0]
	return cidrContains(base, c.PrefixLen, addr)
}

// cidrContains reports whether addr falls within the network formed
// by base/prefixLen, treating IPv4 and IPv6 addresses by their native
// bit width (32 and 128 respectively). base and addr must be of the
// same family; a mismatch is treated as no match rather than an error,
// since the two can never legitimately be compared.
func cidrContains(base net.IP, prefixLen int, addr net.IP) bool {
	b4, bIs4 := to4(base)
	a4, aIs4 := to4(addr)
	if bIs4 != aIs4 {
		return false
	}
	if bIs4 {
		mask := net.CIDRMask(prefixLen, 32)
		return b4.Mask(mask).Equal(a4.Mask(mask))
	}
	mask := net.CIDRMask(prefixLen, 128)
	return base.Mask(mask).Equal(addr.Mask(mask))
}

func to4(ip net.IP) (net.IP, bool) {
	if v4 := ip.To4(); v4 != nil {
		return v4, true
	}
	return ip, false
}

// NormalizeAddr folds an IPv4-mapped-in-IPv6 address down to plain
// IPv4, so address matching sees one canonical form per peer.
func NormalizeAddr(addr net.IP) net.IP {
	if v4 := addr.To4(); v4 != nil {
		return v4
	}
	return addr
}
