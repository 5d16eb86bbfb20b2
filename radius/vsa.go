package radius

import "encoding/binary"

// VSAValue locates the value bytes of a single vendor-specific
// sub-attribute (vendorID, subType) inside p, searching every
// Vendor-Specific (type 26) attribute in wire order. A Vendor-Specific
// attribute's value is laid out as vendorID(4, big-endian) followed by
// one or more sub-TLVs of subType(1) | subLen(1) | subValue(subLen-2).
// The returned slice aliases the packet buffer, so callers may mutate
// it in place (this is exactly what MS-MPPE key re-keying needs, since
// re-keying never changes the sub-attribute's length).
func (p *Packet) VSAValue(vendorID uint32, subType byte) ([]byte, bool) {
	payload := p.buf[HeaderLen:]
	for len(payload) >= 2 {
		l := int(payload[1])
		if l < 2 || l > len(payload) {
			return nil, false
		}
		if payload[0] == AttrVendorSpecific && l >= 6 {
			vsaBody := payload[2:l]
			if binary.BigEndian.Uint32(vsaBody[0:4]) == vendorID {
				sub := vsaBody[4:]
				for len(sub) >= 2 {
					subLen := int(sub[1])
					if subLen < 2 || subLen > len(sub) {
						break
					}
					if sub[0] == subType {
						return sub[2:subLen], true
					}
					sub = sub[subLen:]
				}
			}
		}
		payload = payload[l:]
	}
	return nil, false
}
