package radius

import "encoding/binary"

// DeleteAttr removes every attribute of the given type from the
// packet, rebuilding the attribute payload and updating the header
// length. It reports how many attributes were removed.
func (p *Packet) DeleteAttr(attrType byte) int {
	removed := 0
	out := make([]byte, 0, len(p.buf))
	out = append(out, p.buf[:HeaderLen]...)

	payload := p.buf[HeaderLen:]
	for offset := 0; offset < len(payload); {
		rest := payload[offset:]
		if len(rest) < 2 {
			break
		}
		l := int(rest[1])
		if l < 2 || l > len(rest) {
			break
		}
		if rest[0] == attrType {
			removed++
		} else {
			out = append(out, rest[:l]...)
		}
		offset += l
	}

	if removed > 0 {
		binary.BigEndian.PutUint16(out[2:4], uint16(len(out)))
		p.buf = out
	}
	return removed
}

// DeleteVSASub removes a vendor-specific sub-attribute: if subType <
// 0, every Vendor-Specific (type 26) attribute for vendorID is
// removed outright; otherwise only the named sub-attribute is
// stripped from each such Vendor-Specific attribute (shrinking, or
// removing outright if it was the attribute's only sub-TLV). It
// rebuilds the attribute payload and reports how many sub-attributes
// (or whole VSAs) were removed.
func (p *Packet) DeleteVSASub(vendorID uint32, subType int) int {
	removed := 0
	out := make([]byte, 0, len(p.buf))
	out = append(out, p.buf[:HeaderLen]...)

	payload := p.buf[HeaderLen:]
	for offset := 0; offset < len(payload); {
		rest := payload[offset:]
		if len(rest) < 2 {
			break
		}
		l := int(rest[1])
		if l < 2 || l > len(rest) {
			break
		}
		attr := rest[:l]
		offset += l

		if attr[0] != AttrVendorSpecific || l < 6 || binary.BigEndian.Uint32(attr[2:6]) != vendorID {
			out = append(out, attr...)
			continue
		}

		if subType < 0 {
			removed++
			continue
		}

		newAttr, ok := stripSub(attr, byte(subType))
		if !ok {
			out = append(out, attr...)
			continue
		}
		removed++
		if len(newAttr) > 6 {
			out = append(out, newAttr...)
		}
	}

	if removed > 0 {
		binary.BigEndian.PutUint16(out[2:4], uint16(len(out)))
		p.buf = out
	}
	return removed
}

// stripSub returns a copy of a Vendor-Specific attribute (type(1) |
// len(1) | vendorID(4) | sub-TLVs) with the first sub-TLV of subType
// removed and its own length byte updated, or ok=false if subType was
// not present.
func stripSub(attr []byte, subType byte) ([]byte, bool) {
	head := attr[:6]
	sub := attr[6:]

	for offset := 0; offset < len(sub); {
		rest := sub[offset:]
		if len(rest) < 2 {
			break
		}
		l := int(rest[1])
		if l < 2 || l > len(rest) {
			break
		}
		if rest[0] == subType {
			out := make([]byte, 0, len(attr)-l)
			out = append(out, head...)
			out = append(out, sub[:offset]...)
			out = append(out, sub[offset+l:]...)
			out[1] = byte(len(out))
			return out, true
		}
		offset += l
	}
	return nil, false
}
