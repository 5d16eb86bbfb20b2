package engine

import (
	"strings"

	"github.com/radsecd/radsecd/config"
	"github.com/radsecd/radsecd/peer"
	"github.com/radsecd/radsecd/radius"
)

// applyRewrite strips every attribute and vendor sub-attribute rw
// names from p, per the config file's Rewrite block. A nil rw is a
// no-op, matching a PeerConfig with no rewrite rule configured.
func applyRewrite(p *radius.Packet, rw *config.RewriteConfig) {
	if rw == nil {
		return
	}
	for _, t := range rw.RemoveAttribute {
		p.DeleteAttr(byte(t))
	}
	for _, v := range rw.RemoveVendorAttribute {
		p.DeleteVSASub(v.Vendor, v.SubType)
	}
}

// rewriteUserName applies rule's regex/replacement to userName per
// the client's rewriteattribute rule, returning the rewritten value
// and true if rule matched. A nil rule is a no-op.
func rewriteUserName(rule *peer.RewriteAttrRule, userName string) (string, bool) {
	if rule == nil || !rule.Regex.MatchString(userName) {
		return userName, false
	}
	return rule.Regex.ReplaceAllString(userName, backrefTemplate(rule.Replacement)), true
}

// backrefTemplate converts a rewriteattribute replacement's \1..\9
// back-references into the $1..$9 syntax regexp.ReplaceAllString
// expects, and escapes any literal '$' so it survives unchanged.
func backrefTemplate(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '$':
			b.WriteString("$$")
		case c == '\\' && i+1 < len(s) && s[i+1] >= '1' && s[i+1] <= '9':
			b.WriteByte('$')
			b.WriteByte(s[i+1])
			i++
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
