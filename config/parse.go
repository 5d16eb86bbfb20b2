package config

import (
	"strconv"
	"strings"
)

// Parse consumes a full token stream and returns the parsed File. It
// implements the configuration grammar: a flat set of
// top-level directives, interleaved with `TLS`, `Rewrite`, `Client`,
// `Server`, and `Realm` named blocks in any order.
func Parse(tokens []Token) (*File, error) {
	d := NewDispenser(tokens)
	f := &File{}

	for d.Next() {
		switch strings.ToLower(d.Val()) {
		case "listenudp":
			if !d.NextArg() {
				return nil, d.ArgErr()
			}
			f.ListenUDP = d.Val()
		case "listentcp":
			if !d.NextArg() {
				return nil, d.ArgErr()
			}
			f.ListenTCP = d.Val()
		case "listenaccountingudp":
			if !d.NextArg() {
				return nil, d.ArgErr()
			}
			f.ListenAccountingUDP = d.Val()
		case "sourceudp":
			if !d.NextArg() {
				return nil, d.ArgErr()
			}
			f.SourceUDP = d.Val()
		case "sourcetcp":
			if !d.NextArg() {
				return nil, d.ArgErr()
			}
			f.SourceTCP = d.Val()
		case "loglevel":
			if !d.NextArg() {
				return nil, d.ArgErr()
			}
			n, err := strconv.Atoi(d.Val())
			if err != nil || n < 1 || n > 4 {
				return nil, d.Errf("LogLevel must be an integer 1..4, got %q", d.Val())
			}
			f.LogLevel = n
		case "logdestination":
			if !d.NextArg() {
				return nil, d.ArgErr()
			}
			f.LogDestination = d.Val()
		case "tls":
			t, err := parseTLSBlock(d)
			if err != nil {
				return nil, err
			}
			f.TLS = append(f.TLS, t)
		case "rewrite":
			r, err := parseRewriteBlock(d)
			if err != nil {
				return nil, err
			}
			f.Rewrite = append(f.Rewrite, r)
		case "client":
			c, err := parsePeerBlock(d, false)
			if err != nil {
				return nil, err
			}
			f.Client = append(f.Client, c)
		case "server":
			s, err := parsePeerBlock(d, true)
			if err != nil {
				return nil, err
			}
			f.Server = append(f.Server, s)
		case "realm":
			r, err := parseRealmBlock(d)
			if err != nil {
				return nil, err
			}
			f.Realm = append(f.Realm, r)
		default:
			return nil, d.Errf("unrecognized directive %q", d.Val())
		}
	}
	return f, nil
}

func blockName(d *Dispenser) (string, error) {
	if !d.NextArg() {
		return "", d.ArgErr()
	}
	return d.Val(), nil
}

func parseTLSBlock(d *Dispenser) (TLSContextConfig, error) {
	name, err := blockName(d)
	if err != nil {
		return TLSContextConfig{}, err
	}
	t := TLSContextConfig{Name: name}

	open, err := d.NextBlock()
	if err != nil {
		return t, err
	}
	if !open {
		return t, nil
	}
	for {
		switch strings.ToLower(d.Val()) {
		case "cacertificatefile":
			if !d.NextArg() {
				return t, d.ArgErr()
			}
			t.CACertificateFile = d.Val()
		case "cacertificatepath":
			if !d.NextArg() {
				return t, d.ArgErr()
			}
			t.CACertificatePath = d.Val()
		case "certificatefile":
			if !d.NextArg() {
				return t, d.ArgErr()
			}
			t.CertificateFile = d.Val()
		case "certificatekeyfile":
			if !d.NextArg() {
				return t, d.ArgErr()
			}
			t.CertificateKeyFile = d.Val()
		case "certificatekeypassword":
			if !d.NextArg() {
				return t, d.ArgErr()
			}
			t.CertificateKeyPassword = d.Val()
		case "}":
			return t, nil
		default:
			return t, d.Errf("unrecognized TLS directive %q", d.Val())
		}
		if !d.Next() {
			return t, d.Errf("unexpected EOF inside TLS %s block", name)
		}
	}
}

func parseRewriteBlock(d *Dispenser) (RewriteConfig, error) {
	name, err := blockName(d)
	if err != nil {
		return RewriteConfig{}, err
	}
	r := RewriteConfig{Name: name}

	open, err := d.NextBlock()
	if err != nil {
		return r, err
	}
	if !open {
		return r, nil
	}
	for {
		switch strings.ToLower(d.Val()) {
		case "removeattribute":
			if !d.NextArg() {
				return r, d.ArgErr()
			}
			n, err := strconv.Atoi(d.Val())
			if err != nil {
				return r, d.Errf("removeAttribute expects a numeric attribute type, got %q", d.Val())
			}
			r.RemoveAttribute = append(r.RemoveAttribute, n)
		case "removevendorattribute":
			if !d.NextArg() {
				return r, d.ArgErr()
			}
			ref, err := parseVendorAttrRef(d.Val())
			if err != nil {
				return r, d.Errf("%v", err)
			}
			r.RemoveVendorAttribute = append(r.RemoveVendorAttribute, ref)
		case "}":
			return r, nil
		default:
			return r, d.Errf("unrecognized Rewrite directive %q", d.Val())
		}
		if !d.Next() {
			return r, d.Errf("unexpected EOF inside Rewrite %s block", name)
		}
	}
}

func parseVendorAttrRef(raw string) (VendorAttrRef, error) {
	parts := strings.SplitN(raw, ":", 2)
	vendor, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return VendorAttrRef{}, err
	}
	ref := VendorAttrRef{Vendor: uint32(vendor), SubType: -1}
	if len(parts) == 2 {
		sub, err := strconv.Atoi(parts[1])
		if err != nil {
			return VendorAttrRef{}, err
		}
		ref.SubType = sub
	}
	return ref, nil
}

func parsePeerBlock(d *Dispenser, isServer bool) (PeerConfig, error) {
	name, err := blockName(d)
	if err != nil {
		return PeerConfig{}, err
	}
	p := PeerConfig{Name: name}

	open, err := d.NextBlock()
	if err != nil {
		return p, err
	}
	if !open {
		return p, nil
	}
	for {
		switch strings.ToLower(d.Val()) {
		case "type":
			if !d.NextArg() {
				return p, d.ArgErr()
			}
			p.Type = strings.ToLower(d.Val())
		case "host":
			if !d.NextArg() {
				return p, d.ArgErr()
			}
			p.Host = d.Val()
		case "port":
			if !d.NextArg() {
				return p, d.ArgErr()
			}
			p.Port = d.Val()
		case "secret":
			if !d.NextArg() {
				return p, d.ArgErr()
			}
			p.Secret = d.Val()
		case "tls":
			if !d.NextArg() {
				return p, d.ArgErr()
			}
			p.TLS = d.Val()
		case "rewrite":
			if !d.NextArg() {
				return p, d.ArgErr()
			}
			p.Rewrite = d.Val()
		case "matchcertificateattribute":
			if !d.NextArg() {
				return p, d.ArgErr()
			}
			m, err := parseMatchCertificateAttribute(d.Val())
			if err != nil {
				return p, d.Errf("%v", err)
			}
			p.MatchCertificateAttribute = append(p.MatchCertificateAttribute, m)
		case "rewriteattribute":
			if !d.NextArg() {
				return p, d.ArgErr()
			}
			ra, err := parseRewriteAttribute(d.Val())
			if err != nil {
				return p, d.Errf("%v", err)
			}
			p.RewriteAttribute = &ra
		case "statusserver":
			if !isServer {
				return p, d.Errf("StatusServer is only valid in a Server block")
			}
			if !d.NextArg() {
				return p, d.ArgErr()
			}
			p.StatusServer = strings.EqualFold(d.Val(), "on")
		case "displayname":
			if !isServer {
				return p, d.Errf("DisplayName is only valid in a Server block")
			}
			if !d.NextArg() {
				return p, d.ArgErr()
			}
			p.DisplayName = d.Val()
		case "}":
			return p, nil
		default:
			return p, d.Errf("unrecognized block directive %q", d.Val())
		}
		if !d.Next() {
			return p, d.Errf("unexpected EOF inside %s block", name)
		}
	}
}

// parseMatchCertificateAttribute accepts "CN:/regex/" or
// "SubjectAltName:URI:/regex/".
func parseMatchCertificateAttribute(raw string) (MatchCertificateAttribute, error) {
	if strings.HasPrefix(raw, "CN:") {
		body, err := stripSlashes(strings.TrimPrefix(raw, "CN:"))
		return MatchCertificateAttribute{Kind: "CN", Regex: body}, err
	}
	const sanPrefix = "SubjectAltName:URI:"
	if strings.HasPrefix(raw, sanPrefix) {
		body, err := stripSlashes(strings.TrimPrefix(raw, sanPrefix))
		return MatchCertificateAttribute{Kind: "SubjectAltName:URI", Regex: body}, err
	}
	return MatchCertificateAttribute{}, errUnrecognizedMatchAttr(raw)
}

// parseRewriteAttribute accepts "User-Name:/regex/replacement/".
func parseRewriteAttribute(raw string) (RewriteAttribute, error) {
	const prefix = "User-Name:"
	if !strings.HasPrefix(raw, prefix) {
		return RewriteAttribute{}, errUnrecognizedRewriteAttr(raw)
	}
	rest := strings.TrimPrefix(raw, prefix)
	if len(rest) < 2 || rest[0] != '/' {
		return RewriteAttribute{}, errUnrecognizedRewriteAttr(raw)
	}
	rest = rest[1:]
	idx := strings.IndexByte(rest, '/')
	if idx < 0 {
		return RewriteAttribute{}, errUnrecognizedRewriteAttr(raw)
	}
	regex := rest[:idx]
	remainder := rest[idx+1:]
	if len(remainder) == 0 || remainder[len(remainder)-1] != '/' {
		return RewriteAttribute{}, errUnrecognizedRewriteAttr(raw)
	}
	replacement := remainder[:len(remainder)-1]
	return RewriteAttribute{Attribute: "User-Name", Regex: regex, Replacement: replacement}, nil
}

func stripSlashes(s string) (string, error) {
	if len(s) < 2 || s[0] != '/' || s[len(s)-1] != '/' {
		return "", errExpectedSlashRegex(s)
	}
	return s[1 : len(s)-1], nil
}

func parseRealmBlock(d *Dispenser) (RealmConfig, error) {
	name, err := blockName(d)
	if err != nil {
		return RealmConfig{}, err
	}
	r := RealmConfig{Name: name}

	open, err := d.NextBlock()
	if err != nil {
		return r, err
	}
	if !open {
		return r, nil
	}
	for {
		switch strings.ToLower(d.Val()) {
		case "server":
			if !d.NextArg() {
				return r, d.ArgErr()
			}
			r.Server = append(r.Server, d.Val())
		case "replymessage":
			if !d.NextArg() {
				return r, d.ArgErr()
			}
			r.ReplyMessage = d.Val()
		case "}":
			return r, nil
		default:
			return r, d.Errf("unrecognized Realm directive %q", d.Val())
		}
		if !d.Next() {
			return r, d.Errf("unexpected EOF inside Realm %s block", name)
		}
	}
}
