package config

import (
	"fmt"
	"net"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/radsecd/radsecd/peer"
	"github.com/radsecd/radsecd/realm"
	"github.com/radsecd/radsecd/tlsconf"
)

// Resolved is a fully parsed, resolved, and cross-referenced
// configuration, ready to hand to the engine.
type Resolved struct {
	ListenUDP           string
	ListenTCP           string
	ListenAccountingUDP string
	SourceUDP           string
	SourceTCP           string
	LogLevel            int
	LogDestination      string

	TLSManager *tlsconf.Manager
	Rewrites   map[string]RewriteConfig
	Clients    []*peer.Config
	Servers    map[string]*peer.Server
	Router     *realm.Router
}

// LoadFile reads, tokenizes, parses, and resolves the configuration
// file at path.
func LoadFile(path string) (*Resolved, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	tokens, err := Tokenize(raw, path)
	if err != nil {
		return nil, fmt.Errorf("config: tokenizing %s: %w", path, err)
	}
	f, err := Parse(tokens)
	if err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return Resolve(f)
}

// Resolve builds a Resolved configuration from a parsed File: it loads
// TLS contexts, resolves client/server hostnames to addresses,
// compiles every regex (realm patterns, certificate-match and
// rewrite-attribute patterns), and cross-validates that every server
// a Realm names actually exists, so a dangling reference fails at
// load time instead of at routing time.
func Resolve(f *File) (*Resolved, error) {
	r := &Resolved{
		ListenUDP:           defaultString(f.ListenUDP, peer.DefaultUDPPort),
		ListenTCP:           defaultString(f.ListenTCP, peer.DefaultTLSPort),
		ListenAccountingUDP: f.ListenAccountingUDP,
		SourceUDP:           f.SourceUDP,
		SourceTCP:           f.SourceTCP,
		LogLevel:            f.LogLevel,
		LogDestination:      f.LogDestination,
		TLSManager:          tlsconf.NewManager(),
		Rewrites:            make(map[string]RewriteConfig),
		Servers:             make(map[string]*peer.Server),
	}

	for _, t := range f.TLS {
		r.TLSManager.Add(&tlsconf.Context{
			Name:        t.Name,
			CACertFile:  t.CACertificateFile,
			CACertPath:  t.CACertificatePath,
			CertFile:    t.CertificateFile,
			KeyFile:     t.CertificateKeyFile,
			KeyPassword: t.CertificateKeyPassword,
		})
	}

	for _, rw := range f.Rewrite {
		r.Rewrites[rw.Name] = rw
	}

	servers := make(map[string]*peer.Server, len(f.Server))
	for _, sc := range f.Server {
		pc, err := resolvePeer(sc, true, r.TLSManager)
		if err != nil {
			return nil, fmt.Errorf("config: Server %s: %w", sc.Name, err)
		}
		servers[sc.Name] = peer.NewServer(pc)
	}
	r.Servers = servers

	for _, cc := range f.Client {
		pc, err := resolvePeer(cc, false, r.TLSManager)
		if err != nil {
			return nil, fmt.Errorf("config: Client %s: %w", cc.Name, err)
		}
		r.Clients = append(r.Clients, pc)
	}

	var realms []*realm.Realm
	for _, rc := range f.Realm {
		pattern, err := realm.CompilePattern(rc.Name)
		if err != nil {
			return nil, fmt.Errorf("config: Realm %s: %w", rc.Name, err)
		}
		rl := &realm.Realm{Name: rc.Name, Pattern: pattern, ReplyMessage: rc.ReplyMessage}
		for _, name := range rc.Server {
			srv, ok := servers[name]
			if !ok {
				return nil, fmt.Errorf("config: Realm %s references undefined server %q", rc.Name, name)
			}
			rl.Servers = append(rl.Servers, srv)
		}
		realms = append(realms, rl)
	}
	r.Router = realm.NewRouter(realms)

	return r, nil
}

func defaultString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func resolvePeer(pc PeerConfig, isServer bool, tlsMgr *tlsconf.Manager) (*peer.Config, error) {
	out := &peer.Config{
		Name:         pc.Name,
		Host:         pc.Host,
		Port:         pc.Port,
		Secret:       pc.Secret,
		RewriteName:  pc.Rewrite,
		StatusServer: pc.StatusServer,
		DisplayName:  pc.DisplayName,
	}

	switch strings.ToLower(pc.Type) {
	case "", "udp":
		out.Transport = peer.TransportUDP
		if out.Port == "" {
			out.Port = peer.DefaultUDPPort
		}
		if out.Secret == "" {
			return nil, fmt.Errorf("secret is required for a UDP peer")
		}
	case "tls":
		out.Transport = peer.TransportTLS
		if out.Port == "" {
			out.Port = peer.DefaultTLSPort
		}
		if out.Secret == "" {
			out.Secret = peer.DefaultTLSSecret
		}
	default:
		return nil, fmt.Errorf("unrecognized type %q", pc.Type)
	}

	host, prefixLen, err := splitHostPrefix(pc.Host)
	if err != nil {
		return nil, err
	}
	addrs, err := net.LookupIP(host)
	if err != nil {
		return nil, fmt.Errorf("resolving host %q: %w", host, err)
	}
	out.Addrs = addrs
	out.PrefixLen = prefixLen

	if out.Transport == peer.TransportTLS {
		ctx, err := tlsMgr.Resolve(pc.TLS, !isServer)
		if err != nil {
			return nil, err
		}
		loaded, err := ctx.Acquire()
		if err != nil {
			return nil, err
		}
		out.TLSContext = loaded
	}

	for _, m := range pc.MatchCertificateAttribute {
		re, err := regexp.Compile(m.Regex)
		if err != nil {
			return nil, fmt.Errorf("matchcertificateattribute %s: %w", m.Kind, err)
		}
		switch m.Kind {
		case "CN":
			out.CNRegex = re
		case "SubjectAltName:URI":
			out.SANURIRegex = re
		}
	}

	if pc.RewriteAttribute != nil {
		re, err := regexp.Compile(pc.RewriteAttribute.Regex)
		if err != nil {
			return nil, fmt.Errorf("rewriteattribute: %w", err)
		}
		out.RewriteAttr = &peer.RewriteAttrRule{Regex: re, Replacement: pc.RewriteAttribute.Replacement}
	}

	return out, nil
}

// splitHostPrefix splits a "host" or "host/prefixlen" value, returning
// prefixLen == 255 ("match every resolved address exactly") when no
// "/prefixlen" suffix is present.
func splitHostPrefix(host string) (string, int, error) {
	idx := strings.LastIndexByte(host, '/')
	if idx < 0 {
		return host, 255, nil
	}
	plen, err := strconv.Atoi(host[idx+1:])
	if err != nil {
		return "", 0, fmt.Errorf("invalid prefix length in %q: %w", host, err)
	}
	return host[:idx], plen, nil
}
