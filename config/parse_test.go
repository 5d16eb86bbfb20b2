package config

import "testing"

const sampleConfig = `
ListenUDP 1812
LogLevel 3
LogDestination stderr

TLS defaultclient {
	CACertificateFile /etc/radsecd/ca.pem
	CertificateFile /etc/radsecd/cert.pem
	CertificateKeyFile /etc/radsecd/key.pem
}

Rewrite stripReply {
	removeAttribute 18
	removeVendorAttribute 311:16
}

Client nas1 {
	type udp
	host 192.0.2.10
	secret abc123
	rewrite stripReply
}

Server upstream1 {
	type tls
	host 203.0.113.5
	port 2083
	secret xyz789
	tls defaultclient
	StatusServer on
}

Realm example.org {
	server upstream1
	ReplyMessage "try later"
}
`

func TestTokenizeAndParseSample(t *testing.T) {
	tokens, err := Tokenize([]byte(sampleConfig), "sample.conf")
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	f, err := Parse(tokens)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if f.ListenUDP != "1812" || f.LogLevel != 3 || f.LogDestination != "stderr" {
		t.Fatalf("top-level directives: %+v", f)
	}
	if len(f.TLS) != 1 || f.TLS[0].Name != "defaultclient" {
		t.Fatalf("TLS blocks: %+v", f.TLS)
	}
	if len(f.Rewrite) != 1 || len(f.Rewrite[0].RemoveAttribute) != 1 || f.Rewrite[0].RemoveAttribute[0] != 18 {
		t.Fatalf("Rewrite block: %+v", f.Rewrite)
	}
	if len(f.Rewrite[0].RemoveVendorAttribute) != 1 {
		t.Fatalf("expected one removeVendorAttribute, got %+v", f.Rewrite[0].RemoveVendorAttribute)
	}
	vref := f.Rewrite[0].RemoveVendorAttribute[0]
	if vref.Vendor != 311 || vref.SubType != 16 {
		t.Fatalf("removeVendorAttribute = %+v", vref)
	}
	if len(f.Client) != 1 || f.Client[0].Host != "192.0.2.10" || f.Client[0].Secret != "abc123" {
		t.Fatalf("Client block: %+v", f.Client)
	}
	if len(f.Server) != 1 || !f.Server[0].StatusServer || f.Server[0].TLS != "defaultclient" {
		t.Fatalf("Server block: %+v", f.Server)
	}
	if len(f.Realm) != 1 || f.Realm[0].Server[0] != "upstream1" || f.Realm[0].ReplyMessage != "try later" {
		t.Fatalf("Realm block: %+v", f.Realm)
	}
}

func TestParseMatchCertificateAttribute(t *testing.T) {
	m, err := parseMatchCertificateAttribute(`CN:/^radius\d+\.example\.org$/`)
	if err != nil {
		t.Fatalf("parseMatchCertificateAttribute: %v", err)
	}
	if m.Kind != "CN" || m.Regex != `^radius\d+\.example\.org$` {
		t.Fatalf("got %+v", m)
	}

	m, err = parseMatchCertificateAttribute(`SubjectAltName:URI:/^urn:example:.*/`)
	if err != nil {
		t.Fatalf("parseMatchCertificateAttribute: %v", err)
	}
	if m.Kind != "SubjectAltName:URI" {
		t.Fatalf("got %+v", m)
	}
}

func TestParseRewriteAttribute(t *testing.T) {
	ra, err := parseRewriteAttribute(`User-Name:/^(.*)@otherdomain$/\1@example.org/`)
	if err != nil {
		t.Fatalf("parseRewriteAttribute: %v", err)
	}
	if ra.Regex != `^(.*)@otherdomain$` || ra.Replacement != `\1@example.org` {
		t.Fatalf("got %+v", ra)
	}
}

func TestParseRejectsUnrecognizedDirective(t *testing.T) {
	tokens, err := Tokenize([]byte("BogusDirective foo\n"), "bad.conf")
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	if _, err := Parse(tokens); err == nil {
		t.Fatal("expected parse error for unrecognized directive")
	}
}

func TestResolveRejectsUndefinedRealmServer(t *testing.T) {
	tokens, err := Tokenize([]byte(`
Client nas1 {
	type udp
	host 192.0.2.10
	secret abc
}
Realm example.org {
	server ghost
}
`), "bad.conf")
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	f, err := Parse(tokens)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, err := Resolve(f); err == nil {
		t.Fatal("expected Resolve to reject a Realm referencing an undefined server")
	}
}

func TestResolveAppliesTransportDefaults(t *testing.T) {
	tokens, err := Tokenize([]byte(`
Server up1 {
	type udp
	host 192.0.2.20
	secret s1
}
`), "defaults.conf")
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	f, err := Parse(tokens)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	r, err := Resolve(f)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	srv, ok := r.Servers["up1"]
	if !ok {
		t.Fatal("expected up1 to resolve")
	}
	if srv.Config.Port != "1812" {
		t.Fatalf("UDP server port = %q, want default 1812", srv.Config.Port)
	}
}

func TestResolveRequiresUDPSecret(t *testing.T) {
	tokens, err := Tokenize([]byte(`
Client nas1 {
	type udp
	host 192.0.2.10
}
`), "nosecret.conf")
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	f, err := Parse(tokens)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, err := Resolve(f); err == nil {
		t.Fatal("expected Resolve to reject a UDP peer without a secret")
	}
}

func TestResolveBuildsRouterAndClients(t *testing.T) {
	tokens, err := Tokenize([]byte(sampleConfig), "sample.conf")
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	f, err := Parse(tokens)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	// The TLS block points at files that don't exist on disk; drop it
	// so Resolve can succeed without touching the filesystem, since
	// this test only exercises the non-TLS resolution path (address
	// resolution, realm cross-reference, router construction).
	f.TLS = nil
	f.Server[0].TLS = ""
	f.Server[0].Type = "udp"

	r, err := Resolve(f)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(r.Clients) != 1 {
		t.Fatalf("expected 1 client, got %d", len(r.Clients))
	}
	if _, ok := r.Servers["upstream1"]; !ok {
		t.Fatal("expected upstream1 server to be resolved")
	}
	if rl, ok := r.Router.Match("bob@example.org"); !ok || rl.Name != "example.org" {
		t.Fatalf("expected router to match example.org realm, got %+v ok=%v", rl, ok)
	}
}
