// Copyright 2015 Matthew Holt and The Caddy Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package tlsconf builds and manages the named TLS contexts a RadSec
// peer config points at: a trusted CA pool plus this host's own
// certificate and key, shared by reference count across every Client
// and Server config that names them, and the certificate-identity
// check (CN / subjectAltName) that gates whether a handshake peer is
// who the config says it should be.
package tlsconf

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Context is a named {trusted CA, own cert+key} bundle, shared by
// reference count between every PeerConfig that names it.
type Context struct {
	Name        string
	CACertFile  string
	CACertPath  string
	CertFile    string
	KeyFile     string
	KeyPassword string

	mu      sync.Mutex
	refs    int
	roots   *x509.CertPool
	keyPair []tls.Certificate
	loadErr error
	loaded  bool
}

// Manager owns the set of named Contexts declared by a configuration
// file and resolves the defaultclient/defaultserver/default fallback
// chain.
type Manager struct {
	mu     sync.Mutex
	byName map[string]*Context
}

// NewManager returns an empty Manager.
func NewManager() *Manager {
	return &Manager{byName: make(map[string]*Context)}
}

// Add registers a Context definition under its name. It must be
// called before any Acquire.
func (m *Manager) Add(ctx *Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byName[ctx.Name] = ctx
}

// Resolve implements the defaultclient/defaultserver/default fallback:
// an explicit name is used if given; otherwise the role-specific
// default is tried, then the generic default.
func (m *Manager) Resolve(name string, clientSide bool) (*Context, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if name != "" {
		c, ok := m.byName[name]
		if !ok {
			return nil, fmt.Errorf("tlsconf: no TLS context named %q", name)
		}
		return c, nil
	}
	roleDefault := "defaultserver"
	if clientSide {
		roleDefault = "defaultclient"
	}
	if c, ok := m.byName[roleDefault]; ok {
		return c, nil
	}
	if c, ok := m.byName["default"]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("tlsconf: no TLS context configured and no default available")
}

// Acquire increments ctx's reference count, lazily loading its CA
// pool and keypair on first use, and returns it ready for use in a
// *tls.Config. Release must be called an equal number of times.
func (ctx *Context) Acquire() (*Context, error) {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	if !ctx.loaded {
		ctx.roots, ctx.keyPair, ctx.loadErr = loadContext(ctx)
		ctx.loaded = true
	}
	if ctx.loadErr != nil {
		return nil, ctx.loadErr
	}
	ctx.refs++
	return ctx, nil
}

// Release decrements ctx's reference count. Once it reaches zero the
// loaded material is dropped; a subsequent Acquire reloads it from
// disk, so shared contexts release their key material without an
// explicit shutdown pass over every context.
func (ctx *Context) Release() {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	ctx.refs--
	if ctx.refs <= 0 {
		ctx.refs = 0
		ctx.roots = nil
		ctx.keyPair = nil
		ctx.loaded = false
	}
}

func loadContext(ctx *Context) (*x509.CertPool, []tls.Certificate, error) {
	roots := x509.NewCertPool()
	if ctx.CACertFile != "" {
		pem, err := os.ReadFile(ctx.CACertFile)
		if err != nil {
			return nil, nil, fmt.Errorf("tlsconf: reading CA file for %q: %w", ctx.Name, err)
		}
		if !roots.AppendCertsFromPEM(pem) {
			return nil, nil, fmt.Errorf("tlsconf: no usable CA certificates in %s", ctx.CACertFile)
		}
	}
	if ctx.CACertPath != "" {
		entries, err := os.ReadDir(ctx.CACertPath)
		if err != nil {
			return nil, nil, fmt.Errorf("tlsconf: reading CA directory for %q: %w", ctx.Name, err)
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			pem, err := os.ReadFile(filepath.Join(ctx.CACertPath, e.Name()))
			if err != nil {
				return nil, nil, fmt.Errorf("tlsconf: reading %s: %w", e.Name(), err)
			}
			roots.AppendCertsFromPEM(pem)
		}
	}

	var pairs []tls.Certificate
	if ctx.CertFile != "" && ctx.KeyFile != "" {
		cert, err := loadKeyPair(ctx.CertFile, ctx.KeyFile, ctx.KeyPassword)
		if err != nil {
			return nil, nil, fmt.Errorf("tlsconf: loading keypair for %q: %w", ctx.Name, err)
		}
		pairs = append(pairs, cert)
	}
	return roots, pairs, nil
}

// loadKeyPair loads a PEM certificate and private key, decrypting the
// key first if it carries a legacy "Proc-Type: 4,ENCRYPTED" header and
// password is non-empty. There is no maintained third-party library
// for this legacy PKCS#1 passphrase format, so the deprecated stdlib
// path is the only one available.
func loadKeyPair(certFile, keyFile, password string) (tls.Certificate, error) {
	if password == "" {
		return tls.LoadX509KeyPair(certFile, keyFile)
	}
	certPEM, err := os.ReadFile(certFile)
	if err != nil {
		return tls.Certificate{}, err
	}
	keyPEM, err := os.ReadFile(keyFile)
	if err != nil {
		return tls.Certificate{}, err
	}
	block, _ := pem.Decode(keyPEM)
	if block == nil {
		return tls.Certificate{}, fmt.Errorf("no PEM block found in %s", keyFile)
	}
	//nolint:staticcheck // legacy encrypted PEM keys have no non-deprecated stdlib path
	der, err := x509.DecryptPEMBlock(block, []byte(password))
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("decrypting private key: %w", err)
	}
	decrypted := pem.EncodeToMemory(&pem.Block{Type: block.Type, Bytes: der})
	return tls.X509KeyPair(certPEM, decrypted)
}

// Roots returns ctx's trusted CA pool, for callers (the TLS
// reconnection state machine, the downstream acceptor) that need to
// build a VerifyChainAndIdentity callback themselves.
func (ctx *Context) Roots() *x509.CertPool { return ctx.roots }

// ClientTLSConfig builds a *tls.Config suitable for dialing an
// upstream RadSec server: it trusts ctx's CA pool and, if ctx carries
// a keypair, presents it for mutual authentication. A non-nil verify
// replaces Go's built-in verification (InsecureSkipVerify is set), so
// verify itself must check the chain and identity, as
// VerifyChainAndIdentity in identity.go does; with a nil verify the
// standard library verifies against RootCAs and serverName.
func (ctx *Context) ClientTLSConfig(serverName string, verify func([][]byte, [][]*x509.Certificate) error) *tls.Config {
	cfg := &tls.Config{
		RootCAs:               ctx.roots,
		Certificates:          ctx.keyPair,
		ServerName:            serverName,
		MinVersion:            tls.VersionTLS12,
		InsecureSkipVerify:    verify != nil,
		VerifyPeerCertificate: verify,
	}
	return cfg
}

// ServerTLSConfig builds a *tls.Config suitable for accepting RadSec
// clients. Mutual authentication is mandatory on the RadSec wire, so
// a client certificate is required.
func (ctx *Context) ServerTLSConfig(verify func([][]byte, [][]*x509.Certificate) error) *tls.Config {
	cfg := &tls.Config{
		ClientCAs:             ctx.roots,
		Certificates:          ctx.keyPair,
		ClientAuth:            tls.RequireAnyClientCert,
		MinVersion:            tls.VersionTLS12,
		VerifyPeerCertificate: verify,
	}
	return cfg
}
