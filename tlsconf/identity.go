package tlsconf

import (
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
	"net"
	"regexp"
	"strings"
	"time"
)

var oidCommonName = asn1.ObjectIdentifier{2, 5, 4, 3}

// MatchRules holds the optional certificate-match predicates a
// PeerConfig may carry in addition to the basic identity check:
// matchcertificateattribute CN:/regex/ and SubjectAltName:URI:/regex/.
type MatchRules struct {
	CNRegex     *regexp.Regexp
	SANURIRegex *regexp.Regexp
}

// VerifyConfCert implements the verifyconfcert identity check: when
// prefixLen == 255 the configured host names a single peer exactly,
// so its literal form must appear in the certificate: an IP literal
// among the iPAddress SANs, a DNS name among the dNSName SANs, or, for
// a DNS name when the certificate has no dNSName SAN at all, among the
// subject's CN attributes; when
// prefixLen selects a CIDR range there is no single identity to check
// this way and the basic chain trust plus any configured predicates
// are all that gate the connection. The optional CN and SAN-URI regex
// predicates apply in both cases.
func VerifyConfCert(cert *x509.Certificate, host string, prefixLen int, rules MatchRules) error {
	if prefixLen == 255 {
		if err := checkHostIdentity(cert, host); err != nil {
			return err
		}
	}
	if rules.CNRegex != nil && !rules.CNRegex.MatchString(cert.Subject.CommonName) {
		return fmt.Errorf("tlsconf: certificate CN %q does not match configured pattern", cert.Subject.CommonName)
	}
	if rules.SANURIRegex != nil {
		matched := false
		for _, u := range cert.URIs {
			if rules.SANURIRegex.MatchString(u.String()) {
				matched = true
				break
			}
		}
		if !matched {
			return fmt.Errorf("tlsconf: no subjectAltName URI matches configured pattern")
		}
	}
	return nil
}

func checkHostIdentity(cert *x509.Certificate, host string) error {
	if ip := net.ParseIP(host); ip != nil {
		for _, certIP := range cert.IPAddresses {
			if certIP.Equal(ip) {
				return nil
			}
		}
		return fmt.Errorf("tlsconf: certificate has no iPAddress SAN matching %s", host)
	}

	if len(cert.DNSNames) > 0 {
		for _, name := range cert.DNSNames {
			if strings.EqualFold(name, host) {
				return nil
			}
		}
		return fmt.Errorf("tlsconf: certificate has no dNSName SAN matching %s", host)
	}

	for _, cn := range allCommonNames(cert.Subject) {
		if strings.EqualFold(cn, host) {
			return nil
		}
	}
	return fmt.Errorf("tlsconf: certificate has no CN matching %s and no dNSName SAN entries", host)
}

// allCommonNames walks every CommonName RDN in the subject, since a
// Name may legally carry more than one and x509.Name only surfaces the
// first as CommonName.
func allCommonNames(name pkix.Name) []string {
	var out []string
	for _, atv := range name.Names {
		if atv.Type.Equal(oidCommonName) {
			if s, ok := atv.Value.(string); ok {
				out = append(out, s)
			}
		}
	}
	return out
}

// VerifyChainAndIdentity builds a VerifyPeerCertificate callback bound
// to ctx's trust roots, host/prefixLen and rules: it reconstructs the
// leaf certificate from the raw chain TLS handed it (required whenever
// InsecureSkipVerify/ClientAuth bypass the built-in verifier, per
// crypto/tls's documented contract for VerifyPeerCertificate), verifies
// the chain up to depth maxDepth, and then runs VerifyConfCert against
// the leaf.
func VerifyChainAndIdentity(roots *x509.CertPool, host string, prefixLen int, rules MatchRules, maxDepth int) func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
	return func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		if len(rawCerts) == 0 {
			return fmt.Errorf("tlsconf: no certificate presented")
		}
		if len(rawCerts) > maxDepth {
			return fmt.Errorf("tlsconf: certificate chain depth %d exceeds maximum %d", len(rawCerts), maxDepth)
		}

		certs := make([]*x509.Certificate, 0, len(rawCerts))
		for _, raw := range rawCerts {
			cert, err := x509.ParseCertificate(raw)
			if err != nil {
				return fmt.Errorf("tlsconf: parsing presented certificate: %w", err)
			}
			certs = append(certs, cert)
		}

		intermediates := x509.NewCertPool()
		for _, c := range certs[1:] {
			intermediates.AddCert(c)
		}

		leaf := certs[0]
		_, err := leaf.Verify(x509.VerifyOptions{
			Roots:         roots,
			Intermediates: intermediates,
			CurrentTime:   time.Now(),
			KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
		})
		if err != nil {
			return fmt.Errorf("tlsconf: chain verification failed: %w", err)
		}

		return VerifyConfCert(leaf, host, prefixLen, rules)
	}
}
