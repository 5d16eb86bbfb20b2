package config

import "fmt"

func errUnrecognizedMatchAttr(raw string) error {
	return fmt.Errorf("config: matchcertificateattribute %q is neither CN:/regex/ nor SubjectAltName:URI:/regex/", raw)
}

func errUnrecognizedRewriteAttr(raw string) error {
	return fmt.Errorf("config: rewriteattribute %q is not User-Name:/regex/replacement/", raw)
}

func errExpectedSlashRegex(raw string) error {
	return fmt.Errorf("config: expected a /regex/ value, got %q", raw)
}
