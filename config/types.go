package config

// File is the parsed, but not yet cross-referenced or resolved, form
// of a configuration file: every top-level directive and named block,
// in declaration order.
type File struct {
	ListenUDP           string
	ListenTCP           string
	ListenAccountingUDP string
	SourceUDP           string
	SourceTCP           string
	LogLevel            int
	LogDestination      string

	TLS     []TLSContextConfig
	Rewrite []RewriteConfig
	Client  []PeerConfig
	Server  []PeerConfig
	Realm   []RealmConfig
}

// TLSContextConfig is a parsed `TLS NAME { ... }` block.
type TLSContextConfig struct {
	Name                   string
	CACertificateFile      string
	CACertificatePath      string
	CertificateFile        string
	CertificateKeyFile     string
	CertificateKeyPassword string
}

// RewriteConfig is a parsed `Rewrite NAME { ... }` block.
type RewriteConfig struct {
	Name string

	// RemoveAttribute is a list of numeric attribute types to strip.
	RemoveAttribute []int

	// RemoveVendorAttribute holds the parsed "vendor[:subtype]" entries
	// from the config file; SubType < 0 means "whole VSA for this
	// vendor".
	RemoveVendorAttribute []VendorAttrRef
}

// VendorAttrRef names a vendor-specific attribute (and optionally one
// of its sub-attributes) to strip on rewrite.
type VendorAttrRef struct {
	Vendor  uint32
	SubType int // -1 means "entire VSA for this vendor"
}

// MatchCertificateAttribute is a parsed `matchcertificateattribute`
// value: either `CN:/regex/` or `SubjectAltName:URI:/regex/`.
type MatchCertificateAttribute struct {
	Kind  string // "CN" or "SubjectAltName:URI"
	Regex string // the regex body, without surrounding slashes
}

// RewriteAttribute is a parsed `rewriteattribute` value:
// `User-Name:/regex/replacement/`.
type RewriteAttribute struct {
	Attribute   string // currently always "User-Name"
	Regex       string
	Replacement string
}

// PeerConfig is a parsed `Client NAME { ... }` or `Server NAME { ... }`
// block, before address resolution or TLS context lookup.
type PeerConfig struct {
	Name string
	Type string // "udp" or "tls"
	Host string
	Port string

	Secret string

	TLS                       string
	MatchCertificateAttribute []MatchCertificateAttribute
	RewriteAttribute          *RewriteAttribute
	Rewrite                   string

	// StatusServer and DisplayName apply to Server blocks only.
	StatusServer bool
	DisplayName  string
}

// RealmConfig is a parsed `Realm NAME { ... }` block.
type RealmConfig struct {
	Name         string
	Server       []string
	ReplyMessage string
}
