// Package realm implements the realm router: an ordered list of
// User-Name-matching rules, each naming a sequence of candidate
// upstream servers and an optional reject message.
package realm

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/radsecd/radsecd/peer"
)

// Realm is one compiled routing rule.
type Realm struct {
	Name         string
	Pattern      *regexp.Regexp
	Servers      []*peer.Server
	ReplyMessage string
}

// CompilePattern turns a configuration-file realm name into the
// case-insensitive regular expression the router matches User-Names
// against:
//   - a value starting with "/" is taken verbatim as a regex body
//     (an optional trailing "/" is stripped);
//   - the single value "*" expands to ".*";
//   - any other name expands to "@NAME$" with dots escaped — only
//     dots, so it matches a User-Name suffix after the realm
//     separator while any other character keeps its regex meaning.
func CompilePattern(raw string) (*regexp.Regexp, error) {
	var body string
	switch {
	case strings.HasPrefix(raw, "/"):
		body = strings.TrimSuffix(raw[1:], "/")
	case raw == "*":
		body = ".*"
	default:
		body = "@" + strings.ReplaceAll(raw, ".", `\.`) + "$"
	}
	re, err := regexp.Compile("(?i)" + body)
	if err != nil {
		return nil, fmt.Errorf("realm: invalid pattern %q: %w", raw, err)
	}
	return re, nil
}

// Router is the ordered set of Realms searched for each inbound
// request's User-Name.
type Router struct {
	realms []*Realm
}

// NewRouter returns a Router over realms in declared order; order is
// significant, since the first matching Realm wins.
func NewRouter(realms []*Realm) *Router {
	return &Router{realms: realms}
}

// Match returns the first Realm whose pattern matches userName, or
// ok=false if none does; a request with no matching realm is dropped.
func (r *Router) Match(userName string) (*Realm, bool) {
	for _, rl := range r.realms {
		if rl.Pattern.MatchString(userName) {
			return rl, true
		}
	}
	return nil, false
}

// SelectServer picks a candidate upstream from rl's server list:
// among servers with ConnectionOK == true, prefer the smallest
// LostStatSrv, breaking ties by list order; if none is up, fall back
// to the first candidate regardless. ok is false only when rl has no candidate
// servers at all.
func SelectServer(rl *Realm) (*peer.Server, bool) {
	if len(rl.Servers) == 0 {
		return nil, false
	}
	var best *peer.Server
	for _, s := range rl.Servers {
		if !s.ConnectionOK {
			continue
		}
		if best == nil || s.LostStatSrv < best.LostStatSrv {
			best = s
		}
	}
	if best != nil {
		return best, true
	}
	return rl.Servers[0], true
}
