// Package identity decides which directory users are eligible for a sandbox
// and derives the resource names used to provision one.
package identity

import (
	"strings"
)

// Top-level suffixes stripped when deriving the tenancy key. Longest first so
// ".fed.us" wins over a plain two-label match.
var tldSuffixes = []string{".fed.us", ".gov", ".mil"}

// Classification is the result of classifying a raw directory username.
type Classification struct {
	// Allowed reports whether the identity's domain is on the allow-list.
	Allowed bool

	// TenancyKey is the registrable domain label the sandbox org is named
	// after, e.g. "foo@sub.state.gov" -> "state".
	TenancyKey string

	// WorkspaceKey is the lower-cased local part of the email, used verbatim
	// as the space name.
	WorkspaceKey string
}

// Classifier maps raw email identities to sandbox tenancy decisions. It is
// pure and safe for concurrent use once constructed.
type Classifier struct {
	allowList []string
}

// NewClassifier builds a classifier from allow-list entries. Entries starting
// with "." are case-insensitive domain suffix matches (".gov"); all other
// entries match an entire domain ("example.edu"). An empty list falls back to
// the built-in government suffixes.
func NewClassifier(allowList []string) *Classifier {
	if len(allowList) == 0 {
		allowList = []string{".gov", ".mil", ".fed.us"}
	}
	normalized := make([]string, 0, len(allowList))
	for _, entry := range allowList {
		normalized = append(normalized, strings.ToLower(strings.TrimSpace(entry)))
	}
	return &Classifier{allowList: normalized}
}

// Classify inspects a raw username from the directory. Identities without an
// "@" (service accounts, malformed records) are never allowed. The workspace
// key is not validated against platform name rules; the platform surfaces its
// own validation errors on create.
func (c *Classifier) Classify(username string) Classification {
	local, domain, ok := strings.Cut(username, "@")
	if !ok || local == "" || domain == "" {
		return Classification{}
	}

	domain = strings.ToLower(domain)
	if !c.domainAllowed(domain) {
		return Classification{}
	}

	return Classification{
		Allowed:      true,
		TenancyKey:   tenancyKey(domain),
		WorkspaceKey: strings.ToLower(local),
	}
}

func (c *Classifier) domainAllowed(domain string) bool {
	for _, entry := range c.allowList {
		if entry == "" {
			continue
		}
		if strings.HasPrefix(entry, ".") {
			if strings.HasSuffix(domain, entry) {
				return true
			}
			continue
		}
		if domain == entry {
			return true
		}
	}
	return false
}

// tenancyKey derives the org-naming label from a domain. It strips the first
// matching known top-level suffix and takes the last remaining label
// ("sub.state.gov" -> "state", "agency.fed.us" -> "agency"). When no known
// suffix matches it drops the final label instead ("example.edu" ->
// "example"). This is a best-effort heuristic, not public-suffix-list
// resolution.
func tenancyKey(domain string) string {
	stripped := domain
	matched := false
	for _, suffix := range tldSuffixes {
		if strings.HasSuffix(stripped, suffix) {
			stripped = strings.TrimSuffix(stripped, suffix)
			matched = true
			break
		}
	}
	if !matched {
		if i := strings.LastIndex(stripped, "."); i >= 0 {
			stripped = stripped[:i]
		}
	}
	labels := strings.Split(stripped, ".")
	key := labels[len(labels)-1]
	if key == "" {
		return domain
	}
	return key
}
