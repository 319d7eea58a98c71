// Package policy is the engine's Domain Policy: pure, in-memory membership
// checks and typo suggestion with no network or cache dependency. The
// embedded-list approach is grounded on optimode-emailkit's
// internal/disposable (go:embed + set lookup); the list contents and the
// hard-coded typo corrections are carried over from the teacher's
// utils/verifier.go disposableDomainList/commonTypos/freeEmailProviders,
// and the edit-distance fallback is grounded on
// optimode-emailkit/internal/levenshtein.
package policy

import (
	_ "embed"
	"strings"

	"verifyengine/internal/levenshtein"
)

//go:embed disposable_domains.txt
var disposableList string

//go:embed free_providers.txt
var freeProviderList string

// commonTypos mirrors the teacher's hard-coded correction map, checked
// before the Levenshtein fallback per §4.3.
var commonTypos = map[string]string{
	"gmai.com":   "gmail.com",
	"gmal.com":   "gmail.com",
	"gmail.co":   "gmail.com",
	"yaho.com":   "yahoo.com",
	"hotmai.com": "hotmail.com",
	"outlok.com": "outlook.com",
}

// wellKnownDomains is the typo-suggestion target table: a subset of the
// free-provider list, matching optimode-emailkit's defaultKnownProviders
// shape.
var wellKnownDomains = []string{
	"gmail.com", "googlemail.com", "yahoo.com", "yahoo.co.uk", "outlook.com",
	"hotmail.com", "hotmail.co.uk", "live.com", "icloud.com", "me.com",
	"protonmail.com", "proton.me", "aol.com", "zoho.com", "yandex.com",
	"mail.com", "gmx.com", "gmx.net", "fastmail.com",
}

// Policy holds the parsed membership sets. Build with New; the zero value
// is unusable.
type Policy struct {
	disposable     map[string]struct{}
	freeProviders  map[string]struct{}
	legacy         map[string]struct{}
	established    map[string]struct{}
}

// legacyDomains/establishedDomains feed category(domain) per §4.3.
var legacyDomains = map[string]struct{}{
	"aol.com": {}, "juno.com": {}, "netzero.com": {}, "compuserve.com": {},
}

var establishedDomains = map[string]struct{}{
	"gmail.com": {}, "yahoo.com": {}, "outlook.com": {}, "hotmail.com": {},
	"icloud.com": {}, "protonmail.com": {},
}

func New() *Policy {
	return &Policy{
		disposable:    loadSet(disposableList),
		freeProviders: loadSet(freeProviderList),
		legacy:        legacyDomains,
		established:   establishedDomains,
	}
}

func loadSet(list string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, line := range strings.Split(list, "\n") {
		d := strings.ToLower(strings.TrimSpace(line))
		if d != "" {
			set[d] = struct{}{}
		}
	}
	return set
}

// IsDisposable reports case-insensitive exact membership in the disposable list.
func (p *Policy) IsDisposable(domain string) bool {
	_, ok := p.disposable[strings.ToLower(domain)]
	return ok
}

// IsFreeProvider reports case-insensitive exact membership in the free-provider list.
func (p *Policy) IsFreeProvider(domain string) bool {
	_, ok := p.freeProviders[strings.ToLower(domain)]
	return ok
}

// Suggest implements §4.3's suggest(email): hard-coded typo map first, then
// Levenshtein distance to the well-known-domains table (min distance <= 2
// and > 0), else empty.
func (p *Policy) Suggest(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return ""
	}
	local, domain := email[:at], strings.ToLower(email[at+1:])

	if corrected, ok := commonTypos[domain]; ok {
		return local + "@" + corrected
	}

	bestDist := 3
	bestMatch := ""
	for _, known := range wellKnownDomains {
		if domain == known {
			return ""
		}
		d := levenshtein.Distance(domain, known)
		if d > 0 && d <= 2 && d < bestDist {
			bestDist = d
			bestMatch = known
		}
	}
	if bestMatch == "" {
		return ""
	}
	return local + "@" + bestMatch
}

// Category implements §4.3's category(domain).
func (p *Policy) Category(domain string) string {
	domain = strings.ToLower(domain)
	if _, ok := p.legacy[domain]; ok {
		return "legacy"
	}
	if _, ok := p.established[domain]; ok {
		return "established"
	}
	switch {
	case strings.HasSuffix(domain, ".edu"), strings.HasSuffix(domain, ".gov"), strings.HasSuffix(domain, ".mil"):
		return "institutional"
	case strings.HasSuffix(domain, ".org"), strings.HasSuffix(domain, ".net"):
		return "organization"
	default:
		return "standard"
	}
}
