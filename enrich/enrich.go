// Package enrich implements the Enricher (§4.7): given a verified address,
// derive a guessed person name, guessed company name, free-provider flag,
// and domain category/age. The name/company heuristics are new (the spec
// names no prior art for them), built in the teacher's plain, no-framework
// utility style (see utils/utils.go); the WHOIS-based domain-age lookup
// reuses the teacher's utils/verifier.go EnhancedVerifyEmailAddress call to
// github.com/likexian/whois, generalised into its own best-effort step.
package enrich

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/likexian/whois"

	"verifyengine/policy"
	"verifyengine/telemetry"
	"verifyengine/verifier"
)

// Name is the guessed-person-name shape from §4.7.
type Name struct {
	Full  string `json:"full"`
	First string `json:"first"`
	Last  string `json:"last,omitempty"`
}

// Result extends a verification Result with enrichment, per §3.
type Result struct {
	verifier.Result
	PossibleName    *Name  `json:"possible_name,omitempty"`
	PossibleCompany string `json:"possible_company,omitempty"`
	IsFreeProvider  bool   `json:"is_free_provider"`
	DomainCategory  string `json:"domain_category"`
	DomainAgeYears  int    `json:"domain_age_years,omitempty"`
}

var rolePrefixes = map[string]struct{}{
	"admin": {}, "administrator": {}, "webmaster": {}, "hostmaster": {},
	"postmaster": {}, "abuse": {}, "security": {}, "support": {}, "info": {},
	"contact": {}, "sales": {}, "marketing": {}, "help": {}, "noreply": {}, "no-reply": {},
}

// countryCompoundTLDs names the second-level+TLD combinations under which
// the company guess must climb one label further (§4.7).
var countryCompoundTLDs = map[string]struct{}{
	"co.uk": {}, "com.au": {}, "co.nz": {}, "co.jp": {}, "co.za": {}, "com.br": {},
}

// Enricher is the engine's Enricher component.
type Enricher struct {
	verifier *verifier.Verifier
	policy   *policy.Policy
	log      *telemetry.Logger
	lookup   func(domain string) (string, error) // injectable WHOIS lookup
}

func New(v *verifier.Verifier, pol *policy.Policy, log *telemetry.Logger) *Enricher {
	return &Enricher{verifier: v, policy: pol, log: log, lookup: func(domain string) (string, error) {
		return whois.Whois(domain)
	}}
}

// Enrich runs Verify, then layers on name/company/provider/category
// enrichment. If the address is invalid, the enrichment fields are left
// null/zero per §4.7.
func (e *Enricher) Enrich(ctx context.Context, email string, opts verifier.Options) Result {
	base := e.verifier.Verify(ctx, email, opts)
	result := Result{Result: base}

	if !base.IsValid {
		return result
	}

	result.IsFreeProvider = e.policy.IsFreeProvider(base.Domain)
	result.DomainCategory = e.policy.Category(base.Domain)

	local := base.Email[:strings.LastIndex(base.Email, "@")]
	result.PossibleName = guessName(local)

	if !result.IsFreeProvider {
		result.PossibleCompany = guessCompany(base.Domain)
	}

	if years, err := e.domainAgeYears(base.Domain); err == nil {
		result.DomainAgeYears = years
	} else {
		e.log.Event("whois_lookup_failed", map[string]interface{}{"domain": base.Domain, "reason": err.Error()})
	}

	return result
}

func guessName(local string) *Name {
	stripped := stripRolePrefix(local)
	stripped = strings.TrimRight(stripped, "0123456789")
	stripped = strings.Map(func(r rune) rune {
		switch r {
		case '.', '_', '-':
			return ' '
		}
		return r
	}, stripped)
	stripped = strings.TrimSpace(stripped)
	if stripped == "" {
		return nil
	}

	words := strings.Fields(stripped)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}

	if len(words) == 1 {
		return &Name{Full: words[0], First: words[0]}
	}
	return &Name{Full: strings.Join(words, " "), First: words[0], Last: strings.Join(words[1:], " ")}
}

// stripRolePrefix removes a leading role prefix (e.g. "support." in
// "support.jane") so the remainder can still produce a guessed name, per
// §4.7. The prefix only counts at a word boundary — a separator, a digit,
// or end of string — so substring matches like "helpful" or "salesforce"
// are left alone.
func stripRolePrefix(local string) string {
	for prefix := range rolePrefixes {
		if !strings.HasPrefix(local, prefix) {
			continue
		}
		rest := local[len(prefix):]
		if rest == "" {
			return rest
		}
		switch {
		case rest[0] == '.' || rest[0] == '_' || rest[0] == '-':
			return strings.TrimLeft(rest, "._-")
		case rest[0] >= '0' && rest[0] <= '9':
			return rest
		}
	}
	return local
}

func guessCompany(domain string) string {
	labels := strings.Split(domain, ".")
	if len(labels) < 2 {
		return ""
	}

	secondLevel := labels[len(labels)-2]
	target := secondLevel
	if len(labels) >= 3 {
		compound := labels[len(labels)-2] + "." + labels[len(labels)-1]
		if _, ok := countryCompoundTLDs[compound]; ok {
			target = labels[len(labels)-3]
		}
	}

	target = strings.Map(func(r rune) rune {
		switch r {
		case '-', '_':
			return ' '
		}
		return r
	}, target)

	words := strings.Fields(target)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// domainAgeYears calls WHOIS best-effort and returns the domain's age from
// its creation date, matching the teacher's WHOIS enrichment field.
func (e *Enricher) domainAgeYears(domain string) (int, error) {
	raw, err := e.lookup(domain)
	if err != nil {
		return 0, err
	}
	created, ok := extractCreationYear(raw)
	if !ok {
		return 0, errNoCreationDate
	}
	return time.Now().Year() - created, nil
}

var errNoCreationDate = strconvErr("enrich: no creation date in whois response")

type strconvErr string

func (e strconvErr) Error() string { return string(e) }

// extractCreationYear looks for a "Creation Date: YYYY-..." line, the
// common WHOIS field name across registries.
func extractCreationYear(raw string) (int, bool) {
	for _, line := range strings.Split(raw, "\n") {
		lower := strings.ToLower(line)
		if !strings.Contains(lower, "creation date") && !strings.Contains(lower, "created") {
			continue
		}
		idx := strings.Index(line, ":")
		if idx < 0 {
			continue
		}
		val := strings.TrimSpace(line[idx+1:])
		if len(val) < 4 {
			continue
		}
		if year, err := strconv.Atoi(val[:4]); err == nil {
			return year, true
		}
	}
	return 0, false
}
