// Package emailaddr parses raw email strings into their local/domain parts
// with IDNA2008 conversion, per §3's "internationalised domains converted
// to ASCII-compatible encoding before use" requirement. Grounded on
// optimode-emailkit's internal/parse package, trimmed to the split-on-
// last-@ rule the Verifier Pipeline's step 1 calls for instead of
// net/mail's full RFC 5322 address-list grammar.
package emailaddr

import (
	"strings"

	"golang.org/x/net/idna"
)

// Address is the parsed form of one email string.
type Address struct {
	Raw           string
	Local         string
	Domain        string // ASCII/Punycode form, for DNS/SMTP
	DomainUnicode string // Unicode form, for display/typo detection
	Valid         bool
}

// Parse splits raw on the last '@'. If no split is possible, Valid is
// false and Raw is still populated (§4.6 step 1).
func Parse(raw string) Address {
	raw = strings.TrimSpace(raw)
	at := strings.LastIndex(raw, "@")
	if at < 1 || at >= len(raw)-1 {
		return Address{Raw: raw, Valid: false}
	}

	local := raw[:at]
	domain := strings.ToLower(raw[at+1:])

	ascii, unicode, ok := convertDomain(domain)
	if !ok {
		return Address{Raw: raw, Valid: false}
	}

	return Address{
		Raw:           raw,
		Local:         local,
		Domain:        ascii,
		DomainUnicode: unicode,
		Valid:         true,
	}
}

func convertDomain(domain string) (ascii, unicode string, ok bool) {
	hasNonASCII := false
	for _, r := range domain {
		if r > 127 {
			hasNonASCII = true
			break
		}
	}

	if hasNonASCII {
		a, err := idna.Lookup.ToASCII(domain)
		if err != nil {
			return "", "", false
		}
		return a, domain, true
	}

	u, err := idna.Display.ToUnicode(domain)
	if err != nil {
		u = domain
	}
	return domain, u, true
}
