// Package verifier implements the Verifier Pipeline (§4.6): the engine's
// single public `Verify` operation, running parse → syntax → cache lookup →
// MX/disposable/role-account/typo checks → blocklist gate and SMTP probe →
// catch-all probe → spam-trap heuristic → aggregation into one Result. SPF,
// DKIM and DMARC records are not looked up. The overall parallel-
// checks-under-one-deadline shape is grounded on optimode-emailkit's
// validator.go (Validate/ValidateAll), generalised from emailkit's
// generic short-circuiting chain into the spec's exact, fixed step order;
// the aggregate VerificationResult record is grounded on the teacher's
// utils/verifier.go VerificationResult and models/email.go
// VerificationResult, flattened into the richer fixed shape §3/§9 call for
// (no dynamic, option-driven field presence).
package verifier

import (
	"context"
	"crypto/rand"
	"errors"
	"regexp"
	"strings"
	"sync"
	"time"

	"verifyengine/cache"
	"verifyengine/dnsresolver"
	"verifyengine/governor"
	"verifyengine/internal/emailaddr"
	"verifyengine/policy"
	"verifyengine/smtpprobe"
	"verifyengine/telemetry"
)

// Options configures one Verify call. Defaults match §4.6.
type Options struct {
	UseCache         bool
	CheckSyntax      bool
	CheckMX          bool
	CheckDisposable  bool
	CheckTypos       bool
	CheckCatchAll    bool
	CheckSMTP        bool
	CheckSpamTrap    bool
	CheckRoleAccount bool
	CacheResults     bool
	AltDNS           bool
	Timeout          time.Duration

	// TreatBlockedAsValid keeps the §9 Open Question decision configurable:
	// when true (default), smtp_blocked_by_policy contributes positively
	// to is_valid exactly as the source system does.
	TreatBlockedAsValid bool
}

// DefaultOptions matches §4.6's stated defaults.
func DefaultOptions() Options {
	return Options{
		UseCache: true, CheckSyntax: true, CheckMX: true, CheckDisposable: true,
		CheckTypos: true, CheckCatchAll: true, CheckSMTP: true, CheckSpamTrap: true,
		CheckRoleAccount: true, CacheResults: true, AltDNS: false,
		Timeout: 10 * time.Second, TreatBlockedAsValid: true,
	}
}

// MXRecord is the public MX shape carried in Details.
type MXRecord struct {
	Exchange string `json:"exchange"`
	Priority uint16 `json:"priority"`
}

// Details is the nested record named in §3. Verify fills MX and
// MailboxCheck; it never sets HasSPF, HasDKIM, HasDMARC or ReputationScore,
// which stay at their zero values.
type Details struct {
	MX              []MXRecord `json:"mx"`
	HasSPF          bool       `json:"has_spf"`
	HasDKIM         bool       `json:"has_dkim"`
	HasDMARC        bool       `json:"has_dmarc"`
	MailboxCheck    string     `json:"mailbox_check"` // accepted/rejected/unknown
	ReputationScore int        `json:"reputation_score"`
}

// Result is the engine's primary output, per §3.
type Result struct {
	Email        string    `json:"email"`
	Domain       string    `json:"domain"`
	Timestamp    time.Time `json:"timestamp"`
	ProcessingMS int64     `json:"processing_ms"`

	FormatValid        bool `json:"format_valid"`
	HasMX              bool `json:"has_mx"`
	IsDisposable       bool `json:"is_disposable"`
	IsCatchAll         bool `json:"is_catch_all"`
	IsRoleAccount      bool `json:"is_role_account"`
	IsSpamTrap         bool `json:"is_spam_trap"`
	SMTPOk             bool `json:"smtp_ok"`
	SMTPBlockedByPolicy bool `json:"smtp_blocked_by_policy"`

	Suggestion string   `json:"suggestion"`
	Errors     []string `json:"errors"`
	Details    Details  `json:"details"`
	FromCache  bool     `json:"from_cache"`

	IsValid bool `json:"is_valid"`
	IsLive  bool `json:"is_live"`
}

var roleAccounts = map[string]struct{}{
	"admin": {}, "administrator": {}, "webmaster": {}, "hostmaster": {},
	"postmaster": {}, "abuse": {}, "security": {}, "support": {}, "info": {},
	"contact": {}, "sales": {}, "marketing": {}, "help": {}, "noreply": {}, "no-reply": {},
}

var spamTrapLocalPart = regexp.MustCompile(`^[a-z0-9]{8,}$`)
var spamTrapTXT = regexp.MustCompile(`(?i)spam|trap|honeypot`)

// Verifier is the engine's Verifier Pipeline.
type Verifier struct {
	store    cache.Store
	resolver *dnsresolver.Resolver
	policy   *policy.Policy
	governor *governor.Governor
	probe    *smtpprobe.Probe
	log      *telemetry.Logger
}

func New(store cache.Store, resolver *dnsresolver.Resolver, pol *policy.Policy, gov *governor.Governor, probe *smtpprobe.Probe, log *telemetry.Logger) *Verifier {
	return &Verifier{store: store, resolver: resolver, policy: pol, governor: gov, probe: probe, log: log}
}

// Verify runs the full pipeline. It is total: it never returns an error to
// the caller, always a Result, per §8's universal invariant.
func (v *Verifier) Verify(ctx context.Context, email string, opts Options) Result {
	start := time.Now()
	email = strings.ToLower(strings.TrimSpace(email))

	if opts.Timeout == 0 {
		opts = DefaultOptions()
	}
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	result := Result{Email: email, Timestamp: start}

	// 1. Parse
	addr := emailaddr.Parse(email)
	if !addr.Valid {
		result.FormatValid = false
		result.Errors = append(result.Errors, "Invalid email format")
		result.ProcessingMS = time.Since(start).Milliseconds()
		v.cacheResult(ctx, opts, email, result)
		return result
	}
	result.Domain = addr.Domain

	// 2. Syntax
	if opts.CheckSyntax {
		if msg := checkSyntax(addr); msg != "" {
			result.FormatValid = false
			result.Errors = append(result.Errors, msg)
			result.ProcessingMS = time.Since(start).Milliseconds()
			v.cacheResult(ctx, opts, email, result)
			return result
		}
	}
	result.FormatValid = true

	// 3. Cache check
	cacheKey := "verify:" + email
	if opts.UseCache {
		if cached, ok := v.store.Get(ctx, cacheKey); ok {
			if r, ok := decodeResult(cached); ok {
				r.FromCache = true
				return r
			}
		}
	}

	// 4. Parallel block: disposable, MX, role-account, typo suggestion.
	var wg sync.WaitGroup
	var mxRecords []dnsresolver.MX
	var mxErr error

	if opts.CheckMX {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mxRecords, mxErr = v.resolver.MX(ctx, addr.Domain)
		}()
	}
	if opts.CheckDisposable {
		result.IsDisposable = v.policy.IsDisposable(addr.Domain)
	}
	if opts.CheckRoleAccount {
		_, result.IsRoleAccount = roleAccounts[addr.Local]
	}
	if opts.CheckTypos {
		result.Suggestion = v.policy.Suggest(email)
	}
	wg.Wait()

	if opts.CheckMX {
		if mxErr != nil || len(mxRecords) == 0 {
			result.HasMX = false
			result.Errors = append(result.Errors, "No MX records found for domain")
		} else {
			result.HasMX = true
			for _, mx := range mxRecords {
				result.Details.MX = append(result.Details.MX, MXRecord{Exchange: mx.Exchange, Priority: mx.Priority})
			}
		}
	}

	// 5. MX gate
	if result.HasMX {
		// 6. Blocklist gate
		if v.governor.IsBlocked(ctx, addr.Domain) {
			result.SMTPBlockedByPolicy = true
		} else if opts.CheckSMTP {
			sourceIP, acquireErr := v.governor.Acquire(ctx, addr.Domain)
			switch {
			case errors.Is(acquireErr, governor.ErrRateLimitMinute):
				result.Errors = append(result.Errors, "rate limit exceeded: per-minute domain cap reached")
			case errors.Is(acquireErr, governor.ErrRateLimitHour):
				result.Errors = append(result.Errors, "rate limit exceeded: per-hour domain cap reached")
			default:
				if d := v.governor.Delay(ctx, addr.Domain); d > 0 {
					time.Sleep(d)
				}
				mxHost := mxRecords[0].Exchange
				decision := v.probe.Check(ctx, mxHost, email, sourceIP)
				switch decision.Outcome {
				case smtpprobe.OutcomeAccept:
					result.SMTPOk = true
					v.governor.ReportSuccess(ctx, addr.Domain)
				case smtpprobe.OutcomeReject:
					result.SMTPOk = false
					result.Errors = append(result.Errors, "address rejected")
					v.governor.ReportFailure(ctx, addr.Domain, "rejected")
				default:
					result.SMTPOk = false
					result.Errors = append(result.Errors, decision.ErrorTag)
					v.governor.ReportFailure(ctx, addr.Domain, "inconclusive")
				}
				result.Details.MailboxCheck = mailboxCheckLabel(decision.Outcome)

				// 7. Catch-all probe
				if opts.CheckCatchAll && result.SMTPOk && !result.IsDisposable {
					probeLocal := randomLocalPart(12)
					v.log.Event("catch_all_probe", map[string]interface{}{"domain": addr.Domain, "local": probeLocal})
					cd := v.probe.Check(ctx, mxHost, probeLocal+"@"+addr.Domain, sourceIP)
					if cd.Outcome == smtpprobe.OutcomeAccept {
						result.IsCatchAll = true
					}
				}
			}
		}

		// 8. Spam-trap heuristic
		if opts.CheckSpamTrap {
			result.IsSpamTrap = spamTrapHeuristic(addr, v.resolver, ctx)
		}
	}

	// 9. Aggregate
	result.IsValid = result.FormatValid && result.HasMX && !result.IsDisposable &&
		(result.SMTPOk || (opts.TreatBlockedAsValid && result.SMTPBlockedByPolicy)) && !result.IsSpamTrap
	result.IsLive = result.IsValid && result.SMTPOk && !result.IsCatchAll && !result.IsRoleAccount

	result.ProcessingMS = time.Since(start).Milliseconds()
	if ctx.Err() != nil {
		result.Errors = append(result.Errors, "timeout")
	}

	v.cacheResult(ctx, opts, email, result)
	return result
}

func mailboxCheckLabel(o smtpprobe.Outcome) string {
	switch o {
	case smtpprobe.OutcomeAccept:
		return "accepted"
	case smtpprobe.OutcomeReject:
		return "rejected"
	default:
		return "unknown"
	}
}

func (v *Verifier) cacheResult(ctx context.Context, opts Options, email string, result Result) {
	if !opts.CacheResults {
		return
	}
	ttl := cache.TTLPositiveResult
	if !result.IsValid {
		ttl = cache.TTLNegativeResult
	}
	if data, ok := encodeResult(result); ok {
		v.store.Set(ctx, "verify:"+email, data, ttl)
	}
}

func checkSyntax(addr emailaddr.Address) string {
	if len(addr.Local) > 64 {
		return "local part exceeds 64 characters"
	}
	if strings.Contains(addr.Local, "..") {
		return "local part cannot contain consecutive dots"
	}
	labels := strings.Split(addr.Domain, ".")
	if len(labels) < 2 {
		return "domain must have at least two labels"
	}
	for _, label := range labels {
		if label == "" {
			return "domain contains empty label"
		}
		if strings.HasPrefix(label, "-") || strings.HasSuffix(label, "-") {
			return "domain label cannot start or end with a hyphen"
		}
	}
	tld := labels[len(labels)-1]
	if len(tld) < 2 {
		return "TLD must be at least 2 characters"
	}
	return ""
}

func spamTrapHeuristic(addr emailaddr.Address, resolver *dnsresolver.Resolver, ctx context.Context) bool {
	if spamTrapLocalPart.MatchString(addr.Local) && !hasVowel(addr.Local) {
		return true
	}
	txt, err := resolver.TXT(ctx, addr.Domain)
	if err != nil {
		return false
	}
	for _, rec := range txt {
		for _, line := range rec {
			if spamTrapTXT.MatchString(line) {
				return true
			}
		}
	}
	return false
}

func hasVowel(s string) bool {
	for _, c := range s {
		switch c {
		case 'a', 'e', 'i', 'o', 'u':
			return true
		}
	}
	return false
}

const randomLocalAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// randomLocalPart builds a pseudo-random local part for the catch-all
// probe, seeded from crypto/rand per the §9 Open Question decision.
func randomLocalPart(n int) string {
	buf := make([]byte, n)
	_, _ = rand.Read(buf)
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = randomLocalAlphabet[int(b)%len(randomLocalAlphabet)]
	}
	return string(out)
}
