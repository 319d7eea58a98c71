// Package governor implements the Rate Governor (§4.4): per-domain
// fixed-window counters (each minute/hour window starts at the key's first
// increment), adaptive pre-send delay, block/quarantine, and
// IP-pool selection, all backed by the Cache Store. The windowed-counter
// keying (`smtp:{domain}:minute`/`:hour`) and round-robin IP selection are
// grounded on the teacher's utils/campaign_sender.go RotateSender/
// UpdateSenderUsage (capacity-aware selection + a persisted usage counter),
// generalised from a per-sender daily cap into the spec's per-domain
// minute/hour windows, and on middleware/sender_rate_limit.go's use of the
// Cache Store for rate-limit state.
package governor

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"verifyengine/cache"
	"verifyengine/telemetry"
)

// Errors returned by Acquire per §4.4.
var (
	ErrRateLimitMinute = fmt.Errorf("governor: per-minute limit exceeded")
	ErrRateLimitHour   = fmt.Errorf("governor: per-hour limit exceeded")
)

// Limits is a per-minute/per-hour cap row.
type Limits struct {
	PerMinute int64
	PerHour   int64
}

// Config parameterises the Governor: a per-domain limits table with a
// "default" fallback row, and the outbound IP pool to rotate through.
type Config struct {
	DomainLimits map[string]Limits
	Default      Limits
	IPPool       []string
}

func (c Config) limitsFor(domain string) Limits {
	if l, ok := c.DomainLimits[domain]; ok {
		return l
	}
	return c.Default
}

// Governor is the engine's Rate Governor component.
type Governor struct {
	cfg   Config
	store cache.Store
	log   *telemetry.Logger
}

func New(cfg Config, store cache.Store, log *telemetry.Logger) *Governor {
	if len(cfg.IPPool) == 0 {
		cfg.IPPool = []string{"0.0.0.0"}
	}
	return &Governor{cfg: cfg, store: store, log: log}
}

// Acquire atomically increments domain's minute and hour counters and
// returns the next IP from the pool, failing open (default IP, no error)
// when the cache is unavailable per §4.4's invariant.
func (g *Governor) Acquire(ctx context.Context, domain string) (string, error) {
	limits := g.cfg.limitsFor(domain)

	minuteKey := "smtp:" + domain + ":minute"
	minuteCount, err := g.store.Incr(ctx, minuteKey, time.Minute)
	if err != nil {
		g.log.Event("governor_degraded", map[string]interface{}{"domain": domain, "reason": "cache_unavailable"})
		return g.cfg.IPPool[0], nil
	}
	if minuteCount > limits.PerMinute {
		return "", ErrRateLimitMinute
	}

	hourKey := "smtp:" + domain + ":hour"
	hourCount, err := g.store.Incr(ctx, hourKey, time.Hour)
	if err != nil {
		g.log.Event("governor_degraded", map[string]interface{}{"domain": domain, "reason": "cache_unavailable"})
		return g.cfg.IPPool[0], nil
	}
	if hourCount > limits.PerHour {
		return "", ErrRateLimitHour
	}

	return g.nextIP(ctx), nil
}

func (g *Governor) nextIP(ctx context.Context) string {
	idxKey := "smtp:ip_index"
	raw, ok := g.store.Get(ctx, idxKey)
	idx := int64(0)
	if ok {
		if parsed, err := strconv.ParseInt(string(raw), 10, 64); err == nil {
			idx = parsed
		}
	}
	next := (idx + 1) % int64(len(g.cfg.IPPool))
	g.store.Set(ctx, idxKey, []byte(strconv.FormatInt(next, 10)), 24*time.Hour)
	return g.cfg.IPPool[idx]
}

// Delay implements §4.4's progressive pre-send delay once the minute
// counter exceeds 80% of limit.
func (g *Governor) Delay(ctx context.Context, domain string) time.Duration {
	limits := g.cfg.limitsFor(domain)
	if limits.PerMinute <= 0 {
		return 0
	}
	raw, ok := g.store.Get(ctx, "smtp:"+domain+":minute")
	if !ok {
		return 0
	}
	count, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0
	}
	ratio := float64(count) / float64(limits.PerMinute)
	if ratio <= 0.8 {
		return 0
	}
	return time.Duration((ratio - 0.8) * float64(10*time.Second))
}

// MarkBlocked quarantines domain for the given duration.
func (g *Governor) MarkBlocked(ctx context.Context, domain string, d time.Duration) {
	g.store.Set(ctx, "smtp:blocked:"+domain, []byte("1"), d)
}

// IsBlocked reports whether domain is currently quarantined. Fails open
// (false) when the cache is unavailable.
func (g *Governor) IsBlocked(ctx context.Context, domain string) bool {
	return g.store.Exists(ctx, "smtp:blocked:"+domain)
}

// ReportSuccess/ReportFailure increment hourly observability counters;
// failures never propagate, matching the rest of the Governor's degrade-
// to-miss posture.
func (g *Governor) ReportSuccess(ctx context.Context, domain string) {
	_, _ = g.store.Incr(ctx, "smtp:stats:"+domain+":success", time.Hour)
}

func (g *Governor) ReportFailure(ctx context.Context, domain string, reason string) {
	_, _ = g.store.Incr(ctx, "smtp:stats:"+domain+":failure:"+reason, time.Hour)
}
