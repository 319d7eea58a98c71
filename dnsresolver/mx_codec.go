package dnsresolver

import (
	"net"
	"sort"
	"strconv"
	"strings"
)

// stableSortMX sorts ascending by priority; stable so ties keep insertion
// order, matching §3's MX Record invariant.
func stableSortMX(recs []net.MX) []MX {
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].Pref < recs[j].Pref
	})
	out := make([]MX, len(recs))
	for i, r := range recs {
		out[i] = MX{Exchange: strings.TrimSuffix(r.Host, "."), Priority: r.Pref}
	}
	return out
}

// encodeMX/decodeMX give the cache a simple, stdlib-only wire format for
// []MX — a cache entry value, not a protocol, so no external codec is
// warranted.
func encodeMX(recs []MX) []byte {
	parts := make([]string, len(recs))
	for i, r := range recs {
		parts[i] = r.Exchange + "|" + strconv.Itoa(int(r.Priority))
	}
	return []byte(strings.Join(parts, ";"))
}

func decodeMX(data []byte) []MX {
	s := string(data)
	if s == "" {
		return nil
	}
	fields := strings.Split(s, ";")
	out := make([]MX, 0, len(fields))
	for _, f := range fields {
		idx := strings.LastIndex(f, "|")
		if idx < 0 {
			continue
		}
		pref, err := strconv.Atoi(f[idx+1:])
		if err != nil {
			continue
		}
		out = append(out, MX{Exchange: f[:idx], Priority: uint16(pref)})
	}
	return out
}
