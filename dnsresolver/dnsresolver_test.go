package dnsresolver_test

import (
	"context"
	"net"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"

	"verifyengine/cache"
	"verifyengine/dnsresolver"
	"verifyengine/telemetry"
)

func testLogger() *telemetry.Logger {
	return telemetry.New(telemetry.Config{Level: "error"})
}

func TestResolver_MX_SortsByPriorityAndCaches(t *testing.T) {
	var calls atomic.Int64
	lookup := func(_ context.Context, _ string) ([]*net.MX, error) {
		calls.Add(1)
		return []*net.MX{
			{Host: "b.mx.example.com.", Pref: 20},
			{Host: "a.mx.example.com.", Pref: 10},
		}, nil
	}

	r := dnsresolver.NewWithLookup(dnsresolver.Config{}, cache.NewMemStore(), testLogger(), lookup)

	recs, err := r.MX(context.Background(), "example.com")
	assert.NoError(t, err)
	assert.Len(t, recs, 2)
	assert.Equal(t, "a.mx.example.com", recs[0].Exchange)
	assert.Equal(t, uint16(10), recs[0].Priority)

	_, err = r.MX(context.Background(), "example.com")
	assert.NoError(t, err)
	assert.Equal(t, int64(1), calls.Load())
}

func TestResolver_MX_NXDOMAINNotRetried(t *testing.T) {
	var calls atomic.Int64
	lookup := func(_ context.Context, _ string) ([]*net.MX, error) {
		calls.Add(1)
		return nil, &net.DNSError{Err: "no such host", IsNotFound: true}
	}

	r := dnsresolver.NewWithLookup(dnsresolver.Config{}, cache.NewMemStore(), testLogger(), lookup)

	_, err := r.MX(context.Background(), "nosuchdomain.invalid")
	assert.ErrorIs(t, err, dnsresolver.ErrDomainNotFound)
	assert.Equal(t, int64(1), calls.Load())
}

func TestResolver_MX_TimeoutFallbackFailureSurfacesError(t *testing.T) {
	lookup := func(_ context.Context, _ string) ([]*net.MX, error) {
		return nil, &net.DNSError{Err: "timeout", IsTimeout: true}
	}

	r := dnsresolver.NewWithLookup(dnsresolver.Config{}, cache.NewMemStore(), testLogger(), lookup)

	// The fallback dials real secondary resolvers which are unreachable in
	// this sandbox, so the overall call surfaces an error instead of
	// panicking.
	_, err := r.MX(context.Background(), "example.com")
	assert.Error(t, err)
}

func TestResolver_SOA_NoRecordsWhenNoNS(t *testing.T) {
	lookup := func(_ context.Context, _ string) ([]*net.MX, error) {
		return nil, nil
	}
	r := dnsresolver.NewWithLookup(dnsresolver.Config{}, cache.NewMemStore(), testLogger(), lookup)
	_, err := r.SOA(context.Background(), "example.com")
	assert.Error(t, err)
}
