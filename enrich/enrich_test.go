package enrich_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"verifyengine/cache"
	"verifyengine/dnsresolver"
	"verifyengine/enrich"
	"verifyengine/governor"
	"verifyengine/policy"
	"verifyengine/smtpprobe"
	"verifyengine/telemetry"
	"verifyengine/verifier"
)

func testLogger() *telemetry.Logger {
	return telemetry.New(telemetry.Config{Level: "error"})
}

func acceptingDial(responses map[string]string) func(network, address string, timeout time.Duration) (net.Conn, error) {
	return func(network, address string, timeout time.Duration) (net.Conn, error) {
		client, server := net.Pipe()
		go func() {
			defer server.Close()
			server.Write([]byte("220 mock.smtp ESMTP\r\n"))
			buf := make([]byte, 4096)
			for {
				n, err := server.Read(buf)
				if err != nil {
					return
				}
				cmd := string(buf[:n])
				for prefix, resp := range responses {
					if len(cmd) >= len(prefix) && cmd[:len(prefix)] == prefix {
						server.Write([]byte(resp + "\r\n"))
						break
					}
				}
				if len(cmd) >= 4 && cmd[:4] == "QUIT" {
					server.Write([]byte("221 Bye\r\n"))
					return
				}
			}
		}()
		return client, nil
	}
}

func newEnricher(mxHost string) *enrich.Enricher {
	log := testLogger()
	store := cache.NewMemStore()
	mx := func(_ context.Context, _ string) ([]*net.MX, error) {
		return []*net.MX{{Host: mxHost + ".", Pref: 10}}, nil
	}
	resolver := dnsresolver.NewWithLookup(dnsresolver.Config{}, store, log, mx)
	pol := policy.New()
	gov := governor.New(governor.Config{Default: governor.Limits{PerMinute: 1000, PerHour: 10000}, IPPool: []string{"127.0.0.1"}}, store, log)
	dial := acceptingDial(map[string]string{"EHLO": "250 OK", "MAIL FROM": "250 OK", "RCPT TO": "250 OK"})
	probe := smtpprobe.New(smtpprobe.Config{Ports: []int{25}, Dial: dial})
	v := verifier.New(store, resolver, pol, gov, probe, log)
	return enrich.New(v, pol, log)
}

func TestEnrich_TwoWordName(t *testing.T) {
	e := newEnricher("mx.example.com")
	r := e.Enrich(context.Background(), "john.doe@example.com", verifier.DefaultOptions())
	assert.NotNil(t, r.PossibleName)
	assert.Equal(t, "John", r.PossibleName.First)
	assert.Equal(t, "Doe", r.PossibleName.Last)
	assert.Equal(t, "Example", r.PossibleCompany)
	assert.False(t, r.IsFreeProvider)
}

func TestEnrich_CompanyFromHyphenatedDomain(t *testing.T) {
	e := newEnricher("mx.acme-inc.com")
	r := e.Enrich(context.Background(), "contact@acme-inc.com", verifier.DefaultOptions())
	assert.Equal(t, "Acme Inc", r.PossibleCompany)
}

func TestEnrich_FreeProviderSkipsCompany(t *testing.T) {
	e := newEnricher("gmail-smtp-in.l.google.com")
	r := e.Enrich(context.Background(), "someone@gmail.com", verifier.DefaultOptions())
	assert.True(t, r.IsFreeProvider)
	assert.Equal(t, "", r.PossibleCompany)
}

func TestEnrich_InvalidAddressSkipsEnrichment(t *testing.T) {
	e := newEnricher("mx.example.com")
	r := e.Enrich(context.Background(), "not-an-email", verifier.DefaultOptions())
	assert.Nil(t, r.PossibleName)
	assert.Equal(t, "", r.PossibleCompany)
}
