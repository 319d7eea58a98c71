package verifier_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"verifyengine/cache"
	"verifyengine/dnsresolver"
	"verifyengine/governor"
	"verifyengine/policy"
	"verifyengine/smtpprobe"
	"verifyengine/telemetry"
	"verifyengine/verifier"
)

func testLogger() *telemetry.Logger {
	return telemetry.New(telemetry.Config{Level: "error"})
}

func newVerifier(mxLookup func(ctx context.Context, domain string) ([]*net.MX, error), probeDial func(network, address string, timeout time.Duration) (net.Conn, error)) *verifier.Verifier {
	log := testLogger()
	store := cache.NewMemStore()
	resolver := dnsresolver.NewWithLookup(dnsresolver.Config{}, store, log, mxLookup)
	pol := policy.New()
	gov := governor.New(governor.Config{Default: governor.Limits{PerMinute: 1000, PerHour: 10000}, IPPool: []string{"127.0.0.1"}}, store, log)
	probe := smtpprobe.New(smtpprobe.Config{Ports: []int{25}, Dial: probeDial})
	return verifier.New(store, resolver, pol, gov, probe, log)
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

func TestVerify_ValidGmailWithMX(t *testing.T) {
	mx := func(_ context.Context, _ string) ([]*net.MX, error) {
		return []*net.MX{{Host: "gmail-smtp-in.l.google.com.", Pref: 5}}, nil
	}
	dial := acceptingDial(map[string]string{"EHLO": "250 OK", "MAIL FROM": "250 OK", "RCPT TO": "250 OK"})
	v := newVerifier(mx, dial)

	r := v.Verify(context.Background(), "test@gmail.com", verifier.DefaultOptions())
	assert.True(t, r.FormatValid)
	assert.True(t, r.HasMX)
	assert.False(t, r.IsDisposable)
}

func TestVerify_MalformedEmail(t *testing.T) {
	v := newVerifier(nil, nil)
	r := v.Verify(context.Background(), "not-an-email", verifier.DefaultOptions())
	assert.False(t, r.FormatValid)
	assert.False(t, r.IsValid)
	assert.Contains(t, r.Errors, "Invalid email format")
}

func TestVerify_DisposableDomain(t *testing.T) {
	mx := func(_ context.Context, _ string) ([]*net.MX, error) {
		return []*net.MX{{Host: "mx.mailinator.com.", Pref: 10}}, nil
	}
	dial := acceptingDial(map[string]string{"EHLO": "250 OK", "MAIL FROM": "250 OK", "RCPT TO": "250 OK"})
	v := newVerifier(mx, dial)

	r := v.Verify(context.Background(), "user@mailinator.com", verifier.DefaultOptions())
	assert.True(t, r.IsDisposable)
	assert.False(t, r.IsValid)
}

func TestVerify_NoMXRecords(t *testing.T) {
	mx := func(_ context.Context, _ string) ([]*net.MX, error) {
		return nil, nil
	}
	v := newVerifier(mx, nil)

	r := v.Verify(context.Background(), "x@invalid-domain.example", verifier.DefaultOptions())
	assert.False(t, r.HasMX)
	assert.False(t, r.IsValid)
	assert.Contains(t, r.Errors, "No MX records found for domain")
}

func TestVerify_IsTotal_NeverPanics(t *testing.T) {
	v := newVerifier(func(_ context.Context, _ string) ([]*net.MX, error) { return nil, assertDNSFailure() }, nil)
	assert.NotPanics(t, func() {
		v.Verify(context.Background(), "anything@example.com", verifier.DefaultOptions())
	})
}

func assertDNSFailure() error {
	return &net.DNSError{Err: "no such host", IsNotFound: true}
}

func TestVerify_CacheHitSkipsRework(t *testing.T) {
	calls := 0
	mx := func(_ context.Context, _ string) ([]*net.MX, error) {
		calls++
		return []*net.MX{{Host: "mx.example.com.", Pref: 10}}, nil
	}
	dial := acceptingDial(map[string]string{"EHLO": "250 OK", "MAIL FROM": "250 OK", "RCPT TO": "250 OK"})
	v := newVerifier(mx, dial)

	opts := verifier.DefaultOptions()
	r1 := v.Verify(context.Background(), "cached@example.com", opts)
	assert.False(t, r1.FromCache)

	r2 := v.Verify(context.Background(), "cached@example.com", opts)
	assert.True(t, r2.FromCache)
	assert.Equal(t, 1, calls)
}
