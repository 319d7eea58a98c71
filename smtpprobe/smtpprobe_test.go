package smtpprobe_test

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"verifyengine/smtpprobe"
)

// mockSMTPServer simulates an SMTP server over a net.Pipe connection,
// grounded on optimode-emailkit/internal/smtppool's mockSMTPServer helper.
func mockSMTPServer(server net.Conn, responses map[string]string) {
	defer func() { _ = server.Close() }()
	_, _ = fmt.Fprintf(server, "220 mock.smtp ESMTP\r\n")

	buf := make([]byte, 4096)
	for {
		n, err := server.Read(buf)
		if err != nil {
			return
		}
		cmd := string(buf[:n])
		for prefix, resp := range responses {
			if len(cmd) >= len(prefix) && cmd[:len(prefix)] == prefix {
				_, _ = fmt.Fprintf(server, "%s\r\n", resp)
				break
			}
		}
		if len(cmd) >= 4 && cmd[:4] == "QUIT" {
			_, _ = fmt.Fprintf(server, "221 Bye\r\n")
			return
		}
	}
}

func dialer(responses map[string]string) func(network, address string, timeout time.Duration) (net.Conn, error) {
	return func(network, address string, timeout time.Duration) (net.Conn, error) {
		client, server := net.Pipe()
		go mockSMTPServer(server, responses)
		return client, nil
	}
}

func TestProbe_AcceptOnRCPTOk(t *testing.T) {
	p := smtpprobe.New(smtpprobe.Config{
		Ports: []int{25},
		Dial: dialer(map[string]string{
			"EHLO":      "250 OK",
			"MAIL FROM": "250 OK",
			"RCPT TO":   "250 OK",
		}),
	})

	d := p.Check(context.Background(), "mx.example.com", "user@example.com", "")
	assert.Equal(t, smtpprobe.OutcomeAccept, d.Outcome)
	assert.Equal(t, 250, d.Code)
}

func TestProbe_RejectOn550(t *testing.T) {
	p := smtpprobe.New(smtpprobe.Config{
		Ports: []int{25},
		Dial: dialer(map[string]string{
			"EHLO":      "250 OK",
			"MAIL FROM": "250 OK",
			"RCPT TO":   "550 User not found",
		}),
	})

	d := p.Check(context.Background(), "mx.example.com", "nobody@example.com", "")
	assert.Equal(t, smtpprobe.OutcomeReject, d.Outcome)
	assert.Equal(t, 550, d.Code)
}

func TestProbe_InconclusiveOnDialFailure(t *testing.T) {
	p := smtpprobe.New(smtpprobe.Config{
		Ports: []int{25},
		Dial: func(network, address string, timeout time.Duration) (net.Conn, error) {
			return nil, fmt.Errorf("connection refused")
		},
	})

	d := p.Check(context.Background(), "mx.example.com", "user@example.com", "")
	assert.Equal(t, smtpprobe.OutcomeInconclusive, d.Outcome)
}

func TestProbe_InconclusiveOnHeloRejected(t *testing.T) {
	p := smtpprobe.New(smtpprobe.Config{
		Ports: []int{25},
		Dial: dialer(map[string]string{
			"EHLO": "421 Service not available",
		}),
	})

	d := p.Check(context.Background(), "mx.example.com", "user@example.com", "")
	assert.Equal(t, smtpprobe.OutcomeInconclusive, d.Outcome)
	assert.Equal(t, "helo rejected", d.ErrorTag)
}

func TestProbe_GlobalTimeoutEnforced(t *testing.T) {
	p := smtpprobe.New(smtpprobe.Config{
		Ports:          []int{25},
		GlobalTimeout:  30 * time.Millisecond,
		ConnectTimeout: 5 * time.Second,
		CommandTimeout: 30 * time.Millisecond,
		Dial: func(network, address string, timeout time.Duration) (net.Conn, error) {
			client, server := net.Pipe()
			// Server never responds, forcing the per-op deadline (and the
			// overall global ceiling) to trip.
			go func() { <-context.Background().Done(); _ = server.Close() }()
			return client, nil
		},
	})

	start := time.Now()
	d := p.Check(context.Background(), "mx.example.com", "user@example.com", "")
	assert.Equal(t, smtpprobe.OutcomeInconclusive, d.Outcome)
	assert.Less(t, time.Since(start), 2*time.Second)
}
