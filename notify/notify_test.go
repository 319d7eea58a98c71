package notify

import (
	"testing"

	"verifyengine/telemetry"
)

func TestMailer_SendBatchComplete_DialFailureIsReturnedNotPanicked(t *testing.T) {
	log := telemetry.New(telemetry.Config{Level: "error"})
	m := New(Config{Host: "127.0.0.1", Port: 1, FromEmail: "verify@example.com", FromName: "Verify Engine"}, log)

	err := m.SendBatchComplete("user@example.com", "batch-123", 42)
	if err == nil {
		t.Fatal("expected dial error against an unreachable SMTP port, got nil")
	}
}
