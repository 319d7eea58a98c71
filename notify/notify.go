// Package notify sends the Batch Executor's best-effort completion email
// (§4.8 step 6), grounded on the teacher's utils/mailer.go SendEmail (gomail.v2 message +
// dialer, html/template body rendering), narrowed to the one template this
// engine needs instead of the teacher's full OTP/reset/invite template set.
package notify

import (
	"bytes"
	"fmt"
	"html/template"

	"gopkg.in/gomail.v2"

	"verifyengine/telemetry"
)

// Notifier sends the batch-complete email named in §4.8.
type Notifier interface {
	SendBatchComplete(to, batchID string, processed int) error
}

// Config carries outbound SMTP settings, mirroring the teacher's
// SMTP_HOST/SMTP_PORT/SMTP_USERNAME/SMTP_PASSWORD environment pairing but
// as explicit fields rather than os.Getenv calls scattered through the
// send path.
type Config struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromName  string
	FromEmail string
}

type Mailer struct {
	cfg Config
	log *telemetry.Logger
}

func New(cfg Config, log *telemetry.Logger) *Mailer {
	return &Mailer{cfg: cfg, log: log}
}

const batchCompleteTemplate = `<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><title>{{.Subject}}</title></head>
<body style="font-family: Arial, sans-serif; color: #333; max-width: 600px; margin: 0 auto;">
  <h2>Batch verification complete</h2>
  <p>Batch <strong>{{.BatchID}}</strong> finished processing {{.Processed}} address(es).</p>
  <p>Sign in to your dashboard to download the results.</p>
</body>
</html>`

// SendBatchComplete notifies to that batchID finished. Errors are returned
// to the caller, which treats the send as best-effort (logs and moves on
// rather than failing the batch).
func (m *Mailer) SendBatchComplete(to, batchID string, processed int) error {
	tmpl, err := template.New("batch_complete").Parse(batchCompleteTemplate)
	if err != nil {
		return fmt.Errorf("notify: parse template: %w", err)
	}

	var body bytes.Buffer
	data := struct {
		Subject   string
		BatchID   string
		Processed int
	}{
		Subject:   "Your email batch is ready",
		BatchID:   batchID,
		Processed: processed,
	}
	if err := tmpl.Execute(&body, data); err != nil {
		return fmt.Errorf("notify: render template: %w", err)
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", fmt.Sprintf("%s <%s>", m.cfg.FromName, m.cfg.FromEmail))
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", data.Subject)
	msg.SetBody("text/html", body.String())

	dialer := gomail.NewDialer(m.cfg.Host, m.cfg.Port, m.cfg.Username, m.cfg.Password)
	if err := dialer.DialAndSend(msg); err != nil {
		m.log.Error("notify_send_failed", err, map[string]interface{}{"batch_id": batchID, "to": to})
		return err
	}
	return nil
}
