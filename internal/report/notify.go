package report

import (
	"bgprices/internal/components/telemetry"
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/jordan-wright/email"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("bgprices/internal/report")

const report_notify_send = "notify.send"

type SmtpConfig struct {
	Server       string   `json:"server"`
	Port         int      `json:"port"`
	EmailAddress string   `json:"email_address"`
	Password     string   `json:"password"`
	To           []string `json:"to"`
	// OnlyOnChange skips the email when nothing moved and nothing failed.
	OnlyOnChange bool `json:"only_on_change"`
}

func (c SmtpConfig) Enabled() bool {
	return c.Server != "" && len(c.To) > 0
}

type Notifier struct {
	config SmtpConfig
	tel    telemetry.API
}

func NewNotifier(config SmtpConfig, tel telemetry.API) Notifier {
	return Notifier{config: config, tel: tel}
}

func (n Notifier) Message(subject, body string) *email.Email {
	mail := email.NewEmail()
	mail.From = fmt.Sprintf("Board game prices <%s>", n.config.EmailAddress)
	mail.To = n.config.To
	mail.Subject = subject
	mail.Text = []byte(body)
	return mail
}

func (n Notifier) Send(ctx context.Context, subject, body string) error {
	ctx, span := tracer.Start(ctx, "Send")
	defer span.End()

	mail := n.Message(subject, body)
	addr := fmt.Sprintf("%s:%d", n.config.Server, n.config.Port)

	err := mail.Send(addr, smtp.PlainAuth("", n.config.EmailAddress, n.config.Password, n.config.Server))
	if err != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		err = mail.Send(addr, nil)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to send email")
		n.tel.ReportBroken(report_notify_send, err, addr)
		return err
	}
	return nil
}
