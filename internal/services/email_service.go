package services

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/resend/resend-go/v2"
	"golang.org/x/time/rate"

	"github.com/hackcrew/hackathon-platform/internal/apperrors"
	"github.com/hackcrew/hackathon-platform/internal/config"
)

// Email templates the lifecycle engine sends.
const (
	TemplateTeamAssignment     = "team_assignment"
	TemplateHackathonCancelled = "hackathon_cancelled"
	TemplateHackathonCompleted = "hackathon_completed"
)

// TeamAssignmentData fills the team_assignment template. Members lists the
// recipient first, then their teammates.
type TeamAssignmentData struct {
	RecipientName    string
	HackathonName    string
	TeamName         string
	ProblemStatement string
	Members          []string
}

type HackathonCancelledData struct {
	RecipientName string
	HackathonName string
	Reason        string
}

type HackathonCompletedData struct {
	RecipientName string
	HackathonName string
	TeamName      string
}

// Transport delivers one rendered HTML email.
type Transport interface {
	Deliver(ctx context.Context, to, subject, html string) error
}

type EmailService struct {
	config    *config.Config
	transport Transport
	limiter   *rate.Limiter
	logger    *slog.Logger
	contents  *template.Template
	base      *template.Template
}

// NewEmailService picks the transport named by cfg.EmailProvider.
func NewEmailService(cfg *config.Config, logger *slog.Logger) *EmailService {
	var t Transport
	switch cfg.EmailProvider {
	case "smtp":
		t = &SMTPTransport{config: cfg}
	case "resend":
		t = NewResendTransport(cfg.ResendAPIKey, cfg.FromEmail, logger)
	default:
		t = &LogTransport{logger: logger}
	}
	return NewEmailServiceWithTransport(cfg, t, logger)
}

func NewEmailServiceWithTransport(cfg *config.Config, t Transport, logger *slog.Logger) *EmailService {
	limit := rate.Inf
	if cfg.EmailRatePerSec > 0 {
		limit = rate.Limit(cfg.EmailRatePerSec)
	}
	burst := cfg.EmailBurst
	if burst < 1 {
		burst = 1
	}
	return &EmailService{
		config:    cfg,
		transport: t,
		limiter:   rate.NewLimiter(limit, burst),
		logger:    logger.With("component", "email"),
		contents:  template.Must(template.New("contents").Parse(contentTemplates)),
		base:      template.Must(template.New("email").Parse(BaseEmailTemplate)),
	}
}

// EmailData contains common email template data
type EmailData struct {
	AppName     string
	AppURL      string
	UserName    string
	Subject     string
	Content     template.HTML
	ActionURL   string
	ActionLabel string
}

// BaseEmailTemplate is the base HTML email template
const BaseEmailTemplate = `
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Subject}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background: linear-gradient(135deg, #f97316 0%, #db2777 100%); color: white; padding: 30px; text-align: center; border-radius: 8px 8px 0 0; }
        .content { background: #f9f9f9; padding: 30px; border-radius: 0 0 8px 8px; }
        .button { display: inline-block; background: #db2777; color: white; padding: 12px 30px; text-decoration: none; border-radius: 6px; margin: 20px 0; }
        .footer { text-align: center; color: #888; font-size: 12px; margin-top: 20px; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>{{.AppName}}</h1>
        </div>
        <div class="content">
            <p>Hi {{.UserName}},</p>
            {{.Content}}
            {{if .ActionURL}}
            <p style="text-align: center;">
                <a href="{{.ActionURL}}" class="button">{{.ActionLabel}}</a>
            </p>
            {{end}}
        </div>
        <div class="footer">
            <p>&copy; {{.AppName}}. All rights reserved.</p>
            <p>This is an automated message. Please do not reply.</p>
        </div>
    </div>
</body>
</html>
`

const contentTemplates = `
{{define "team_assignment"}}
<p>Teams for <strong>{{.HackathonName}}</strong> are ready. You are on <strong>{{.TeamName}}</strong>.</p>
<p><strong>Problem statement:</strong> {{.ProblemStatement}}</p>
<p><strong>Team:</strong></p>
<ul>{{range .Members}}<li>{{.}}</li>{{end}}</ul>
{{end}}
{{define "hackathon_cancelled"}}
<p><strong>{{.HackathonName}}</strong> has been cancelled.</p>
{{if .Reason}}<p>Reason: {{.Reason}}</p>{{end}}
<p>Any team you were placed in has been dissolved.</p>
{{end}}
{{define "hackathon_completed"}}
<p><strong>{{.HackathonName}}</strong> is over. Thanks for taking part{{if .TeamName}} with <strong>{{.TeamName}}</strong>{{end}}!</p>
{{end}}
`

// Send renders templateName with data and delivers it to one recipient.
// Render failures are validation errors and are not worth retrying;
// delivery failures are email errors.
func (s *EmailService) Send(ctx context.Context, to, templateName string, data any) error {
	msg, err := s.render(templateName, data)
	if err != nil {
		return err
	}
	body, err := s.renderEmail(msg)
	if err != nil {
		return apperrors.Validation(apperrors.CodeInvalidFormat, "render "+templateName+": "+err.Error(), nil)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	if err := s.transport.Deliver(ctx, to, msg.Subject, body); err != nil {
		s.logger.Error("email_send_failed", "to", to, "template", templateName, "error", err)
		return apperrors.Email(fmt.Sprintf("send email to %s: %v", to, err), err)
	}
	s.logger.Info("email_sent", "to", to, "template", templateName)
	return nil
}

func (s *EmailService) render(templateName string, data any) (EmailData, error) {
	var msg EmailData
	switch d := data.(type) {
	case TeamAssignmentData:
		if templateName != TemplateTeamAssignment {
			break
		}
		msg = EmailData{
			UserName:    d.RecipientName,
			Subject:     fmt.Sprintf("Your team for %s", d.HackathonName),
			ActionURL:   s.config.AppURL + "/teams",
			ActionLabel: "Meet your team",
		}
	case HackathonCancelledData:
		if templateName != TemplateHackathonCancelled {
			break
		}
		msg = EmailData{
			UserName: d.RecipientName,
			Subject:  fmt.Sprintf("%s has been cancelled", d.HackathonName),
		}
	case HackathonCompletedData:
		if templateName != TemplateHackathonCompleted {
			break
		}
		msg = EmailData{
			UserName:    d.RecipientName,
			Subject:     fmt.Sprintf("%s has ended", d.HackathonName),
			ActionURL:   s.config.AppURL + "/hackathons",
			ActionLabel: "See results",
		}
	}
	if msg.Subject == "" {
		return msg, apperrors.Validation(apperrors.CodeInvalidFormat,
			fmt.Sprintf("template %q does not accept %T", templateName, data), nil)
	}

	var buf bytes.Buffer
	if err := s.contents.ExecuteTemplate(&buf, templateName, data); err != nil {
		return msg, apperrors.Validation(apperrors.CodeInvalidFormat, "render "+templateName+": "+err.Error(), nil)
	}
	msg.Content = template.HTML(strings.TrimSpace(buf.String()))
	return msg, nil
}

// renderEmail renders an email using the base template
func (s *EmailService) renderEmail(data EmailData) (string, error) {
	data.AppName = s.config.AppName
	data.AppURL = s.config.AppURL

	var buf bytes.Buffer
	if err := s.base.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const defaultSMTPTimeout = 10 * time.Second

// SMTPTransport sends through the configured SMTP relay. The whole exchange
// is bounded by ctx and SMTPTimeout, so a stalled relay releases the worker.
type SMTPTransport struct {
	config *config.Config
}

func (t *SMTPTransport) Deliver(ctx context.Context, to, subject, body string) error {
	timeout := t.config.SMTPTimeout
	if timeout <= 0 {
		timeout = defaultSMTPTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	host := t.config.SMTPHost
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(t.config.SMTPPort)))
	if err != nil {
		return err
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	c, err := smtp.NewClient(conn, host)
	if err != nil {
		return err
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: host}); err != nil {
			return err
		}
	}
	if t.config.SMTPUser != "" {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(smtp.PlainAuth("", t.config.SMTPUser, t.config.SMTPPassword, host)); err != nil {
				return err
			}
		}
	}

	from := t.config.FromEmail
	if err := c.Mail(from); err != nil {
		return err
	}
	if err := c.Rcpt(to); err != nil {
		return err
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	headers := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n",
		from, to, subject)
	if _, err := w.Write([]byte(headers + body)); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

// ResendTransport sends via the Resend API.
type ResendTransport struct {
	client *resend.Client
	from   string
	logger *slog.Logger
}

func NewResendTransport(apiKey, from string, logger *slog.Logger) *ResendTransport {
	return &ResendTransport{client: resend.NewClient(apiKey), from: from, logger: logger.With("component", "resend")}
}

func (t *ResendTransport) Deliver(ctx context.Context, to, subject, body string) error {
	sent, err := t.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    t.from,
		To:      []string{to},
		Subject: subject,
		Html:    body,
	})
	if err != nil {
		return fmt.Errorf("resend: %w", err)
	}
	t.logger.Debug("resend_sent", "message_id", sent.Id, "to", to)
	return nil
}

// LogTransport only logs. It is used in development when no provider is set.
type LogTransport struct {
	logger *slog.Logger
}

func (t *LogTransport) Deliver(ctx context.Context, to, subject, body string) error {
	t.logger.Info("email_logged", "to", to, "subject", subject, "bytes", len(body))
	return nil
}
