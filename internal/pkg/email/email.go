package email

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/smtp"
	"time"

	"github.com/cmlabs-hris/biometric-attendance/internal/config"
	"github.com/cmlabs-hris/biometric-attendance/internal/domain/person"
	"github.com/cmlabs-hris/biometric-attendance/internal/pkg/businesstime"
)

//go:embed templates/*.html
var templateFS embed.FS

const maxRetries = 3

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// AlertService emails the salon operator about rejected access attempts.
type AlertService struct {
	cfg       config.SMTPConfig
	zone      businesstime.Zone
	templates *template.Template
	send      sendFunc
	backoff   time.Duration
}

// NewAlertService creates a new email alert service
func NewAlertService(cfg config.SMTPConfig, zone businesstime.Zone) (*AlertService, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse email templates: %w", err)
	}

	return &AlertService{
		cfg:       cfg,
		zone:      zone,
		templates: tmpl,
		send:      smtp.SendMail,
		backoff:   time.Second,
	}, nil
}

type unauthorizedAccessData struct {
	FullName   string
	ExternalID string
	Partition  string
	Site       string
	Brand      string
	OccurredAt string
	Reasons    []string
}

// SendUnauthorizedAccessAlert sends the alert to SMTP_ALERT_TO.
func (s *AlertService) SendUnauthorizedAccessAlert(ctx context.Context, p person.Person, site, brand string, at time.Time, reasons []string) error {
	if s.cfg.AlertTo == "" {
		return nil
	}

	data := unauthorizedAccessData{
		FullName:   p.FullName,
		ExternalID: p.ExternalID,
		Partition:  string(p.Partition),
		Site:       site,
		Brand:      brand,
		OccurredAt: at.In(s.zone.Location()).Format("2006-01-02 15:04:05"),
		Reasons:    reasons,
	}

	var body bytes.Buffer
	if err := s.templates.ExecuteTemplate(&body, "unauthorized_access.html", data); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}

	return s.sendHTML(ctx, s.cfg.AlertTo, fmt.Sprintf("Acceso no autorizado: %s", p.FullName), body.String())
}

func (s *AlertService) sendHTML(ctx context.Context, to, subject, htmlBody string) error {
	// Skip sending if SMTP is not configured
	if s.cfg.Host == "" {
		slog.Warn("SMTP not configured, skipping email send", "to", to, "subject", subject)
		return nil
	}

	from := s.cfg.From

	headers := fmt.Sprintf("From: %s <%s>\r\n", s.cfg.FromName, from)
	headers += fmt.Sprintf("To: %s\r\n", to)
	headers += fmt.Sprintf("Subject: %s\r\n", subject)
	headers += "MIME-Version: 1.0\r\n"
	headers += "Content-Type: text/html; charset=\"UTF-8\"\r\n"
	headers += "\r\n"

	message := []byte(headers + htmlBody)

	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		err := s.send(addr, auth, from, []string{to}, message)
		if err == nil {
			slog.Info("Email sent successfully", "to", to, "subject", subject, "attempt", attempt)
			return nil
		}

		lastErr = err
		slog.Error("Failed to send email",
			"to", to,
			"subject", subject,
			"attempt", attempt,
			"max_retries", maxRetries,
			"error", err,
		)

		// Wait before retrying (exponential backoff: 1s, 2s, 4s)
		if attempt < maxRetries {
			select {
			case <-ctx.Done():
				return fmt.Errorf("email to %s abandoned: %w", to, ctx.Err())
			case <-time.After(s.backoff << (attempt - 1)):
			}
		}
	}

	return fmt.Errorf("failed to send email after %d attempts: %w", maxRetries, lastErr)
}
