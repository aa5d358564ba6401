package email

import (
	"context"
	"errors"
	"net/smtp"
	"testing"
	"time"

	"github.com/cmlabs-hris/biometric-attendance/internal/config"
	"github.com/cmlabs-hris/biometric-attendance/internal/domain/person"
	"github.com/cmlabs-hris/biometric-attendance/internal/pkg/businesstime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentMail struct {
	addr string
	from string
	to   []string
	msg  string
}

func newTestService(t *testing.T, cfg config.SMTPConfig, failures int) (*AlertService, *[]sentMail, *int) {
	t.Helper()
	svc, err := NewAlertService(cfg, businesstime.Default())
	require.NoError(t, err)
	svc.backoff = time.Millisecond

	sent := []sentMail{}
	calls := 0
	svc.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		calls++
		if calls <= failures {
			return errors.New("connection refused")
		}
		sent = append(sent, sentMail{addr: addr, from: from, to: to, msg: string(msg)})
		return nil
	}
	return svc, &sent, &calls
}

var smtpConfig = config.SMTPConfig{
	Host:     "smtp.example.com",
	Port:     587,
	From:     "alertas@example.com",
	FromName: "Control de Asistencia",
	AlertTo:  "gerencia@example.com",
}

var intruder = person.Person{
	ID:         "worker-1",
	Partition:  person.PartitionWorkers,
	ExternalID: "2020",
	FullName:   "Luis <b>Pérez</b>",
}

func TestSendUnauthorizedAccessAlert(t *testing.T) {
	svc, sent, _ := newTestService(t, smtpConfig, 0)
	at := time.Date(2025, 3, 11, 14, 5, 0, 0, time.UTC)

	err := svc.SendUnauthorizedAccessAlert(context.Background(), intruder, "salon-norte", "brand-1", at, []string{"no access to location salon-norte"})
	require.NoError(t, err)
	require.Len(t, *sent, 1)

	mail := (*sent)[0]
	assert.Equal(t, "smtp.example.com:587", mail.addr)
	assert.Equal(t, []string{"gerencia@example.com"}, mail.to)
	assert.Contains(t, mail.msg, "Subject: Acceso no autorizado: Luis <b>Pérez</b>\r\n")
	assert.Contains(t, mail.msg, "Luis &lt;b&gt;Pérez&lt;/b&gt;")
	assert.Contains(t, mail.msg, "2025-03-11 09:05:00")
	assert.Contains(t, mail.msg, "<li>no access to location salon-norte</li>")
}

func TestSendUnauthorizedAccessAlert_Retries(t *testing.T) {
	svc, sent, calls := newTestService(t, smtpConfig, 2)

	err := svc.SendUnauthorizedAccessAlert(context.Background(), intruder, "s", "b", time.Now(), nil)
	require.NoError(t, err)
	assert.Equal(t, 3, *calls)
	assert.Len(t, *sent, 1)
}

func TestSendUnauthorizedAccessAlert_GivesUp(t *testing.T) {
	svc, _, calls := newTestService(t, smtpConfig, 10)

	err := svc.SendUnauthorizedAccessAlert(context.Background(), intruder, "s", "b", time.Now(), nil)
	require.Error(t, err)
	assert.Equal(t, maxRetries, *calls)
}

func TestSendUnauthorizedAccessAlert_SkippedWithoutConfig(t *testing.T) {
	noHost := smtpConfig
	noHost.Host = ""
	svc, _, calls := newTestService(t, noHost, 0)
	require.NoError(t, svc.SendUnauthorizedAccessAlert(context.Background(), intruder, "s", "b", time.Now(), nil))
	assert.Equal(t, 0, *calls)

	noRecipient := smtpConfig
	noRecipient.AlertTo = ""
	svc, _, calls = newTestService(t, noRecipient, 0)
	require.NoError(t, svc.SendUnauthorizedAccessAlert(context.Background(), intruder, "s", "b", time.Now(), nil))
	assert.Equal(t, 0, *calls)
}
