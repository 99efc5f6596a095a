package mailer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/casanet/remote-server/internal/logging"
	"github.com/casanet/remote-server/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sent struct {
	to, subject, body string
}

type fakeSender struct {
	mails []sent
	err   error
}

func (f *fakeSender) Send(_ context.Context, to, subject, body string) error {
	if f.err != nil {
		return f.err
	}
	f.mails = append(f.mails, sent{to, subject, body})
	return nil
}

func TestNew_InvalidTimezone(t *testing.T) {
	_, err := New(&fakeSender{}, "Not/AZone", 5*time.Minute)
	assert.Error(t, err)
}

func TestMailer_SendCode(t *testing.T) {
	s := &fakeSender{}
	m, err := New(s, "UTC", 5*time.Minute)
	require.NoError(t, err)

	require.NoError(t, m.SendCode(context.Background(), "user@example.com", "123456"))

	require.Len(t, s.mails, 1)
	assert.Equal(t, "user@example.com", s.mails[0].to)
	assert.Equal(t, "Casanet Account Verification", s.mails[0].subject)
	assert.Contains(t, s.mails[0].body, "123456")
	assert.Contains(t, s.mails[0].body, "expire within 5 minutes")
}

func TestMailer_SendStatus(t *testing.T) {
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	server := &models.LocalServer{PhysicalAddress: "AA:BB:CC:DD:EE:FF", DisplayName: "<home>"}

	tests := []struct {
		name      string
		connected bool
		subject   string
		contains  []string
		missing   []string
	}{
		{
			name:      "reconnected",
			connected: true,
			subject:   "Casanet Remote Notification",
			contains:  []string{"reconnected", "&lt;home&gt;", "01/03/2024 12:00:00"},
			missing:   []string{"home internet"},
		},
		{
			name:      "disconnected",
			connected: false,
			subject:   "Casanet Remote Alert",
			contains:  []string{"disconnected", "AA:BB:CC:DD:EE:FF", "home internet", "local dashboard"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &fakeSender{}
			m, err := New(s, "Asia/Jerusalem", 5*time.Minute)
			require.NoError(t, err)

			require.NoError(t, m.SendStatus(context.Background(), "owner@example.com", server, tt.connected, at))

			require.Len(t, s.mails, 1)
			assert.Equal(t, "owner@example.com", s.mails[0].to)
			assert.Equal(t, tt.subject, s.mails[0].subject)
			for _, c := range tt.contains {
				assert.Contains(t, s.mails[0].body, c)
			}
			for _, c := range tt.missing {
				assert.NotContains(t, s.mails[0].body, c)
			}
		})
	}
}

func TestMailer_SenderError(t *testing.T) {
	boom := errors.New("smtp down")
	m, err := New(&fakeSender{err: boom}, "UTC", 5*time.Minute)
	require.NoError(t, err)

	assert.ErrorIs(t, m.SendCode(context.Background(), "user@example.com", "123456"), boom)
}

func TestSMTPSender_Message(t *testing.T) {
	s := NewSMTPSender(SMTPConfig{Host: "smtp.example.com", Port: 465, Username: "relay@example.com"})

	msg, err := s.message("user@example.com", "subject", "<p>hi</p>")
	require.NoError(t, err)
	to := msg.GetTo()
	require.Len(t, to, 1)
	assert.Equal(t, "user@example.com", to[0].Address)
	assert.Equal(t, "relay@example.com", s.cfg.From)

	_, err = s.message("not an address", "subject", "")
	assert.Error(t, err)
}

func TestLogSender(t *testing.T) {
	assert.NoError(t, NewLogSender(logging.Nop()).Send(context.Background(), "a@b.io", "s", "b"))
}
