package mailer

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	"github.com/casanet/remote-server/internal/server/models"
)

const (
	codeSubject         = "Casanet Account Verification"
	reconnectedSubject  = "Casanet Remote Notification"
	disconnectedSubject = "Casanet Remote Alert"
	timeLayout          = "02/01/2006 15:04:05 MST"
)

var codeTemplate = template.Must(template.New("code").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif">
  <h2>Casanet account verification</h2>
  <p>Your verification code is:</p>
  <p style="font-size: 28px; letter-spacing: 6px"><b>{{.Code}}</b></p>
  <p>The code will expire within {{.Minutes}} minutes.</p>
</body>
</html>`))

var statusTemplate = template.Must(template.New("status").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif">
{{- if .Connected}}
  <h2>Local server reconnected</h2>
  <p>The local server <b>{{.Name}}</b> ({{.MAC}}) is connected to the remote server again since {{.At}}.</p>
{{- else}}
  <h2>Local server disconnected</h2>
  <p>The local server <b>{{.Name}}</b> ({{.MAC}}) lost its connection to the remote server at {{.At}}.</p>
  <p>Things worth checking:</p>
  <ul>
    <li>The computer running the local server is powered on and healthy.</li>
    <li>The local dashboard is reachable from the home network.</li>
    <li>The remote server settings and URL in the local dashboard.</li>
    <li>The home internet connection.</li>
  </ul>
{{- end}}
</body>
</html>`))

// Mailer builds the verification and status emails.
type Mailer struct {
	sender   Sender
	location *time.Location
	codeTTL  time.Duration
}

// New returns a Mailer rendering timestamps in the timezone tz.
func New(sender Sender, tz string, codeTTL time.Duration) (*Mailer, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid notifications timezone: %w", err)
	}
	return &Mailer{sender: sender, location: loc, codeTTL: codeTTL}, nil
}

// SendCode mails a registration code.
func (m *Mailer) SendCode(ctx context.Context, email, code string) error {
	body, err := render(codeTemplate, struct {
		Code    string
		Minutes int
	}{Code: code, Minutes: int(m.codeTTL.Minutes())})
	if err != nil {
		return err
	}
	return m.sender.Send(ctx, email, codeSubject, body)
}

// SendStatus mails a connection status change of server.
func (m *Mailer) SendStatus(ctx context.Context, to string, server *models.LocalServer, connected bool, at time.Time) error {
	name := server.DisplayName
	if name == "" {
		name = server.PhysicalAddress
	}

	body, err := render(statusTemplate, struct {
		Connected bool
		Name      string
		MAC       string
		At        string
	}{
		Connected: connected,
		Name:      name,
		MAC:       server.PhysicalAddress,
		At:        at.In(m.location).Format(timeLayout),
	})
	if err != nil {
		return err
	}

	subject := disconnectedSubject
	if connected {
		subject = reconnectedSubject
	}
	return m.sender.Send(ctx, to, subject, body)
}

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("error rendering %s mail: %w", t.Name(), err)
	}
	return buf.String(), nil
}
