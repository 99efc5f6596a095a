package channels

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/casanet/remote-server/internal/common"
	"github.com/casanet/remote-server/internal/logging"
	"github.com/casanet/remote-server/internal/protocol"
)

const codeLength = 6

type challenge struct {
	code     string
	issuedAt time.Time
}

// Registration adds and removes the users allowed to reach a local server
// through the relay. Adding a user requires a code mailed to that user.
type Registration struct {
	ttl     time.Duration
	servers ServerStore
	mailer  CodeMailer
	logger  logging.Logger

	now     func() time.Time
	newCode func() (string, error)

	mu         sync.Mutex
	challenges map[string]challenge
}

func NewRegistration(ttl time.Duration, servers ServerStore, mailer CodeMailer, logger logging.Logger) *Registration {
	return &Registration{
		ttl:        ttl,
		servers:    servers,
		mailer:     mailer,
		logger:     logger,
		now:        time.Now,
		newCode:    func() (string, error) { return common.RandomDigits(codeLength) },
		challenges: make(map[string]challenge),
	}
}

// RequestCode mails a fresh code to email. The code is stored only once the
// mail was sent, replacing any earlier one.
func (g *Registration) RequestCode(ctx context.Context, email string) error {
	code, err := g.newCode()
	if err != nil {
		return fmt.Errorf("error generating code: %w", err)
	}

	if err := g.mailer.SendCode(ctx, email, code); err != nil {
		return fmt.Errorf("error sending code: %w", err)
	}

	g.mu.Lock()
	g.challenges[email] = challenge{code: code, issuedAt: g.now()}
	g.mu.Unlock()

	g.logger.Info(ctx, "registration code sent", "email", email)
	return nil
}

// Register consumes the code of email and adds email to the users of mac.
// It returns common.ErrInvalidCode for a missing, expired or wrong code.
func (g *Registration) Register(ctx context.Context, mac, email, code string) error {
	if !g.consume(email, code) {
		return common.ErrInvalidCode
	}

	server, err := g.servers.Get(ctx, mac)
	if err != nil {
		return fmt.Errorf("error reading server: %w", err)
	}
	if server.HasUser(email) {
		return nil
	}

	if err := g.servers.UpdateUsers(ctx, mac, append(slices.Clone(server.ValidUsers), email)); err != nil {
		return fmt.Errorf("error storing users: %w", err)
	}
	return nil
}

// Unregister removes email from the users of mac.
func (g *Registration) Unregister(ctx context.Context, mac, email string) error {
	server, err := g.servers.Get(ctx, mac)
	if err != nil {
		return fmt.Errorf("error reading server: %w", err)
	}
	if !server.HasUser(email) {
		return nil
	}

	users := slices.DeleteFunc(slices.Clone(server.ValidUsers), func(u string) bool { return u == email })
	if err := g.servers.UpdateUsers(ctx, mac, users); err != nil {
		return fmt.Errorf("error storing users: %w", err)
	}
	return nil
}

func (g *Registration) Users(ctx context.Context, mac string) ([]string, error) {
	server, err := g.servers.Get(ctx, mac)
	if err != nil {
		return nil, fmt.Errorf("error reading server: %w", err)
	}
	return server.ValidUsers, nil
}

func (g *Registration) consume(email, code string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	c, ok := g.challenges[email]
	if !ok {
		return false
	}
	if g.now().Sub(c.issuedAt) >= g.ttl {
		delete(g.challenges, email)
		return false
	}
	if c.code != code {
		return false
	}
	delete(g.challenges, email)
	return true
}

func registerResult(email string, err error) protocol.RegisterResult {
	switch {
	case err == nil:
		return protocol.RegisterResult{User: email}
	case errors.Is(err, common.ErrInvalidCode):
		return protocol.RegisterResult{User: email, Results: &protocol.ErrorResponse{ResponseCode: protocol.CodeRegisterInvalid, Message: "user or code invalid"}}
	default:
		return protocol.RegisterResult{User: email, Results: &protocol.ErrorResponse{ResponseCode: protocol.CodeRegisterInternal, Message: "internal error"}}
	}
}
