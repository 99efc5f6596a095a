// Package channels keeps the live connections of local servers and relays
// requests and replies over them.
package channels

import (
	"context"
	"errors"
	"time"

	"github.com/casanet/remote-server/internal/common"
	"github.com/casanet/remote-server/internal/logging"
	"github.com/casanet/remote-server/internal/protocol"
	"github.com/casanet/remote-server/internal/server/feed"
	"github.com/casanet/remote-server/internal/server/models"
)

const requestIDLength = 16

// ServerStore is the part of the server repository the relay uses.
type ServerStore interface {
	Get(ctx context.Context, mac string) (*models.LocalServer, error)
	UpdateConnection(ctx context.Context, mac string) error
	UpdateDisconnection(ctx context.Context, mac string) error
	UpdateMeta(ctx context.Context, mac string, meta models.ServerMeta) error
	UpdateUsers(ctx context.Context, mac string, users []string) error
}

// CredentialStore verifies the hashed auth key of a local server. It
// returns common.ErrorUnauthorized on a mismatch.
type CredentialStore interface {
	Verify(ctx context.Context, mac, hashedKey string) error
}

// CodeMailer delivers registration codes.
type CodeMailer interface {
	SendCode(ctx context.Context, email, code string) error
}

type Options struct {
	KeySalt              string
	HTTPTimeout          time.Duration
	LogsTimeout          time.Duration
	ReaperInterval       time.Duration
	CodeTTL              time.Duration
	FailedHandshakeDelay time.Duration
}

// Relay owns the channel registry, the request correlator and the
// registration challenges. Channels must be handed to it through Open,
// HandleMessage and Close, in that order.
type Relay struct {
	opts        Options
	servers     ServerStore
	credentials CredentialStore
	logger      logging.Logger

	registry     *Registry
	correlator   *Correlator
	registration *Registration

	status *feed.Feed[models.StatusEvent]
	local  *feed.Feed[models.FeedEvent]

	now          func() time.Time
	afterFunc    func(d time.Duration, f func())
	newRequestID func() (string, error)
}

func New(opts Options, servers ServerStore, credentials CredentialStore, mailer CodeMailer, logger logging.Logger) *Relay {
	logger = logger.With("module", "relay")

	return &Relay{
		opts:         opts,
		servers:      servers,
		credentials:  credentials,
		logger:       logger,
		registry:     NewRegistry(),
		correlator:   NewCorrelator(opts.HTTPTimeout, opts.LogsTimeout),
		registration: NewRegistration(opts.CodeTTL, servers, mailer, logger),
		status:       feed.New[models.StatusEvent](),
		local:        feed.New[models.FeedEvent](),
		now:          time.Now,
		afterFunc:    func(d time.Duration, f func()) { time.AfterFunc(d, f) },
		newRequestID: func() (string, error) { return common.RandomString(requestIDLength) },
	}
}

// StatusFeed publishes a StatusEvent on every authenticated connect and
// disconnect.
func (r *Relay) StatusFeed() *feed.Feed[models.StatusEvent] {
	return r.status
}

// LocalFeed republishes application feeds pushed by local servers.
func (r *Relay) LocalFeed() *feed.Feed[models.FeedEvent] {
	return r.local
}

// Run sweeps timed out requests until ctx is done.
func (r *Relay) Run(ctx context.Context) {
	NewReaper(r.opts.ReaperInterval, r.correlator, r.logger).Start(ctx)
}

// Open greets a freshly accepted channel.
func (r *Relay) Open(ctx context.Context, ch *Channel) {
	if err := ch.send(protocol.ReadyToInitialization()); err != nil {
		r.logger.Warn(ctx, "failed to greet channel", "error", err)
	}
}

// Close forgets a channel whose transport has gone away. Channels that never
// authenticated, or that were superseded, are ignored.
func (r *Relay) Close(ctx context.Context, ch *Channel) {
	identity := ch.Identity()
	if identity == "" {
		return
	}
	if !r.registry.Remove(identity, ch) {
		return
	}

	r.logger.Info(ctx, "local server disconnected", "mac", identity)
	r.persistDisconnection(ctx, identity)
	r.status.Publish(models.StatusEvent{Identity: identity, Connected: false, At: r.now()})
}

// Disconnect drops the channel of mac, if any. A channel that supersedes
// the one being dropped before it is removed is dropped as well.
func (r *Relay) Disconnect(ctx context.Context, mac string) {
	for {
		ch, ok := r.registry.Get(mac)
		if !ok {
			return
		}

		ch.unbind()
		if err := ch.close(); err != nil {
			r.logger.Warn(ctx, "failed to close channel", "mac", mac, "error", err)
		}
		if r.registry.Remove(mac, ch) {
			break
		}
	}

	r.logger.Info(ctx, "local server disconnected by request", "mac", mac)
	r.persistDisconnection(ctx, mac)
	r.status.Publish(models.StatusEvent{Identity: mac, Connected: false, At: r.now()})
}

// Status reports whether mac has an authenticated channel.
func (r *Relay) Status(mac string) bool {
	return r.registry.Contains(mac)
}

// Connected lists the identities that currently have a channel.
func (r *Relay) Connected() []string {
	return r.registry.Identities()
}

// SendHTTP forwards req to the local server mac and waits for its reply.
// It never fails: an unreachable or silent local server yields a synthetic
// 501 response. The wait ends only on a reply or on the reaper's timeout.
func (r *Relay) SendHTTP(ctx context.Context, mac string, req protocol.HTTPRequest) *protocol.HTTPResponse {
	ch, ok := r.registry.Get(mac)
	if !ok {
		return protocol.ErrorHTTPResponse(req.RequestID, protocol.CodeNoConnection, "There is no connection to local server.")
	}

	id, err := r.newRequestID()
	if err != nil {
		r.logger.Error(ctx, "failed to generate request id", "mac", mac, "error", err)
		return protocol.ErrorHTTPResponse(req.RequestID, protocol.CodeInternal, "internal error")
	}

	req.RequestID = id
	entry := r.correlator.parkHTTP(req.RequestID)

	if err := ch.send(protocol.ForwardHTTPRequest(req)); err != nil {
		r.logger.Warn(ctx, "failed to forward http request", "mac", mac, "request_id", req.RequestID, "error", err)
	}

	out := <-entry.done
	return out.value
}

// FetchLogs asks the local server mac for its logs. It fails at once with
// common.ErrNotConnected when there is no channel, and with a
// *protocol.ErrorResponse when the local server does not answer in time.
// Only one fetch per local server is tracked: a second call replaces the
// first, which is then left to time out.
func (r *Relay) FetchLogs(ctx context.Context, mac string) (string, error) {
	ch, ok := r.registry.Get(mac)
	if !ok {
		return "", common.ErrNotConnected
	}

	entry := r.correlator.parkLogs(mac)

	if err := ch.send(protocol.FetchLogs()); err != nil {
		r.logger.Warn(ctx, "failed to request logs", "mac", mac, "error", err)
	}

	out := <-entry.done
	return out.value, out.err
}

// RequestCode mails a registration code to email.
func (r *Relay) RequestCode(ctx context.Context, email string) error {
	return r.registration.RequestCode(ctx, email)
}

func (r *Relay) persistDisconnection(ctx context.Context, mac string) {
	if err := r.servers.UpdateDisconnection(ctx, mac); err != nil {
		r.logger.Error(ctx, "failed to persist disconnection", "mac", mac, "error", err)
	}
}

func isAuthFailure(err error) bool {
	return errors.Is(err, common.ErrorUnauthorized) || errors.Is(err, common.ErrorNotFound)
}
