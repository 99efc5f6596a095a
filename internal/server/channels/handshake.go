package channels

import (
	"context"
	"errors"
	"fmt"

	"github.com/casanet/remote-server/internal/common"
	"github.com/casanet/remote-server/internal/cryptox"
	"github.com/casanet/remote-server/internal/protocol"
	"github.com/casanet/remote-server/internal/server/models"
)

var errHandshake = errors.New("handshake failed")

func (r *Relay) handshake(ctx context.Context, ch *Channel, init *protocol.Initialization) {
	mac := init.MacAddress

	server, err := r.authenticate(ctx, init)
	if err != nil {
		if isAuthFailure(err) {
			r.logger.Warn(ctx, "local server authentication failed", "mac", mac)
			if err := ch.send(protocol.AuthenticationFail(protocol.CodeAuthFailed, "authorization of local server in remote fail")); err != nil {
				r.logger.Warn(ctx, "failed to send authentication failure", "mac", mac, "error", err)
			}
			return
		}
		r.failHandshake(ctx, ch, mac, err)
		return
	}

	r.register(ctx, ch, mac)

	if err := ch.send(protocol.AuthenticatedSuccessfully()); err != nil {
		r.failHandshake(ctx, ch, mac, fmt.Errorf("%w: %v", errHandshake, err))
		return
	}

	if err := r.servers.UpdateConnection(ctx, mac); err != nil {
		r.logger.Error(ctx, "failed to persist connection", "mac", mac, "error", err)
	}

	meta := models.ServerMeta{Platform: init.Platform, Version: init.Version, LocalIP: init.LocalIP}
	if server.MetaChanged(meta) {
		if err := r.servers.UpdateMeta(ctx, mac, meta); err != nil {
			r.failHandshake(ctx, ch, mac, err)
			return
		}
	}

	r.logger.Info(ctx, "local server connected", "mac", mac, "platform", init.Platform, "version", init.Version)
	r.status.Publish(models.StatusEvent{Identity: mac, Connected: true, At: r.now()})
}

func (r *Relay) authenticate(ctx context.Context, init *protocol.Initialization) (*models.LocalServer, error) {
	server, err := r.servers.Get(ctx, init.MacAddress)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, fmt.Errorf("error reading server: %w", err)
	}

	hashed := cryptox.HashKey(init.RemoteAuthKey, r.opts.KeySalt)
	if err := r.credentials.Verify(ctx, init.MacAddress, hashed); err != nil {
		return nil, err
	}
	return server, nil
}

// register binds ch to mac. A channel already registered for mac is unbound
// and closed so that at most one channel per identity survives.
func (r *Relay) register(ctx context.Context, ch *Channel, mac string) {
	if old := ch.Identity(); old != "" && old != mac && r.registry.Remove(old, ch) {
		r.logger.Info(ctx, "channel switched identity", "from", old, "to", mac)
		r.persistDisconnection(ctx, old)
		r.status.Publish(models.StatusEvent{Identity: old, Connected: false, At: r.now()})
	}

	ch.bind(mac)
	prev := r.registry.Put(mac, ch)
	if prev == nil {
		return
	}

	r.logger.Info(ctx, "superseding channel", "mac", mac)
	prev.unbind()
	if err := prev.close(); err != nil {
		r.logger.Warn(ctx, "failed to close superseded channel", "mac", mac, "error", err)
	}
}

// failHandshake tells the peer about an internal error and closes ch after
// a delay so the message can flush.
func (r *Relay) failHandshake(ctx context.Context, ch *Channel, mac string, err error) {
	r.logger.Error(ctx, "handshake failed", "mac", mac, "error", err)

	if err := ch.send(protocol.AuthenticationFail(protocol.CodeInternal, "internal error")); err != nil {
		r.logger.Warn(ctx, "failed to send internal error", "mac", mac, "error", err)
	}

	r.afterFunc(r.opts.FailedHandshakeDelay, func() {
		if err := ch.close(); err != nil {
			r.logger.Warn(context.Background(), "failed to close channel", "mac", mac, "error", err)
		}
	})
}
