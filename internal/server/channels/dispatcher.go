package channels

import (
	"context"

	"github.com/casanet/remote-server/internal/protocol"
	"github.com/casanet/remote-server/internal/server/models"
)

// HandleMessage decodes one inbound frame and acts on it. Malformed frames
// and frames from channels that are not registered are dropped. Failures
// never escape; they are logged or reported to the peer.
func (r *Relay) HandleMessage(ctx context.Context, ch *Channel, data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		r.logger.Warn(ctx, "dropping malformed message", "error", err)
		return
	}

	if init, ok := msg.Payload.(*protocol.Initialization); ok {
		r.handshake(ctx, ch, init)
		return
	}

	mac := ch.Identity()
	if cur, ok := r.registry.Get(mac); mac == "" || !ok || cur != ch {
		r.logger.Debug(ctx, "dropping message from unauthenticated channel", "type", msg.Type)
		return
	}

	switch p := msg.Payload.(type) {
	case *protocol.Ack:
		r.reply(ctx, ch, mac, protocol.AckOk())

	case *protocol.HTTPResponse:
		if !r.correlator.ResolveHTTP(p) {
			r.logger.Debug(ctx, "dropping unknown http response", "mac", mac, "request_id", p.RequestID)
		}

	case *protocol.Logs:
		if !r.correlator.ResolveLogs(mac, p.Data) {
			r.logger.Debug(ctx, "dropping unrequested logs", "mac", mac)
		}

	case *protocol.SendRegistrationCode:
		if err := r.registration.RequestCode(ctx, p.Email); err != nil {
			r.logger.Error(ctx, "failed to send registration code", "mac", mac, "error", err)
		}

	case *protocol.RegisterAccount:
		err := r.registration.Register(ctx, mac, p.Email, p.Code)
		r.reply(ctx, ch, mac, protocol.RegisterUserResults(registerResult(p.Email, err)))

	case *protocol.UnregisterAccount:
		err := r.registration.Unregister(ctx, mac, p.Email)
		r.reply(ctx, ch, mac, protocol.RegisterUserResults(registerResult(p.Email, err)))

	case *protocol.RegisteredUsersQuery:
		users, err := r.registration.Users(ctx, mac)
		if err != nil {
			r.logger.Error(ctx, "failed to read registered users", "mac", mac, "error", err)
			return
		}
		r.reply(ctx, ch, mac, protocol.RegisteredUsers(users))

	case *protocol.Feed:
		r.local.Publish(models.FeedEvent{Identity: mac, FeedType: string(p.FeedType), FeedContent: p.FeedContent})
	}
}

func (r *Relay) reply(ctx context.Context, ch *Channel, mac string, msg protocol.RemoteMessage) {
	if err := ch.send(msg); err != nil {
		r.logger.Warn(ctx, "failed to reply", "mac", mac, "type", msg.Type, "error", err)
	}
}
