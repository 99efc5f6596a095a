package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// JetStreamPublisher publishes to a stream that captures every relay
// subject.
type JetStreamPublisher struct {
	nc *nats.Conn
	js jetstream.JetStream
}

// Connect dials url and makes sure the stream exists.
func Connect(ctx context.Context, url, stream string) (*JetStreamPublisher, error) {
	nc, err := nats.Connect(url, nats.Name("casanet-remote-server"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, err
	}

	_, err = js.Stream(ctx, stream)
	if errors.Is(err, jetstream.ErrStreamNotFound) {
		_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
			Name:     stream,
			Subjects: []string{subjectPrefix + ".>"},
		})
	}
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to prepare stream %s: %w", stream, err)
	}

	return &JetStreamPublisher{nc: nc, js: js}, nil
}

func (p *JetStreamPublisher) Publish(ctx context.Context, subject string, data []byte, id string) error {
	_, err := p.js.Publish(ctx, subject, data, jetstream.WithMsgID(id))
	return err
}

func (p *JetStreamPublisher) Close() {
	p.nc.Close()
}
