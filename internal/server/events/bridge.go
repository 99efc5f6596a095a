// Package events republishes relay activity on NATS JetStream.
package events

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/casanet/remote-server/internal/logging"
	"github.com/casanet/remote-server/internal/server/models"
	"github.com/google/uuid"
)

const (
	subjectPrefix  = "relay"
	queueSize      = 1024
	publishTimeout = 5 * time.Second
)

// Publisher sends one message. id deduplicates retries.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte, id string) error
}

type StatusMessage struct {
	ID        string    `json:"id"`
	Identity  string    `json:"identity"`
	Connected bool      `json:"connected"`
	At        time.Time `json:"at"`
}

type FeedMessage struct {
	ID          string          `json:"id"`
	Identity    string          `json:"identity"`
	FeedType    string          `json:"feedType"`
	FeedContent json.RawMessage `json:"feedContent"`
}

type outgoing struct {
	subject string
	id      string
	payload any
}

// Bridge queues events from the relay feeds and publishes them in order
// from Run. Events are dropped when the queue is full.
type Bridge struct {
	pub    Publisher
	logger logging.Logger
	queue  chan outgoing
}

func NewBridge(pub Publisher, logger logging.Logger) *Bridge {
	return &Bridge{
		pub:    pub,
		logger: logger.With("module", "events"),
		queue:  make(chan outgoing, queueSize),
	}
}

// Subject tokens may not contain dots or wildcards, so identities are
// reduced to lowercase alphanumerics.
func token(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		}
		return -1
	}, s)
}

func StatusSubject(identity string) string {
	return subjectPrefix + ".status." + token(identity)
}

func FeedSubject(identity, feedType string) string {
	return subjectPrefix + ".feed." + token(identity) + "." + token(feedType)
}

func (b *Bridge) Status(ev models.StatusEvent) {
	id := uuid.NewString()
	b.enqueue(outgoing{
		subject: StatusSubject(ev.Identity),
		id:      id,
		payload: StatusMessage{ID: id, Identity: ev.Identity, Connected: ev.Connected, At: ev.At},
	})
}

func (b *Bridge) Feed(ev models.FeedEvent) {
	id := uuid.NewString()
	b.enqueue(outgoing{
		subject: FeedSubject(ev.Identity, ev.FeedType),
		id:      id,
		payload: FeedMessage{ID: id, Identity: ev.Identity, FeedType: ev.FeedType, FeedContent: ev.FeedContent},
	})
}

func (b *Bridge) enqueue(m outgoing) {
	select {
	case b.queue <- m:
	default:
		b.logger.Warn(context.Background(), "event queue full, dropping event", "subject", m.subject)
	}
}

// Run publishes queued events until ctx is done.
func (b *Bridge) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-b.queue:
			b.publish(ctx, m)
		}
	}
}

func (b *Bridge) publish(ctx context.Context, m outgoing) {
	data, err := json.Marshal(m.payload)
	if err != nil {
		b.logger.Error(ctx, "failed to encode event", "subject", m.subject, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := b.pub.Publish(ctx, m.subject, data, m.id); err != nil {
		b.logger.Warn(ctx, "failed to publish event", "subject", m.subject, "error", err)
	}
}
