// Package notifications mails the contact of a local server when its
// connection status changes and stays changed for a hold window.
package notifications

import (
	"context"
	"sync"
	"time"

	"github.com/casanet/remote-server/internal/logging"
	"github.com/casanet/remote-server/internal/server/models"
)

const sendTimeout = 30 * time.Second

type ServerGetter interface {
	Get(ctx context.Context, mac string) (*models.LocalServer, error)
}

type StatusMailer interface {
	SendStatus(ctx context.Context, to string, server *models.LocalServer, connected bool, at time.Time) error
}

type task struct {
	connected bool
	pending   bool
	gen       uint64
	stop      func() bool
}

// Engine consumes status events in order on its own goroutine, so that
// publishers never wait on the database or the mail server.
type Engine struct {
	window  time.Duration
	servers ServerGetter
	mailer  StatusMailer
	logger  logging.Logger

	afterFunc func(d time.Duration, f func()) (stop func() bool)

	qmu    sync.Mutex
	queue  []models.StatusEvent
	notify chan struct{}

	mu    sync.Mutex
	tasks map[string]*task
}

func New(window time.Duration, servers ServerGetter, mailer StatusMailer, logger logging.Logger) *Engine {
	return &Engine{
		window:  window,
		servers: servers,
		mailer:  mailer,
		logger:  logger.With("module", "notifications"),
		afterFunc: func(d time.Duration, f func()) func() bool {
			return time.AfterFunc(d, f).Stop
		},
		notify: make(chan struct{}, 1),
		tasks:  make(map[string]*task),
	}
}

// Enqueue schedules ev for processing. It never blocks and is meant to be
// subscribed to the relay status feed.
func (e *Engine) Enqueue(ev models.StatusEvent) {
	e.qmu.Lock()
	e.queue = append(e.queue, ev)
	e.qmu.Unlock()

	select {
	case e.notify <- struct{}{}:
	default:
	}
}

// Run processes queued events until ctx is done, then cancels every
// pending notification.
func (e *Engine) Run(ctx context.Context) {
	defer e.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.notify:
			for _, ev := range e.drain() {
				e.Handle(ctx, ev)
			}
		}
	}
}

func (e *Engine) drain() []models.StatusEvent {
	e.qmu.Lock()
	defer e.qmu.Unlock()
	q := e.queue
	e.queue = nil
	return q
}

// Handle applies one status event.
func (e *Engine) Handle(ctx context.Context, ev models.StatusEvent) {
	e.mu.Lock()
	t, ok := e.tasks[ev.Identity]
	switch {
	case !ok:
		e.tasks[ev.Identity] = &task{connected: ev.Connected}
		e.mu.Unlock()
		return
	case t.connected == ev.Connected:
		e.mu.Unlock()
		return
	case t.pending:
		// flap shorter than the window
		t.stop()
		t.pending = false
		t.gen++
		t.connected = ev.Connected
		e.mu.Unlock()
		e.logger.Debug(ctx, "status flap suppressed", "mac", ev.Identity, "connected", ev.Connected)
		return
	}
	e.mu.Unlock()

	server, err := e.servers.Get(ctx, ev.Identity)
	if err != nil {
		e.logger.Error(ctx, "failed to read server for notification", "mac", ev.Identity, "error", err)
		return
	}
	if server.ContactMail == "" {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	t.connected = ev.Connected
	t.pending = true
	t.gen++
	gen := t.gen
	t.stop = e.afterFunc(e.window, func() { e.fire(ev, gen, server) })
}

func (e *Engine) fire(ev models.StatusEvent, gen uint64, server *models.LocalServer) {
	e.mu.Lock()
	t, ok := e.tasks[ev.Identity]
	if !ok || !t.pending || t.gen != gen {
		e.mu.Unlock()
		return
	}
	t.pending = false
	e.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	if err := e.mailer.SendStatus(ctx, server.ContactMail, server, ev.Connected, ev.At); err != nil {
		e.logger.Error(ctx, "failed to send status notification", "mac", ev.Identity, "error", err)
		return
	}
	e.logger.Info(ctx, "status notification sent", "mac", ev.Identity, "connected", ev.Connected)
}

// Stop cancels every pending notification.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, t := range e.tasks {
		if t.pending {
			t.stop()
			t.pending = false
			t.gen++
		}
	}
}
