package channels

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/casanet/remote-server/internal/common"
	"github.com/casanet/remote-server/internal/cryptox"
	"github.com/casanet/remote-server/internal/logging"
	"github.com/casanet/remote-server/internal/protocol"
	"github.com/casanet/remote-server/internal/server/models"
	"github.com/stretchr/testify/require"
)

const (
	testMAC  = "AA:BB:CC:DD:EE:FF"
	testKey  = "local-server-key"
	testSalt = "salt"
)

var errBoom = errors.New("boom")

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeConn struct {
	mu      sync.Mutex
	sent    [][]byte
	closed  int
	sendErr error
	// runs once, on the first Close
	onClose func()
}

func (c *fakeConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, data)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed++
	hook := c.onClose
	c.onClose = nil
	c.mu.Unlock()

	if hook != nil {
		hook()
	}
	return nil
}

func (c *fakeConn) Closed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) Types() []protocol.RemoteMessageType {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]protocol.RemoteMessageType, 0, len(c.sent))
	for _, b := range c.sent {
		typ, _, err := protocol.ParseRemote(b)
		if err == nil {
			out = append(out, typ)
		}
	}
	return out
}

// Last returns the payload of the last message of type typ.
func (c *fakeConn) Last(t *testing.T, typ protocol.RemoteMessageType) json.RawMessage {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := len(c.sent) - 1; i >= 0; i-- {
		got, raw, err := protocol.ParseRemote(c.sent[i])
		require.NoError(t, err)
		if got == typ {
			return raw
		}
	}
	t.Fatalf("no %s message sent", typ)
	return nil
}

type fakeServers struct {
	mu      sync.Mutex
	servers map[string]*models.LocalServer

	getErr   error
	metaErr  error
	usersErr error

	connections    []string
	disconnections []string
	metas          []models.ServerMeta
}

func newFakeServers(list ...*models.LocalServer) *fakeServers {
	f := &fakeServers{servers: map[string]*models.LocalServer{}}
	for _, s := range list {
		f.servers[s.PhysicalAddress] = s
	}
	return f
}

func (f *fakeServers) Get(_ context.Context, mac string) (*models.LocalServer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	s, ok := f.servers[mac]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *s
	cp.ValidUsers = slices.Clone(s.ValidUsers)
	return &cp, nil
}

func (f *fakeServers) UpdateConnection(_ context.Context, mac string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connections = append(f.connections, mac)
	return nil
}

func (f *fakeServers) UpdateDisconnection(_ context.Context, mac string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnections = append(f.disconnections, mac)
	return nil
}

func (f *fakeServers) UpdateMeta(_ context.Context, mac string, meta models.ServerMeta) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.metaErr != nil {
		return f.metaErr
	}
	f.metas = append(f.metas, meta)
	s := f.servers[mac]
	s.Platform, s.Version, s.LocalIP = meta.Platform, meta.Version, meta.LocalIP
	return nil
}

func (f *fakeServers) UpdateUsers(_ context.Context, mac string, users []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.usersErr != nil {
		return f.usersErr
	}
	f.servers[mac].ValidUsers = slices.Clone(users)
	return nil
}

func (f *fakeServers) Users(mac string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.servers[mac].ValidUsers)
}

func (f *fakeServers) Disconnections() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.disconnections)
}

type fakeCredentials struct {
	keys map[string]string
	err  error
}

func (f *fakeCredentials) Verify(_ context.Context, mac, hashedKey string) error {
	if f.err != nil {
		return f.err
	}
	if k, ok := f.keys[mac]; !ok || k != hashedKey {
		return common.ErrorUnauthorized
	}
	return nil
}

type fakeMailer struct {
	mu    sync.Mutex
	codes map[string]string
	err   error
}

func (f *fakeMailer) SendCode(_ context.Context, email, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.codes == nil {
		f.codes = map[string]string{}
	}
	f.codes[email] = code
	return nil
}

func (f *fakeMailer) Code(email string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.codes[email]
}

type harness struct {
	relay   *Relay
	clock   *fakeClock
	servers *fakeServers
	creds   *fakeCredentials
	mailer  *fakeMailer

	mu      sync.Mutex
	events  []models.StatusEvent
	delayed []func()
	delays  []time.Duration
	nextID  int
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		clock: newFakeClock(),
		servers: newFakeServers(&models.LocalServer{
			PhysicalAddress: testMAC,
			DisplayName:     "home",
			Platform:        "linux",
			Version:         "4.0.0",
			LocalIP:         "192.168.1.10",
		}),
		creds:  &fakeCredentials{keys: map[string]string{testMAC: cryptox.HashKey(testKey, testSalt)}},
		mailer: &fakeMailer{},
	}

	opts := Options{
		KeySalt:              testSalt,
		HTTPTimeout:          2 * time.Minute,
		LogsTimeout:          30 * time.Second,
		ReaperInterval:       10 * time.Second,
		CodeTTL:              5 * time.Minute,
		FailedHandshakeDelay: 4 * time.Second,
	}

	r := New(opts, h.servers, h.creds, h.mailer, logging.Nop())
	r.now = h.clock.Now
	r.correlator.now = h.clock.Now
	r.registration.now = h.clock.Now
	r.afterFunc = func(d time.Duration, f func()) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.delays = append(h.delays, d)
		h.delayed = append(h.delayed, f)
	}
	r.newRequestID = func() (string, error) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.nextID++
		return fmt.Sprintf("req%013d", h.nextID), nil
	}

	r.StatusFeed().Subscribe(func(ev models.StatusEvent) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.events = append(h.events, ev)
	})

	h.relay = r
	return h
}

func (h *harness) Events() []models.StatusEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.events)
}

func (h *harness) RunDelayed() {
	h.mu.Lock()
	fns := h.delayed
	h.delayed = nil
	h.mu.Unlock()
	for _, f := range fns {
		f()
	}
}

func (h *harness) connect(t *testing.T) (*Channel, *fakeConn) {
	t.Helper()
	conn := &fakeConn{}
	ch := NewChannel(conn)
	h.relay.Open(context.Background(), ch)
	h.handshake(t, ch, testKey)
	return ch, conn
}

func (h *harness) handshake(t *testing.T, ch *Channel, key string) {
	t.Helper()
	h.send(t, ch, &protocol.Initialization{
		MacAddress:    testMAC,
		RemoteAuthKey: key,
		Platform:      "linux",
		Version:       "4.0.0",
		LocalIP:       "192.168.1.10",
	})
}

func (h *harness) send(t *testing.T, ch *Channel, p protocol.LocalPayload) {
	t.Helper()
	data, err := protocol.EncodeLocal(p)
	require.NoError(t, err)
	h.relay.HandleMessage(context.Background(), ch, data)
}
