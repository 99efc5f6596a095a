package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/casanet/remote-server/internal/common"
	"github.com/casanet/remote-server/internal/logging"
	"github.com/casanet/remote-server/internal/protocol"
	"github.com/casanet/remote-server/internal/server/auth"
	"github.com/casanet/remote-server/internal/server/feed"
	"github.com/casanet/remote-server/internal/server/models"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

const testMAC = "AA:BB:CC:DD:EE:FF"

var testSecret = []byte("secret")

type fakeRelay struct {
	mu           sync.Mutex
	connected    map[string]bool
	requests     []protocol.HTTPRequest
	targets      []string
	response     *protocol.HTTPResponse
	logs         string
	logsErr      error
	disconnected []string
	local        *feed.Feed[models.FeedEvent]
}

func newFakeRelay() *fakeRelay {
	return &fakeRelay{
		connected: map[string]bool{},
		response:  &protocol.HTTPResponse{HTTPStatus: http.StatusOK},
		local:     feed.New[models.FeedEvent](),
	}
}

func (f *fakeRelay) ServeWS(_ context.Context, conn *websocket.Conn) {
	b, _ := protocol.ReadyToInitialization().Encode()
	_ = conn.WriteMessage(websocket.TextMessage, b)
	_ = conn.Close()
}

func (f *fakeRelay) Status(mac string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected[mac]
}

func (f *fakeRelay) SendHTTP(_ context.Context, mac string, req protocol.HTTPRequest) *protocol.HTTPResponse {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.targets = append(f.targets, mac)
	f.requests = append(f.requests, req)
	return f.response
}

func (f *fakeRelay) FetchLogs(context.Context, string) (string, error) {
	return f.logs, f.logsErr
}

func (f *fakeRelay) Disconnect(_ context.Context, mac string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnected = append(f.disconnected, mac)
}

func (f *fakeRelay) LocalFeed() *feed.Feed[models.FeedEvent] {
	return f.local
}

type fakeStore struct {
	servers map[string]*models.LocalServer
	err     error
	created []*models.LocalServer
	updated []*models.LocalServer
	deleted []string
}

func newFakeStore(list ...*models.LocalServer) *fakeStore {
	f := &fakeStore{servers: map[string]*models.LocalServer{}}
	for _, s := range list {
		f.servers[s.PhysicalAddress] = s
	}
	return f
}

func (f *fakeStore) Get(_ context.Context, mac string) (*models.LocalServer, error) {
	if s, ok := f.servers[mac]; ok {
		return s, nil
	}
	return nil, common.ErrorNotFound
}

func (f *fakeStore) List(context.Context) ([]*models.LocalServer, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []*models.LocalServer
	for _, s := range f.servers {
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeStore) Create(_ context.Context, s *models.LocalServer) error {
	f.created = append(f.created, s)
	return f.err
}

func (f *fakeStore) Update(_ context.Context, s *models.LocalServer) error {
	if _, ok := f.servers[s.PhysicalAddress]; !ok {
		return common.ErrorNotFound
	}
	f.updated = append(f.updated, s)
	return f.err
}

func (f *fakeStore) Delete(_ context.Context, mac string) error {
	if _, ok := f.servers[mac]; !ok {
		return common.ErrorNotFound
	}
	f.deleted = append(f.deleted, mac)
	return nil
}

type fakeKeys struct {
	key string
	err error
}

func (f *fakeKeys) GenerateKey(context.Context, string) (string, error) {
	return f.key, f.err
}

type fakeArchive struct {
	stored []byte
	url    string
	err    error
}

func (f *fakeArchive) Store(_ context.Context, _ string, data []byte) (string, error) {
	f.stored = data
	return f.url, f.err
}

type fixture struct {
	server  *Server
	relay   *fakeRelay
	store   *fakeStore
	keys    *fakeKeys
	archive *fakeArchive
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		relay: newFakeRelay(),
		store: newFakeStore(&models.LocalServer{
			PhysicalAddress: testMAC,
			DisplayName:     "home",
			ValidUsers:      []string{"user@example.com"},
		}),
		keys:    &fakeKeys{key: "new-key"},
		archive: &fakeArchive{url: "https://s3.example.com/logs"},
	}
	opts := Options{SecretKey: testSecret, SessionValidity: 24 * time.Hour}
	f.server = New(opts, f.relay, f.store, f.keys, f.archive, logging.Nop())
	return f
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func forwardCookie(t *testing.T, mac, session string) *http.Cookie {
	t.Helper()
	tok, err := auth.GenerateForwardToken(mac, session, testSecret, time.Hour)
	require.NoError(t, err)
	return &http.Cookie{Name: sessionCookie, Value: tok}
}

func adminCookie(t *testing.T) *http.Cookie {
	t.Helper()
	tok, err := auth.GenerateAdminToken("admin@example.com", testSecret, time.Hour)
	require.NoError(t, err)
	return &http.Cookie{Name: adminSessionCookie, Value: tok}
}
