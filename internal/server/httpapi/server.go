// Package httpapi exposes the relay over HTTP: the websocket endpoint for
// local servers, the forwarding surface for end users and the admin API.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/casanet/remote-server/internal/logging"
	"github.com/casanet/remote-server/internal/protocol"
	"github.com/casanet/remote-server/internal/server/feed"
	"github.com/casanet/remote-server/internal/server/models"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
	maxBodySize       = 1 << 20
)

// Relay is the part of the channel relay the HTTP surface drives.
type Relay interface {
	ServeWS(ctx context.Context, conn *websocket.Conn)
	Status(mac string) bool
	SendHTTP(ctx context.Context, mac string, req protocol.HTTPRequest) *protocol.HTTPResponse
	FetchLogs(ctx context.Context, mac string) (string, error)
	Disconnect(ctx context.Context, mac string)
	LocalFeed() *feed.Feed[models.FeedEvent]
}

type ServerStore interface {
	Get(ctx context.Context, mac string) (*models.LocalServer, error)
	List(ctx context.Context) ([]*models.LocalServer, error)
	Create(ctx context.Context, server *models.LocalServer) error
	Update(ctx context.Context, server *models.LocalServer) error
	Delete(ctx context.Context, mac string) error
}

// KeyIssuer generates and stores a new auth key for a local server.
type KeyIssuer interface {
	GenerateKey(ctx context.Context, mac string) (string, error)
}

// Archiver stores a log archive and returns a download URL.
type Archiver interface {
	Store(ctx context.Context, mac string, data []byte) (string, error)
}

type Options struct {
	Addr            string
	SecretKey       []byte
	SessionValidity time.Duration
	AllowedOrigin   string
	SecureCookies   bool
}

type Server struct {
	opts     Options
	relay    Relay
	servers  ServerStore
	keys     KeyIssuer
	archive  Archiver
	logger   logging.Logger
	validate *validator.Validate
	upgrader websocket.Upgrader
	router   *mux.Router
}

// New builds the HTTP surface. archive may be nil, in which case log
// archiving is refused.
func New(opts Options, relay Relay, servers ServerStore, keys KeyIssuer, archive Archiver, logger logging.Logger) *Server {
	s := &Server{
		opts:     opts,
		relay:    relay,
		servers:  servers,
		keys:     keys,
		archive:  archive,
		logger:   logger.With("module", "http"),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// local servers are not browsers
			CheckOrigin: func(*http.Request) bool { return true },
		},
		router: mux.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(s.cors)

	s.router.HandleFunc("/channels", s.handleChannel).Methods(http.MethodGet)

	admin := s.router.PathPrefix("/API/servers").Subrouter()
	admin.Use(s.requireAdmin)
	admin.HandleFunc("", s.listServers).Methods(http.MethodGet)
	admin.HandleFunc("", s.createServer).Methods(http.MethodPost)
	admin.HandleFunc("/{id}", s.updateServer).Methods(http.MethodPut)
	admin.HandleFunc("/{id}", s.deleteServer).Methods(http.MethodDelete)
	admin.HandleFunc("/{id}/auth", s.generateKey).Methods(http.MethodPost)
	admin.HandleFunc("/{id}/logs", s.fetchLogs).Methods(http.MethodGet)

	s.router.HandleFunc("/API/remote/status", s.remoteStatus).Methods(http.MethodGet)
	s.router.HandleFunc("/API/feed/{type:minions|timings}", s.streamFeed).Methods(http.MethodGet)
	s.router.HandleFunc("/API/minions/{minionId}/ifttt", s.forwardIFTTT).Methods(http.MethodPut)
	s.router.HandleFunc("/API/auth/login", s.login).Methods(http.MethodPost)
	s.router.PathPrefix("/API/").HandlerFunc(s.forward)
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "http server listening", "addr", s.opts.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.logger.Info(ctx, "http server stopping")
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) handleChannel(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn(r.Context(), "channel upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	s.logger.Debug(r.Context(), "channel opened", "remote_addr", r.RemoteAddr)
	s.relay.ServeWS(r.Context(), conn)
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.opts.AllowedOrigin == "" {
			next.ServeHTTP(w, r)
			return
		}

		h := w.Header()
		h.Set("Access-Control-Allow-Origin", s.opts.AllowedOrigin)
		h.Set("Access-Control-Allow-Credentials", "true")
		h.Add("Vary", "Origin")

		if r.Method == http.MethodOptions {
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
