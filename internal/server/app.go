// Package server wires the relay together: storage, the channel relay, the
// notification engine, the optional event bridge and log archive, and the
// HTTP surface.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/casanet/remote-server/internal/logging"
	"github.com/casanet/remote-server/internal/server/channels"
	"github.com/casanet/remote-server/internal/server/config"
	"github.com/casanet/remote-server/internal/server/events"
	"github.com/casanet/remote-server/internal/server/httpapi"
	"github.com/casanet/remote-server/internal/server/logarchive"
	"github.com/casanet/remote-server/internal/server/mailer"
	"github.com/casanet/remote-server/internal/server/notifications"
	"github.com/casanet/remote-server/internal/server/repositories/repomanager"
	"github.com/casanet/remote-server/internal/server/services"
)

type App struct {
	config         *config.Config
	logger         logging.Logger
	db             *sql.DB
	serverService  *services.ServerService
	sessionService *services.SessionService
	mailer         *mailer.Mailer
	relay          *channels.Relay
	notifications  *notifications.Engine
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.New(c.LogLevel, c.LogFormat, os.Stdout)

	db, err := repomanager.OpenDB(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db migration error: %w", err)
	}

	var sender mailer.Sender = mailer.NewLogSender(logger)
	if c.SMTPHost != "" {
		sender = mailer.NewSMTPSender(mailer.SMTPConfig{
			Host:     c.SMTPHost,
			Port:     c.SMTPPort,
			Username: c.SMTPUsername,
			Password: c.SMTPPassword,
			From:     c.SMTPFrom,
		})
	} else {
		logger.Warn(ctx, "smtp host not set, mails are only logged")
	}

	m, err := mailer.New(sender, c.NotificationsTimezone, c.RegistrationCodeTTL)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mailer init error: %w", err)
	}

	ss := services.NewServerService(db, rm)
	ks := services.NewSessionService(db, rm, c.KeySalt)

	relay := channels.New(channels.Options{
		KeySalt:              c.KeySalt,
		HTTPTimeout:          c.HTTPRequestTimeout,
		LogsTimeout:          c.LogsRequestTimeout,
		ReaperInterval:       c.ReaperInterval,
		CodeTTL:              c.RegistrationCodeTTL,
		FailedHandshakeDelay: c.FailedHandshakeDelay,
	}, ss, ks, m, logger)

	engine := notifications.New(c.NotificationWindow, ss, m, logger)
	relay.StatusFeed().Subscribe(engine.Enqueue)

	return &App{
		config:         c,
		logger:         logger,
		db:             db,
		serverService:  ss,
		sessionService: ks,
		mailer:         m,
		relay:          relay,
		notifications:  engine,
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// archive returns nil unless an S3 bucket is configured. The nil is returned
// as an interface so httpapi can tell archiving is off.
func (app *App) archive() httpapi.Archiver {
	cfg := logarchive.Config{
		RootUser:     app.config.S3RootUser,
		RootPassword: app.config.S3RootPassword,
		Bucket:       app.config.S3Bucket,
		Region:       app.config.S3Region,
		BaseEndpoint: app.config.S3BaseEndpoint,
	}
	if !cfg.Enabled() {
		return nil
	}
	return logarchive.New(cfg)
}

// startEventBridge mirrors the relay feeds to NATS JetStream when a URL is
// configured. A broker that cannot be reached is logged and skipped.
func (app *App) startEventBridge(ctx context.Context) {
	if app.config.NATSURL == "" {
		return
	}

	pub, err := events.Connect(ctx, app.config.NATSURL, app.config.NATSStream)
	if err != nil {
		app.logger.Error(ctx, "event bridge disabled", "error", err)
		return
	}
	defer pub.Close()

	bridge := events.NewBridge(pub, app.logger)
	unsubStatus := app.relay.StatusFeed().Subscribe(bridge.Status)
	unsubFeed := app.relay.LocalFeed().Subscribe(bridge.Feed)
	defer unsubStatus()
	defer unsubFeed()

	bridge.Run(ctx)
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := httpapi.New(httpapi.Options{
		Addr:            app.config.EndpointAddrHTTP,
		SecretKey:       []byte(app.config.SecretKey),
		SessionValidity: app.config.SessionValidity,
		AllowedOrigin:   app.config.AllowedOrigin,
		SecureCookies:   app.config.SecureCookies,
	}, app.relay, app.serverService, app.sessionService, app.archive(), app.logger)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")
	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup
	start := func(f func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f()
		}()
	}

	start(func() { app.relay.Run(ctx) })
	start(func() { app.notifications.Run(ctx) })
	start(func() { app.startEventBridge(ctx) })
	start(func() { app.startHTTPServer(ctx, cancelFunc) })

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(context.Background(), "db close error", "error", err)
	}
	app.logger.Info(context.Background(), "app stopped")
}
