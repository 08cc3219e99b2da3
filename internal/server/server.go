// Package server orchestrates all components: NATS client, DB, registry, dispatcher, HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	comms "github.com/nats-io/nats.go"

	"github.com/morezero/cephapi/internal/config"
	"github.com/morezero/cephapi/pkg/commsutil"
	"github.com/morezero/cephapi/pkg/db"
	"github.com/morezero/cephapi/pkg/dispatcher"
	"github.com/morezero/cephapi/pkg/events"
	"github.com/morezero/cephapi/pkg/registry"
	"github.com/morezero/cephapi/pkg/transport"
)

const logPrefix = "server:server"

// Server is the cephapi orchestrator.
type Server struct {
	cfg        *config.Config
	nc         *comms.Conn
	pool       *pgxpool.Pool
	repo       *db.Repository
	httpServer *http.Server
	listener   net.Listener
	reg        *registry.Registry
	disp       *dispatcher.Dispatcher
	admin      transport.AdminInterface
	closeAdmin func()
	subs       []*comms.Subscription
}

// SetupLogging installs the default slog text logger at the given level.
func SetupLogging(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}

// Run starts the server, blocks until shutdown signal, then cleans up.
func Run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("%s - failed to load config: %w", logPrefix, err)
	}
	SetupLogging(cfg.LogLevel)
	if err := cfg.ValidateForServe(); err != nil {
		return err
	}

	slog.Info(fmt.Sprintf("%s - Starting cephapi", logPrefix))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := Start(ctx, cfg)
	if err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info(fmt.Sprintf("%s - Received signal %s, shutting down", logPrefix, sig))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	s.Shutdown(shutdownCtx)
	return nil
}

// Start connects every component and begins serving NATS and HTTP. On error,
// whatever was started is torn down again.
func Start(ctx context.Context, cfg *config.Config) (s *Server, err error) {
	s = &Server{cfg: cfg}
	defer func() {
		if err != nil {
			s.Shutdown(context.Background())
			s = nil
		}
	}()

	// Step 1: Connect to NATS
	s.nc, err = commsutil.Connect(cfg.COMMSURL, cfg.COMMSName)
	if err != nil {
		return s, fmt.Errorf("%s - failed to connect to NATS: %w", logPrefix, err)
	}

	// Step 2: Connect to database when audit, migrations or the db catalog need it
	if cfg.UsesDB() {
		if err = s.openDB(ctx); err != nil {
			return s, err
		}
	}

	// Step 3: Admin transport
	s.admin, s.closeAdmin, err = NewAdmin(cfg, s.nc)
	if err != nil {
		return s, err
	}

	// Step 4: Registry
	s.reg, err = LoadRegistry(ctx, cfg, s.repo, s.admin)
	if err != nil {
		return s, err
	}
	slog.Info(fmt.Sprintf("%s - Registry release=%s commands=%d", logPrefix, s.reg.Release(), s.reg.Len()))

	// Step 5: Dispatcher
	params := dispatcher.Params{
		Registry:  s.reg,
		Admin:     s.admin,
		Publisher: events.MultiPublisher{
			events.NewCommsPublisher(s.nc, &events.CommsPublisherOpts{Subject: cfg.EventSubject}),
			&events.LogPublisher{},
		},
	}
	if cfg.Audit {
		params.Audit = s.repo
	}
	s.disp = dispatcher.New(params)

	// Step 6: Subscribe
	sub, err := s.nc.Subscribe(cfg.Subject, s.handleMessage)
	if err != nil {
		return s, fmt.Errorf("%s - failed to subscribe to %s: %w", logPrefix, cfg.Subject, err)
	}
	s.subs = append(s.subs, sub)
	slog.Info(fmt.Sprintf("%s - Subscribed to %s", logPrefix, cfg.Subject))

	// Step 6b: Bridge the local admin interface for remote NATSAdmin clients
	if cfg.Bridge {
		bridgeSub, err := transport.ServeBridge(s.nc, bridgeSubject(cfg), s.admin, cfg.RequestTimeout)
		if err != nil {
			return s, err
		}
		s.subs = append(s.subs, bridgeSub)
	}

	// Step 7: HTTP server
	s.listener, err = net.Listen("tcp", cfg.ListenAddr())
	if err != nil {
		return s, fmt.Errorf("%s - failed to listen on %s: %w", logPrefix, cfg.ListenAddr(), err)
	}
	s.httpServer = &http.Server{Handler: s.routes(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		slog.Info(fmt.Sprintf("%s - HTTP server listening on %s", logPrefix, s.listener.Addr()))
		if err := s.httpServer.Serve(s.listener); !errors.Is(err, http.ErrServerClosed) {
			slog.Error(fmt.Sprintf("%s - HTTP server error: %v", logPrefix, err))
		}
	}()

	slog.Info(fmt.Sprintf("%s - cephapi is ready", logPrefix))
	return s, nil
}

func (s *Server) openDB(ctx context.Context) error {
	pool, err := db.NewPool(ctx, s.cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("%s - failed to connect to database: %w", logPrefix, err)
	}
	s.pool = pool
	s.repo = db.NewRepository(pool)

	if s.cfg.RunMigrations {
		migrations, err := db.LoadMigrationFiles(s.cfg.MigrationPath)
		if err != nil {
			return fmt.Errorf("%s - failed to load migrations: %w", logPrefix, err)
		}
		if err := db.RunMigrations(ctx, pool, migrations); err != nil {
			return fmt.Errorf("%s - failed to run migrations: %w", logPrefix, err)
		}
	}
	return nil
}

// HTTPAddr returns the address the HTTP server listens on.
func (s *Server) HTTPAddr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown stops subscriptions and the HTTP server, then closes connections.
func (s *Server) Shutdown(ctx context.Context) {
	for _, sub := range s.subs {
		if err := sub.Unsubscribe(); err != nil {
			slog.Warn(fmt.Sprintf("%s - unsubscribe %s: %v", logPrefix, sub.Subject, err))
		}
	}
	s.subs = nil
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			slog.Warn(fmt.Sprintf("%s - HTTP shutdown: %v", logPrefix, err))
		}
	} else if s.listener != nil {
		s.listener.Close()
	}
	if s.closeAdmin != nil {
		s.closeAdmin()
	}
	commsutil.Drain(s.nc)
	if s.pool != nil {
		s.pool.Close()
	}
	slog.Info(fmt.Sprintf("%s - Shutdown complete", logPrefix))
}

// handleMessage answers one dispatcher.Request envelope received over NATS.
func (s *Server) handleMessage(msg *comms.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RequestTimeout)
	defer cancel()

	data := s.disp.HandleMessage(ctx, msg.Data)
	if msg.Reply == "" {
		slog.Warn(fmt.Sprintf("%s - request on %s has no reply subject", logPrefix, msg.Subject))
		return
	}
	if err := msg.Respond(data); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to respond: %v", logPrefix, err))
	}
}
