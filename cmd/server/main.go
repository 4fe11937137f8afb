package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	httpapi "github.com/moving-hub/moving-hub/internal/api/http"
	"github.com/moving-hub/moving-hub/internal/application/auth"
	appChat "github.com/moving-hub/moving-hub/internal/application/chat"
	"github.com/moving-hub/moving-hub/internal/application/negotiation"
	"github.com/moving-hub/moving-hub/internal/application/user"
	"github.com/moving-hub/moving-hub/internal/config"
	"github.com/moving-hub/moving-hub/internal/domain/chat"
	"github.com/moving-hub/moving-hub/internal/domain/servicerequest"
	"github.com/moving-hub/moving-hub/internal/domain/session"
	domainUser "github.com/moving-hub/moving-hub/internal/domain/user"
	"github.com/moving-hub/moving-hub/internal/infrastructure/postgres"
	"github.com/moving-hub/moving-hub/internal/infrastructure/realtime"
	"github.com/moving-hub/moving-hub/internal/infrastructure/sqlstore"
)

const sessionPurgeInterval = 10 * time.Minute

// repositories is the set of stores the services run on, whichever driver backs them.
type repositories struct {
	users    domainUser.Repository
	sessions session.Repository
	requests servicerequest.Repository
	chats    chat.Repository
	close    func()
}

func main() {
	configPath := pflag.StringP("config", "c", "", "path to a TOML config file")
	addr := pflag.String("addr", "", "listen address (overrides server_addr)")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if *addr != "" {
		cfg.ServerAddr = *addr
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatalf("config error: invalid log level %q", cfg.LogLevel)
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()

	ctx := context.Background()
	repos, err := openRepositories(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("store init failed")
	}
	defer repos.close()

	policy, err := negotiation.NewPricePolicy(cfg.PricePolicy)
	if err != nil {
		logger.Fatal().Err(err).Msg("price policy invalid")
	}

	// realtime
	registry := realtime.NewRegistry()
	dispatcher := realtime.NewDispatcher(registry, cfg.PushTimeout, logger)

	// services
	userSvc := user.NewService(repos.users, logger)
	authSvc := auth.NewService(repos.users, repos.sessions, userSvc, cfg.SessionTTL, logger)
	chatSvc := appChat.NewService(repos.chats, repos.requests, repos.users, dispatcher, logger)
	engine := negotiation.NewEngine(repos.requests, repos.users, chatSvc, dispatcher, policy, logger)

	// API server
	apiServer := httpapi.NewServer(engine, chatSvc, authSvc, userSvc, registry, cfg.SSEBuffer, cfg.SessionCookieName, cfg.SessionCookieSecure, logger)

	httpServer := &http.Server{
		Addr:        cfg.ServerAddr,
		Handler:     apiServer.Router(),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// background loops
	purgeCtx, stopPurge := context.WithCancel(ctx)
	defer stopPurge()
	go func() {
		ticker := time.NewTicker(sessionPurgeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-purgeCtx.Done():
				return
			case <-ticker.C:
				if n, err := authSvc.PurgeExpired(purgeCtx); err != nil {
					logger.Warn().Err(err).Msg("session purge failed")
				} else if n > 0 {
					logger.Info().Int("count", n).Msg("expired sessions purged")
				}
			}
		}
	}()

	// start server
	go func() {
		logger.Info().Str("addr", cfg.ServerAddr).Str("driver", cfg.StoreDriver).Msg("http server started")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	// graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down")

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	// Push connections never finish on their own; close them so Shutdown can.
	registry.Stop()
	if err := httpServer.Shutdown(ctxShutdown); err != nil {
		logger.Warn().Err(err).Msg("http shutdown incomplete")
	}
	if err := dispatcher.Drain(ctxShutdown); err != nil {
		logger.Warn().Err(err).Msg("pending notifications abandoned")
	}
}

func openRepositories(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*repositories, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		res, err := postgres.RunMigrations(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		logger.Info().Uint("version", res.Version).Bool("changed", res.Changed).Msg("migrations applied")
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, postgres.PoolOptions{
			MaxConns:        int32(cfg.PGMaxConns),
			MinConns:        int32(cfg.PGMinConns),
			MaxConnLifetime: cfg.PGConnMaxLifetime,
		})
		if err != nil {
			return nil, err
		}
		logger.Info().Int("max_conns", cfg.PGMaxConns).Int("min_conns", cfg.PGMinConns).Msg("postgres pool ready")
		return &repositories{
			users:    postgres.NewUserRepository(pool),
			sessions: postgres.NewSessionRepository(pool),
			requests: postgres.NewRequestRepository(pool),
			chats:    postgres.NewChatRepository(pool),
			close:    pool.Close,
		}, nil
	default:
		var (
			db  *sqlstore.DB
			err error
		)
		if cfg.StoreDriver == config.DriverMySQL {
			db, err = sqlstore.OpenMySQL(cfg.MySQLDSN)
		} else {
			db, err = sqlstore.OpenSQLite(cfg.SQLitePath)
		}
		if err != nil {
			return nil, err
		}
		res, err := db.Migrate()
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		logger.Info().Uint("version", res.Version).Bool("changed", res.Changed).Msg("migrations applied")
		return &repositories{
			users:    sqlstore.NewUserRepository(db),
			sessions: sqlstore.NewSessionRepository(db),
			requests: sqlstore.NewRequestRepository(db),
			chats:    sqlstore.NewChatRepository(db),
			close:    func() { _ = db.Close() },
		}, nil
	}
}
