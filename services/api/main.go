package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/casedesk/messaging/internal/config"
	"github.com/casedesk/messaging/internal/handler"
	"github.com/casedesk/messaging/internal/identity"
	"github.com/casedesk/messaging/internal/logger"
	"github.com/casedesk/messaging/internal/middleware"
	"github.com/casedesk/messaging/internal/notify"
	"github.com/casedesk/messaging/internal/relay"
	"github.com/casedesk/messaging/internal/repository"
	"github.com/casedesk/messaging/internal/service"
	"github.com/casedesk/messaging/internal/startup"
	"github.com/casedesk/messaging/internal/storage"
	"github.com/casedesk/messaging/internal/storage/memory"
	redisstore "github.com/casedesk/messaging/internal/storage/redis"
	"github.com/casedesk/messaging/migrations"
)

func main() {
	logger.SetPrefix("api")
	migrate := flag.Bool("migrate", false, "run database migrations and exit")
	dev := flag.Bool("dev", false, "start with embedded PostgreSQL and in-memory sessions (no external dependencies)")
	flag.Parse()

	logger.Info("starting messaging API service")
	cfg := config.Load()

	var embeddedDB *embeddedpostgres.EmbeddedPostgres
	if *dev {
		var err error
		embeddedDB, err = startEmbeddedPostgres(cfg)
		if err != nil {
			logger.Errorf("embedded postgres: %v", err)
			os.Exit(1)
		}
		defer func() {
			logger.Info("stopping embedded postgres...")
			if err := embeddedDB.Stop(); err != nil {
				logger.Errorf("embedded postgres stop: %v", err)
			}
		}()
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL())
	if err != nil {
		logger.Errorf("parse db config: %v", err)
		os.Exit(1)
	}
	poolCfg.MaxConns = int32(cfg.DBMaxConnections())
	poolCfg.MinConns = 4

	pool := startup.ConnectDBWithRetry(poolCfg, 60*time.Second, "")
	defer pool.Close()

	runMigrations(pool)
	if *migrate && !*dev {
		return
	}
	logger.Info("database connected, migrations applied")

	var sessions storage.SessionStore
	if *dev {
		mem := memory.New()
		mem.Put("dev-token", "dev-party")
		sessions = mem
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		sessions, err = redisstore.New(ctx, cfg.Redis.URL)
		cancel()
		if err != nil {
			logger.Errorf("redis: %v", err)
			os.Exit(1)
		}
	}
	defer sessions.Close()

	primary, err := identity.NewDirectory(pool, cfg.Identity.PrimaryTable)
	if err != nil {
		logger.Errorf("identity: %v", err)
		os.Exit(1)
	}
	secondary, err := identity.NewDirectory(pool, cfg.Identity.SecondaryTable)
	if err != nil {
		logger.Errorf("identity: %v", err)
		os.Exit(1)
	}
	resolver := identity.Chain{primary, secondary}

	msgRepo := repository.NewMessageRepository(pool)
	reactRepo := repository.NewReactionRepository(pool)
	registry := relay.NewRegistry(cfg.MaxWSConnections)

	var notifier service.Notifier
	if cfg.NotifyServiceURL != "" {
		notifier = notify.NewClient(cfg.NotifyServiceURL)
	}

	svc := service.New(msgRepo, reactRepo, resolver, registry, notifier)
	hub := relay.NewHub(registry, svc)

	hubCtx, hubCancel := context.WithCancel(context.Background())
	var hubWg sync.WaitGroup
	hubWg.Add(1)
	go func() {
		defer hubWg.Done()
		hub.Run(hubCtx)
	}()

	msgH := handler.NewMessageHandler(svc)
	wsH := handler.NewWSHandler(hub, cfg.CORSAllowedOrigins)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.RecoverJSON)
	// Never compress WebSocket responses: a wrapped ResponseWriter loses
	// http.Hijacker and the upgrade fails with a 500.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if strings.EqualFold(req.Header.Get("Upgrade"), "websocket") {
				next.ServeHTTP(w, req)
				return
			}
			chimw.Compress(5)(next).ServeHTTP(w, req)
		})
	})
	r.Use(middleware.RequestLog)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.CORSAllowedOrigins},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK); w.Write([]byte("ok")) })
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.PartyAuth(sessions))
		r.Use(middleware.RateLimitAPI)
		r.Post("/api/messages", msgH.Send)
		r.Post("/api/messages/read", msgH.MarkMessagesRead)
		r.Delete("/api/messages/{messageId}", msgH.Delete)
		r.Post("/api/messages/{messageId}/reactions", msgH.ToggleReaction)
		r.Get("/api/conversations/{partyId}", msgH.Conversation)
		r.Post("/api/conversations/{partyId}/read", msgH.MarkConversationRead)
		r.Get("/api/inbox", msgH.Inbox)
		r.Get("/api/unread", msgH.UnreadCount)
		r.Get("/ws", wsH.ServeWS)
	})

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	var srvWg sync.WaitGroup
	errCh := make(chan error, 1)
	srvWg.Add(1)
	go func() {
		defer srvWg.Done()
		logger.Infof("server listening on %s", cfg.ServerAddr)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Errorf("server error: %v", err)
			os.Exit(1)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown: %v", err)
	}
	logger.Info("server stopped accepting connections")
	hubCancel()
	hubWg.Wait()
	logger.Info("relay hub stopped")
	srvWg.Wait()
	logger.Info("server goroutine exited")
}

func runMigrations(pool *pgxpool.Pool) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	entries, err := migrations.Files.ReadDir(".")
	if err != nil {
		logger.Errorf("read migrations: %v", err)
		os.Exit(1)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		data, err := migrations.Files.ReadFile(name)
		if err != nil {
			logger.Errorf("read migration %s: %v", name, err)
			os.Exit(1)
		}
		if _, err := pool.Exec(ctx, string(data)); err != nil {
			logger.Errorf("run migration %s: %v", name, err)
			os.Exit(1)
		}
	}
	logger.Info("migrations applied")
}

func startEmbeddedPostgres(cfg *config.Config) (*embeddedpostgres.EmbeddedPostgres, error) {
	const (
		port     = 5432
		user     = "messaging"
		password = "messaging"
		database = "messaging"
	)

	dataDir := filepath.Join(".", ".pgdata")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create pgdata dir: %w", err)
	}

	db := embeddedpostgres.NewDatabase(
		embeddedpostgres.DefaultConfig().
			Port(port).
			Username(user).
			Password(password).
			Database(database).
			DataPath(dataDir).
			RuntimePath(filepath.Join(os.TempDir(), "embedded-pg-runtime")),
	)

	logger.Info("starting embedded PostgreSQL...")
	if err := db.Start(); err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}

	cfg.Database.URL = fmt.Sprintf("postgres://%s:%s@localhost:%d/%s?sslmode=disable", user, password, port, database)
	return db, nil
}
