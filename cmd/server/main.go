// Command server runs the domain lifecycle service: registration and
// purchase endpoints, the certificate monitor, and the order poller.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"plinth/internal/certs"
	"plinth/internal/deploy"
	"plinth/internal/dns"
	"plinth/internal/domains/handler"
	"plinth/internal/domains/metrics"
	domainservice "plinth/internal/domains/service"
	domainstore "plinth/internal/domains/store/domain"
	logstore "plinth/internal/domains/store/logs"
	"plinth/internal/jwttoken"
	"plinth/internal/platform/config"
	"plinth/internal/platform/httpserver"
	"plinth/internal/platform/logger"
	httpmetrics "plinth/internal/platform/metrics"
	"plinth/internal/platform/middleware"
	platformredis "plinth/internal/platform/redis"
	"plinth/internal/purchase"
	audit "plinth/pkg/platform/audit"
	auditkafka "plinth/pkg/platform/audit/kafka"
	"plinth/pkg/platform/audit/publisher"
	auditmemory "plinth/pkg/platform/audit/store/memory"
	auditpostgres "plinth/pkg/platform/audit/store/postgres"
	"plinth/pkg/platform/httputil"
)

const externalCallTimeout = 15 * time.Second

func main() {
	cfg := config.FromEnv()
	log := logger.New()
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Persistence. Without Postgres everything runs in memory, which is the
	// local development mode.
	var (
		domains    domainservice.DomainStore
		logs       domainservice.LogStore
		auditStore audit.Store
	)
	if cfg.PostgresURL != "" {
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pool.Close()

		// The audit store writes through database/sql so an event can join
		// an outer *sql.Tx carried in context.
		db, err := sql.Open("postgres", cfg.PostgresURL)
		if err != nil {
			return fmt.Errorf("open audit db: %w", err)
		}
		defer db.Close()

		domains = domainstore.NewPostgres(pool)
		logs = logstore.NewPostgres(pool)
		auditStore = auditpostgres.New(db)
	} else {
		log.Warn("POSTGRES_URL not set, using in-memory stores")
		domains = domainstore.NewInMemory()
		logs = logstore.NewInMemory()
		auditStore = auditmemory.NewInMemoryStore()
	}

	if len(cfg.Kafka.Brokers) > 0 {
		client, err := auditkafka.NewClient(cfg.Kafka.Brokers)
		if err != nil {
			return fmt.Errorf("connect kafka: %w", err)
		}
		sink := auditkafka.New(client, cfg.Kafka.Topic)
		defer sink.Close()
		auditStore = auditkafka.Tee{Primary: auditStore, Stream: sink}
	}

	auditor := publisher.NewPublisher(auditStore,
		publisher.WithAsyncBuffer(256),
		publisher.WithLogger(log),
	)
	defer auditor.Close()

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	var cache *purchase.Cache
	if redisClient != nil {
		defer redisClient.Close()
		cache = purchase.NewCache(redisClient.Client, config.SearchCacheTTL)
	}

	hosting := deploy.NewHostingClient(cfg.Hosting.BaseURL, cfg.Hosting.APIKey, externalCallTimeout)
	providers := deploy.DefaultRegistry(hosting)
	checker := dns.New(nil, cfg.Platform.IP, cfg.Platform.Nameservers)
	domainMetrics := metrics.New()

	// The tracker needs the service to materialize completed orders, and the
	// service needs the tracker to stop polling on delete. Late-bind the
	// canceller to break the cycle.
	canceller := &lateCanceller{}
	lifecycle := domainservice.New(domains, logs, checker, providers,
		cfg.Platform.IP, cfg.Platform.Nameservers,
		domainservice.WithLogger(log),
		domainservice.WithAuditPublisher(auditor),
		domainservice.WithMetrics(domainMetrics),
		domainservice.WithCertificateReader(hosting),
		domainservice.WithOrderCanceller(canceller),
	)

	registrar := purchase.NewRegistrarClient(cfg.Registrar.BaseURL, cfg.Registrar.APIKey, externalCallTimeout)
	tracker := purchase.NewTracker(registrar, cache, lifecycle, auditor,
		cfg.Registrar.PollInterval, cfg.Registrar.PollWindow, log)
	defer tracker.Close()
	canceller.tracker = tracker

	buying := purchase.NewService(registrar, cache, tracker, auditor, cfg.Registrar.ReturnURL, log)

	monitor := certs.New(hosting, domains, lifecycle, cfg.Hosting.CertSweepInterval, log)
	monitor.Start(ctx)
	defer monitor.Stop()

	sessions := jwttoken.NewService(cfg.Server.JWTSigningKey)
	h := handler.New(lifecycle, buying, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.ClientMetadata)
	r.Use(httpmetrics.NewHTTP().Middleware)

	r.Get("/healthz", healthHandler(redisClient))
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(sessionValidator{sessions}, log))
		h.Register(r)
	})
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAdminToken(cfg.Server.AdminTokenHash, log))
		h.RegisterAdmin(r)
	})

	srv := httpserver.New(cfg.Server.Addr, r)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server listening", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// sessionValidator adapts the jwt service to the auth middleware.
type sessionValidator struct {
	sessions *jwttoken.Service
}

func (v sessionValidator) ValidateToken(token string) (*middleware.SessionClaims, error) {
	claims, err := v.sessions.ValidateToken(token)
	if err != nil {
		return nil, err
	}
	return &middleware.SessionClaims{UserID: claims.UserID, ProjectID: claims.ProjectID}, nil
}

// lateCanceller forwards delete-time cancellations to the tracker once it
// exists.
type lateCanceller struct {
	tracker *purchase.Tracker
}

func (l *lateCanceller) CancelByDomain(domainName string) {
	if l.tracker != nil {
		l.tracker.CancelByDomain(domainName)
	}
}

func healthHandler(redisClient *platformredis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := map[string]string{"status": "ok"}
		if redisClient != nil {
			if err := redisClient.Health(r.Context()); err != nil {
				body["redis"] = "unreachable"
			} else {
				body["redis"] = "ok"
			}
		}
		httputil.WriteJSON(w, http.StatusOK, body)
	}
}
