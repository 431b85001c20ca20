package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"custodia/internal/attestation"
	"custodia/internal/audit"
	"custodia/internal/inventory"
	"custodia/internal/jwttoken"
	"custodia/internal/ledger"
	"custodia/internal/org"
	orghandler "custodia/internal/org/handler"
	"custodia/internal/partnership"
	parthandler "custodia/internal/partnership/handler"
	"custodia/internal/platform/config"
	"custodia/internal/platform/httpserver"
	"custodia/internal/platform/logger"
	"custodia/internal/platform/metrics"
	"custodia/internal/platform/postgres"
	"custodia/internal/platform/redis"
	"custodia/internal/transfer"
	httptransport "custodia/internal/transport/http"
	"custodia/internal/verification"
	"custodia/pkg/platform/keyedlock"
)

// main wires dependencies and keeps the server lifecycle small. Business
// logic lives in the internal services.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	m := metrics.New()

	// Stores: PostgreSQL when configured, in-process otherwise.
	var (
		db         *sql.DB
		orgStore   org.Store
		partStore  partnership.Store
		invStore   inventory.Store
		proofStore attestation.Store
	)
	if cfg.PostgresDSN != "" {
		var err error
		db, err = postgres.Open(context.Background(), cfg.PostgresDSN)
		if err != nil {
			log.Error("connect postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := postgres.EnsureSchema(context.Background(), db); err != nil {
			log.Error("apply schema", "error", err)
			os.Exit(1)
		}
		orgStore = org.NewPostgres(db)
		partStore = partnership.NewPostgres(db)
		invStore = inventory.NewPostgres(db)
		proofStore = attestation.NewPostgres(db)
	} else {
		log.Warn("POSTGRES_DSN not set, using in-process stores")
		orgStore = org.NewInMemoryStore()
		partStore = partnership.NewInMemoryStore()
		invStore = inventory.NewInMemoryStore()
		proofStore = attestation.NewInMemoryStore()
	}

	// Idempotency reservations: Redis when configured.
	var keys ledger.KeyStore = ledger.NewMemoryKeyStore()
	rds, err := redis.New(cfg.Redis)
	if err != nil {
		log.Error("connect redis", "error", err)
		os.Exit(1)
	}
	if rds != nil {
		defer rds.Close()
		keys = ledger.NewRedisKeyStore(rds.Client)
	}

	chain := ledger.NewMemory(ledger.WithConfirmLatency(cfg.Ledger.ConfirmLatency))
	submitter := ledger.NewSubmitter(chain, keys, cfg.Ledger, log, m)

	// Audit trail: durable store when Postgres is up, Kafka fan-out when
	// brokers are configured.
	var auditStore audit.Store = audit.NewInMemoryStore()
	if db != nil {
		auditStore = audit.NewPostgres(db)
	}
	publisher := audit.NewPublisher(256)
	var sink audit.Sink
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaSink, err := audit.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			log.Error("connect kafka", "error", err)
			os.Exit(1)
		}
		defer kafkaSink.Close()
		sink = kafkaSink
	}

	tokens := jwttoken.NewService(cfg.JWTSigningKey, "custodia")
	locks := keyedlock.New()

	orgSvc := org.NewService(orgStore, tokens, log)
	partnerSvc := partnership.NewService(partStore, log)
	inventorySvc := inventory.NewService(invStore, submitter, orgSvc, log, m)
	transferSvc := transfer.NewService(invStore, partnerSvc, orgSvc, submitter, locks, publisher, log, m)
	proofSvc := attestation.NewService(invStore, proofStore, locks, publisher, log, m)
	gateSvc := verification.NewService(invStore, orgSvc, submitter, locks, publisher, log, m)

	router := httptransport.NewRouter(httptransport.Deps{
		Org:      orghandler.New(orgSvc, log),
		Partners: parthandler.New(partnerSvc, publisher, log),
		Products: httptransport.NewProductsHandler(inventorySvc, transferSvc, proofSvc, gateSvc, orgSvc, publisher, log),
		Auth:     tokens,
		Logger:   log,
		HealthFunc: func() error {
			if db != nil {
				if err := db.Ping(); err != nil {
					return err
				}
			}
			if rds != nil {
				return rds.Health(context.Background())
			}
			return nil
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	worker := audit.NewWorker(auditStore, sink, publisher.Inbox(), log)
	go func() {
		if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("audit worker stopped", "error", err)
		}
	}()

	srv := httpserver.New(cfg.Addr, router)
	go func() {
		log.Info("custodia listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	log.Info("custodia stopped")
}
