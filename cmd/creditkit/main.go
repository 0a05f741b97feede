package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/creditkit/creditkit/pkg/config"
	"github.com/creditkit/creditkit/pkg/httpserver"
	"github.com/creditkit/creditkit/pkg/ledger"
	"github.com/creditkit/creditkit/pkg/logger"
	"github.com/creditkit/creditkit/pkg/payment"
	"github.com/creditkit/creditkit/pkg/pg"
	"github.com/creditkit/creditkit/pkg/plan"
	"github.com/creditkit/creditkit/pkg/reconcile"
	"github.com/creditkit/creditkit/pkg/redis"
)

type appConfig struct {
	PlansPath string `env:"PLANS_PATH" envDefault:"plans.yml"`

	Logger logger.Config
	PG     pg.Config
	Redis  redis.Config
	HTTP   httpserver.Config
	Stripe payment.StripeConfig
	Paddle payment.PaddleConfig
}

func main() {
	ctx := context.Background()

	var cfg appConfig
	if err := config.Load(&cfg); err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	log := logger.NewFromConfig(cfg.Logger, logger.WithAttr(slog.String("app", "creditkit")))
	slog.SetDefault(log)

	if err := run(ctx, cfg, log); err != nil {
		log.ErrorContext(ctx, "exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg appConfig, log *slog.Logger) error {
	pool, err := pg.Connect(ctx, cfg.PG)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pg.Migrate(ctx, pool, cfg.PG, log); err != nil {
		return err
	}

	catalog, err := plan.NewCatalog(ctx, plan.NewFileSource(cfg.PlansPath))
	if err != nil {
		return err
	}

	ledgerStore := ledger.NewPostgresStore(pool)
	ledgerSvc := ledger.NewService(ledgerStore)

	queueStore := reconcile.NewPostgresStore(pool)
	queue, err := reconcile.NewQueue(queueStore, reconcile.WithQueueLogger(log))
	if err != nil {
		return err
	}
	worker, err := reconcile.NewWorker(queueStore, ledgerSvc, reconcile.WithWorkerLogger(log))
	if err != nil {
		return err
	}

	paymentStore := payment.NewPostgresStore(pool)

	procOpts := []payment.ProcessorOption{
		payment.WithLogger(log),
		payment.WithCreditRetryQueue(queue),
	}
	healthchecks := []func(context.Context) error{pg.Healthcheck(pool)}

	if cfg.Redis.Enabled() {
		client, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer client.Close()
		procOpts = append(procOpts, payment.WithDedupCache(payment.NewRedisDedupCache(client, cfg.Redis.DedupTTL)))
		healthchecks = append(healthchecks, redis.Healthcheck(client))
	}

	stripeProvider, err := payment.NewStripeProvider(cfg.Stripe)
	if err != nil {
		return err
	}
	paddleProvider, err := payment.NewPaddleProvider(cfg.Paddle)
	if err != nil {
		return err
	}

	stripeProc := payment.NewProcessor(stripeProvider, paymentStore, catalog, ledgerSvc, procOpts...)
	paddleProc := payment.NewProcessor(paddleProvider, paymentStore, catalog, ledgerSvc, procOpts...)

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Post("/webhooks/stripe", stripeProc.HTTPHandler())
	r.Post("/webhooks/paddle", paddleProc.HTTPHandler())
	r.Get("/healthz", healthHandler(healthchecks...))

	srv := httpserver.New(cfg.HTTP, r, httpserver.WithLogger(log))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return worker.Run(ctx) })
	g.Go(func() error { return srv.Run(ctx) })
	return g.Wait()
}

func healthHandler(checks ...func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		for _, check := range checks {
			if err := check(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(w).Encode(map[string]string{"status": "unavailable"})
				return
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}
