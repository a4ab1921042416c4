package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/vibast-solutions/ms-go-checkout/app/service"
	"github.com/vibast-solutions/ms-go-checkout/config"
)

var (
	workerMode  bool
	metricsAddr string
)

var (
	jobRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_job_runs_total",
			Help: "Maintenance job runs by job and result.",
		},
		[]string{"job", "result"},
	)

	jobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "checkout_job_duration_seconds",
			Help:    "Wall time of one maintenance job run.",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120},
		},
		[]string{"job"},
	)
)

// checkoutJob is one maintenance task runnable once or as a worker.
type checkoutJob struct {
	name     string
	interval func(cfg *config.JobsConfig) time.Duration
	run      func(s *service.CheckoutService, ctx context.Context) error
}

var (
	reconcileJob = checkoutJob{
		name:     "reconcile",
		interval: func(cfg *config.JobsConfig) time.Duration { return cfg.ReconcileInterval },
		run:      (*service.CheckoutService).RunReconcileBatch,
	}
	expirePendingJob = checkoutJob{
		name:     "expire_pending",
		interval: func(cfg *config.JobsConfig) time.Duration { return cfg.ExpirePendingInterval },
		run:      (*service.CheckoutService).RunExpirePendingBatch,
	}
	expireSubscriptionsJob = checkoutJob{
		name:     "expire_subscriptions",
		interval: func(cfg *config.JobsConfig) time.Duration { return cfg.ExpireSubscriptionsInterval },
		run:      (*service.CheckoutService).RunExpireSubscriptionsBatch,
	}
	releaseReservationsJob = checkoutJob{
		name:     "reservations_release",
		interval: func(cfg *config.JobsConfig) time.Duration { return cfg.ReleaseReservationsInterval },
		run:      (*service.CheckoutService).RunReleaseReservationsBatch,
	}
	syncInventoryJob = checkoutJob{
		name:     "inventory_sync",
		interval: func(cfg *config.JobsConfig) time.Duration { return cfg.SyncInventoryInterval },
		run:      (*service.CheckoutService).RunSyncInventoryBatch,
	}
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile stale gateway charges and stranded paid payments",
	Run:   jobCommand(reconcileJob),
}

var expireCmd = &cobra.Command{
	Use:   "expire",
	Short: "Run expiration-related commands",
}

var expirePendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "Expire pending orders older than the pending window",
	Run:   jobCommand(expirePendingJob),
}

var expireSubscriptionsCmd = &cobra.Command{
	Use:   "subscriptions",
	Short: "Expire active subscriptions past their next billing date",
	Run:   jobCommand(expireSubscriptionsJob),
}

var reservationsCmd = &cobra.Command{
	Use:   "reservations",
	Short: "Run inventory reservation commands",
}

var reservationsReleaseCmd = &cobra.Command{
	Use:   "release",
	Short: "Return reserved sessions held by closed orders to stock",
	Run:   jobCommand(releaseReservationsJob),
}

var inventoryCmd = &cobra.Command{
	Use:   "inventory",
	Short: "Run session inventory commands",
}

var inventorySyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Rewrite session stock counters from the available file count",
	Run:   jobCommand(syncInventoryJob),
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(expireCmd)
	rootCmd.AddCommand(reservationsCmd)
	rootCmd.AddCommand(inventoryCmd)
	expireCmd.AddCommand(expirePendingCmd)
	expireCmd.AddCommand(expireSubscriptionsCmd)
	reservationsCmd.AddCommand(reservationsReleaseCmd)
	inventoryCmd.AddCommand(inventorySyncCmd)

	rootCmd.PersistentFlags().BoolVar(&workerMode, "worker", false, "Run continuously using configured interval")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "Serve job metrics on this address in worker mode")
}

func jobCommand(job checkoutJob) func(*cobra.Command, []string) {
	return func(_ *cobra.Command, _ []string) {
		cfg, checkoutService, cleanup := mustCreateCheckoutService()
		defer cleanup()

		if workerMode {
			runWorker(job, job.interval(&cfg.Jobs), checkoutService)
			return
		}
		runJob(context.Background(), job, checkoutService)
	}
}

func runWorker(job checkoutJob, interval time.Duration, checkoutService *service.CheckoutService) {
	log := logrus.WithField("job", job.name)
	if interval <= 0 {
		log.Fatal("invalid worker interval")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if metricsAddr != "" {
		srv := startMetricsServer(metricsAddr)
		defer func() {
			shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
			defer stop()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	runJob(ctx, job, checkoutService)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	for {
		select {
		case <-quit:
			log.Info("Worker shutdown requested")
			return
		case <-ticker.C:
			runJob(ctx, job, checkoutService)
		}
	}
}

func startMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).WithField("addr", addr).Error("Metrics server stopped")
		}
	}()
	return srv
}

func runJob(ctx context.Context, job checkoutJob, checkoutService *service.CheckoutService) {
	start := time.Now()
	err := job.run(checkoutService, ctx)
	latency := time.Since(start)
	jobDuration.WithLabelValues(job.name).Observe(latency.Seconds())

	log := logrus.WithField("job", job.name).WithField("latency", latency.String())
	if err != nil {
		jobRunsTotal.WithLabelValues(job.name, "failed").Inc()
		log.WithError(err).Error("job_failed")
		return
	}
	jobRunsTotal.WithLabelValues(job.name, "completed").Inc()
	log.Info("job_completed")
}
