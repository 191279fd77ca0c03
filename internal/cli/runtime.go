package cli

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/FCJuventus/DoPi-demo/config"
	"github.com/FCJuventus/DoPi-demo/internal/jobs"
	"github.com/FCJuventus/DoPi-demo/internal/metrics"
	"github.com/FCJuventus/DoPi-demo/internal/payments"
	"github.com/FCJuventus/DoPi-demo/internal/piclient"
	"github.com/FCJuventus/DoPi-demo/internal/store"
	"github.com/FCJuventus/DoPi-demo/internal/store/memory"
	mongostore "github.com/FCJuventus/DoPi-demo/internal/store/mongo"
	"github.com/FCJuventus/DoPi-demo/internal/store/postgrest"
)

// runtime holds the wired engines of one process.
type runtime struct {
	cfg      config.Config
	logger   *logrus.Logger
	metrics  *metrics.Collector
	store    store.Store
	pi       *piclient.Client
	jobs     *jobs.Service
	payments *payments.Service
	cleanup  func(ctx context.Context)
}

func newRuntime(ctx context.Context, cfg config.Config, logger *logrus.Logger, collector *metrics.Collector) (*runtime, error) {
	fees, err := cfg.FeePolicy()
	if err != nil {
		return nil, err
	}

	st, cleanup, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	pi := piclient.New(piclient.Config{
		BaseURL: cfg.Pi.BaseURL,
		APIKey:  cfg.Pi.APIKey,
		Timeout: cfg.Pi.Timeout,
	}, logger, collector)
	horizon := piclient.NewHorizon(cfg.Pi.Timeout, nil, logger, collector)

	jobSvc := jobs.NewService(st, st, fees, logger, collector)
	paymentSvc := payments.NewService(payments.Deps{
		Orders:  st,
		Jobs:    st,
		Marker:  jobSvc,
		Gateway: pi,
		Chain:   horizon,
		Fees:    fees,
		Logger:  logger,
		Metrics: collector,
	})

	return &runtime{
		cfg:      cfg,
		logger:   logger,
		metrics:  collector,
		store:    st,
		pi:       pi,
		jobs:     jobSvc,
		payments: paymentSvc,
		cleanup:  cleanup,
	}, nil
}

// openStore builds the configured backend. The returned cleanup releases the
// underlying client.
func openStore(ctx context.Context, cfg config.Config, logger *logrus.Logger) (store.Store, func(context.Context), error) {
	log := logger.WithField("driver", cfg.Store.Driver)

	switch cfg.Store.Driver {
	case config.DriverMemory:
		log.Warn("Using the in-memory store; data is lost on exit")
		return memory.New(), func(context.Context) {}, nil

	case config.DriverSupabase:
		client, err := config.NewSupabaseClient(cfg.Store)
		if err != nil {
			return nil, nil, err
		}
		log.Info("Supabase client initialized")
		return postgrest.New(client, postgrest.WithLogger(logger)), func(context.Context) {}, nil

	case config.DriverMongo:
		client, err := config.ConnectMongo(ctx, cfg.Store)
		if err != nil {
			return nil, nil, err
		}
		log.WithField("database", cfg.Store.MongoDatabase).Info("Connected to MongoDB")
		st := mongostore.New(client.Database(cfg.Store.MongoDatabase), mongostore.WithLogger(logger))
		return st, func(ctx context.Context) {
			if err := client.Disconnect(ctx); err != nil {
				log.WithError(err).Warn("MongoDB disconnect failed")
			}
		}, nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}

func (r *runtime) close(ctx context.Context) {
	if err := r.store.Close(ctx); err != nil {
		r.logger.WithError(err).Warn("Store close failed")
	}
	r.cleanup(ctx)
}

func (r *runtime) sweepOptions() payments.SweepOptions {
	return payments.SweepOptions{
		BatchSize: r.cfg.Reconcile.BatchSize,
		Workers:   r.cfg.Reconcile.Workers,
	}
}
