package server

import (
	"context"
	"net"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthService is the service name reported alongside the overall status.
const HealthService = "dopi"

// DefaultHealthInterval is how often the store is probed.
const DefaultHealthInterval = 15 * time.Second

// HealthServer exposes grpc.health.v1.Health backed by periodic store pings.
type HealthServer struct {
	grpc     *grpc.Server
	health   *health.Server
	store    Pinger
	interval time.Duration
	logger   logrus.FieldLogger
}

// NewHealthServer builds the server. The status starts NOT_SERVING until the
// first probe succeeds.
func NewHealthServer(store Pinger, interval time.Duration, logger logrus.FieldLogger) *HealthServer {
	if interval <= 0 {
		interval = DefaultHealthInterval
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	h := &HealthServer{
		grpc:     grpc.NewServer(),
		health:   health.NewServer(),
		store:    store,
		interval: interval,
		logger:   logger.WithField("component", "grpc_health"),
	}
	healthpb.RegisterHealthServer(h.grpc, h.health)
	h.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
	return h
}

// Serve probes the store and serves on lis until ctx is cancelled.
func (h *HealthServer) Serve(ctx context.Context, lis net.Listener) error {
	h.probe(ctx)

	errCh := make(chan error, 1)
	go func() {
		h.logger.WithField("addr", lis.Addr().String()).Info("gRPC health server started")
		errCh <- h.grpc.Serve(lis)
	}()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			h.probe(ctx)
		case err := <-errCh:
			h.health.Shutdown()
			return err
		case <-ctx.Done():
			h.health.Shutdown()
			h.grpc.GracefulStop()
			return nil
		}
	}
}

func (h *HealthServer) probe(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		h.logger.WithError(err).Warn("Store ping failed")
		h.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
		return
	}
	h.setStatus(healthpb.HealthCheckResponse_SERVING)
}

func (h *HealthServer) setStatus(status healthpb.HealthCheckResponse_ServingStatus) {
	h.health.SetServingStatus("", status)
	h.health.SetServingStatus(HealthService, status)
}
