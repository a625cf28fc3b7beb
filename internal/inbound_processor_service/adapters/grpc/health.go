package grpc

import (
	"context"
	"log/slog"
	"time"

	grpcprom "github.com/grpc-ecosystem/go-grpc-middleware/providers/prometheus"
	gRPC "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health service name of the pipeline as a whole; "" reports
// the same status.
const ServiceName = "inbound_processor"

// Check reports whether one dependency is usable.
type Check func(ctx context.Context) error

// HealthReporter keeps the standard gRPC health service in sync with the
// service's dependencies. Each dependency is also reported under its own name.
type HealthReporter struct {
	server   *health.Server
	checks   map[string]Check
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
}

func NewHealthReporter(checks map[string]Check, interval time.Duration, logger *slog.Logger) *HealthReporter {
	h := &HealthReporter{
		server:   health.NewServer(),
		checks:   checks,
		interval: interval,
		timeout:  2 * time.Second,
		logger:   logger.With("component", "grpc_health"),
	}
	h.setAll(healthpb.HealthCheckResponse_NOT_SERVING)
	return h
}

// NewServer returns a gRPC server exposing the health service and reflection.
// With non-nil metrics every call is instrumented.
func NewServer(reporter *HealthReporter, metrics *grpcprom.ServerMetrics) *gRPC.Server {
	var opts []gRPC.ServerOption
	if metrics != nil {
		opts = append(opts,
			gRPC.ChainUnaryInterceptor(metrics.UnaryServerInterceptor()),
			gRPC.ChainStreamInterceptor(metrics.StreamServerInterceptor()),
		)
	}
	s := gRPC.NewServer(opts...)
	healthpb.RegisterHealthServer(s, reporter.server)
	reflection.Register(s)
	if metrics != nil {
		metrics.InitializeMetrics(s)
	}
	return s
}

// Refresh runs every check once and publishes the result.
func (h *HealthReporter) Refresh(ctx context.Context) {
	overall := healthpb.HealthCheckResponse_SERVING
	for name, check := range h.checks {
		checkCtx, cancel := context.WithTimeout(ctx, h.timeout)
		err := check(checkCtx)
		cancel()

		status := healthpb.HealthCheckResponse_SERVING
		if err != nil {
			status = healthpb.HealthCheckResponse_NOT_SERVING
			overall = healthpb.HealthCheckResponse_NOT_SERVING
			h.logger.WarnContext(ctx, "Dependency not ready", "dependency", name, "error", err)
		}
		h.server.SetServingStatus(name, status)
	}
	h.server.SetServingStatus("", overall)
	h.server.SetServingStatus(ServiceName, overall)
}

// Run refreshes the status every interval until ctx is cancelled, then marks
// everything NOT_SERVING.
func (h *HealthReporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.Refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			h.server.Shutdown()
			h.logger.InfoContext(ctx, "Health reporter stopped")
			return nil
		case <-ticker.C:
			h.Refresh(ctx)
		}
	}
}

func (h *HealthReporter) setAll(status healthpb.HealthCheckResponse_ServingStatus) {
	h.server.SetServingStatus("", status)
	h.server.SetServingStatus(ServiceName, status)
	for name := range h.checks {
		h.server.SetServingStatus(name, status)
	}
}
