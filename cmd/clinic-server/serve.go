package main

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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"clinic/backend/internal/metrics"
	"clinic/backend/internal/service/availability"
	"clinic/backend/internal/service/clinic"
	"clinic/backend/internal/service/reminders"
	"clinic/backend/internal/service/reservations"
	grpctransport "clinic/backend/internal/transport/grpc"
)

func (c *cli) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the gRPC API, the metrics endpoint and the reminder runner",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return c.serve(ctx)
		},
	}
}

func (c *cli) serve(ctx context.Context) error {
	cfg, log := c.cfg, c.log

	st, closeStore, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	resolver, err := newResolver(cfg, log)
	if err != nil {
		return fmt.Errorf("employee directory: %w", err)
	}
	sender, err := newSender(cfg, log)
	if err != nil {
		return fmt.Errorf("mail sender: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.MustNew(registry)

	clinicSvc := clinic.NewService(st, log)
	availSvc := availability.NewService(st, log)
	resSvc := reservations.NewService(st, resolver,
		reservations.WithMetrics(m),
		reservations.WithLogger(log),
		reservations.WithStepMinutes(cfg.SlotStepMinutes),
	)

	var runner *reminders.Runner
	if cfg.RemindersEnabled {
		dispatcher := reminders.NewDispatcher(st, st, st, sender, reminders.DispatcherConfig{
			Location:     cfg.RemindersTimezone,
			TemplateName: cfg.RemindersTemplateName,
		}, m, log)
		runner, err = reminders.NewRunner(dispatcher, cfg.RemindersSchedule, cfg.RemindersTimezone, cfg.RemindersTickTimeout, log)
		if err != nil {
			return err
		}
	}

	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(
		grpctransport.RecoveryInterceptor(log),
		grpctransport.DefaultRequestTimeoutInterceptor(cfg.GRPCRequestTimeout),
	))
	grpctransport.RegisterSchedulingServiceServer(grpcServer, grpctransport.NewSchedulingServer(resSvc, availSvc, clinicSvc, log))
	healthServer := health.NewServer()
	healthServer.SetServingStatus(grpctransport.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Error("failed to listen", slog.String("addr", cfg.GRPCAddr), slog.Any("err", err))
		return err
	}

	metricsServer := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           metricsHandler(registry),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("gRPC server listening", slog.String("addr", cfg.GRPCAddr))
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc serve: %w", err)
		}
		return nil
	})

	if cfg.MetricsAddr != "" {
		g.Go(func() error {
			log.Info("metrics listening", slog.String("addr", cfg.MetricsAddr))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics serve: %w", err)
			}
			return nil
		})
	}

	if runner != nil {
		g.Go(func() error { return runner.Run(gctx) })
	} else {
		log.Info("reminder runner disabled")
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received")
		healthServer.Shutdown()
		shutdown(log, grpcServer, metricsServer, cfg.ShutdownTimeout)
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("server stopped with error", slog.Any("err", err))
		return err
	}
	log.Info("server stopped")
	return nil
}

func metricsHandler(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	return mux
}

func shutdown(log *slog.Logger, grpcServer *grpc.Server, metricsServer *http.Server, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := metricsServer.Shutdown(ctx); err != nil {
		log.Warn("metrics shutdown failed", slog.Any("err", err))
	}

	done := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		log.Info("graceful shutdown complete")
	case <-ctx.Done():
		log.Warn("graceful shutdown timed out; forcing stop", slog.Any("err", ctx.Err()))
		grpcServer.Stop()
	}
}
