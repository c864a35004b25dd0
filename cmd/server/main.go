package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/olyamironova/auction-engine/internal/adapter/cache"
	"github.com/olyamironova/auction-engine/internal/adapter/in_memory"
	"github.com/olyamironova/auction-engine/internal/adapter/kafka"
	"github.com/olyamironova/auction-engine/internal/adapter/pg"
	grpcapi "github.com/olyamironova/auction-engine/internal/api/grpc"
	httpapi "github.com/olyamironova/auction-engine/internal/api/http"
	"github.com/olyamironova/auction-engine/internal/api/stream"
	"github.com/olyamironova/auction-engine/internal/config"
	"github.com/olyamironova/auction-engine/internal/core"
	"github.com/olyamironova/auction-engine/internal/logger"
	"github.com/olyamironova/auction-engine/internal/metrics"
	"github.com/olyamironova/auction-engine/internal/middleware"
	"github.com/olyamironova/auction-engine/internal/port"
	"github.com/olyamironova/auction-engine/internal/simulator"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to TOML config file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	closer, err := logger.Init(cfg.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, slog.Default()); err != nil {
		slog.Error("server stopped", "error", err)
		closer.Close()
		os.Exit(1)
	}
	slog.Info("server stopped")
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	log = log.With("symbol", cfg.Symbol)

	var (
		m   *metrics.Metrics
		reg = prometheus.NewRegistry()
	)
	if cfg.Metrics.Enabled {
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m = metrics.New(cfg.Symbol, reg)
	}

	hub := stream.NewHub(cfg.HTTP.StreamBuffer, log)
	defer hub.Close()

	sinks := port.Fanout{hub}
	httpOpts := []httpapi.Option{httpapi.WithLogger(log), httpapi.WithStream(hub)}

	if cfg.Redis.Enabled {
		rc := cache.NewRedisCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.TTL)
		defer rc.Close()
		if err := rc.Ping(ctx); err != nil {
			log.Warn("redis not reachable yet", "addr", cfg.Redis.Addr, "error", err)
		} else if err := rc.Invalidate(ctx, cfg.Symbol); err != nil {
			// the book starts empty; a previous run's snapshot must not be served
			log.Warn("drop stale cached book", "error", err)
		}
		sinks = append(sinks, rc)
		httpOpts = append(httpOpts, httpapi.WithCache(rc), httpapi.WithHealthCheck("redis", rc.Ping))
	} else {
		mc := in_memory.NewCache()
		sinks = append(sinks, port.CacheSink(mc))
		httpOpts = append(httpOpts, httpapi.WithCache(mc))
	}

	if cfg.Postgres.Enabled {
		repo, err := pg.NewPgRepo(ctx, cfg.Postgres.DSN)
		if err != nil {
			return err
		}
		defer repo.Close()
		if cfg.Postgres.Migrate {
			if err := repo.Migrate(ctx); err != nil {
				return err
			}
		}
		sinks = append(sinks, port.JournalSink(repo))
		httpOpts = append(httpOpts, httpapi.WithJournal(repo), httpapi.WithHealthCheck("postgres", repo.Ping))
	}

	if cfg.Kafka.Enabled {
		prod := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer prod.Close()
		sinks = append(sinks, prod)
	}

	// The dispatcher outlives ctx so queued events drain on shutdown.
	dispatchCtx, cancelDispatch := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelDispatch()
	dispatcher := core.NewDispatcher(sinks, cfg.Engine.DispatchBuffer,
		core.WithDispatchLogger(log),
		core.WithDispatchMetrics(m),
		core.WithSinkTimeout(cfg.Engine.SinkTimeout),
	)
	dispatcher.Start(dispatchCtx)
	defer dispatcher.Close()

	eng := core.NewEngine(cfg.Symbol, dispatcher,
		core.WithLogger(log),
		core.WithMetrics(m),
		core.WithSnapshotDepth(cfg.Engine.SnapshotDepth),
		core.WithInvariantChecks(cfg.Engine.CheckInvariants),
	)

	if m != nil {
		httpOpts = append(httpOpts, httpapi.WithMetricsHandler(m.Handler()))
	}
	if cfg.HTTP.RateLimit > 0 {
		httpOpts = append(httpOpts, httpapi.WithRateLimiter(middleware.NewRateLimiter(cfg.HTTP.RateLimit, cfg.HTTP.RateBurst)))
	}
	gin.SetMode(gin.ReleaseMode)
	httpSrv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           httpapi.NewHTTPServer(eng, httpOpts...).Handler(),
		ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
	}

	httpLis, err := net.Listen("tcp", cfg.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}
	var grpcLis net.Listener
	if cfg.GRPC.Enabled {
		if grpcLis, err = net.Listen("tcp", cfg.GRPC.Addr); err != nil {
			httpLis.Close()
			return fmt.Errorf("grpc listen: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("http listening", "addr", httpLis.Addr().String())
		if err := httpSrv.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		// SSE handlers only return once their subscription ends.
		hub.Close()
		sctx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(sctx)
	})

	if grpcLis != nil {
		grpcSrv := grpc.NewServer(grpc.UnaryInterceptor(grpcapi.LoggingInterceptor(log)))
		grpcapi.NewGRPCServer(eng, hub, log).Register(grpcSrv)
		hs := health.NewServer()
		hs.SetServingStatus(grpcapi.ServiceName, healthpb.HealthCheckResponse_SERVING)
		healthpb.RegisterHealthServer(grpcSrv, hs)

		g.Go(func() error {
			log.Info("grpc listening", "addr", grpcLis.Addr().String())
			return grpcSrv.Serve(grpcLis)
		})
		g.Go(func() error {
			<-gctx.Done()
			hs.Shutdown()
			grpcSrv.GracefulStop()
			return nil
		})
	}

	if cfg.Simulator.Enabled {
		sim := simulator.New(eng, simulator.NewGenerator(cfg.Simulator.Seed), cfg.Simulator.Interval, cfg.Simulator.Limit, log)
		g.Go(func() error { return sim.Run(gctx) })
	}

	err = g.Wait()
	log.Info("shutting down", "stats", eng.Stats(), "dispatch", dispatcher.Stats(), "stream_dropped", hub.Dropped())
	return err
}
