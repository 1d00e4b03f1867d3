// Command kvsrv runs the cache as a standalone TCP server speaking the
// line-oriented wire protocol in network/wire, with optional Prometheus
// metrics and either a goroutine-per-connection or executor-pooled
// ("threaded") reactor.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/afinago/kvsrv/executor"
	"github.com/afinago/kvsrv/metrics/prom"
	"github.com/afinago/kvsrv/network"
	"github.com/afinago/kvsrv/network/wire"
	"github.com/afinago/kvsrv/storage"
)

func main() {
	var (
		addr        = flag.String("addr", ":9999", "listen address")
		totalBytes  = flag.Int("bytes", 64<<20, "total cache byte budget across all shards")
		shards      = flag.Int("shards", 0, "number of shards (0 = auto)")
		maxQueue    = flag.Int("max-queue", 64, "per-connection output queue backpressure threshold")
		threaded    = flag.Bool("threaded", false, "run connections through a bounded executor pool instead of one goroutine each")
		low         = flag.Int("low", 4, "executor low watermark (threaded mode only)")
		high        = flag.Int("high", 64, "executor high watermark (threaded mode only)")
		execQueue   = flag.Int("exec-queue", 1024, "executor task queue bound (threaded mode only)")
		idle        = flag.Duration("idle", 10*time.Second, "executor idle reap timeout (threaded mode only)")
		metricsAddr = flag.String("metrics-addr", ":9998", "Prometheus /metrics listen address; empty disables it")
		verbose     = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := zerolog.InfoLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).With().Timestamp().Str("component", "kvsrv").Logger()

	storageMetrics := prom.NewStorageAdapter(nil, "kvsrv", "storage", nil)
	st, err := storage.New(storage.Options{
		TotalBytes: *totalBytes,
		Shards:     *shards,
		Metrics:    storageMetrics,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to construct storage")
	}

	var exec *executor.Executor
	if *threaded {
		exec = executor.New(executor.Options{
			MaxQueue:      *execQueue,
			LowWatermark:  *low,
			HighWatermark: *high,
			IdleTimeout:   *idle,
			Logger:        logger,
		})
		exec.Start()
		defer exec.Stop(true)
		prometheus.MustRegister(prom.NewExecutorCollector(exec, "kvsrv", "executor"))
	}

	reactor, err := network.NewReactor(network.ReactorOptions{
		Storage:   st,
		NewParser: wire.NewParser,
		MaxQueue:  *maxQueue,
		Executor:  exec,
		Logger:    logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to construct reactor")
	}
	prometheus.MustRegister(prom.NewConnCollector(reactor, "kvsrv", "network"))

	ln, err := net.Listen("tcp", *addr)
	if err != nil {
		logger.Fatal().Err(err).Str("addr", *addr).Msg("failed to listen")
	}
	logger.Info().Str("addr", *addr).Bool("threaded", *threaded).Int("shards", st.ShardCount()).Msg("kvsrv listening")

	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: *metricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error().Err(err).Msg("metrics server stopped")
			}
		}()
		defer srv.Shutdown(context.Background())
		logger.Info().Str("addr", *metricsAddr).Msg("metrics listening")
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- reactor.Serve(ln) }()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		logger.Error().Err(err).Msg("reactor stopped unexpectedly")
	case s := <-sig:
		logger.Info().Str("signal", s.String()).Msg("shutting down")
		if err := reactor.Shutdown(); err != nil {
			logger.Error().Err(err).Msg("error during shutdown")
		}
		<-serveErr
	}
	fmt.Fprintln(os.Stderr, "kvsrv stopped")
}
