package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/okats/boardroom/auth"
	"github.com/okats/boardroom/hub"
	"github.com/okats/boardroom/metrics"
	"github.com/okats/boardroom/service"
	store "github.com/okats/boardroom/storage/memory"
	"github.com/okats/boardroom/storage/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	httpServer "github.com/okats/boardroom/server/http"
	websocketServer "github.com/okats/boardroom/server/websocket"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	_ = godotenv.Load()

	fs := pflag.NewFlagSet("main", pflag.ContinueOnError)

	var (
		apiListenAddr = fs.StringP("api-listen-addr", "a", ":8080", "api listen address")
		wsListenAddr  = fs.StringP("ws-listen-addr", "w", ":8888", "websocket listen address")
		logLevel      = fs.StringP("log-level", "l", "debug", "log level")
		dbPath        = fs.StringP("db-path", "d", "boardroom.db", "sqlite database path")
		tokenTTL      = fs.DurationP("token-ttl", "t", time.Hour, "issued credential lifetime")
	)
	if err := fs.Parse(os.Args[1:]); err != nil {
		logger.Fatal().Err(err).Msg("failed to parse command line arguments")
	}

	lvl, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to parse loglevel")
	}
	logger = logger.Level(lvl)

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		logger.Fatal().Msg("JWT_SECRET is not set")
	}

	dir, err := sqlite.New(*dbPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open directory database")
	}
	defer func() {
		_ = dir.Close()
	}()

	var (
		resolver  = auth.NewResolver([]byte(secret), *tokenTTL)
		registry  = prometheus.NewRegistry()
		collector = metrics.NewCollector(registry)
	)
	gw := service.NewGateway(service.Config{
		Store:   store.NewMemStore(),
		Fanout:  hub.NewHub(&logger, collector),
		Metrics: collector,
		Logger:  &logger,
	})
	httpSrv := httpServer.NewServer(httpServer.Config{
		Logger:      &logger,
		Directory:   dir,
		Credentials: resolver,
		Gatherer:    registry,
		ListenAddr:  *apiListenAddr,
	})
	wsSrv := websocketServer.NewServer(websocketServer.Config{
		Logger:     &logger,
		Resolver:   resolver,
		Gateway:    gw,
		ListenAddr: *wsListenAddr,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go gw.Run(ctx)

	var (
		wg   = &sync.WaitGroup{}
		errc = make(chan error, 2)
	)
	wg.Add(2)
	go httpSrv.Run(ctx, wg, errc)
	go wsSrv.Run(ctx, wg, errc)

	select {
	case err = <-errc:
		logger.Error().Err(err).Msg("unexpected server error, shutting down")
	case <-ctx.Done():
		logger.Warn().Msg("interrupted")
	}
	cancel()
	wg.Wait()
}
