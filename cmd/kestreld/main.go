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
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kestreldns/kestrel/internal/api"
	"github.com/kestreldns/kestrel/internal/config"
	"github.com/kestreldns/kestrel/internal/ioloop"
	"github.com/kestreldns/kestrel/internal/logging"
	"github.com/kestreldns/kestrel/internal/lookup"
	"github.com/kestreldns/kestrel/internal/msgq"
	"github.com/kestreldns/kestrel/internal/service"
	"github.com/kestreldns/kestrel/internal/stats"
	"github.com/kestreldns/kestrel/internal/store"
)

func main() {
	var (
		configPath = flag.String("config", "kestrel.conf", "Path to configuration file")
		jsonLogs   = flag.Bool("json-logs", false, "Enable JSON structured logging")
		debug      = flag.Bool("debug", false, "Enable debug logging")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *jsonLogs {
		cfg.Logging.Format = "json"
	}
	if *debug {
		cfg.Logging.Level = "DEBUG"
	}

	logger := logging.Configure(cfg.Logging)
	logger.Info("kestrel starting",
		"udp", cfg.Server.UDPAddresses,
		"tcp", cfg.Server.TCPAddresses,
		"sync_ok", cfg.Server.SyncOK,
		"api", cfg.API.Enabled,
		"msgq", cfg.Msgq.Enabled,
	)

	if err := run(cfg, logger); err != nil {
		fmt.Fprintf(os.Stderr, "kestrel exited with error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg.StorePath)
	if err != nil {
		return err
	}
	defer st.Close()

	collector := stats.NewCollector()

	provider, err := lookup.NewStatic(logger, cfg.Zone)
	if err != nil {
		return err
	}

	loop := ioloop.New()
	svc := service.New(loop, provider, provider,
		service.WithLogger(logger), service.WithStats(collector))
	if cfg.Server.TCPRecvTimeout > 0 {
		svc.SetTCPRecvTimeout(cfg.Server.TCPRecvTimeout)
	}

	// listeners are registered before the loop starts, so the
	// loop-thread-only rule holds trivially
	if err := addListeners(svc, cfg); err != nil {
		svc.ClearServers()
		return err
	}

	var msgqListener net.Listener
	if cfg.Msgq.Enabled {
		msgqListener, err = net.Listen("tcp", cfg.Msgq.Address)
		if err != nil {
			svc.ClearServers()
			return fmt.Errorf("failed to listen for bus connections: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	// the loop must outlive gctx: teardown below is posted onto it, so it
	// only ends via Stop
	g.Go(func() error {
		loop.Run(context.Background())
		return nil
	})

	if cfg.API.Enabled {
		apiServer := api.New(cfg.APIAddr(), cfg.API.Key, st, collector, logger)
		g.Go(func() error {
			logger.Info("command api listening", "addr", apiServer.Addr())
			if err := apiServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return apiServer.Shutdown(shutdownCtx)
		})
	}

	if msgqListener != nil {
		broker := msgq.NewBroker(logger)
		g.Go(func() error {
			logger.Info("message bus listening", "addr", msgqListener.Addr().String())
			return broker.Serve(gctx, msgqListener)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		// listener bookkeeping stays on the loop goroutine
		cleared := make(chan struct{})
		loop.Post(func() {
			svc.ClearServers()
			close(cleared)
		})
		<-cleared
		loop.Stop()
		return nil
	})

	err = g.Wait()
	logger.Info("kestrel stopped")
	return err
}

func addListeners(svc *service.Service, cfg *config.Config) error {
	var flags service.ServerFlag
	if cfg.Server.SyncOK {
		flags |= service.ServerSyncOK
	}

	for _, addr := range cfg.Server.UDPAddresses {
		fd, af, err := openUDPSocket(addr)
		if err != nil {
			return err
		}
		if err := svc.AddServerUDPFromFD(fd, af, flags); err != nil {
			return fmt.Errorf("udp listener %s: %w", addr, err)
		}
	}
	for _, addr := range cfg.Server.TCPAddresses {
		fd, af, err := openTCPSocket(addr)
		if err != nil {
			return err
		}
		if err := svc.AddServerTCPFromFD(fd, af); err != nil {
			return fmt.Errorf("tcp listener %s: %w", addr, err)
		}
	}
	return nil
}
