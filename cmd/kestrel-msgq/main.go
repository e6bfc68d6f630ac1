package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/kestreldns/kestrel/internal/logging"
	"github.com/kestreldns/kestrel/internal/msgq"
)

func main() {
	var (
		listen   = flag.String("listen", "127.0.0.1:9912", "Address to listen on for bus connections")
		jsonLogs = flag.Bool("json-logs", false, "Enable JSON structured logging")
		debug    = flag.Bool("debug", false, "Enable debug logging")
	)
	flag.Parse()

	level := "INFO"
	if *debug {
		level = "DEBUG"
	}
	format := "text"
	if *jsonLogs {
		format = "json"
	}
	logger := logging.Configure(logging.Config{Level: level, Format: format})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", *listen)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to listen on %s: %v\n", *listen, err)
		os.Exit(1)
	}
	logger.Info("message bus listening", "addr", ln.Addr().String())

	if err := msgq.NewBroker(logger).Serve(ctx, ln); err != nil {
		fmt.Fprintf(os.Stderr, "message bus exited with error: %v\n", err)
		os.Exit(1)
	}
	logger.Info("message bus stopped")
}
