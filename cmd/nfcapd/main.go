package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/netsampler/nfcapd/pkg/nfcapd/app"
	"github.com/netsampler/nfcapd/pkg/nfcapd/config"
)

var (
	version    = ""
	buildinfos = ""
	AppVersion = "nfcapd " + version + " " + buildinfos
)

func main() {
	cfg, err := config.Load(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading configuration: %v\n", err)
		os.Exit(2)
	}
	if cfg.Version {
		fmt.Println(AppVersion)
		os.Exit(0)
	}

	a, err := app.New(cfg)
	if err != nil {
		slog.Error("error starting collector", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("starting nfcapd",
		slog.String("datadir", cfg.DataDir),
		slog.String("input", cfg.Input),
		slog.Duration("interval", cfg.Interval))

	if err := a.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("collector terminated", slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.Info("nfcapd stopped")
}
