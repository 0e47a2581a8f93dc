package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"sync/atomic"
	"time"

	"github.com/netsampler/nfcapd/collector"
	"github.com/netsampler/nfcapd/pkg/nfcapd/config"
	"github.com/netsampler/nfcapd/pkg/nfcapd/httpserver"
	"github.com/netsampler/nfcapd/pkg/nfcapd/input"
	"github.com/netsampler/nfcapd/pkg/nfcapd/logging"
	"github.com/netsampler/nfcapd/utils"
	"github.com/netsampler/nfcapd/utils/debug"

	"golang.org/x/sync/errgroup"
)

// App wires and runs the collector.
type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	sources    *collector.Sources
	collector  *collector.Collector
	inputs     []input.InputConfig
	server     *http.Server
	collecting atomic.Bool
}

// New constructs a new App from config.
func New(cfg *config.Config) (*App, error) {
	logger, err := logging.NewLogger(cfg.LogLevel, cfg.LogFmt)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return NewWithLogger(cfg, logger)
}

// NewWithLogger constructs a new App logging to logger.
func NewWithLogger(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if err := cfg.Check(); err != nil {
		return nil, err
	}

	sources, err := buildSources(cfg, logger)
	if err != nil {
		return nil, err
	}

	peer, err := netip.ParseAddr(cfg.Peer)
	if err != nil {
		return nil, fmt.Errorf("parse peer %q: %w", cfg.Peer, err)
	}
	inputs, err := input.ParseInputs(cfg.Input, peer)
	if err != nil {
		return nil, err
	}

	coll, err := collector.New(collector.Config{
		Sources:      sources,
		Interval:     cfg.Interval,
		SubdirLayout: cfg.SubdirLayout,
		Compression:  cfg.Compression,
		BlockSize:    cfg.BlockSize,
		NSEL:         cfg.NSEL,
		ErrCnt:       cfg.ErrCnt,
		ErrInt:       cfg.ErrInt,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}

	app := &App{
		cfg:       cfg,
		logger:    logger,
		sources:   sources,
		collector: coll,
		inputs:    inputs,
	}

	if cfg.Addr != "" {
		app.server = &http.Server{
			Addr:              cfg.Addr,
			Handler:           httpserver.New(coll.Status, app.collecting.Load),
			ReadHeaderTimeout: time.Second * 5,
		}
	}
	return app, nil
}

func buildSources(cfg *config.Config, logger *slog.Logger) (*collector.Sources, error) {
	sources := collector.NewSources(nil, logger)
	switch {
	case cfg.DynamicDir != "":
		if err := sources.SetDynamicSourcesDir(cfg.DynamicDir); err != nil {
			return nil, err
		}
	case len(cfg.Sources) > 0 || cfg.SourcesFile != "":
		var errs []error
		for _, def := range cfg.Sources {
			if _, err := sources.AddFlowSource(def); err != nil {
				errs = append(errs, err)
			}
		}
		if cfg.SourcesFile != "" {
			if err := sources.AddFlowSourceFromFile(cfg.SourcesFile); err != nil {
				errs = append(errs, err)
			}
		}
		if err := errors.Join(errs...); err != nil {
			return nil, err
		}
	default:
		if _, err := sources.AddDefaultFlowSource(cfg.Ident, cfg.DataDir); err != nil {
			return nil, err
		}
	}
	if sources.Len() == 0 && !sources.Dynamic() {
		return nil, errors.New("no flow source defined")
	}
	return sources, nil
}

// Sources returns the flow source registry.
func (a *App) Sources() *collector.Sources {
	return a.sources
}

// Start opens the current file of every flow source.
func (a *App) Start() error {
	a.logger.Info("starting nfcapd",
		slog.Int("sources", a.sources.Len()),
		slog.Int("inputs", len(a.inputs)))
	if err := a.collector.Start(collector.SlotStart(time.Now(), a.cfg.Interval)); err != nil {
		return err
	}
	a.collecting.Store(true)
	return nil
}

// Run starts the app and blocks until every input is exhausted, ctx is
// done or the HTTP server fails. The current slot is rotated on return.
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.collector.RotateLoop(gctx)
	})
	if a.server != nil {
		g.Go(func() error {
			err := a.server.ListenAndServe()
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			a.logger.With(slog.String("http", a.cfg.Addr)).Info("closed HTTP server")
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second*5)
			defer cancel()
			if err := a.server.Shutdown(shutdownCtx); err != nil {
				a.logger.Error("error shutting-down HTTP server", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	// blocked reads are abandoned on shutdown; the closed collector stops them
	inputsDone := make(chan error, 1)
	go func() {
		inputsDone <- a.runInputs(gctx)
	}()

	var inputErr error
	select {
	case <-gctx.Done():
	case inputErr = <-inputsDone:
		a.logger.Info("inputs exhausted")
	}
	cancel()
	err := g.Wait()

	return errors.Join(inputErr, err, a.Shutdown())
}

func (a *App) runInputs(ctx context.Context) error {
	decoder := debug.PanicDecoderWrapper(a.collector.Decode)

	g := &errgroup.Group{}
	for _, in := range a.inputs {
		g.Go(func() error {
			r, err := in.Open()
			if err != nil {
				return fmt.Errorf("open input %s: %w", in, err)
			}
			defer r.Close()

			pipe := utils.NewRecordPipe(&utils.PipeConfig{
				Decoder: decoder,
				Logger:  a.logger.With(slog.String("input", in.String())),
				ErrCnt:  a.cfg.ErrCnt,
				ErrInt:  a.cfg.ErrInt,
			})
			err = pipe.Run(ctx, r, in.Peer)
			a.logger.Info("input closed",
				slog.String("input", in.String()),
				slog.Uint64("messages", pipe.Messages()),
				slog.Uint64("errors", pipe.Errors()))
			if errors.Is(err, utils.ErrDecoderClosed) {
				return nil
			}
			return err
		})
	}
	return g.Wait()
}

// Shutdown performs the final rotation. It is safe to call more than once.
func (a *App) Shutdown() error {
	a.collecting.Store(false)
	if err := a.collector.Close(); err != nil {
		a.logger.Error("error closing collector", slog.String("error", err.Error()))
		return err
	}
	a.logger.Info("collector closed")
	return nil
}
