package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/netsampler/nfcapd/format"
	_ "github.com/netsampler/nfcapd/format/binary"
	_ "github.com/netsampler/nfcapd/format/csv"
	_ "github.com/netsampler/nfcapd/format/json"
	_ "github.com/netsampler/nfcapd/format/text"

	"github.com/netsampler/nfcapd/transport"
	"github.com/netsampler/nfcapd/transport/file"

	"github.com/netsampler/nfcapd/pkg/nfcapd/builder"
	"github.com/netsampler/nfcapd/pkg/nfcapd/dump"
	"github.com/netsampler/nfcapd/pkg/nfcapd/logging"
)

var (
	version    = ""
	buildinfos = ""
	AppVersion = "nfdump " + version + " " + buildinfos
)

type Config struct {
	LogLevel  string
	LogFmt    string
	Format    string
	Transport string
	NSEL      bool
	Limit     uint64
	Exporters bool
	Summary   bool
}

var (
	config  Config
	rootCmd *cobra.Command
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd = &cobra.Command{
		Use:     "nfdump [flags] file...",
		Short:   "Print the flows stored in collector files",
		Version: AppVersion,
		Args:    cobra.MinimumNArgs(1),
		Example: `  nfdump /data/nfcapd.202403011000
  nfdump --format json -c 10 /data/nfcapd.*
  nfdump --format bin --transport.file replay.bin /data/nfcapd.202403011000`,
		SilenceUsage: true,
		RunE:         run,
	}

	flags := rootCmd.Flags()
	flags.StringVar(&config.LogLevel, "loglevel", "info", "Log level")
	flags.StringVar(&config.LogFmt, "logfmt", "normal", "Log formatter")
	flags.StringVar(&config.Format, "format", "text", fmt.Sprintf("Choose the format (available: %s)", strings.Join(format.GetFormats(), ", ")))
	flags.StringVar(&config.Transport, "transport", "file", fmt.Sprintf("Choose the transport (available: %s)", strings.Join(transport.GetTransports(), ", ")))
	flags.BoolVar(&config.NSEL, "nsel", true, "Decode NSEL/NEL extensions")
	flags.Uint64VarP(&config.Limit, "count", "c", 0, "Stop after this many flows (0 for all)")
	flags.BoolVarP(&config.Exporters, "exporters", "x", false, "Log exporter and sampler records")
	flags.BoolVar(&config.Summary, "summary", false, "Print a JSON summary on stderr")

	// format.* and transport.* flags of the drivers
	flags.AddGoFlagSet(flag.CommandLine)
}

func run(cmd *cobra.Command, args []string) error {
	logger, err := logging.NewLogger(config.LogLevel, config.LogFmt)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	formatter, err := builder.BuildFormatter(config.Format)
	if err != nil {
		return err
	}
	transporter, err := builder.BuildTransport(config.Transport)
	if err != nil {
		return err
	}
	if fd, ok := transporter.TransportDriver.(*file.FileDriver); ok && formatter.Name() == "bin" {
		fd.SetSeparator("")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	summary, err := dump.Dump(ctx, args, formatter, transporter, &dump.Options{
		Logger:    logger,
		NSEL:      config.NSEL,
		Limit:     config.Limit,
		Exporters: config.Exporters,
	})
	if cerr := transporter.Close(); cerr != nil {
		slog.Error("error closing transport", slog.String("error", cerr.Error()))
	}
	if config.Summary {
		if err := json.NewEncoder(os.Stderr).Encode(summary); err != nil {
			slog.Error("error writing summary", slog.String("error", err.Error()))
		}
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("dump: %w", err)
	}
	return nil
}
