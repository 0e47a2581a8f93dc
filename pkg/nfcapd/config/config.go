package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/netsampler/nfcapd/collector"
	"github.com/netsampler/nfcapd/nffile"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const envPrefix = "NFCAPD_"

// SourceList collects repeated flow source definitions. Definitions
// contain commas, so each flag occurrence is one entry.
type SourceList []string

func (s *SourceList) String() string {
	return strings.Join(*s, " ")
}

func (s *SourceList) Set(value string) error {
	*s = append(*s, value)
	return nil
}

// Config holds the configuration of the collector. Values are resolved
// from defaults, the YAML file, NFCAPD_ environment variables and flags,
// the latter winning.
type Config struct {
	ConfigFile string `yaml:"-"`
	Version    bool   `yaml:"-"`

	DataDir     string     `yaml:"datadir" env:"DATADIR"`
	Ident       string     `yaml:"ident" env:"IDENT"`
	Sources     SourceList `yaml:"sources" env:"SOURCES" envSeparator:";"`
	SourcesFile string     `yaml:"sources_file" env:"SOURCES_FILE"`
	DynamicDir  string     `yaml:"dynamic_dir" env:"DYNAMIC_DIR"`

	Interval     time.Duration      `yaml:"interval" env:"INTERVAL"`
	SubdirLayout int                `yaml:"subdir_layout" env:"SUBDIR_LAYOUT"`
	Compression  nffile.Compression `yaml:"compression" env:"COMPRESSION"`
	BlockSize    int                `yaml:"block_size" env:"BLOCK_SIZE"`
	NSEL         bool               `yaml:"nsel" env:"NSEL"`

	Input string `yaml:"input" env:"INPUT"`
	Peer  string `yaml:"peer" env:"PEER"`

	Addr string `yaml:"addr" env:"ADDR"`

	LogLevel string        `yaml:"loglevel" env:"LOGLEVEL"`
	LogFmt   string        `yaml:"logfmt" env:"LOGFMT"`
	ErrCnt   int           `yaml:"err_cnt" env:"ERR_CNT"`
	ErrInt   time.Duration `yaml:"err_int" env:"ERR_INT"`
}

// SetDefaults loads the built-in defaults.
func (c *Config) SetDefaults() {
	c.Ident = "none"
	c.Interval = 5 * time.Minute
	c.SubdirLayout = collector.LayoutNone
	c.Compression = nffile.CompressionLZ4
	c.BlockSize = nffile.WriteBufferSize
	c.Input = "-"
	c.Peer = "127.0.0.1"
	c.Addr = ":8080"
	c.LogLevel = "info"
	c.LogFmt = "normal"
	c.ErrCnt = 10
	c.ErrInt = 10 * time.Second
}

// Prepare resolves defaults, the YAML file named by -config in args and the
// environment, then registers flags on fs seeded with the result.
func Prepare(fs *flag.FlagSet, args []string) (*Config, error) {
	cfg := &Config{}
	cfg.SetDefaults()

	if path := configPath(args); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
		cfg.ConfigFile = path
	}
	if err := cfg.loadFromEnv(); err != nil {
		return nil, err
	}
	cfg.registerFlags(fs)
	return cfg, nil
}

// Load prepares a Config and parses args into it.
func Load(fs *flag.FlagSet, args []string) (*Config, error) {
	cfg, err := Prepare(fs, args)
	if err != nil {
		return nil, err
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return cfg, nil
}

func configPath(args []string) string {
	for i, arg := range args {
		if arg == "--" {
			break
		}
		name := strings.TrimLeft(arg, "-")
		if name == arg {
			continue
		}
		if name == "config" && i+1 < len(args) {
			return args[i+1]
		}
		if value, ok := strings.CutPrefix(name, "config="); ok {
			return value
		}
	}
	return ""
}

func (c *Config) loadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("load config %s: %w", path, err)
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("load config %s: decode: %w", path, err)
	}
	return nil
}

func (c *Config) loadFromEnv() error {
	return env.ParseWithOptions(c, env.Options{
		Prefix: envPrefix,
	})
}

func (c *Config) registerFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.ConfigFile, "config", c.ConfigFile, "YAML configuration file")
	fs.BoolVar(&c.Version, "v", false, "Print version")

	fs.StringVar(&c.DataDir, "w", c.DataDir, "Data directory of the default flow source")
	fs.StringVar(&c.Ident, "I", c.Ident, "Ident of the default flow source")
	fs.Var(&c.Sources, "n", "Flow source ident,IP,path (repeatable)")
	fs.StringVar(&c.SourcesFile, "N", c.SourcesFile, "File with one flow source definition per line")
	fs.StringVar(&c.DynamicDir, "M", c.DynamicDir, "Base directory of dynamic flow sources")

	fs.DurationVar(&c.Interval, "t", c.Interval, "File rotation interval")
	fs.IntVar(&c.SubdirLayout, "S", c.SubdirLayout, "Subdirectory layout of rotated files (0-6)")
	fs.TextVar(&c.Compression, "z", c.Compression, "Block compression (none, lz4, zstd, s2)")
	fs.IntVar(&c.BlockSize, "blocksize", c.BlockSize, "Data block capacity in bytes")
	fs.BoolVar(&c.NSEL, "nsel", c.NSEL, "Decode NSEL/NEL extensions")

	fs.StringVar(&c.Input, "input", c.Input, "Record streams: paths, file:// or stdin:// URLs, comma separated; - for stdin")
	fs.StringVar(&c.Peer, "peer", c.Peer, "Default peer address of input streams")

	fs.StringVar(&c.Addr, "addr", c.Addr, "HTTP server address (empty to disable)")

	fs.StringVar(&c.LogLevel, "loglevel", c.LogLevel, "Log level")
	fs.StringVar(&c.LogFmt, "logfmt", c.LogFmt, "Log formatter (normal or json)")
	fs.IntVar(&c.ErrCnt, "err.cnt", c.ErrCnt, "Maximum errors per batch for muting")
	fs.DurationVar(&c.ErrInt, "err.int", c.ErrInt, "Maximum errors interval for muting")
}

// Check validates the resolved configuration.
func (c *Config) Check() error {
	var errs []error
	modes := 0
	if c.DynamicDir != "" {
		modes++
	}
	if len(c.Sources) > 0 || c.SourcesFile != "" {
		modes++
	}
	if modes == 0 && c.DataDir == "" {
		errs = append(errs, errors.New("no data directory: set -w, -n, -N or -M"))
	}
	if modes > 1 {
		errs = append(errs, errors.New("dynamic sources (-M) exclude static sources (-n, -N)"))
	}
	if c.DataDir != "" && modes > 0 {
		errs = append(errs, errors.New("-w excludes -n, -N and -M"))
	}
	if c.Interval < 2*time.Second {
		errs = append(errs, fmt.Errorf("rotation interval %s too short", c.Interval))
	}
	if !collector.ValidLayout(c.SubdirLayout) {
		errs = append(errs, fmt.Errorf("unknown subdirectory layout %d", c.SubdirLayout))
	}
	if c.BlockSize < 0 || c.BlockSize > nffile.MaxBlockSize {
		errs = append(errs, fmt.Errorf("invalid block size %d", c.BlockSize))
	}
	return errors.Join(errs...)
}
