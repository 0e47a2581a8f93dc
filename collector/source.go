package collector

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/netsampler/nfcapd/decoders/nfx"
	"github.com/netsampler/nfcapd/nffile"
)

const (
	// IdentLen bounds the length of a source ident, exclusive.
	IdentLen = 128

	CurrentPrefix = "nfcapd.current"
)

var (
	ErrSyntax         = errors.New("syntax error for flow source definition, expect ident,IP,path")
	ErrIdent          = errors.New("invalid ident")
	ErrAddress        = errors.New("unparsable IP address")
	ErrNotDirectory   = errors.New("not a directory")
	ErrAmbiguous      = errors.New("ambiguous idents not allowed with an any-source definition")
	ErrDynamicMode    = errors.New("static flow sources not allowed in dynamic mode")
	ErrSourcesDefined = errors.New("flow sources already defined")
	ErrNoSource       = errors.New("no flow source for address")
)

// SourceError reports a rejected flow source definition.
type SourceError struct {
	Source string
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("flow source %q: %s", e.Source, e.Err.Error())
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// FlowSource is one collection target with its own output file and
// exporter registry.
type FlowSource struct {
	Ident     string
	IP        nfx.IPAddr
	Family    uint16
	DataDir   string
	Current   string
	AnySource bool
	Dynamic   bool

	Exporters *Exporters
	File      *nffile.File

	BadPackets uint64

	// peer exporter sysid to local sysid
	sysids map[uint16]uint16
}

// Addr returns the source address, invalid for the any source.
func (fs *FlowSource) Addr() netip.Addr {
	if fs.AnySource {
		return netip.Addr{}
	}
	return fs.IP.Addr(fs.Family == nfx.FamilyIPv6)
}

// ExporterCount returns the number of exporters announced to the current file.
func (fs *FlowSource) ExporterCount() uint32 {
	return fs.Exporters.Count()
}

// Sources is the flow source registry. Static, any-source and dynamic
// sources are mutually exclusive.
type Sources struct {
	list       []*FlowSource
	dynamicDir string
	ids        *SysIDAllocator
	pid        int
	logger     *slog.Logger
}

func NewSources(ids *SysIDAllocator, logger *slog.Logger) *Sources {
	if logger == nil {
		logger = slog.Default()
	}
	if ids == nil {
		ids = NewSysIDAllocator(logger)
	}
	return &Sources{
		ids:    ids,
		pid:    os.Getpid(),
		logger: logger,
	}
}

func (s *Sources) List() []*FlowSource {
	return s.list
}

func (s *Sources) Len() int {
	return len(s.list)
}

func (s *Sources) Dynamic() bool {
	return s.dynamicDir != ""
}

// SetDynamicSourcesDir switches the registry to per-peer sources created
// under dir. It must be called before any source is defined.
func (s *Sources) SetDynamicSourcesDir(dir string) error {
	if len(s.list) > 0 {
		return ErrSourcesDefined
	}
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return &SourceError{dir, ErrNotDirectory}
	}
	s.dynamicDir = dir
	return nil
}

func (s *Sources) newSource(ident, datadir string) *FlowSource {
	return &FlowSource{
		Ident:     ident,
		DataDir:   datadir,
		Current:   filepath.Join(datadir, fmt.Sprintf("%s.%d", CurrentPrefix, s.pid)),
		Exporters: NewExporters(s.ids, s.logger),
		sysids:    make(map[uint16]uint16),
	}
}

func checkIdent(ident string) error {
	if ident == "" || len(ident) >= IdentLen {
		return fmt.Errorf("%w: length %d", ErrIdent, len(ident))
	}
	if strings.ContainsAny(ident, " \t") {
		return fmt.Errorf("%w: illegal characters", ErrIdent)
	}
	return nil
}

func checkDir(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	abs, err = filepath.EvalSymlinks(abs)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", ErrNotDirectory
	}
	return abs, nil
}

// AddFlowSource adds a static source from an "ident,IP,path" definition.
func (s *Sources) AddFlowSource(def string) (*FlowSource, error) {
	if s.Dynamic() {
		return nil, &SourceError{def, ErrDynamicMode}
	}
	for _, fs := range s.list {
		if fs.AnySource {
			return nil, &SourceError{def, ErrAmbiguous}
		}
	}

	parts := strings.SplitN(def, ",", 3)
	if len(parts) != 3 {
		return nil, &SourceError{def, ErrSyntax}
	}
	ident, ipStr, path := parts[0], parts[1], parts[2]

	addr, err := netip.ParseAddr(ipStr)
	if err != nil {
		return nil, &SourceError{def, fmt.Errorf("%w: %s", ErrAddress, ipStr)}
	}
	if err := checkIdent(ident); err != nil {
		return nil, &SourceError{def, err}
	}
	datadir, err := checkDir(path)
	if err != nil {
		return nil, &SourceError{def, err}
	}

	fs := s.newSource(ident, datadir)
	fs.IP = nfx.AddrFrom(addr)
	fs.Family = nfx.FamilyIPv4
	if addr.Unmap().Is6() {
		fs.Family = nfx.FamilyIPv6
	}
	s.list = append(s.list, fs)
	return fs, nil
}

// AddFlowSourceFromFile adds one source per non empty line of path. Every
// line is tried; the failures are returned together.
func (s *Sources) AddFlowSourceFromFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("not a file: %s", path)
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var errs []error
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if _, err := s.AddFlowSource(line); err != nil {
			s.logger.Error("could not add flow source",
				slog.String("source", line),
				slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if err := scanner.Err(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// AddDefaultFlowSource adds the any source receiving from every peer.
func (s *Sources) AddDefaultFlowSource(ident, path string) (*FlowSource, error) {
	if s.Dynamic() {
		return nil, &SourceError{ident, ErrDynamicMode}
	}
	if len(s.list) > 0 {
		return nil, &SourceError{ident, ErrAmbiguous}
	}
	if err := checkIdent(ident); err != nil {
		return nil, &SourceError{ident, err}
	}
	datadir, err := checkDir(path)
	if err != nil {
		return nil, &SourceError{ident, err}
	}
	fs := s.newSource(ident, datadir)
	fs.AnySource = true
	s.list = append(s.list, fs)
	return fs, nil
}

// DynamicIdent derives the ident of a dynamic source from its address.
func DynamicIdent(addr netip.Addr) string {
	return strings.NewReplacer(".", "-", ":", "-").Replace(addr.Unmap().String())
}

// AddDynamicSource creates the source of a newly seen peer, its directory
// included.
func (s *Sources) AddDynamicSource(addr netip.Addr) (*FlowSource, error) {
	if !s.Dynamic() {
		return nil, &SourceError{addr.String(), ErrNoSource}
	}
	if !addr.IsValid() {
		return nil, &SourceError{addr.String(), ErrAddress}
	}
	addr = addr.Unmap()
	ident := DynamicIdent(addr)
	if len(ident) >= IdentLen {
		ident = ident[:IdentLen-1]
	}
	datadir := filepath.Join(s.dynamicDir, ident)
	if err := os.MkdirAll(datadir, 0o755); err != nil {
		return nil, &SourceError{ident, err}
	}

	fs := s.newSource(ident, datadir)
	fs.Dynamic = true
	fs.IP = nfx.AddrFrom(addr)
	fs.Family = nfx.FamilyIPv4
	if addr.Is6() {
		fs.Family = nfx.FamilyIPv6
	}
	s.list = append(s.list, fs)
	s.logger.Info("dynamically added source",
		slog.String("ident", ident),
		slog.String("directory", datadir))
	return fs, nil
}

// remove drops fs from the registry.
func (s *Sources) remove(fs *FlowSource) {
	s.list = slices.DeleteFunc(s.list, func(other *FlowSource) bool { return other == fs })
}

// GetFlowSource returns the source matching addr, the any source, or a
// new dynamic source. The second result reports a newly created source.
func (s *Sources) GetFlowSource(addr netip.Addr) (*FlowSource, bool, error) {
	addr = addr.Unmap()
	ip := nfx.AddrFrom(addr)
	family := nfx.FamilyIPv4
	if addr.Is6() {
		family = nfx.FamilyIPv6
	}
	for _, fs := range s.list {
		if fs.AnySource || (fs.IP == ip && fs.Family == family) {
			return fs, false, nil
		}
	}
	if s.Dynamic() {
		fs, err := s.AddDynamicSource(addr)
		return fs, err == nil, err
	}
	return nil, false, &SourceError{addr.String(), ErrNoSource}
}
