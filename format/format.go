// Package format renders flow records for output. Drivers register under a
// name at init time and are resolved by name on startup.
package format

import (
	"fmt"
	"slices"
	"sync"
)

var (
	ErrFormat       = fmt.Errorf("format error")
	ErrNoSerializer = fmt.Errorf("message is not serializable")

	drivers = &registry{drivers: make(map[string]FormatDriver)}
)

type DriverFormatError struct {
	Driver string
	Err    error
}

func (e *DriverFormatError) Error() string {
	return fmt.Sprintf("%s for %s format", e.Err.Error(), e.Driver)
}

func (e *DriverFormatError) Unwrap() []error {
	return []error{ErrFormat, e.Err}
}

type FormatDriver interface {
	Prepare() error // Register flags
	Init() error    // Parse flag values
	Format(data interface{}) ([]byte, []byte, error)
}

// FormatInterface renders a message into a key and a payload.
type FormatInterface interface {
	Format(data interface{}) ([]byte, []byte, error)
}

// Header is implemented by drivers that emit a preamble before the first
// message, given that message.
type Header interface {
	Header(data interface{}) ([]byte, error)
}

type registry struct {
	lock    sync.RWMutex
	drivers map[string]FormatDriver
}

func (r *registry) add(name string, d FormatDriver) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.drivers[name] = d
}

func (r *registry) get(name string) (FormatDriver, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	d, ok := r.drivers[name]
	return d, ok
}

func (r *registry) names() []string {
	r.lock.RLock()
	defer r.lock.RUnlock()
	names := make([]string, 0, len(r.drivers))
	for name := range r.drivers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Format is a resolved driver.
type Format struct {
	FormatDriver
	name string
}

func (f *Format) Name() string {
	return f.name
}

func (f *Format) wrap(err error) error {
	if err == nil {
		return nil
	}
	return &DriverFormatError{f.name, err}
}

func (f *Format) Format(data interface{}) ([]byte, []byte, error) {
	key, text, err := f.FormatDriver.Format(data)
	return key, text, f.wrap(err)
}

// Header returns the driver preamble for data, nil when the driver has none.
func (f *Format) Header(data interface{}) ([]byte, error) {
	h, ok := f.FormatDriver.(Header)
	if !ok {
		return nil, nil
	}
	b, err := h.Header(data)
	return b, f.wrap(err)
}

// RegisterFormatDriver adds d under name and runs its Prepare. It panics when
// Prepare fails.
func RegisterFormatDriver(name string, d FormatDriver) {
	drivers.add(name, d)
	if err := d.Prepare(); err != nil {
		panic(err)
	}
}

// FindFormat resolves and initializes the driver registered under name.
func FindFormat(name string) (*Format, error) {
	d, ok := drivers.get(name)
	if !ok {
		return nil, fmt.Errorf("%w %s not found", ErrFormat, name)
	}
	f := &Format{d, name}
	return f, f.wrap(d.Init())
}

// GetFormats lists the registered driver names, sorted.
func GetFormats() []string {
	return drivers.names()
}
