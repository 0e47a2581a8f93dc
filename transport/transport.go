// Package transport delivers formatted records. Drivers register under a name
// at init time and are resolved by name on startup.
package transport

import (
	"fmt"
	"slices"
	"sync"
)

var (
	ErrTransport = fmt.Errorf("transport error")

	drivers = &registry{drivers: make(map[string]TransportDriver)}
)

// DriverTransportError tags a driver error with the transport name.
type DriverTransportError struct {
	Driver string
	Err    error
}

func (e *DriverTransportError) Error() string {
	return fmt.Sprintf("%s for %s transport", e.Err.Error(), e.Driver)
}

func (e *DriverTransportError) Unwrap() []error {
	return []error{ErrTransport, e.Err}
}

type TransportDriver interface {
	Prepare() error // Register flags
	Init() error    // Open outputs
	Close() error   // Flush and release outputs
	Send(key, data []byte) error
}

// TransportInterface sends one formatted message.
type TransportInterface interface {
	Send(key, data []byte) error
}

type registry struct {
	lock    sync.RWMutex
	drivers map[string]TransportDriver
}

func (r *registry) add(name string, d TransportDriver) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.drivers[name] = d
}

func (r *registry) get(name string) (TransportDriver, bool) {
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

// Transport is a resolved driver.
type Transport struct {
	TransportDriver
	name string
}

func (t *Transport) Name() string {
	return t.name
}

func (t *Transport) wrap(err error) error {
	if err == nil {
		return nil
	}
	return &DriverTransportError{t.name, err}
}

func (t *Transport) Close() error {
	return t.wrap(t.TransportDriver.Close())
}

func (t *Transport) Send(key, data []byte) error {
	return t.wrap(t.TransportDriver.Send(key, data))
}

// RegisterTransportDriver adds d under name and runs its Prepare. It panics
// when Prepare fails.
func RegisterTransportDriver(name string, d TransportDriver) {
	drivers.add(name, d)
	if err := d.Prepare(); err != nil {
		panic(err)
	}
}

// FindTransport resolves and initializes the driver registered under name.
func FindTransport(name string) (*Transport, error) {
	d, ok := drivers.get(name)
	if !ok {
		return nil, fmt.Errorf("%w %s not found", ErrTransport, name)
	}
	t := &Transport{d, name}
	return t, t.wrap(d.Init())
}

// GetTransports lists the registered driver names, sorted.
func GetTransports() []string {
	return drivers.names()
}
