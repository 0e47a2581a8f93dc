// Package file implements a file/stdout transport.
package file

import (
	"bufio"
	"flag"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/netsampler/nfcapd/transport"
)

// FileDriver writes formatted messages to stdout or a file.
type FileDriver struct {
	fileDestination string
	lineSeparator   string
	w               *bufio.Writer
	file            io.WriteCloser
	lock            *sync.Mutex
	q               chan bool
}

// Prepare registers flags for file transport configuration.
func (d *FileDriver) Prepare() error {
	flag.StringVar(&d.fileDestination, "transport.file", "", "File/console output (empty for stdout)")
	flag.StringVar(&d.lineSeparator, "transport.file.sep", "\n", "Line separator")
	return nil
}

// SetSeparator overrides the line separator, binary dumps use none.
func (d *FileDriver) SetSeparator(sep string) {
	d.lock.Lock()
	d.lineSeparator = sep
	d.lock.Unlock()
}

func (d *FileDriver) openFile() error {
	file, err := os.OpenFile(d.fileDestination, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	d.file = file
	d.w = bufio.NewWriter(file)
	return nil
}

// Init initializes the output destination and reload handling.
func (d *FileDriver) Init() error {
	d.q = make(chan bool, 1)

	if d.fileDestination == "" {
		d.w = bufio.NewWriter(os.Stdout)
		return nil
	}

	d.lock.Lock()
	err := d.openFile()
	d.lock.Unlock()
	if err != nil {
		return err
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGHUP)
	go func() {
		defer signal.Stop(c)
		for {
			select {
			case <-c:
				d.lock.Lock()
				// on error, keeps using the old file
				if err := d.w.Flush(); err == nil {
					old := d.file
					if err := d.openFile(); err == nil {
						old.Close()
					}
				}
				d.lock.Unlock()
			case <-d.q:
				return
			}
		}
	}()
	return nil
}

// Send writes a formatted message and separator to the destination.
func (d *FileDriver) Send(key, data []byte) error {
	d.lock.Lock()
	defer d.lock.Unlock()
	if _, err := d.w.Write(data); err != nil {
		return err
	}
	if d.lineSeparator == "" {
		return nil
	}
	_, err := d.w.WriteString(d.lineSeparator)
	return err
}

// Close flushes pending output, closes the file and stops reload handling.
func (d *FileDriver) Close() error {
	d.lock.Lock()
	defer d.lock.Unlock()
	close(d.q)
	err := d.w.Flush()
	if d.file != nil {
		if cerr := d.file.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func init() {
	d := &FileDriver{
		lock: &sync.Mutex{},
	}
	transport.RegisterTransportDriver("file", d)
}
