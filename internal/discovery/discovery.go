// Package discovery locates media servers on the local network via mDNS.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/grandcat/zeroconf"
)

const (
	// ServiceCLI is the mDNS service of the command line interface.
	ServiceCLI = "_slimcli._tcp"
	domain     = "local."

	DefaultTimeout = 3 * time.Second
)

// ErrNotFound is returned when no server answered in time.
var ErrNotFound = errors.New("no media server found")

// Server is a discovered server.
type Server struct {
	Name string
	Host string
	Port int
}

func (s Server) String() string {
	return fmt.Sprintf("%s (%s:%d)", s.Name, s.Host, s.Port)
}

type browseFunc func(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error

// Finder browses for servers.
type Finder struct {
	browse browseFunc
	log    *slog.Logger
}

// NewFinder returns a Finder using a zeroconf resolver on all interfaces.
func NewFinder(logger *slog.Logger) (*Finder, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize resolver: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Finder{
		browse: resolver.Browse,
		log:    logger.With(slog.String("component", "discovery")),
	}, nil
}

// Find returns the first server announcing the CLI service within timeout.
func (f *Finder) Find(ctx context.Context, timeout time.Duration) (Server, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	if err := f.browse(ctx, ServiceCLI, domain, entries); err != nil {
		return Server{}, fmt.Errorf("failed to browse for %s: %w", ServiceCLI, err)
	}

	for {
		select {
		case <-ctx.Done():
			return Server{}, ErrNotFound
		case entry, ok := <-entries:
			if !ok {
				return Server{}, ErrNotFound
			}
			if entry == nil || len(entry.AddrIPv4) == 0 {
				continue
			}
			s := Server{
				Name: entry.Instance,
				Host: entry.AddrIPv4[0].String(),
				Port: entry.Port,
			}
			f.log.Info("Discovered media server", slog.String("name", s.Name),
				slog.String("host", s.Host), slog.Int("port", s.Port))
			return s, nil
		}
	}
}

// Find is a convenience for NewFinder(nil).Find.
func Find(ctx context.Context, timeout time.Duration) (Server, error) {
	f, err := NewFinder(nil)
	if err != nil {
		return Server{}, err
	}
	return f.Find(ctx, timeout)
}
