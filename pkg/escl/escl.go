// Package escl drives network scanners speaking the eSCL (AirScan) protocol.
package escl

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/brutella/dnssd"
	"github.com/sirupsen/logrus"
	"github.com/stapelberg/airscan"

	"github.com/denysvitali/scan2pdf/pkg/device"
	"github.com/denysvitali/scan2pdf/pkg/models"
)

var log = logrus.StandardLogger().WithField("package", "escl")

const (
	BackendName = "escl"

	ServiceType    = airscan.ServiceName
	ServiceTypeTLS = "_uscans._tcp.local."

	DefaultDiscoveryTimeout = 3 * time.Second
	DefaultSource           = "Feeder"

	defaultResourcePath = "eSCL"
	httpsPrefix         = "https://"
)

type lookupFunc func(ctx context.Context, service string, add dnssd.AddFunc, rmv dnssd.RmvFunc) error

type service struct {
	name string
	// addr is host[:port] as requests must reach it
	addr string
	rs   string
	tls  bool
	// entry is set for services found over mDNS
	entry *dnssd.BrowseEntry
}

type Backend struct {
	hosts            []string
	discoveryTimeout time.Duration
	source           string
	transport        http.RoundTripper
	lookup           lookupFunc

	mu       sync.Mutex
	services map[string]service
}

var _ device.Backend = (*Backend)(nil)

func New(opts ...Option) *Backend {
	b := &Backend{
		discoveryTimeout: DefaultDiscoveryTimeout,
		source:           DefaultSource,
		lookup:           dnssd.LookupType,
		services:         map[string]service{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Backend) Name() string {
	return BackendName
}

// List returns the statically configured hosts and whatever answers on
// mDNS within the discovery timeout.
func (b *Backend) List(ctx context.Context) ([]models.Scanner, error) {
	var scanners []models.Scanner
	seen := map[string]bool{}
	for _, h := range b.hosts {
		s := staticService(h)
		seen[s.addr] = true
		scanners = append(scanners, models.Scanner{Name: s.name, DeviceID: h})
	}

	if b.discoveryTimeout <= 0 {
		return scanners, nil
	}

	discovered, err := b.discover(ctx)
	if err != nil {
		if len(scanners) > 0 {
			log.Warnf("mDNS discovery failed: %v", err)
			return scanners, nil
		}
		return nil, err
	}
	for _, s := range discovered {
		id := deviceId(s)
		if seen[s.addr] || seen[id] {
			continue
		}
		seen[id] = true
		scanners = append(scanners, models.Scanner{Name: s.name, DeviceID: id})
	}
	return scanners, nil
}

func (b *Backend) discover(ctx context.Context) ([]service, error) {
	ctx, cancel := context.WithTimeout(ctx, b.discoveryTimeout)
	defer cancel()

	found := map[string]service{}
	var mu sync.Mutex
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, serviceType := range []string{ServiceType, ServiceTypeTLS} {
		wg.Add(1)
		go func(i int, serviceType string) {
			defer wg.Done()
			add := func(e dnssd.BrowseEntry) {
				s := serviceFromEntry(e, serviceType == ServiceTypeTLS)
				log.Debugf("discovered %s at %s (tls=%v)", s.name, s.addr, s.tls)
				mu.Lock()
				// prefer the TLS announcement of a scanner offering both
				if prev, ok := found[deviceId(s)]; !ok || !prev.tls {
					found[deviceId(s)] = s
				}
				mu.Unlock()
			}
			rmv := func(e dnssd.BrowseEntry) {}
			err := b.lookup(ctx, serviceType, add, rmv)
			if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
				errs[i] = err
			}
		}(i, serviceType)
	}
	wg.Wait()
	if errs[0] != nil && errs[1] != nil {
		return nil, fmt.Errorf("mDNS lookup: %w", errs[0])
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	var services []service
	for id, s := range found {
		b.services[id] = s
		services = append(services, s)
	}
	sort.Slice(services, func(i, j int) bool {
		return services[i].name < services[j].name
	})
	return services, nil
}

// deviceId is the host a discovered scanner is known by
func deviceId(s service) string {
	host, _, err := net.SplitHostPort(s.addr)
	if err != nil {
		return s.addr
	}
	return host
}

func serviceFromEntry(e dnssd.BrowseEntry, useTLS bool) service {
	name := e.Text["ty"]
	if name == "" {
		name = e.Name
	}
	host := strings.TrimSuffix(e.Host, ".")
	if host == "" && len(e.IPs) > 0 {
		host = e.IPs[0].String()
	}
	rs := strings.Trim(e.Text["rs"], "/")
	if rs == "" {
		rs = defaultResourcePath
	}
	entry := e
	return service{
		name:  name,
		addr:  net.JoinHostPort(host, strconv.Itoa(e.Port)),
		rs:    rs,
		tls:   useTLS,
		entry: &entry,
	}
}

// staticService parses a configured host, "host[:port]" or
// "https://host[:port]".
func staticService(h string) service {
	addr, useTLS := strings.CutPrefix(h, httpsPrefix)
	addr = strings.TrimSuffix(addr, "/")
	return service{name: addr, addr: addr, rs: defaultResourcePath, tls: useTLS}
}

func (b *Backend) serviceFor(id string) service {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.services[id]; ok {
		return s
	}
	return staticService(id)
}

// newClient returns an airscan client reaching s. airscan always speaks
// plain http to /eSCL, so requests go through an endpointTransport that
// applies the scheme, address and resource path of the service.
func (b *Backend) newClient(s service) *airscan.Client {
	var c *airscan.Client
	if s.entry != nil {
		// dials the announced host name and IPs in turn
		c = airscan.NewClientForService(s.entry)
	} else {
		c = airscan.NewClient(s.addr)
	}
	base := b.transport
	if base == nil {
		if hc, ok := c.HTTPClient.(*http.Client); ok && hc.Transport != nil {
			base = hc.Transport
		} else {
			base = http.DefaultTransport
		}
	}
	c.HTTPClient = &http.Client{
		Transport: &endpointTransport{
			base:   base,
			addr:   s.addr,
			rs:     s.rs,
			useTLS: s.tls,
		},
	}
	return c
}

func (b *Backend) Open(ctx context.Context, deviceId string) (device.Device, error) {
	if deviceId == "" {
		return nil, fmt.Errorf("%w: empty host", device.ErrDeviceNotFound)
	}
	s := b.serviceFor(deviceId)
	if s.addr == "" {
		return nil, fmt.Errorf("%w: %s", device.ErrDeviceNotFound, deviceId)
	}
	log.Debugf("opening %s at %s (tls=%v, rs=%s)", s.name, s.addr, s.tls, s.rs)
	return newDevice(s.addr, b.source, b.newClient(s), startAirscanJob), nil
}
