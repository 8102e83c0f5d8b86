package escl

import (
	"net/http"
	"time"
)

type Option func(*Backend)

// WithHosts adds scanners that are not announced over mDNS, as
// "host[:port]" or "https://host[:port]"
func WithHosts(hosts ...string) Option {
	return func(b *Backend) {
		for _, h := range hosts {
			if h != "" {
				b.hosts = append(b.hosts, h)
			}
		}
	}
}

// WithDiscoveryTimeout sets how long List waits for mDNS answers. Zero
// disables discovery.
func WithDiscoveryTimeout(d time.Duration) Option {
	return func(b *Backend) {
		b.discoveryTimeout = d
	}
}

// WithSource sets the eSCL input source, "Feeder" or "Platen"
func WithSource(source string) Option {
	return func(b *Backend) {
		if source != "" {
			b.source = source
		}
	}
}

// WithTransport sets the transport of every request sent to a scanner,
// e.g. one trusting the CA of HTTPS scanners
func WithTransport(rt http.RoundTripper) Option {
	return func(b *Backend) {
		b.transport = rt
	}
}
