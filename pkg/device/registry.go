package device

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/denysvitali/scan2pdf/pkg/models"
)

var log = logrus.StandardLogger().WithField("package", "device")

// Registry combines several backends. The device ids it hands out are
// prefixed with the backend name, e.g. "wia:{6BDD1FC6-...}\0000".
type Registry struct {
	backends []Backend
}

func NewRegistry(backends ...Backend) *Registry {
	return &Registry{backends: backends}
}

func (r *Registry) Add(b Backend) {
	r.backends = append(r.backends, b)
}

func (r *Registry) Backends() []Backend {
	return r.backends
}

// List returns the scanners of every backend. Backends that fail are skipped.
func (r *Registry) List(ctx context.Context) ([]models.Scanner, error) {
	var scanners []models.Scanner
	var lastErr error
	failed := 0
	for _, b := range r.backends {
		found, err := b.List(ctx)
		if err != nil {
			log.Warnf("unable to list %s scanners: %v", b.Name(), err)
			lastErr = err
			failed++
			continue
		}
		for _, s := range found {
			s.Backend = b.Name()
			s.DeviceID = JoinId(b.Name(), s.DeviceID)
			scanners = append(scanners, s)
		}
	}
	if failed > 0 && failed == len(r.backends) {
		return nil, fmt.Errorf("no backend available: %w", lastErr)
	}
	return scanners, nil
}

func (r *Registry) Open(ctx context.Context, deviceId string) (Device, error) {
	backendName, id, ok := SplitId(deviceId)
	if !ok {
		return nil, fmt.Errorf("%w: malformed id %q", ErrDeviceNotFound, deviceId)
	}
	for _, b := range r.backends {
		if b.Name() == backendName {
			log.Debugf("opening %q via %s", id, backendName)
			return b.Open(ctx, id)
		}
	}
	return nil, fmt.Errorf("%w: unknown backend %q", ErrDeviceNotFound, backendName)
}

func JoinId(backend string, id string) string {
	return backend + ":" + id
}

func SplitId(deviceId string) (backend string, id string, ok bool) {
	backend, id, ok = strings.Cut(deviceId, ":")
	if !ok || backend == "" || id == "" {
		return "", "", false
	}
	return backend, id, true
}
