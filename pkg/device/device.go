package device

import (
	"context"
	"errors"
	"fmt"

	"github.com/denysvitali/scan2pdf/pkg/models"
)

var (
	// ErrFeederEmpty is returned by Transfer when there are no more sheets in the feeder
	ErrFeederEmpty = errors.New("document feeder is empty")
	// ErrDeviceNotFound is returned by Open when no scanner matches the id
	ErrDeviceNotFound = errors.New("scanner not found")
	// ErrUnsupportedPlatform is returned by backends that cannot run on this OS
	ErrUnsupportedPlatform = errors.New("backend not supported on this platform")
)

// Device is an opened scanner
type Device interface {
	// SelectFeeder switches the device to the automatic document feeder
	SelectFeeder() error
	// Transfer returns the encoded image of the next sheet
	Transfer(ctx context.Context) ([]byte, error)
	Close() error
}

type Backend interface {
	Name() string
	List(ctx context.Context) ([]models.Scanner, error)
	Open(ctx context.Context, deviceId string) (Device, error)
}

// TransientError wraps a transfer error the device reported as temporary.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}

// FeederStatus is implemented by devices that can report whether the feeder
// has paper loaded without starting a transfer.
type FeederStatus interface {
	FeederReady(ctx context.Context) (bool, error)
}
