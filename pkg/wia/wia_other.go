//go:build !windows

package wia

import (
	"context"

	"github.com/denysvitali/scan2pdf/pkg/device"
	"github.com/denysvitali/scan2pdf/pkg/models"
)

func (b *Backend) List(ctx context.Context) ([]models.Scanner, error) {
	return nil, device.ErrUnsupportedPlatform
}

func (b *Backend) Open(ctx context.Context, deviceId string) (device.Device, error) {
	return nil, device.ErrUnsupportedPlatform
}
