// Package acquire pulls pages off a scanner's document feeder until it
// runs dry.
package acquire

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/denysvitali/scan2pdf/pkg/device"
	"github.com/denysvitali/scan2pdf/pkg/imaging"
	"github.com/denysvitali/scan2pdf/pkg/models"
	"github.com/denysvitali/scan2pdf/pkg/storage/model"
)

var log = logrus.StandardLogger().WithField("package", "acquire")

var ErrNoDeviceSelected = errors.New("no scanner selected")

const DefaultWaitTime = 5 * time.Second

// AbortedError is returned, together with the pages scanned so far, when
// the batch stopped for a reason other than an empty feeder.
type AbortedError struct {
	Pages int
	Err   error
}

func (e *AbortedError) Error() string {
	return fmt.Sprintf("scan aborted after %d pages: %v", e.Pages, e.Err)
}

func (e *AbortedError) Unwrap() error {
	return e.Err
}

type Opener interface {
	Open(ctx context.Context, deviceId string) (device.Device, error)
}

type Config struct {
	// WaitTime is slept after every transfer so the device status settles
	WaitTime time.Duration
	// Retries is how many times in a row a transient transfer error is retried
	Retries int
	// MaxPages stops the batch after that many pages, 0 means no limit
	MaxPages int
	// CheckFeeder asks the device whether paper is loaded before each transfer
	CheckFeeder bool
	// Archive, when set, receives a copy of every page
	Archive model.Storer
}

type Acquirer struct {
	opener Opener
	config Config
	sleep  func(ctx context.Context, d time.Duration) error
}

func New(opener Opener, config Config) *Acquirer {
	if config.WaitTime < 0 {
		config.WaitTime = 0
	}
	if config.Retries < 0 {
		config.Retries = 0
	}
	return &Acquirer{
		opener: opener,
		config: config,
		sleep:  sleepContext,
	}
}

// Acquire opens the device, switches it to the feeder and transfers pages
// until the feeder is empty. On any other failure the pages scanned so far
// are returned along with an *AbortedError.
func (a *Acquirer) Acquire(ctx context.Context, deviceId string) (*models.Batch, error) {
	if deviceId == "" {
		return nil, ErrNoDeviceSelected
	}
	dev, err := a.opener.Open(ctx, deviceId)
	if err != nil {
		return nil, fmt.Errorf("unable to open scanner: %w", err)
	}
	defer func() {
		if err := dev.Close(); err != nil {
			log.Warnf("unable to close scanner: %v", err)
		}
	}()

	if err := dev.SelectFeeder(); err != nil {
		return nil, fmt.Errorf("unable to select feeder: %w", err)
	}

	batch := models.NewBatch(uuid.NewString())
	log.Debugf("starting scan %s on %s", batch.ScanId, deviceId)

	failures := 0
	for {
		if a.limitReached(batch) {
			return batch, nil
		}
		if a.config.CheckFeeder && !a.feederReady(ctx, dev) {
			log.Infof("The document feeder is empty. No more pages to scan.")
			return batch, nil
		}

		raw, err := dev.Transfer(ctx)
		if err != nil {
			switch {
			case errors.Is(err, device.ErrFeederEmpty):
				log.Debugf("transfer: %v", err)
				log.Infof("The document feeder is empty. No more pages to scan.")
				return batch, nil
			case ctx.Err() != nil:
				return batch, &AbortedError{Pages: batch.Len(), Err: ctx.Err()}
			case device.IsTransient(err) && failures < a.config.Retries:
				failures++
				log.Warnf("transfer failed (attempt %d of %d): %v", failures, a.config.Retries+1, err)
				if err := a.sleep(ctx, a.config.WaitTime); err != nil {
					return batch, &AbortedError{Pages: batch.Len(), Err: err}
				}
				continue
			default:
				log.Errorf("unexpected scanner error: %v. Continuing with %d scanned pages", err, batch.Len())
				return batch, &AbortedError{Pages: batch.Len(), Err: err}
			}
		}
		failures = 0

		img, err := imaging.Normalize(raw)
		if err != nil {
			log.Errorf("unable to decode page %d: %v", batch.Len()+1, err)
			return batch, &AbortedError{Pages: batch.Len(), Err: err}
		}
		page := batch.Append(models.ScannedPage{
			Reader:   bytes.NewReader(img.Data),
			ScanTime: time.Now(),
			Width:    img.Width,
			Height:   img.Height,
			MimeType: img.MimeType,
		})
		log.Infof("scanned page %d (%dx%d)", page.SequenceId, page.Width, page.Height)

		if a.config.Archive != nil {
			if err := a.config.Archive.Store(page); err != nil {
				log.Warnf("unable to archive page %s: %v", page.Id(), err)
			}
		}
		if a.limitReached(batch) {
			return batch, nil
		}

		if err := a.sleep(ctx, a.config.WaitTime); err != nil {
			return batch, &AbortedError{Pages: batch.Len(), Err: err}
		}
	}
}

func (a *Acquirer) limitReached(batch *models.Batch) bool {
	if a.config.MaxPages > 0 && batch.Len() >= a.config.MaxPages {
		log.Infof("reached the limit of %d pages", a.config.MaxPages)
		return true
	}
	return false
}

func (a *Acquirer) feederReady(ctx context.Context, dev device.Device) bool {
	fs, ok := dev.(device.FeederStatus)
	if !ok {
		return true
	}
	ready, err := fs.FeederReady(ctx)
	if err != nil {
		log.Warnf("unable to query feeder status: %v", err)
		return true
	}
	return ready
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
