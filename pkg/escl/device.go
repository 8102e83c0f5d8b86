package escl

import (
	"context"
	"fmt"
	"io"

	"github.com/stapelberg/airscan"
	"github.com/stapelberg/airscan/preset"

	"github.com/denysvitali/scan2pdf/pkg/device"
)

const (
	AdfLoaded = "ScannerAdfLoaded"
	AdfEmpty  = "ScannerAdfEmpty"
	AdfJam    = "ScannerAdfJam"

	stateProcessing = "Processing"
)

// documentsScanner iterates over the pages of a running eSCL job
type documentsScanner interface {
	ScanPage() bool
	CurrentPage() io.Reader
	Err() error
}

type jobStarter func(c *airscan.Client, source string) (documentsScanner, error)

func startAirscanJob(c *airscan.Client, source string) (documentsScanner, error) {
	settings := preset.GrayscaleA4ADF()
	settings.Duplex = false
	settings.ColorMode = "RGB24"
	settings.DocumentFormat = "image/jpeg"
	settings.InputSource = source
	return c.Scan(settings)
}

type Device struct {
	addr     string
	source   string
	client   *airscan.Client
	startJob jobStarter
	job      documentsScanner
}

var _ device.Device = (*Device)(nil)
var _ device.FeederStatus = (*Device)(nil)

func newDevice(addr string, source string, client *airscan.Client, start jobStarter) *Device {
	return &Device{
		addr:     addr,
		source:   source,
		client:   client,
		startJob: start,
	}
}

// SelectFeeder is satisfied by the input source of the scan job
func (d *Device) SelectFeeder() error {
	if d.source != DefaultSource {
		log.Warnf("%s: input source is %q, not the feeder", d.addr, d.source)
	}
	return nil
}

func (d *Device) FeederReady(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	st, err := d.client.ScannerStatus()
	if err != nil {
		return false, err
	}
	return st.ADFState == AdfLoaded, nil
}

func (d *Device) Transfer(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.job == nil {
		if err := d.checkStatus(); err != nil {
			return nil, err
		}
		log.Debugf("%s: creating scan job", d.addr)
		job, err := d.startJob(d.client, d.source)
		if err != nil {
			return nil, fmt.Errorf("unable to create scan job: %w", err)
		}
		d.job = job
	}

	if !d.job.ScanPage() {
		if err := d.job.Err(); err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		return nil, device.ErrFeederEmpty
	}
	b, err := io.ReadAll(d.job.CurrentPage())
	if err != nil {
		return nil, fmt.Errorf("unable to read page: %w", err)
	}
	return b, nil
}

// checkStatus refuses to start a job when the scanner already says the
// feeder is empty. A failing status request is left to the job creation.
func (d *Device) checkStatus() error {
	if d.source != DefaultSource {
		return nil
	}
	st, err := d.client.ScannerStatus()
	if err != nil {
		log.Debugf("%s: unable to get scanner status: %v", d.addr, err)
		return nil
	}
	switch st.ADFState {
	case AdfEmpty:
		return device.ErrFeederEmpty
	case AdfJam:
		return fmt.Errorf("%s: feeder jammed", d.addr)
	}
	if st.State == stateProcessing {
		return device.Transient(fmt.Errorf("%s: scanner busy", d.addr))
	}
	return nil
}

func (d *Device) Close() error {
	if c, ok := d.job.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
