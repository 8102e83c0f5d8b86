// Package wia talks to scanners through Windows Image Acquisition.
package wia

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/denysvitali/scan2pdf/pkg/device"
)

var log = logrus.StandardLogger().WithField("package", "wia")

const BackendName = "wia"

// FormatJPEG is the WIA format identifier requested on transfer
const FormatJPEG = "{B96B3CAE-0728-11D3-9D7B-0000F81EF32E}"

const (
	PropDocumentHandlingStatus = 3087
	PropDocumentHandlingSelect = 3088

	// Feeder is the WIA_DPS_DOCUMENT_HANDLING_SELECT value for the ADF
	Feeder = 0x001
	// FeedReady is the WIA_DPS_DOCUMENT_HANDLING_STATUS flag for loaded paper
	FeedReady = 0x001

	scannerDeviceType = 1
)

// HRESULTs of the WIA error facility
const (
	ErrorGeneral             uint32 = 0x80210001
	ErrorPaperJam            uint32 = 0x80210002
	ErrorPaperEmpty          uint32 = 0x80210003
	ErrorPaperProblem        uint32 = 0x80210004
	ErrorOffline             uint32 = 0x80210005
	ErrorBusy                uint32 = 0x80210006
	ErrorWarmingUp           uint32 = 0x80210007
	ErrorUserIntervention    uint32 = 0x80210008
	ErrorDeviceCommunication uint32 = 0x8021000A
	ErrorCoverOpen           uint32 = 0x80210016
	ErrorLampOff             uint32 = 0x80210017

	// Some drivers surface an empty feeder through this code instead.
	ErrorFeederEmptyAlt uint32 = 0x8020F00A
)

var errorNames = map[uint32]string{
	ErrorGeneral:             "general device error",
	ErrorPaperJam:            "paper jam",
	ErrorPaperEmpty:          "paper empty",
	ErrorPaperProblem:        "paper problem",
	ErrorOffline:             "device offline",
	ErrorBusy:                "device busy",
	ErrorWarmingUp:           "device warming up",
	ErrorUserIntervention:    "user intervention required",
	ErrorDeviceCommunication: "device communication error",
	ErrorCoverOpen:           "cover open",
	ErrorLampOff:             "lamp off",
	ErrorFeederEmptyAlt:      "feeder empty",
}

// HResultError is a failed WIA call
type HResultError struct {
	Code uint32
	Err  error
}

func (e *HResultError) Error() string {
	name, ok := errorNames[e.Code]
	if !ok {
		name = "unknown error"
	}
	if e.Err == nil {
		return fmt.Sprintf("wia: %s (0x%08X)", name, e.Code)
	}
	return fmt.Sprintf("wia: %s (0x%08X): %v", name, e.Code, e.Err)
}

func (e *HResultError) Unwrap() error {
	return e.Err
}

// classifyTransferError maps the HRESULT of a failed transfer to the
// device package errors.
func classifyTransferError(code uint32, err error) error {
	switch code {
	case ErrorPaperEmpty, ErrorFeederEmptyAlt:
		return fmt.Errorf("%w: %v", device.ErrFeederEmpty, &HResultError{Code: code, Err: err})
	case ErrorBusy, ErrorWarmingUp:
		return device.Transient(&HResultError{Code: code, Err: err})
	}
	return &HResultError{Code: code, Err: err}
}

func feederReady(selectValue int64, statusValue int64, hasSelect bool, hasStatus bool) bool {
	if hasSelect && selectValue&Feeder != Feeder {
		return false
	}
	if !hasStatus {
		return false
	}
	return statusValue&FeedReady == FeedReady
}

type Backend struct{}

func New() *Backend {
	return &Backend{}
}

func (b *Backend) Name() string {
	return BackendName
}

var _ device.Backend = (*Backend)(nil)
