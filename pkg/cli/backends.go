package cli

import (
	"fmt"
	"time"

	"github.com/denysvitali/scan2pdf/pkg/caroundtripper"
	"github.com/denysvitali/scan2pdf/pkg/device"
	"github.com/denysvitali/scan2pdf/pkg/escl"
	"github.com/denysvitali/scan2pdf/pkg/storage/b2"
	"github.com/denysvitali/scan2pdf/pkg/wia"
)

// ScannerArgs are the flags shared by the commands that talk to scanners
type ScannerArgs struct {
	DisableWia       bool          `arg:"--disable-wia,env:DISABLE_WIA" help:"Do not enumerate Windows Image Acquisition scanners"`
	DisableEscl      bool          `arg:"--disable-escl,env:DISABLE_ESCL" help:"Do not enumerate network (eSCL) scanners"`
	EsclHosts        []string      `arg:"--escl-host,env:ESCL_HOSTS" help:"eSCL scanner host[:port], or https://host[:port] for TLS, repeatable"`
	EsclCaPath       string        `arg:"--escl-ca-path,env:ESCL_CA_PATH" help:"PEM file with the CA of HTTPS scanners"`
	DiscoveryTimeout time.Duration `arg:"--discovery-timeout,env:DISCOVERY_TIMEOUT" default:"2s" help:"How long to wait for mDNS answers, 0 disables discovery"`
	Source           string        `arg:"--source,env:SOURCE" default:"Feeder" help:"eSCL input source, Feeder or Platen"`
}

// StorageArgs select an optional storage backend
type StorageArgs struct {
	StorageType  string `arg:"--storage-type,env:STORAGE_TYPE" help:"fs or b2"`
	FsPath       string `arg:"--fs-path,env:FS_PATH" help:"Path to the directory where to store the files - when using the fs storage"`
	B2AccountId  string `arg:"--b2-account-id,env:B2_ACCOUNT" help:"Account for B2 storage - when using the b2 storage"`
	B2AccountKey string `arg:"--b2-account-key,env:B2_KEY" help:"Key for B2 storage - when using the b2 storage"`
	B2BucketName string `arg:"--b2-bucket-name,env:B2_BUCKET_NAME" help:"Bucket Name for B2 storage - when using the b2 storage"`
	B2Passphrase string `arg:"--b2-passphrase,env:B2_PASSPHRASE" help:"Passphrase for B2 storage (optional) - when using the b2 storage"`
}

func (a StorageArgs) B2Config() b2.Config {
	return b2.Config{
		Account:    a.B2AccountId,
		BucketName: a.B2BucketName,
		Key:        a.B2AccountKey,
		Passphrase: a.B2Passphrase,
	}
}

// NewRegistry builds the device registry described by args
func NewRegistry(args ScannerArgs) (*device.Registry, error) {
	r := device.NewRegistry()
	if !args.DisableWia {
		r.Add(wia.New())
	}
	if !args.DisableEscl {
		opts := []escl.Option{
			escl.WithHosts(args.EsclHosts...),
			escl.WithDiscoveryTimeout(args.DiscoveryTimeout),
			escl.WithSource(args.Source),
		}
		if args.EsclCaPath != "" {
			rt, err := caroundtripper.New(args.EsclCaPath)
			if err != nil {
				return nil, fmt.Errorf("unable to load eSCL CA: %w", err)
			}
			opts = append(opts, escl.WithTransport(rt))
		}
		r.Add(escl.New(opts...))
	}
	if len(r.Backends()) == 0 {
		return nil, fmt.Errorf("all scanner backends are disabled")
	}
	return r, nil
}
