//go:build windows

package wia

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/go-ole/go-ole"
	"github.com/go-ole/go-ole/oleutil"

	"github.com/denysvitali/scan2pdf/pkg/device"
	"github.com/denysvitali/scan2pdf/pkg/models"
)

var errStopIteration = errors.New("stop iteration")

// apartment runs every COM call on one locked OS thread.
type apartment struct {
	calls chan func()
}

func newApartment() (*apartment, error) {
	a := &apartment{calls: make(chan func())}
	initErr := make(chan error, 1)
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		if err := ole.CoInitializeEx(0, ole.COINIT_APARTMENTTHREADED); err != nil {
			var oleErr *ole.OleError
			// S_FALSE: already initialized on this thread
			if !errors.As(err, &oleErr) || oleErr.Code() != 1 {
				initErr <- fmt.Errorf("CoInitializeEx: %w", err)
				return
			}
		}
		defer ole.CoUninitialize()
		initErr <- nil
		for f := range a.calls {
			f()
		}
	}()
	if err := <-initErr; err != nil {
		return nil, err
	}
	return a, nil
}

func (a *apartment) do(f func() error) error {
	res := make(chan error, 1)
	a.calls <- func() { res <- f() }
	return <-res
}

func (a *apartment) close() {
	close(a.calls)
}

func hresult(err error) uint32 {
	var oleErr *ole.OleError
	if !errors.As(err, &oleErr) {
		return 0
	}
	code := uint32(oleErr.Code())
	switch sub := oleErr.SubError().(type) {
	case ole.EXCEPINFO:
		if s := sub.SCODE(); s != 0 {
			code = s
		}
	case *ole.EXCEPINFO:
		if s := sub.SCODE(); s != 0 {
			code = s
		}
	}
	return code
}

func getDispatch(disp *ole.IDispatch, name string, params ...interface{}) (*ole.IDispatch, error) {
	v, err := oleutil.GetProperty(disp, name, params...)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", name, err)
	}
	d := v.ToIDispatch()
	if d == nil {
		return nil, fmt.Errorf("get %s: not an object", name)
	}
	return d, nil
}

func getString(disp *ole.IDispatch, name string) (string, error) {
	v, err := oleutil.GetProperty(disp, name)
	if err != nil {
		return "", fmt.Errorf("get %s: %w", name, err)
	}
	defer v.Clear()
	return v.ToString(), nil
}

func getInt(disp *ole.IDispatch, name string) (int64, error) {
	v, err := oleutil.GetProperty(disp, name)
	if err != nil {
		return 0, fmt.Errorf("get %s: %w", name, err)
	}
	defer v.Clear()
	switch val := v.Value().(type) {
	case int8:
		return int64(val), nil
	case int16:
		return int64(val), nil
	case int32:
		return int64(val), nil
	case int64:
		return val, nil
	case uint8:
		return int64(val), nil
	case uint16:
		return int64(val), nil
	case uint32:
		return int64(val), nil
	case uint64:
		return int64(val), nil
	case int:
		return int64(val), nil
	}
	return v.Val, nil
}

// findProperty walks a WIA Properties collection and returns the first
// property accepted by match. The caller releases the returned property.
func findProperty(props *ole.IDispatch, match func(id int64, name string) bool) (*ole.IDispatch, error) {
	var found *ole.IDispatch
	err := oleutil.ForEach(props, func(v *ole.VARIANT) error {
		prop := v.ToIDispatch()
		if prop == nil {
			v.Clear()
			return nil
		}
		id, err := getInt(prop, "PropertyID")
		if err != nil {
			prop.Release()
			return err
		}
		name, err := getString(prop, "Name")
		if err != nil {
			prop.Release()
			return err
		}
		if match(id, name) {
			found = prop
			return errStopIteration
		}
		prop.Release()
		return nil
	})
	if err != nil && !errors.Is(err, errStopIteration) {
		return nil, err
	}
	return found, nil
}

func propertyById(id int64) func(int64, string) bool {
	return func(pid int64, _ string) bool { return pid == id }
}

func propertyByName(name string) func(int64, string) bool {
	return func(_ int64, n string) bool { return n == name }
}

func newDeviceManager() (*ole.IDispatch, error) {
	unknown, err := oleutil.CreateObject("WIA.DeviceManager")
	if err != nil {
		return nil, fmt.Errorf("create WIA.DeviceManager: %w", err)
	}
	defer unknown.Release()
	manager, err := unknown.QueryInterface(ole.IID_IDispatch)
	if err != nil {
		return nil, fmt.Errorf("query IDispatch: %w", err)
	}
	return manager, nil
}

// eachScanner calls f for every scanner DeviceInfo. f returns true to keep
// the DeviceInfo alive; it then owns the reference.
func eachScanner(f func(info *ole.IDispatch) (bool, error)) error {
	manager, err := newDeviceManager()
	if err != nil {
		return err
	}
	defer manager.Release()

	infos, err := getDispatch(manager, "DeviceInfos")
	if err != nil {
		return err
	}
	defer infos.Release()

	err = oleutil.ForEach(infos, func(v *ole.VARIANT) error {
		info := v.ToIDispatch()
		if info == nil {
			v.Clear()
			return nil
		}
		devType, err := getInt(info, "Type")
		if err != nil {
			info.Release()
			return err
		}
		if devType != scannerDeviceType {
			info.Release()
			return nil
		}
		keep, err := f(info)
		if !keep {
			info.Release()
		}
		return err
	})
	if errors.Is(err, errStopIteration) {
		return nil
	}
	return err
}

func scannerName(info *ole.IDispatch) (string, error) {
	props, err := getDispatch(info, "Properties")
	if err != nil {
		return "", err
	}
	defer props.Release()
	prop, err := findProperty(props, propertyByName("Name"))
	if err != nil {
		return "", err
	}
	if prop == nil {
		return "", nil
	}
	defer prop.Release()
	return getString(prop, "Value")
}

func (b *Backend) List(ctx context.Context) ([]models.Scanner, error) {
	a, err := newApartment()
	if err != nil {
		return nil, err
	}
	defer a.close()

	var scanners []models.Scanner
	err = a.do(func() error {
		return eachScanner(func(info *ole.IDispatch) (bool, error) {
			if err := ctx.Err(); err != nil {
				return false, err
			}
			id, err := getString(info, "DeviceID")
			if err != nil {
				return false, err
			}
			name, err := scannerName(info)
			if err != nil {
				log.Warnf("unable to read name of %s: %v", id, err)
			}
			if name == "" {
				name = id
			}
			scanners = append(scanners, models.Scanner{Name: name, DeviceID: id})
			return false, nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("enumerate devices: %w", err)
	}
	log.Debugf("found %d WIA scanners", len(scanners))
	return scanners, nil
}

func (b *Backend) Open(ctx context.Context, deviceId string) (device.Device, error) {
	a, err := newApartment()
	if err != nil {
		return nil, err
	}

	d := &Device{apt: a, id: deviceId}
	err = a.do(func() error {
		var info *ole.IDispatch
		err := eachScanner(func(candidate *ole.IDispatch) (bool, error) {
			id, err := getString(candidate, "DeviceID")
			if err != nil {
				return false, err
			}
			if id != deviceId {
				return false, nil
			}
			info = candidate
			return true, errStopIteration
		})
		if err != nil {
			return err
		}
		if info == nil {
			return fmt.Errorf("%w: %s", device.ErrDeviceNotFound, deviceId)
		}
		defer info.Release()

		v, err := oleutil.CallMethod(info, "Connect")
		if err != nil {
			return fmt.Errorf("connect: %w", err)
		}
		d.dev = v.ToIDispatch()
		if d.dev == nil {
			return fmt.Errorf("connect: no device returned")
		}
		return nil
	})
	if err != nil {
		a.close()
		return nil, err
	}
	return d, nil
}

type Device struct {
	apt *apartment
	id  string
	dev *ole.IDispatch
}

var _ device.Device = (*Device)(nil)
var _ device.FeederStatus = (*Device)(nil)

func (d *Device) SelectFeeder() error {
	return d.apt.do(func() error {
		props, err := getDispatch(d.dev, "Properties")
		if err != nil {
			return err
		}
		defer props.Release()
		prop, err := findProperty(props, propertyById(PropDocumentHandlingSelect))
		if err != nil {
			return err
		}
		if prop == nil {
			log.Warnf("%s has no document handling select property, assuming feeder", d.id)
			return nil
		}
		defer prop.Release()
		if _, err := oleutil.PutProperty(prop, "Value", int32(Feeder)); err != nil {
			return fmt.Errorf("select feeder: %w", err)
		}
		log.Debugf("%s: document handling set to feeder", d.id)
		return nil
	})
}

func (d *Device) FeederReady(ctx context.Context) (bool, error) {
	var ready bool
	err := d.apt.do(func() error {
		props, err := getDispatch(d.dev, "Properties")
		if err != nil {
			return err
		}
		defer props.Release()

		read := func(id int64) (int64, bool, error) {
			prop, err := findProperty(props, propertyById(id))
			if err != nil || prop == nil {
				return 0, false, err
			}
			defer prop.Release()
			v, err := getInt(prop, "Value")
			return v, err == nil, err
		}
		sel, hasSel, err := read(PropDocumentHandlingSelect)
		if err != nil {
			return err
		}
		status, hasStatus, err := read(PropDocumentHandlingStatus)
		if err != nil {
			return err
		}
		ready = feederReady(sel, status, hasSel, hasStatus)
		return nil
	})
	return ready, err
}

func (d *Device) Transfer(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var data []byte
	err := d.apt.do(func() error {
		items, err := getDispatch(d.dev, "Items")
		if err != nil {
			return err
		}
		defer items.Release()

		// Items[1] is the scanning item of the device
		item, err := getDispatch(items, "Item", 1)
		if err != nil {
			return err
		}
		defer item.Release()

		v, err := oleutil.CallMethod(item, "Transfer", FormatJPEG)
		if err != nil {
			return classifyTransferError(hresult(err), err)
		}
		imageFile := v.ToIDispatch()
		if imageFile == nil {
			return fmt.Errorf("transfer returned no image")
		}
		defer imageFile.Release()

		fileData, err := getDispatch(imageFile, "FileData")
		if err != nil {
			return err
		}
		defer fileData.Release()

		bin, err := oleutil.GetProperty(fileData, "BinaryData")
		if err != nil {
			return fmt.Errorf("get BinaryData: %w", err)
		}
		defer bin.Clear()
		arr := bin.ToArray()
		if arr == nil {
			return fmt.Errorf("BinaryData is not an array")
		}
		data = arr.ToByteArray()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (d *Device) Close() error {
	if d.dev != nil {
		_ = d.apt.do(func() error {
			d.dev.Release()
			return nil
		})
		d.dev = nil
	}
	d.apt.close()
	return nil
}
