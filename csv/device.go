package csv

import (
	"fmt"
	"os"

	"github.com/vtolstov/go-ioctl"
)

const (
	// PlatformDevice is the path to the CSV platform device on the host.
	PlatformDevice = "/dev/sev"
	// GuestDevice is the path to the CSV guest device.
	GuestDevice = "/dev/csv-guest"
)

// IOCTL calls.
var (
	// issueCommand is SEV_ISSUE_CMD, taking a struct sev_issue_cmd.
	issueCommand = ioctl.IOWR('S', 0x0, CommandSize)
	// requestReport is CSV_CMD_GET_REPORT, taking a struct {u64 address; s32 length}.
	requestReport = ioctl.IOWR('D', 0x1, 16)
)

// device is a handle to a CSV device.
type device interface {
	Fd() uintptr
}

// Device is the CSV platform device. It implements Dispatcher.
type Device struct {
	file *os.File
}

// OpenPlatform opens the CSV platform device.
func OpenPlatform() (*Device, error) {
	file, err := os.OpenFile(PlatformDevice, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", PlatformDevice, err)
	}
	return &Device{file: file}, nil
}

// OpenGuest opens the CSV guest device.
func OpenGuest() (*os.File, error) {
	file, err := os.OpenFile(GuestDevice, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", GuestDevice, err)
	}
	return file, nil
}

// Fd returns the file descriptor of the device.
func (d *Device) Fd() uintptr {
	return d.file.Fd()
}

// Close closes the device.
func (d *Device) Close() error {
	return d.file.Close()
}
