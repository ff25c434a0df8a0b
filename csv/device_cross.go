//go:build !linux

package csv

import (
	"errors"

	"github.com/edgelesssys/go-csv-qpl/verification/types"
)

// Dispatch issues a firmware command on the platform device.
func (d *Device) Dispatch(_ Opcode, _ uint64) (uint32, error) {
	return 0, errors.New("issuing firmware commands is only supported on linux")
}

// GetReport requests an attestation report from the guest device.
func GetReport(_ device, _ types.ReportRequest) (types.ReportResponse, error) {
	return types.ReportResponse{}, errors.New("requesting attestation reports is only supported on linux")
}
