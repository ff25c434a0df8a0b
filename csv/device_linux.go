//go:build linux

package csv

import (
	"encoding/binary"
	"fmt"
	"runtime"
	"unsafe"

	"github.com/edgelesssys/go-csv-qpl/verification/types"
	"golang.org/x/sys/unix"
)

// Dispatch issues a firmware command on the platform device.
func (d *Device) Dispatch(code Opcode, data uint64) (uint32, error) {
	cmd := packCommand(code, data, 0)
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, d.Fd(), issueCommand, uintptr(unsafe.Pointer(&cmd))); errno != 0 {
		return binary.LittleEndian.Uint32(cmd[12:16]), fmt.Errorf("issuing %s: %w", code, errno)
	}
	return binary.LittleEndian.Uint32(cmd[12:16]), nil
}

// GetReport requests an attestation report from the guest device.
// The request is placed at the start of a page, which the firmware overwrites with the response.
func GetReport(csv device, req types.ReportRequest) (types.ReportResponse, error) {
	page := new([types.PageSize]byte)
	raw := req.Marshal()
	copy(page[:], raw[:])

	reportRequest := newReportRequest(page)
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, csv.Fd(), requestReport, uintptr(unsafe.Pointer(&reportRequest)))
	runtime.KeepAlive(page)
	if errno != 0 {
		return types.ReportResponse{}, fmt.Errorf("requesting attestation report: %w", errno)
	}

	rsp, err := types.ParseReportResponse(page[:])
	if err != nil {
		return types.ReportResponse{}, fmt.Errorf("parsing report response: %w", err)
	}
	return rsp, nil
}

// reportRequest is struct csv_report_req of the guest driver.
type reportRequest struct {
	address uint64
	length  int32
}

// newReportRequest points the driver at page. page must stay reachable until the ioctl returned.
func newReportRequest(page *[types.PageSize]byte) reportRequest {
	return reportRequest{
		address: uint64(uintptr(unsafe.Pointer(page))),
		length:  types.PageSize,
	}
}
