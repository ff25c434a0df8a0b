package csv

import "fmt"

// FirmwareError is returned if the firmware or the kernel rejected a command.
// Code is the status reported by the firmware, passed through unchanged.
type FirmwareError struct {
	Code uint32
	Err  error
}

func (e *FirmwareError) Error() string {
	msg := fmt.Sprintf("firmware error %#x (%s)", e.Code, statusName(e.Code))
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FirmwareError) Unwrap() error {
	return e.Err
}

// statusName returns the name of a firmware status code for display.
func statusName(code uint32) string {
	names := [...]string{
		"SUCCESS",
		"INVALID_PLATFORM_STATE",
		"INVALID_GUEST_STATE",
		"INVALID_CONFIG",
		"INVALID_LENGTH",
		"ALREADY_OWNED",
		"INVALID_CERTIFICATE",
		"POLICY_FAILURE",
		"INACTIVE",
		"INVALID_ADDRESS",
		"BAD_SIGNATURE",
		"BAD_MEASUREMENT",
		"ASID_OWNED",
		"INVALID_ASID",
		"WBINVD_REQUIRED",
		"DFFLUSH_REQUIRED",
		"INVALID_GUEST",
		"INVALID_COMMAND",
		"ACTIVE",
		"HWSEV_RET_PLATFORM",
		"HWSEV_RET_UNSAFE",
		"UNSUPPORTED",
		"INVALID_PARAM",
		"RESOURCE_LIMIT",
		"SECURE_DATA_INVALID",
	}
	if int(code) < len(names) {
		return names[code]
	}
	return "unknown"
}
