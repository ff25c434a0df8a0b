// Package csv provides typed access to the Hygon CSV firmware through the Linux kernel.
//
// Every firmware command is bound to exactly one payload type. A Command is built from a
// payload with From or FromMut, which take the opcode from the payload's type, so a payload
// can never be sent with the opcode of another command.
//
//	cmd := csv.FromMut(&csv.PlatformStatus{})
//	if err := csv.Issue(dev, cmd); err != nil {
//		...
//	}
//	status := cmd.Payload()
package csv

import "fmt"

// Opcode is the numeric id of a firmware command.
// The values are defined in the Linux kernel: include/uapi/linux/psp-sev.h.
type Opcode uint32

// Firmware commands.
const (
	OpPlatformReset  Opcode = 0x0
	OpPlatformStatus Opcode = 0x1
	OpPEKGen         Opcode = 0x2
	OpPEKCSR         Opcode = 0x3
	OpPDHGen         Opcode = 0x4
	OpPDHCertExport  Opcode = 0x5
	OpPEKCertImport  Opcode = 0x6
	// OpGetID is GET_ID2. The deprecated GET_ID (0x7) is not supported.
	OpGetID Opcode = 0x8
)

func (o Opcode) String() string {
	switch o {
	case OpPlatformReset:
		return "PLATFORM_RESET"
	case OpPlatformStatus:
		return "PLATFORM_STATUS"
	case OpPEKGen:
		return "PEK_GEN"
	case OpPEKCSR:
		return "PEK_CSR"
	case OpPDHGen:
		return "PDH_GEN"
	case OpPDHCertExport:
		return "PDH_CERT_EXPORT"
	case OpPEKCertImport:
		return "PEK_CERT_IMPORT"
	case OpGetID:
		return "GET_ID2"
	default:
		return fmt.Sprintf("Opcode(%#x)", uint32(o))
	}
}
