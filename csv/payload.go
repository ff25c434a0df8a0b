package csv

import (
	"encoding/binary"
	"unsafe"
)

// Payload sizes of the packed kernel structures.
const (
	platformStatusSize = 12
	bufferSize         = 12
	bufferPairSize     = 2 * bufferSize
)

// PlatformReset resets the platform's persistent state. It has no payload.
type PlatformReset struct{}

// Opcode returns OpPlatformReset.
func (PlatformReset) Opcode() Opcode { return OpPlatformReset }

func (*PlatformReset) marshal() []byte  { return nil }
func (*PlatformReset) unmarshal([]byte) {}

// Platform states.
const (
	StateUninitialized uint8 = 0
	StateInitialized   uint8 = 1
	StateWorking       uint8 = 2
)

// PlatformStatus is the status report of the firmware (struct sev_user_data_status).
type PlatformStatus struct {
	APIMajor   uint8
	APIMinor   uint8
	State      uint8
	Flags      uint32
	Build      uint8
	GuestCount uint32
}

// Opcode returns OpPlatformStatus.
func (PlatformStatus) Opcode() Opcode { return OpPlatformStatus }

// Owned reports whether the platform is owned by an external entity.
func (s PlatformStatus) Owned() bool {
	return s.Flags&0x1 != 0
}

func (s *PlatformStatus) marshal() []byte {
	raw := make([]byte, platformStatusSize)
	raw[0] = s.APIMajor
	raw[1] = s.APIMinor
	raw[2] = s.State
	binary.LittleEndian.PutUint32(raw[3:7], s.Flags)
	raw[7] = s.Build
	binary.LittleEndian.PutUint32(raw[8:12], s.GuestCount)
	return raw
}

func (s *PlatformStatus) unmarshal(raw []byte) {
	s.APIMajor = raw[0]
	s.APIMinor = raw[1]
	s.State = raw[2]
	s.Flags = binary.LittleEndian.Uint32(raw[3:7])
	s.Build = raw[7]
	s.GuestCount = binary.LittleEndian.Uint32(raw[8:12])
}

// PEKGen generates a new Platform Endorsement Key. It has no payload.
type PEKGen struct{}

// Opcode returns OpPEKGen.
func (PEKGen) Opcode() Opcode { return OpPEKGen }

func (*PEKGen) marshal() []byte  { return nil }
func (*PEKGen) unmarshal([]byte) {}

// PEKCSR requests a certificate signing request for the PEK (struct sev_user_data_pek_csr).
// The firmware writes the CSR into Buffer and shortens it to the written length.
type PEKCSR struct {
	Buffer []byte
}

// Opcode returns OpPEKCSR.
func (PEKCSR) Opcode() Opcode { return OpPEKCSR }

func (p *PEKCSR) marshal() []byte {
	raw := make([]byte, bufferSize)
	putBuffer(raw, p.Buffer)
	return raw
}

func (p *PEKCSR) unmarshal(raw []byte) {
	p.Buffer = resize(p.Buffer, raw)
}

// PDHGen regenerates the Platform Diffie-Hellman key. It has no payload.
type PDHGen struct{}

// Opcode returns OpPDHGen.
func (PDHGen) Opcode() Opcode { return OpPDHGen }

func (*PDHGen) marshal() []byte  { return nil }
func (*PDHGen) unmarshal([]byte) {}

// PDHCertExport exports the PDH certificate and the platform certificate chain
// (struct sev_user_data_pdh_cert_export).
type PDHCertExport struct {
	PDH   []byte
	Chain []byte
}

// Opcode returns OpPDHCertExport.
func (PDHCertExport) Opcode() Opcode { return OpPDHCertExport }

func (p *PDHCertExport) marshal() []byte {
	raw := make([]byte, bufferPairSize)
	putBuffer(raw[0:12], p.PDH)
	putBuffer(raw[12:24], p.Chain)
	return raw
}

func (p *PDHCertExport) unmarshal(raw []byte) {
	p.PDH = resize(p.PDH, raw[0:12])
	p.Chain = resize(p.Chain, raw[12:24])
}

// PEKCertImport imports a signed PEK certificate and the owner's certificate authority
// (struct sev_user_data_pek_cert_import).
type PEKCertImport struct {
	PEK []byte
	OCA []byte
}

// Opcode returns OpPEKCertImport.
func (PEKCertImport) Opcode() Opcode { return OpPEKCertImport }

func (p *PEKCertImport) marshal() []byte {
	raw := make([]byte, bufferPairSize)
	putBuffer(raw[0:12], p.PEK)
	putBuffer(raw[12:24], p.OCA)
	return raw
}

func (p *PEKCertImport) unmarshal(raw []byte) {
	p.PEK = resize(p.PEK, raw[0:12])
	p.OCA = resize(p.OCA, raw[12:24])
}

// GetID requests the unique id of the chip (struct sev_user_data_get_id2).
type GetID struct {
	Buffer []byte
}

// Opcode returns OpGetID.
func (GetID) Opcode() Opcode { return OpGetID }

func (g *GetID) marshal() []byte {
	raw := make([]byte, bufferSize)
	putBuffer(raw, g.Buffer)
	return raw
}

func (g *GetID) unmarshal(raw []byte) {
	g.Buffer = resize(g.Buffer, raw)
}

// putBuffer writes the address and length of buf in the packed {u64 address; u32 length} layout.
func putBuffer(raw []byte, buf []byte) {
	var addr uint64
	if cap(buf) > 0 {
		addr = uint64(uintptr(unsafe.Pointer(unsafe.SliceData(buf))))
	}
	binary.LittleEndian.PutUint64(raw[0:8], addr)
	binary.LittleEndian.PutUint32(raw[8:12], uint32(len(buf)))
}

// resize adjusts buf to the length the firmware reported, bounded by its capacity.
func resize(buf []byte, raw []byte) []byte {
	n := int(binary.LittleEndian.Uint32(raw[8:12]))
	return buf[:min(n, cap(buf))]
}
