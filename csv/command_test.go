package csv

import (
	"encoding/binary"
	"errors"
	"syscall"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpcodeBinding(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(OpPlatformReset, From(PlatformReset{}).Code())
	assert.Equal(OpPlatformStatus, FromMut(&PlatformStatus{}).Code())
	assert.Equal(OpPEKGen, From(PEKGen{}).Code())
	assert.Equal(OpPEKCSR, FromMut(&PEKCSR{}).Code())
	assert.Equal(OpPDHGen, From(PDHGen{}).Code())
	assert.Equal(OpPDHCertExport, FromMut(&PDHCertExport{}).Code())
	assert.Equal(OpPEKCertImport, From(PEKCertImport{}).Code())
	assert.Equal(OpGetID, FromMut(&GetID{}).Code())

	// fixed values of the kernel interface
	assert.EqualValues(0x3, FromMut(&PEKCSR{Buffer: make([]byte, 8)}).Code())
	assert.EqualValues(0x1, From(PlatformStatus{APIMajor: 1}).Code())
}

func TestCommandEnvelope(t *testing.T) {
	assert := assert.New(t)

	status := &PlatformStatus{}
	cmd := FromMut(status)
	assert.True(cmd.Mutable())
	assert.Same(status, cmd.Payload())
	assert.Zero(cmd.Status())
	assert.NotZero(cmd.Data())

	raw := cmd.Marshal()
	assert.Len(raw, CommandSize)
	assert.Equal(uint32(OpPlatformStatus), binary.LittleEndian.Uint32(raw[0:4]))
	assert.Equal(cmd.Data(), binary.LittleEndian.Uint64(raw[4:12]))
	assert.Zero(binary.LittleEndian.Uint32(raw[12:16]))

	reset := From(PlatformReset{})
	assert.False(reset.Mutable())
	assert.Zero(reset.Data())
}

func TestPayloadLayout(t *testing.T) {
	csr := make([]byte, 100)
	pek := make([]byte, 10)
	oca := make([]byte, 20)

	testCases := map[string]struct {
		cmd      interface{ Data() uint64 }
		wantSize int
		wantBufs [][]byte
	}{
		"platform status": {
			cmd:      FromMut(&PlatformStatus{}),
			wantSize: 12,
		},
		"pek csr": {
			cmd:      FromMut(&PEKCSR{Buffer: csr}),
			wantSize: 12,
			wantBufs: [][]byte{csr},
		},
		"pek cert import": {
			cmd:      From(PEKCertImport{PEK: pek, OCA: oca}),
			wantSize: 24,
			wantBufs: [][]byte{pek, oca},
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)

			raw := memory(tc.cmd.Data(), tc.wantSize)
			for i, buf := range tc.wantBufs {
				assert.Equal(addressOf(buf), binary.LittleEndian.Uint64(raw[i*12:i*12+8]))
				assert.Equal(uint32(len(buf)), binary.LittleEndian.Uint32(raw[i*12+8:i*12+12]))
			}
		})
	}
}

func TestIssue(t *testing.T) {
	testCases := map[string]struct {
		dispatcher *stubDispatcher
		wantCode   uint32
		wantErr    bool
	}{
		"success": {
			dispatcher: &stubDispatcher{},
		},
		"firmware error": {
			dispatcher: &stubDispatcher{fwError: 6, err: syscall.EIO},
			wantCode:   6,
			wantErr:    true,
		},
		"firmware error without errno": {
			dispatcher: &stubDispatcher{fwError: 4},
			wantCode:   4,
			wantErr:    true,
		},
		"kernel error": {
			dispatcher: &stubDispatcher{err: syscall.ENOTTY},
			wantErr:    true,
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)

			cmd := FromMut(&PlatformStatus{})
			err := Issue(tc.dispatcher, cmd)
			assert.Equal(tc.wantCode, cmd.Status())
			require.Len(t, tc.dispatcher.calls, 1)
			assert.Equal(OpPlatformStatus, tc.dispatcher.calls[0])

			if !tc.wantErr {
				assert.NoError(err)
				return
			}
			var fwErr *FirmwareError
			require.ErrorAs(t, err, &fwErr)
			assert.Equal(tc.wantCode, fwErr.Code)
			if tc.dispatcher.err != nil {
				assert.ErrorIs(err, tc.dispatcher.err)
			}
		})
	}
}

func TestIssueCopiesFirmwareWrites(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	dispatcher := &stubDispatcher{
		firmware: func(_ Opcode, data uint64) {
			raw := memory(data, platformStatusSize)
			copy(raw, []byte{1, 3, StateWorking, 1, 0, 0, 0, 42, 7, 0, 0, 0})
		},
	}

	status := &PlatformStatus{}
	require.NoError(Issue(dispatcher, FromMut(status)))
	assert.Equal(PlatformStatus{APIMajor: 1, APIMinor: 3, State: StateWorking, Flags: 1, Build: 42, GuestCount: 7}, *status)
	assert.True(status.Owned())
}

func TestIssueDiscardsWritesToImmutablePayload(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	dispatcher := &stubDispatcher{
		firmware: func(_ Opcode, data uint64) {
			raw := memory(data, platformStatusSize)
			raw[0] = 0xFF
		},
	}

	status := PlatformStatus{APIMajor: 1}
	cmd := From(status)
	require.NoError(Issue(dispatcher, cmd))
	assert.Equal(uint8(1), cmd.Payload().APIMajor)
	assert.Equal(uint8(1), status.APIMajor)
}

func TestIssueZeroCommand(t *testing.T) {
	dispatcher := &stubDispatcher{}
	assert.Error(t, Issue(dispatcher, &Command[PlatformStatus]{}))
	assert.Empty(t, dispatcher.calls)
}

func TestFirmwareError(t *testing.T) {
	assert := assert.New(t)

	err := error(&FirmwareError{Code: 10, Err: syscall.EIO})
	assert.Contains(err.Error(), "BAD_SIGNATURE")
	assert.ErrorIs(err, syscall.EIO)

	err = &FirmwareError{Code: 0x1234}
	assert.Contains(err.Error(), "unknown")
	assert.Nil(errors.Unwrap(err))
}

// stubDispatcher plays the firmware.
type stubDispatcher struct {
	calls    []Opcode
	fwError  uint32
	err      error
	firmware func(code Opcode, data uint64)
}

func (s *stubDispatcher) Dispatch(code Opcode, data uint64) (uint32, error) {
	s.calls = append(s.calls, code)
	if s.firmware != nil {
		s.firmware(code, data)
	}
	return s.fwError, s.err
}

// memory returns the n bytes at the address the firmware was given.
func memory(addr uint64, n int) []byte {
	return unsafe.Slice((*byte)(*(*unsafe.Pointer)(unsafe.Pointer(&addr))), n)
}

func addressOf(b []byte) uint64 {
	return uint64(uintptr(unsafe.Pointer(unsafe.SliceData(b))))
}
