package types

import (
	"crypto/subtle"
	"fmt"

	"github.com/edgelesssys/go-csv-qpl/verification/crypto"
)

// SerialNumberSize is the size of the chip serial number in the signer evidence.
const SerialNumberSize = 64

// SignerEvidence is the evidence to verify the attestation report's signature.
// The PEK certificate and the chip serial number are masked with the report's ANonce,
// and a MAC keyed with the guest's nonce protects the masked bytes.
//
// SignerEvidence is never modified by verification. Authenticate it,
// then call Reveal on the result to obtain the unmasked evidence.
type SignerEvidence struct {
	PEKCert      [CSVCertificateSize]byte // masked
	SerialNumber [SerialNumberSize]byte   // masked
	Reserved     [32]byte
	MAC          [crypto.DigestSize]byte
}

// AuthenticatedEvidence is signer evidence whose MAC has been checked.
// It can only be obtained from SignerEvidence.Authenticate.
type AuthenticatedEvidence struct {
	evidence SignerEvidence
	anonce   uint32
}

// PlaintextEvidence is the unmasked signer evidence.
type PlaintextEvidence struct {
	PEKCert      [CSVCertificateSize]byte
	SerialNumber [SerialNumberSize]byte
}

// ChipID returns the serial number with trailing NUL bytes removed.
func (p PlaintextEvidence) ChipID() string {
	return trimNUL(p.SerialNumber[:])
}

// Authenticate checks the signer evidence.
//
// The nonce stored in the report (reportNonce) is unmasked using anonce and compared to the nonce
// the guest owner placed in the request (requestNonce). The unmasked nonce then keys the MAC over the
// masked certificate, serial number, and reserved bytes. Both checks are always performed and
// compared in constant time, and a mismatch of either returns crypto.ErrBadSignature.
// No unmasked data is exposed before both checks passed.
func (s SignerEvidence) Authenticate(suite crypto.Suite, requestNonce, reportNonce [MNonceSize]byte, anonce uint32) (AuthenticatedEvidence, error) {
	realNonce := reportNonce
	crypto.Keystream(realNonce[:], anonce)
	nonceOK := subtle.ConstantTimeCompare(realNonce[:], requestNonce[:])

	mac, err := suite.HMAC(realNonce[:], s.PEKCert[:], s.SerialNumber[:], s.Reserved[:])
	if err != nil {
		return AuthenticatedEvidence{}, fmt.Errorf("computing signer evidence MAC: %w", err)
	}
	macOK := subtle.ConstantTimeCompare(mac[:], s.MAC[:])

	if nonceOK&macOK != 1 {
		return AuthenticatedEvidence{}, fmt.Errorf("%w: signer evidence authentication failed", crypto.ErrBadSignature)
	}
	return AuthenticatedEvidence{evidence: s, anonce: anonce}, nil
}

// Reveal returns the unmasked signer evidence.
func (a AuthenticatedEvidence) Reveal() PlaintextEvidence {
	plain := PlaintextEvidence{
		PEKCert:      a.evidence.PEKCert,
		SerialNumber: a.evidence.SerialNumber,
	}
	crypto.Keystream(plain.PEKCert[:], a.anonce)
	crypto.Keystream(plain.SerialNumber[:], a.anonce)
	return plain
}

// Verify authenticates the signer evidence and returns its unmasked content.
// It may be called any number of times with the same result.
func (s SignerEvidence) Verify(suite crypto.Suite, requestNonce, reportNonce [MNonceSize]byte, anonce uint32) (PlaintextEvidence, error) {
	authenticated, err := s.Authenticate(suite, requestNonce, reportNonce, anonce)
	if err != nil {
		return PlaintextEvidence{}, err
	}
	return authenticated.Reveal(), nil
}

// Obfuscate masks plaintext evidence the way the firmware does and computes its MAC.
// This is the inverse of Verify and is mostly useful to build test fixtures.
func Obfuscate(suite crypto.Suite, plain PlaintextEvidence, mnonce [MNonceSize]byte, anonce uint32) (SignerEvidence, error) {
	evidence := SignerEvidence{
		PEKCert:      plain.PEKCert,
		SerialNumber: plain.SerialNumber,
	}
	crypto.Keystream(evidence.PEKCert[:], anonce)
	crypto.Keystream(evidence.SerialNumber[:], anonce)

	mac, err := suite.HMAC(mnonce[:], evidence.PEKCert[:], evidence.SerialNumber[:], evidence.Reserved[:])
	if err != nil {
		return SignerEvidence{}, fmt.Errorf("computing signer evidence MAC: %w", err)
	}
	evidence.MAC = mac
	return evidence, nil
}

// ParseSignerEvidence parses signer evidence.
func ParseSignerEvidence(raw []byte) (SignerEvidence, error) {
	if len(raw) != SignerEvidenceSize {
		return SignerEvidence{}, fmt.Errorf("signer evidence must be %d bytes, got %d bytes", SignerEvidenceSize, len(raw))
	}
	return SignerEvidence{
		PEKCert:      [CSVCertificateSize]byte(raw[0:2084]),
		SerialNumber: [SerialNumberSize]byte(raw[2084:2148]),
		Reserved:     [32]byte(raw[2148:2180]),
		MAC:          [crypto.DigestSize]byte(raw[2180:2212]),
	}, nil
}

func trimNUL(b []byte) string {
	end := len(b)
	for end > 0 && b[end-1] == 0 {
		end--
	}
	return string(b[:end])
}
