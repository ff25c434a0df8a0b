package types

import (
	"crypto/ecdsa"
	"encoding/binary"
	"fmt"

	"github.com/edgelesssys/go-csv-qpl/verification/crypto"
)

const (
	// CSVCertificateSize is the size of a CSV certificate (CEK, PEK, PDH, OCA).
	CSVCertificateSize = 2084
	// CACertificateSize is the size of a CA certificate (HRK, HSK).
	CACertificateSize = 832
	// UserIDSize is the maximum size of a key's user id.
	UserIDSize = 254

	csvSignedSize = 16 + pubKeySize
	caSignedSize  = 568
	pubKeySize    = 1028
)

// Usage is the role of a key in the CSV certificate hierarchy.
type Usage uint32

// Key usages.
const (
	UsageHRK     Usage = 0x0000
	UsageHSK     Usage = 0x0013
	UsageInvalid Usage = 0x1000
	UsageOCA     Usage = 0x1001
	UsagePEK     Usage = 0x1002
	UsagePDH     Usage = 0x1003
	UsageCEK     Usage = 0x1004
)

func (u Usage) String() string {
	switch u {
	case UsageHRK:
		return "HRK"
	case UsageHSK:
		return "HSK"
	case UsageInvalid:
		return "invalid"
	case UsageOCA:
		return "OCA"
	case UsagePEK:
		return "PEK"
	case UsagePDH:
		return "PDH"
	case UsageCEK:
		return "CEK"
	default:
		return fmt.Sprintf("Usage(%#x)", uint32(u))
	}
}

// Algorithm is the algorithm of a key or signature.
type Algorithm uint32

// Algorithms used by CSV firmware.
const (
	AlgoInvalid        Algorithm = 0x0
	AlgoSM2Signature   Algorithm = 0x4
	AlgoSM2KeyExchange Algorithm = 0x5
)

// PubKey is the public key section of a CSV certificate.
type PubKey struct {
	Curve    uint32
	QX       [crypto.CoordinateSize]byte
	QY       [crypto.CoordinateSize]byte
	UIDSize  uint16
	UserID   [UserIDSize]byte
	Reserved [pubKeySize - 4 - 2*crypto.CoordinateSize - 2 - UserIDSize]byte
}

// CertSignature is one of the two signature slots of a CSV certificate.
// A slot with usage UsageInvalid is empty.
type CertSignature struct {
	Usage     Usage
	Algo      Algorithm
	Signature Signature
}

// CSVCertificate is a platform certificate: CEK, PEK, PDH, or OCA.
type CSVCertificate struct {
	Version    uint32
	APIMajor   uint8
	APIMinor   uint8
	Reserved   uint16
	KeyUsage   Usage
	KeyAlgo    Algorithm
	PubKey     PubKey
	Signatures [2]CertSignature
}

// ParseCSVCertificate parses a CSV certificate.
func ParseCSVCertificate(raw []byte) (CSVCertificate, error) {
	if len(raw) != CSVCertificateSize {
		return CSVCertificate{}, fmt.Errorf("CSV certificate must be %d bytes, got %d bytes", CSVCertificateSize, len(raw))
	}

	cert := CSVCertificate{
		Version:  binary.LittleEndian.Uint32(raw[0:4]),
		APIMajor: raw[4],
		APIMinor: raw[5],
		Reserved: binary.LittleEndian.Uint16(raw[6:8]),
		KeyUsage: Usage(binary.LittleEndian.Uint32(raw[8:12])),
		KeyAlgo:  Algorithm(binary.LittleEndian.Uint32(raw[12:16])),
		PubKey: PubKey{
			Curve:    binary.LittleEndian.Uint32(raw[16:20]),
			QX:       [crypto.CoordinateSize]byte(raw[20:92]),
			QY:       [crypto.CoordinateSize]byte(raw[92:164]),
			UIDSize:  binary.LittleEndian.Uint16(raw[164:166]),
			UserID:   [UserIDSize]byte(raw[166:420]),
			Reserved: [624]byte(raw[420:1044]),
		},
	}
	for i, offset := range []int{1044, 1564} {
		cert.Signatures[i] = CertSignature{
			Usage: Usage(binary.LittleEndian.Uint32(raw[offset : offset+4])),
			Algo:  Algorithm(binary.LittleEndian.Uint32(raw[offset+4 : offset+8])),
			Signature: Signature{
				R:        [crypto.CoordinateSize]byte(raw[offset+8 : offset+80]),
				S:        [crypto.CoordinateSize]byte(raw[offset+80 : offset+152]),
				Reserved: [368]byte(raw[offset+152 : offset+520]),
			},
		}
	}
	return cert, nil
}

// PublicKey returns the certified SM2 public key.
func (c *CSVCertificate) PublicKey() (*ecdsa.PublicKey, error) {
	if c.PubKey.UIDSize > UserIDSize {
		return nil, fmt.Errorf("%w: user id size %d exceeds %d bytes", crypto.ErrKey, c.PubKey.UIDSize, UserIDSize)
	}
	return crypto.BuildSM2PublicKey(c.PubKey.Curve, c.PubKey.QX, c.PubKey.QY)
}

// UserID returns the user id the key's signatures are bound to.
func (c *CSVCertificate) UserID() []byte {
	return c.PubKey.UserID[:min(int(c.PubKey.UIDSize), UserIDSize)]
}

// Usage returns the key usage of the certificate.
func (c *CSVCertificate) Usage() Usage {
	return c.KeyUsage
}

// SignedBody returns the bytes covered by the certificate's signatures.
func (c *CSVCertificate) SignedBody() ([]byte, error) {
	raw := c.Marshal()
	return raw[:csvSignedSize], nil
}

// SignatureFor returns the DER encoded signature made by a key of the given usage.
func (c *CSVCertificate) SignatureFor(usage Usage) ([]byte, error) {
	if usage == UsageInvalid {
		return nil, fmt.Errorf("%w: invalid issuer usage", crypto.ErrBadSignature)
	}
	for _, sig := range c.Signatures {
		if sig.Usage == usage {
			return sig.Signature.DER()
		}
	}
	return nil, fmt.Errorf("%w: %s certificate carries no signature by a %s key", crypto.ErrBadSignature, c.KeyUsage, usage)
}

// CACertificate is a Hygon CA certificate: HRK (self-signed) or HSK.
type CACertificate struct {
	Version      uint32
	KeyID        [16]byte
	CertifyingID [16]byte
	KeyUsage     Usage
	Reserved1    [16]byte
	Curve        uint32
	QX           [crypto.CoordinateSize]byte
	QY           [crypto.CoordinateSize]byte
	UIDSize      uint16
	UserIDData   [UserIDSize]byte
	Reserved2    [108]byte
	SigR         [crypto.CoordinateSize]byte
	SigS         [crypto.CoordinateSize]byte
	Reserved3    [120]byte
}

// ParseCACertificate parses a CA certificate.
func ParseCACertificate(raw []byte) (CACertificate, error) {
	if len(raw) != CACertificateSize {
		return CACertificate{}, fmt.Errorf("CA certificate must be %d bytes, got %d bytes", CACertificateSize, len(raw))
	}

	return CACertificate{
		Version:      binary.LittleEndian.Uint32(raw[0:4]),
		KeyID:        [16]byte(raw[4:20]),
		CertifyingID: [16]byte(raw[20:36]),
		KeyUsage:     Usage(binary.LittleEndian.Uint32(raw[36:40])),
		Reserved1:    [16]byte(raw[40:56]),
		Curve:        binary.LittleEndian.Uint32(raw[56:60]),
		QX:           [crypto.CoordinateSize]byte(raw[60:132]),
		QY:           [crypto.CoordinateSize]byte(raw[132:204]),
		UIDSize:      binary.LittleEndian.Uint16(raw[204:206]),
		UserIDData:   [UserIDSize]byte(raw[206:460]),
		Reserved2:    [108]byte(raw[460:568]),
		SigR:         [crypto.CoordinateSize]byte(raw[568:640]),
		SigS:         [crypto.CoordinateSize]byte(raw[640:712]),
		Reserved3:    [120]byte(raw[712:832]),
	}, nil
}

// PublicKey returns the certified SM2 public key.
func (c *CACertificate) PublicKey() (*ecdsa.PublicKey, error) {
	if c.UIDSize > UserIDSize {
		return nil, fmt.Errorf("%w: user id size %d exceeds %d bytes", crypto.ErrKey, c.UIDSize, UserIDSize)
	}
	return crypto.BuildSM2PublicKey(c.Curve, c.QX, c.QY)
}

// UserID returns the user id the key's signatures are bound to.
func (c *CACertificate) UserID() []byte {
	return c.UserIDData[:min(int(c.UIDSize), UserIDSize)]
}

// Usage returns the key usage of the certificate.
func (c *CACertificate) Usage() Usage {
	return c.KeyUsage
}

// ID returns the key id of the certificate.
func (c *CACertificate) ID() [16]byte {
	return c.KeyID
}

// IssuerID returns the key id of the certificate's issuer.
func (c *CACertificate) IssuerID() [16]byte {
	return c.CertifyingID
}

// SignedBody returns the bytes covered by the certificate's signature.
func (c *CACertificate) SignedBody() ([]byte, error) {
	raw := c.Marshal()
	return raw[:caSignedSize], nil
}

// SignatureFor returns the DER encoded certificate signature.
// CA certificates are only ever signed by the HRK.
func (c *CACertificate) SignatureFor(usage Usage) ([]byte, error) {
	if usage != UsageHRK {
		return nil, fmt.Errorf("%w: CA certificates are signed by the HRK, not %s", crypto.ErrBadSignature, usage)
	}
	return crypto.SignatureToDER(c.SigR, c.SigS)
}
