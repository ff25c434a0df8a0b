/*
Package blobs generates synthetic CSV attestation material for tests.

A Chain mirrors the certificate hierarchy of a Hygon platform, with the private key of every level:

	HRK (self-signed) ──► HSK ──► CEK ──► PEK ──► attestation report

Real chains can not be used in tests because the PEK private key never leaves the firmware.
*/
package blobs

import (
	"fmt"
	"io"

	"github.com/edgelesssys/go-csv-qpl/verification/crypto"
	"github.com/edgelesssys/go-csv-qpl/verification/types"
	"github.com/emmansun/gmsm/sm2"
)

// User ids the keys of a generated chain sign with.
const (
	HRKUserID = "HYGON-SSD-HRK"
	HSKUserID = "HYGON-SSD-HSK"
	CEKUserID = "HYGON-SSD-CEK"
	PEKUserID = "HYGON-SSD-PEK"
)

// DefaultChipID is the chip serial number used if none is given.
const DefaultChipID = "HYGON-CSV-CHIP-0001"

// Chain is a generated certificate hierarchy.
type Chain struct {
	HRK types.CACertificate
	HSK types.CACertificate
	CEK types.CSVCertificate
	PEK types.CSVCertificate

	HRKKey *sm2.PrivateKey
	HSKKey *sm2.PrivateKey
	CEKKey *sm2.PrivateKey
	PEKKey *sm2.PrivateKey
}

// NewChain generates a new certificate hierarchy.
func NewChain(rand io.Reader) (*Chain, error) {
	var keys [4]*sm2.PrivateKey
	for i := range keys {
		key, err := sm2.GenerateKey(rand)
		if err != nil {
			return nil, fmt.Errorf("generating key: %w", err)
		}
		keys[i] = key
	}
	c := &Chain{HRKKey: keys[0], HSKKey: keys[1], CEKKey: keys[2], PEKKey: keys[3]}

	var hrkID, hskID [16]byte
	if _, err := io.ReadFull(rand, hrkID[:]); err != nil {
		return nil, fmt.Errorf("generating key id: %w", err)
	}
	if _, err := io.ReadFull(rand, hskID[:]); err != nil {
		return nil, fmt.Errorf("generating key id: %w", err)
	}

	c.HRK = newCACertificate(c.HRKKey, HRKUserID, types.UsageHRK, hrkID, hrkID)
	c.HSK = newCACertificate(c.HSKKey, HSKUserID, types.UsageHSK, hskID, hrkID)
	c.CEK = newCSVCertificate(c.CEKKey, CEKUserID, types.UsageCEK)
	c.PEK = newCSVCertificate(c.PEKKey, PEKUserID, types.UsagePEK)

	if err := c.Resign(rand); err != nil {
		return nil, err
	}
	return c, nil
}

// Resign signs all certificates of the chain again.
// Use it after modifying a certificate to get a chain that verifies.
func (c *Chain) Resign(rand io.Reader) error {
	if err := SignCA(rand, &c.HRK, c.HRKKey, HRKUserID); err != nil {
		return fmt.Errorf("signing HRK: %w", err)
	}
	if err := SignCA(rand, &c.HSK, c.HRKKey, HRKUserID); err != nil {
		return fmt.Errorf("signing HSK: %w", err)
	}
	if err := SignCSV(rand, &c.CEK, 0, types.UsageHSK, c.HSKKey, HSKUserID); err != nil {
		return fmt.Errorf("signing CEK: %w", err)
	}
	if err := SignCSV(rand, &c.PEK, 1, types.UsageCEK, c.CEKKey, CEKUserID); err != nil {
		return fmt.Errorf("signing PEK: %w", err)
	}
	return nil
}

// KDSResponse returns the HSK and CEK the way the Hygon KDS serves them.
func (c *Chain) KDSResponse() []byte {
	hsk := c.HSK.Marshal()
	cek := c.CEK.Marshal()
	return append(hsk[:], cek[:]...)
}

// SignCA signs a CA certificate.
func SignCA(rand io.Reader, cert *types.CACertificate, key *sm2.PrivateKey, uid string) error {
	body, err := cert.SignedBody()
	if err != nil {
		return err
	}
	r, s, err := sign(rand, key, uid, body)
	if err != nil {
		return err
	}
	cert.SigR, cert.SigS = r, s
	return nil
}

// SignCSV signs a CSV certificate and stores the signature in the given slot.
func SignCSV(rand io.Reader, cert *types.CSVCertificate, slot int, usage types.Usage, key *sm2.PrivateKey, uid string) error {
	body, err := cert.SignedBody()
	if err != nil {
		return err
	}
	r, s, err := sign(rand, key, uid, body)
	if err != nil {
		return err
	}
	cert.Signatures[slot] = types.CertSignature{
		Usage:     usage,
		Algo:      types.AlgoSM2Signature,
		Signature: types.Signature{R: r, S: s},
	}
	return nil
}

func sign(rand io.Reader, key *sm2.PrivateKey, uid string, msg []byte) (r, s [crypto.CoordinateSize]byte, err error) {
	der, err := key.SignWithSM2(rand, []byte(uid), msg)
	if err != nil {
		return r, s, fmt.Errorf("signing: %w", err)
	}
	return crypto.SignatureFromDER(der)
}

func newCACertificate(key *sm2.PrivateKey, uid string, usage types.Usage, keyID, certifyingID [16]byte) types.CACertificate {
	qx, qy := crypto.EncodeSM2PublicKey(&key.PublicKey)
	cert := types.CACertificate{
		Version:      1,
		KeyID:        keyID,
		CertifyingID: certifyingID,
		KeyUsage:     usage,
		Curve:        crypto.CurveSM2,
		QX:           qx,
		QY:           qy,
		UIDSize:      uint16(len(uid)),
	}
	copy(cert.UserIDData[:], uid)
	return cert
}

func newCSVCertificate(key *sm2.PrivateKey, uid string, usage types.Usage) types.CSVCertificate {
	qx, qy := crypto.EncodeSM2PublicKey(&key.PublicKey)
	cert := types.CSVCertificate{
		Version:  1,
		APIMajor: 1,
		APIMinor: 2,
		KeyUsage: usage,
		KeyAlgo:  types.AlgoSM2Signature,
		PubKey: types.PubKey{
			Curve:   crypto.CurveSM2,
			QX:      qx,
			QY:      qy,
			UIDSize: uint16(len(uid)),
		},
		Signatures: [2]types.CertSignature{
			{Usage: types.UsageInvalid},
			{Usage: types.UsageInvalid},
		},
	}
	copy(cert.PubKey.UserID[:], uid)
	return cert
}
