package verification

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/edgelesssys/go-csv-qpl/verification/crypto"
	"github.com/edgelesssys/go-csv-qpl/verification/types"
)

// Issuer is a key that signs certificates or attestation reports.
type Issuer interface {
	// PublicKey returns the issuer's public key.
	PublicKey() (*ecdsa.PublicKey, error)
	// UserID returns the user id the issuer's signatures are bound to.
	UserID() []byte
	// Usage returns the role of the issuer's key.
	Usage() types.Usage
}

// Signed is a structure carrying a signature.
type Signed interface {
	// SignedBody returns the bytes covered by the signature.
	SignedBody() ([]byte, error)
	// SignatureFor returns the DER encoded signature made by a key of the given usage.
	SignatureFor(usage types.Usage) ([]byte, error)
}

var (
	_ Issuer = (*types.CACertificate)(nil)
	_ Issuer = (*types.CSVCertificate)(nil)
	_ Signed = (*types.CACertificate)(nil)
	_ Signed = (*types.CSVCertificate)(nil)
	_ Signed = (*types.AttestationReport)(nil)
)

// Verify checks that subject was signed by issuer.
func Verify(issuer Issuer, subject Signed) error {
	return VerifyWithSuite(crypto.Default, issuer, subject)
}

// VerifyWithSuite checks that subject was signed by issuer, using the given crypto suite.
//
// It fails with crypto.ErrKey if the issuer's key is malformed, with crypto.ErrIO if the subject
// can not be encoded, and with crypto.ErrBadSignature if subject carries no signature by a key of
// the issuer's usage or the signature does not match.
func VerifyWithSuite(suite crypto.Suite, issuer Issuer, subject Signed) error {
	pub, err := issuer.PublicKey()
	if err != nil {
		return wrapKind(crypto.ErrKey, "extracting issuer key", err)
	}
	body, err := subject.SignedBody()
	if err != nil {
		return wrapKind(crypto.ErrIO, "encoding signed body", err)
	}
	sig, err := subject.SignatureFor(issuer.Usage())
	if err != nil {
		return wrapKind(crypto.ErrBadSignature, "selecting signature", err)
	}

	if !suite.Verify(pub, issuer.UserID(), body, sig) {
		return fmt.Errorf("%w: signature does not match %s key", crypto.ErrBadSignature, issuer.Usage())
	}
	return nil
}

// VerifyHRK checks that hrk is a self-signed Hygon Root Key.
func VerifyHRK(hrk *types.CACertificate) error {
	return verifyHRK(crypto.Default, hrk)
}

// VerifyHSK checks that hsk is a Hygon Signing Key issued by hrk.
// hrk must have been verified with VerifyHRK.
func VerifyHSK(hrk, hsk *types.CACertificate) error {
	return verifyHSK(crypto.Default, hrk, hsk)
}

// VerifyHSKWithSuite is VerifyHSK using the given suite.
func VerifyHSKWithSuite(suite crypto.Suite, hrk, hsk *types.CACertificate) error {
	return verifyHSK(suite, hrk, hsk)
}

// VerifyCEK checks that cek is a Chip Endorsement Key issued by hsk.
func VerifyCEK(hsk *types.CACertificate, cek *types.CSVCertificate) error {
	return verifyLink(crypto.Default, hsk, cek, types.UsageCEK)
}

// VerifyCEKWithSuite is VerifyCEK using the given suite.
func VerifyCEKWithSuite(suite crypto.Suite, hsk *types.CACertificate, cek *types.CSVCertificate) error {
	return verifyLink(suite, hsk, cek, types.UsageCEK)
}

// VerifyPEK checks that pek is a Platform Endorsement Key issued by cek.
func VerifyPEK(cek, pek *types.CSVCertificate) error {
	return verifyLink(crypto.Default, cek, pek, types.UsagePEK)
}

func verifyHRK(suite crypto.Suite, hrk *types.CACertificate) error {
	if hrk.Usage() != types.UsageHRK {
		return fmt.Errorf("%w: expected %s certificate, got %s", crypto.ErrBadSignature, types.UsageHRK, hrk.Usage())
	}
	if hrk.ID() != hrk.IssuerID() {
		return fmt.Errorf("%w: HRK is not self-signed: key id %x, certifying id %x", crypto.ErrBadSignature, hrk.ID(), hrk.IssuerID())
	}
	if err := VerifyWithSuite(suite, hrk, hrk); err != nil {
		return fmt.Errorf("verifying HRK self-signature: %w", err)
	}
	return nil
}

func verifyHSK(suite crypto.Suite, hrk, hsk *types.CACertificate) error {
	if hsk.IssuerID() != hrk.ID() {
		return fmt.Errorf("%w: HSK was certified by %x, not by HRK %x", crypto.ErrBadSignature, hsk.IssuerID(), hrk.ID())
	}
	return verifyLink(suite, hrk, hsk, types.UsageHSK)
}

// certificate is a signed structure certifying a key.
type certificate interface {
	Signed
	Usage() types.Usage
}

// verifyLink checks the usage of subject and its signature by issuer.
func verifyLink(suite crypto.Suite, issuer Issuer, subject certificate, want types.Usage) error {
	if subject.Usage() != want {
		return fmt.Errorf("%w: expected %s certificate, got %s", crypto.ErrBadSignature, want, subject.Usage())
	}
	if err := VerifyWithSuite(suite, issuer, subject); err != nil {
		return fmt.Errorf("verifying %s signature on %s: %w", issuer.Usage(), want, err)
	}
	return nil
}

// wrapKind wraps err with msg, adding kind unless err already is of that kind.
func wrapKind(kind error, msg string, err error) error {
	if errors.Is(err, kind) {
		return fmt.Errorf("%s: %w", msg, err)
	}
	return fmt.Errorf("%s: %w: %w", msg, kind, err)
}
