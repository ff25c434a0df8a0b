// Package crypto implements the crypto operations used to verify CSV attestation evidence.
//
// Hygon CSV mandates the Chinese commercial algorithms: SM3 for digests and MACs,
// and SM2 signatures bound to the signer's user id.
package crypto

import (
	"crypto/ecdsa"
	"crypto/hmac"
	"fmt"
	"math/big"

	"github.com/emmansun/gmsm/sm2"
	"github.com/emmansun/gmsm/sm3"
	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"
)

const (
	// DigestSize is the size of an SM3 digest and HMAC-SM3 tag.
	DigestSize = sm3.Size
	// CoordinateSize is the size of a little-endian curve coordinate or signature component
	// in firmware structures. Only the lower 32 bytes are used for SM2-256.
	CoordinateSize = 72
	// CurveSM2 is the curve ID the firmware uses for SM2-256 keys.
	CurveSM2 = 3

	scalarSize = 32
)

// Suite is the set of primitives attestation verification is built on.
type Suite interface {
	// Hash returns the digest over the concatenation of data.
	Hash(data ...[]byte) ([DigestSize]byte, error)
	// HMAC returns the keyed MAC over the concatenation of data.
	HMAC(key []byte, data ...[]byte) ([DigestSize]byte, error)
	// Verify reports whether sig is a valid DER encoded signature over msg, made by
	// the owner of pub and bound to the user id uid.
	Verify(pub *ecdsa.PublicKey, uid, msg, sig []byte) bool
}

// Default is the suite used if callers do not provide one.
var Default Suite = SM{}

// SM implements Suite using SM3 and SM2.
type SM struct{}

// Hash returns the SM3 digest of the concatenated data.
func (SM) Hash(data ...[]byte) ([DigestSize]byte, error) {
	var digest [DigestSize]byte
	h := sm3.New()
	for _, d := range data {
		if _, err := h.Write(d); err != nil {
			return digest, fmt.Errorf("%w: %w", ErrDigest, err)
		}
	}
	copy(digest[:], h.Sum(nil))
	return digest, nil
}

// HMAC returns the HMAC-SM3 tag of the concatenated data.
func (SM) HMAC(key []byte, data ...[]byte) ([DigestSize]byte, error) {
	var tag [DigestSize]byte
	mac := hmac.New(sm3.New, key)
	for _, d := range data {
		if _, err := mac.Write(d); err != nil {
			return tag, fmt.Errorf("%w: %w", ErrDigest, err)
		}
	}
	copy(tag[:], mac.Sum(nil))
	return tag, nil
}

// Verify checks an SM2 signature including the ZA user id binding.
func (SM) Verify(pub *ecdsa.PublicKey, uid, msg, sig []byte) bool {
	if pub == nil {
		return false
	}
	return sm2.VerifyASN1WithSM2(pub, uid, msg, sig)
}

// BuildSM2PublicKey builds an SM2 public key from little-endian firmware coordinates.
func BuildSM2PublicKey(curve uint32, qx, qy [CoordinateSize]byte) (*ecdsa.PublicKey, error) {
	if curve != CurveSM2 {
		return nil, fmt.Errorf("%w: unsupported curve ID %d", ErrKey, curve)
	}

	key := &ecdsa.PublicKey{
		Curve: sm2.P256(),
		X:     littleEndianInt(qx[:]),
		Y:     littleEndianInt(qy[:]),
	}
	if !key.Curve.IsOnCurve(key.X, key.Y) {
		return nil, fmt.Errorf("%w: point is not on the SM2 curve", ErrKey)
	}
	return key, nil
}

// EncodeSM2PublicKey returns the little-endian firmware coordinates of an SM2 public key.
func EncodeSM2PublicKey(pub *ecdsa.PublicKey) (qx, qy [CoordinateSize]byte) {
	putLittleEndianInt(qx[:], pub.X)
	putLittleEndianInt(qy[:], pub.Y)
	return qx, qy
}

// SignatureToDER converts a firmware signature (little-endian r and s) to ASN.1 DER.
func SignatureToDER(r, s [CoordinateSize]byte) ([]byte, error) {
	var b cryptobyte.Builder
	b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1BigInt(littleEndianInt(r[:]))
		b.AddASN1BigInt(littleEndianInt(s[:]))
	})
	der, err := b.Bytes()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}
	return der, nil
}

// SignatureFromDER converts an ASN.1 DER signature to the firmware representation.
func SignatureFromDER(der []byte) (r, s [CoordinateSize]byte, err error) {
	rInt, sInt := new(big.Int), new(big.Int)
	input := cryptobyte.String(der)
	var inner cryptobyte.String
	if !input.ReadASN1(&inner, asn1.SEQUENCE) ||
		!input.Empty() ||
		!inner.ReadASN1Integer(rInt) ||
		!inner.ReadASN1Integer(sInt) ||
		!inner.Empty() {
		return r, s, fmt.Errorf("%w: malformed DER signature", ErrBadSignature)
	}
	if rInt.Sign() < 0 || sInt.Sign() < 0 || rInt.BitLen() > 8*scalarSize || sInt.BitLen() > 8*scalarSize {
		return r, s, fmt.Errorf("%w: signature component out of range", ErrBadSignature)
	}

	putLittleEndianInt(r[:], rInt)
	putLittleEndianInt(s[:], sInt)
	return r, s, nil
}

// Keystream XORs data in place with the little-endian bytes of anonce, repeated.
func Keystream(data []byte, anonce uint32) {
	key := [4]byte{byte(anonce), byte(anonce >> 8), byte(anonce >> 16), byte(anonce >> 24)}
	for i := range data {
		data[i] ^= key[i%4]
	}
}

func littleEndianInt(b []byte) *big.Int {
	be := make([]byte, len(b))
	for i := range b {
		be[len(b)-1-i] = b[i]
	}
	return new(big.Int).SetBytes(be)
}

// putLittleEndianInt writes v to dst in little-endian order. v must fit into scalarSize bytes.
func putLittleEndianInt(dst []byte, v *big.Int) {
	var be [scalarSize]byte
	v.FillBytes(be[:])
	for i := range be {
		dst[i] = be[scalarSize-1-i]
	}
}
