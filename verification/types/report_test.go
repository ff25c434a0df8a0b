package types

import (
	"math/rand"
	"testing"

	fuzzheaders "github.com/AdaLogics/go-fuzz-headers"
	"github.com/edgelesssys/go-csv-qpl/verification/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayoutSizes(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(112, ReportRequestSize)
	assert.Equal(180, BodySize)
	assert.Equal(512, SignatureSize)
	assert.Equal(704, AttestationReportSize)
	assert.Equal(2212, SignerEvidenceSize)
	assert.Equal(1180, ReportResponsePaddingSize)
	assert.Equal(4096, ReportResponseSize)

	var rsp ReportResponse
	assert.Len(rsp.Marshal(), PageSize)
}

func TestParseReportResponse(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	raw := randomPage(rand.New(rand.NewSource(1)))

	rsp, err := ParseReportResponse(raw[:])
	require.NoError(err)

	assert.Equal(raw[0:32], rsp.Report.Body.UserPubKeyDigest[:])
	assert.Equal(raw[64:128], rsp.Report.Body.ReportData[:])
	assert.Equal(raw[128:144], rsp.Report.Body.MNonce[:])
	assert.Equal(raw[144:176], rsp.Report.Body.Measure[:])
	assert.Equal(raw[192:264], rsp.Report.Signature.R[:])
	assert.Equal(raw[704:2788], rsp.Signer.PEKCert[:])
	assert.Equal(raw[2884:2916], rsp.Signer.MAC[:])

	assert.Equal(raw, rsp.Marshal())

	body, err := rsp.Report.SignedBody()
	require.NoError(err)
	assert.Equal(raw[0:180], body)
}

func TestParseReportResponseSize(t *testing.T) {
	testCases := map[string]struct {
		size    int
		wantErr bool
	}{
		"empty":      {size: 0, wantErr: true},
		"too short":  {size: PageSize - 1, wantErr: true},
		"too long":   {size: PageSize + 1, wantErr: true},
		"exact page": {size: PageSize},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			_, err := ParseReportResponse(make([]byte, tc.size))
			if tc.wantErr {
				assert.Error(err)
			} else {
				assert.NoError(err)
			}
		})
	}
}

func TestAttestationReportUnmask(t *testing.T) {
	assert := assert.New(t)

	const anonce = 0x11223344
	policy := NewGuestPolicy(PolicyFields{NoDebug: true, CSV: true, APIMajor: 1, APIMinor: 3})

	report := AttestationReport{ANonce: anonce}
	report.Body.MNonce = fixtureMNonce
	crypto.Keystream(report.Body.MNonce[:], anonce)
	report.Body.Policy = policy.Xor(anonce)

	assert.Equal(fixtureMNonce, report.PlainNonce())
	assert.Equal(policy, report.PlainPolicy())
	// unmasking does not modify the report
	assert.NotEqual(fixtureMNonce, report.Body.MNonce)
}

func TestAttestationReportSignatureFor(t *testing.T) {
	assert := assert.New(t)

	report := AttestationReport{}
	report.Signature.R[0] = 1
	report.Signature.S[0] = 2

	der, err := report.SignatureFor(UsagePEK)
	assert.NoError(err)
	assert.NotEmpty(der)

	for _, usage := range []Usage{UsageCEK, UsageHRK, UsageOCA, UsagePDH} {
		_, err := report.SignatureFor(usage)
		assert.ErrorIs(err, crypto.ErrBadSignature, usage.String())
	}
}

func FuzzParseReportResponse(f *testing.F) {
	f.Fuzz(func(t *testing.T, a []byte) {
		assert := assert.New(t)
		assert.NotPanics(func() { _, _ = ParseReportResponse(a) })
	})
}

func FuzzReportResponseMarshal(f *testing.F) {
	page := randomPage(rand.New(rand.NewSource(2)))
	f.Add(page[:])
	f.Fuzz(func(t *testing.T, a []byte) {
		target := ReportResponse{}
		fuzzConsumer := fuzzheaders.NewConsumer(a)
		if err := fuzzConsumer.GenerateStruct(&target); err != nil {
			return
		}

		raw := target.Marshal()
		parsed, err := ParseReportResponse(raw[:])
		require.NoError(t, err)
		assert.Equal(t, target, parsed)
	})
}

// randomPage returns a report response page with random content and zero padding.
func randomPage(rng *rand.Rand) [PageSize]byte {
	var page [PageSize]byte
	_, _ = rng.Read(page[:AttestationReportSize+SignerEvidenceSize])
	return page
}
