package cmd

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/edgelesssys/go-csv-qpl/blobs"
	"github.com/edgelesssys/go-csv-qpl/evidence"
	"github.com/edgelesssys/go-csv-qpl/verification/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestVerify(t *testing.T) {
	opts := blobs.DefaultReportOptions()

	testCases := map[string]struct {
		config    string
		withChain bool
		modify    func(*evidence.Bundle)
		challenge *[16]byte
		wantErr   bool
	}{
		"chain in bundle": {
			withChain: true,
		},
		"chain in config": {
			config: "hsk: {{dir}}/hsk.cert\ncek: {{dir}}/cek.cert\n",
		},
		"expected values match": {
			withChain: true,
			config:    "verify:\n  measurement: " + hex.EncodeToString(opts.Measure[:]) + "\n  reportData: " + hex.EncodeToString(opts.ReportData[:]) + "\n",
		},
		"measurement mismatch": {
			withChain: true,
			config:    "verify:\n  measurement: " + strings.Repeat("00", 32) + "\n",
			wantErr:   true,
		},
		"bundle nonce differs from challenge": {
			withChain: true,
			modify:    func(b *evidence.Bundle) { b.MNonce[0] ^= 1 },
			wantErr:   true,
		},
		"replayed bundle": {
			withChain: true,
			challenge: &[16]byte{0xde, 0xad, 0xbe, 0xef},
			wantErr:   true,
		},
		"bundle nonce matches challenge but not report": {
			withChain: true,
			modify:    func(b *evidence.Bundle) { b.MNonce[0] ^= 1 },
			challenge: func() *[16]byte { n := opts.MNonce; n[0] ^= 1; return &n }(),
			wantErr:   true,
		},
		"report modified": {
			withChain: true,
			modify:    func(b *evidence.Bundle) { b.Response.Report.Body.ReportData[0] ^= 1 },
			wantErr:   true,
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			dir := t.TempDir()
			chain := writeChain(t, dir)
			rsp, err := chain.Respond(rand.Reader, opts)
			require.NoError(err)

			bundle := evidence.Bundle{Response: rsp, MNonce: opts.MNonce}
			if tc.withChain {
				bundle.HSK, bundle.CEK = &chain.HSK, &chain.CEK
			}
			if tc.modify != nil {
				tc.modify(&bundle)
			}
			in := filepath.Join(dir, "evidence.bin")
			require.NoError(os.WriteFile(in, bundle.Marshal(), 0o644))

			config := "hrk: {{dir}}/hrk.cert\n" + tc.config
			configPath := filepath.Join(dir, "config.yaml")
			require.NoError(os.WriteFile(configPath, []byte(strings.ReplaceAll(config, "{{dir}}", dir)), 0o644))

			challenge := opts.MNonce
			if tc.challenge != nil {
				challenge = *tc.challenge
			}

			out, err := execute(t, "verify", "--config", configPath, "--in", in, "--mnonce", hex.EncodeToString(challenge[:]))
			if tc.wantErr {
				assert.Error(err)
				return
			}
			require.NoError(err)

			var result verifyOutput
			require.NoError(yaml.Unmarshal([]byte(out), &result))
			assert.True(result.Verified)
			assert.Equal(blobs.DefaultChipID, result.ChipID)
			assert.Equal(hex.EncodeToString(opts.Measure[:]), result.Report.Measurement)
			assert.Equal(opts.Policy.Fields(), result.Report.Policy)
			assert.Equal(hex.EncodeToString(opts.MNonce[:]), result.Report.MNonce)
		})
	}
}

func TestVerifyRequiresNonce(t *testing.T) {
	dir := t.TempDir()
	chain := writeChain(t, dir)
	rsp, err := chain.Respond(rand.Reader, blobs.DefaultReportOptions())
	require.NoError(t, err)

	bundle := evidence.Bundle{Response: rsp, MNonce: blobs.DefaultReportOptions().MNonce, HSK: &chain.HSK, CEK: &chain.CEK}
	in := filepath.Join(dir, "evidence.bin")
	require.NoError(t, os.WriteFile(in, bundle.Marshal(), 0o644))
	configPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("hrk: "+filepath.Join(dir, "hrk.cert")+"\n"), 0o644))

	_, err = execute(t, "verify", "--config", configPath, "--in", in)
	assert.Error(t, err)
}

func TestParse(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	dir := t.TempDir()
	chain := writeChain(t, dir)
	opts := blobs.DefaultReportOptions()
	rsp, err := chain.Respond(rand.Reader, opts)
	require.NoError(err)

	bundle := evidence.Bundle{Response: rsp, MNonce: opts.MNonce, HSK: &chain.HSK}
	in := filepath.Join(dir, "evidence.bin")
	require.NoError(os.WriteFile(in, bundle.Marshal(), 0o644))

	out, err := execute(t, "parse", "--in", in, "--output", "json")
	require.NoError(err)

	var parsed parseOutput
	require.NoError(json.Unmarshal([]byte(out), &parsed))
	assert.Equal(hex.EncodeToString(opts.MNonce[:]), parsed.Report.MNonce)
	assert.Equal(parsed.Report.MNonce, parsed.RequestNonce)
	assert.Equal(hex.EncodeToString(opts.ReportData[:]), parsed.Report.ReportData)
	assert.Equal(types.UsagePEK.String(), parsed.SigUsage)
	assert.True(parsed.HasHSK)
	assert.False(parsed.HasCEK)
}

func TestParseInvalidBundle(t *testing.T) {
	in := filepath.Join(t.TempDir(), "evidence.bin")
	require.NoError(t, os.WriteFile(in, []byte("not a bundle"), 0o644))

	_, err := execute(t, "parse", "--in", in)
	assert.Error(t, err)
}

func TestUnknownOutputFormat(t *testing.T) {
	var buf bytes.Buffer
	outputFormat = "xml"
	defer func() { outputFormat = "yaml" }()

	assert.Error(t, formatOutput(&buf, struct{}{}))
}

func TestParseReportData(t *testing.T) {
	full := [types.ReportDataSize]byte(bytes.Repeat([]byte{0xff}, types.ReportDataSize))

	testCases := map[string]struct {
		in      string
		want    *[types.ReportDataSize]byte
		wantErr bool
	}{
		"empty": {},
		"short is zero padded": {
			in:   "0102",
			want: &[types.ReportDataSize]byte{1, 2},
		},
		"full": {
			in:   strings.Repeat("ff", types.ReportDataSize),
			want: &full,
		},
		"too long": {
			in:      strings.Repeat("ff", types.ReportDataSize+1),
			wantErr: true,
		},
		"not hex": {
			in:      "zz",
			wantErr: true,
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)

			data, err := parseReportData(tc.in)
			if tc.wantErr {
				assert.Error(err)
				return
			}
			assert.NoError(err)
			assert.Equal(tc.want, data)
		})
	}
}

func TestParseNonce(t *testing.T) {
	assert := assert.New(t)

	nonce, err := parseNonce("000102030405060708090a0b0c0d0e0f")
	assert.NoError(err)
	assert.Equal([types.MNonceSize]byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}, nonce)

	first, err := parseNonce("")
	assert.NoError(err)
	second, err := parseNonce("")
	assert.NoError(err)
	assert.NotEqual(first, second)

	_, err = parseNonce("0001")
	assert.Error(err)
}

// writeChain generates a chain and writes its certificates to dir.
func writeChain(t *testing.T, dir string) *blobs.Chain {
	t.Helper()
	chain, err := blobs.NewChain(rand.Reader)
	require.NoError(t, err)

	hrk := chain.HRK.Marshal()
	hsk := chain.HSK.Marshal()
	cek := chain.CEK.Marshal()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hrk.cert"), hrk[:], 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hsk.cert"), hsk[:], 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cek.cert"), cek[:], 0o644))
	return chain
}

// execute runs the root command with args and returns its output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	configPath, logLevel, outputFormat = "", "info", "yaml"
	evidenceIn, verifyNonceHex = "evidence.bin", ""

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()
	return out.String(), err
}
