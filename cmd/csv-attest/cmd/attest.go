package cmd

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"

	"github.com/edgelesssys/go-csv-qpl/csv"
	"github.com/edgelesssys/go-csv-qpl/evidence"
	"github.com/edgelesssys/go-csv-qpl/verification"
	"github.com/edgelesssys/go-csv-qpl/verification/kds"
	"github.com/edgelesssys/go-csv-qpl/verification/types"
	"github.com/spf13/cobra"
)

var (
	reportDataHex  string
	reportNonceHex string
	reportOut      string
	reportChain    bool
	evidenceIn     string
	verifyNonceHex string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Request an attestation report from inside a guest",
	Long: `Request an attestation report from the CSV guest device.

The response is written as an evidence bundle together with the nonce of the request.
If --with-chain is set, the configured HSK and CEK are added to the bundle.`,
	Args: cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		data, err := parseReportData(reportDataHex)
		if err != nil {
			return err
		}
		mnonce, err := parseNonce(reportNonceHex)
		if err != nil {
			return err
		}
		req, err := types.NewReportRequest(data, mnonce)
		if err != nil {
			return err
		}

		guest, err := csv.OpenGuest()
		if err != nil {
			return err
		}
		defer guest.Close()

		rsp, err := csv.GetReport(guest, req)
		if err != nil {
			return err
		}
		logger.Debug("Received attestation report")

		bundle := evidence.Bundle{Response: rsp, MNonce: mnonce}
		if reportChain {
			bundle.HSK, bundle.CEK, err = cfg.LoadChain()
			if err != nil {
				return err
			}
		}
		if err := os.WriteFile(reportOut, bundle.Marshal(), 0o644); err != nil {
			return fmt.Errorf("writing evidence: %w", err)
		}
		logger.Info("Wrote evidence to " + reportOut)
		return nil
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify an evidence bundle",
	Long: `Verify an evidence bundle against the configured HRK.

--mnonce is the nonce the guest was challenged with. Evidence produced for any other nonce is rejected.
The HSK and CEK are taken from the bundle, then from the configuration,
and are otherwise retrieved from the key distribution service.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		mnonce, err := decodeNonce(verifyNonceHex)
		if err != nil {
			return err
		}
		bundle, err := readBundle(evidenceIn)
		if err != nil {
			return err
		}
		if bundle.MNonce != mnonce {
			return fmt.Errorf("evidence was requested with nonce %x, expected %x", bundle.MNonce, mnonce)
		}

		hrk, err := cfg.LoadHRK()
		if err != nil {
			return err
		}
		hsk, cek, err := cfg.LoadChain()
		if err != nil {
			return err
		}
		if bundle.HSK != nil && bundle.CEK != nil {
			hsk, cek = bundle.HSK, bundle.CEK
		}
		measurement, err := cfg.Measurement()
		if err != nil {
			return err
		}
		reportData, err := cfg.ReportData()
		if err != nil {
			return err
		}

		kdsClient, err := kds.New(hrk, cfg.KDS.URL,
			kds.WithCacheTTL(cfg.KDS.CacheTTL),
			kds.WithHTTPClient(&http.Client{Timeout: cfg.KDS.Timeout}),
			kds.WithLogger(logger),
		)
		if err != nil {
			return err
		}
		verifier, err := verification.New(hrk,
			verification.WithChainGetter(kdsClient),
			verification.WithLogger(logger),
		)
		if err != nil {
			return err
		}

		result, err := verifier.Verify(cmd.Context(), bundle.Response, mnonce, verification.VerifyOptions{
			HSK:         hsk,
			CEK:         cek,
			Measurement: measurement,
			ReportData:  reportData,
		})
		if err != nil {
			return err
		}

		return formatOutput(cmd.OutOrStdout(), verifyOutput{
			Verified: true,
			ChipID:   result.ChipID,
			Report: reportOutput{
				Policy:           result.Policy.Fields(),
				Measurement:      hex.EncodeToString(result.Measurement[:]),
				ReportData:       hex.EncodeToString(result.ReportData[:]),
				UserPubKeyDigest: hex.EncodeToString(result.UserPubKeyDigest[:]),
				VMID:             hex.EncodeToString(result.VMID[:]),
				VMVersion:        hex.EncodeToString(result.VMVersion[:]),
				MNonce:           hex.EncodeToString(mnonce[:]),
			},
		})
	},
}

var parseCmd = &cobra.Command{
	Use:   "parse",
	Short: "Print the content of an evidence bundle without verifying it",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		bundle, err := readBundle(evidenceIn)
		if err != nil {
			return err
		}
		report := bundle.Response.Report
		body := report.Body
		nonce := report.PlainNonce()

		return formatOutput(cmd.OutOrStdout(), parseOutput{
			Report: reportOutput{
				Policy:           report.PlainPolicy().Fields(),
				Measurement:      hex.EncodeToString(body.Measure[:]),
				ReportData:       hex.EncodeToString(body.ReportData[:]),
				UserPubKeyDigest: hex.EncodeToString(body.UserPubKeyDigest[:]),
				VMID:             hex.EncodeToString(body.VMID[:]),
				VMVersion:        hex.EncodeToString(body.VMVersion[:]),
				MNonce:           hex.EncodeToString(nonce[:]),
			},
			RequestNonce: hex.EncodeToString(bundle.MNonce[:]),
			SigUsage:     types.Usage(report.SigUsage).String(),
			HasHSK:       bundle.HSK != nil,
			HasCEK:       bundle.CEK != nil,
		})
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportDataHex, "data", "", "Hex encoded report data, up to 64 bytes")
	reportCmd.Flags().StringVar(&reportNonceHex, "mnonce", "", "Hex encoded 16 byte nonce (random if empty)")
	reportCmd.Flags().StringVar(&reportOut, "out", "evidence.bin", "Path to write the evidence bundle to")
	reportCmd.Flags().BoolVar(&reportChain, "with-chain", false, "Include the configured HSK and CEK in the bundle")

	for _, c := range []*cobra.Command{verifyCmd, parseCmd} {
		c.Flags().StringVar(&evidenceIn, "in", "evidence.bin", "Path to the evidence bundle")
	}
	verifyCmd.Flags().StringVar(&verifyNonceHex, "mnonce", "", "Hex encoded 16 byte nonce the guest was challenged with")
	verifyCmd.MarkFlagRequired("mnonce")

	rootCmd.AddCommand(reportCmd, verifyCmd, parseCmd)
}

type reportOutput struct {
	Policy           types.PolicyFields `json:"policy" yaml:"policy"`
	Measurement      string             `json:"measurement" yaml:"measurement"`
	ReportData       string             `json:"reportData" yaml:"reportData"`
	UserPubKeyDigest string             `json:"userPubKeyDigest" yaml:"userPubKeyDigest"`
	VMID             string             `json:"vmID" yaml:"vmID"`
	VMVersion        string             `json:"vmVersion" yaml:"vmVersion"`
	MNonce           string             `json:"mnonce" yaml:"mnonce"`
}

type verifyOutput struct {
	Verified bool         `json:"verified" yaml:"verified"`
	ChipID   string       `json:"chipID" yaml:"chipID"`
	Report   reportOutput `json:"report" yaml:"report"`
}

type parseOutput struct {
	Report       reportOutput `json:"report" yaml:"report"`
	RequestNonce string       `json:"requestNonce" yaml:"requestNonce"`
	SigUsage     string       `json:"sigUsage" yaml:"sigUsage"`
	HasHSK       bool         `json:"hasHSK" yaml:"hasHSK"`
	HasCEK       bool         `json:"hasCEK" yaml:"hasCEK"`
}

func readBundle(path string) (evidence.Bundle, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return evidence.Bundle{}, fmt.Errorf("reading evidence: %w", err)
	}
	return evidence.Unmarshal(raw)
}

// parseReportData decodes up to 64 bytes of hex encoded report data, zero padded.
// An empty string yields nil.
func parseReportData(s string) (*[types.ReportDataSize]byte, error) {
	if s == "" {
		return nil, nil
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decoding report data: %w", err)
	}
	if len(raw) > types.ReportDataSize {
		return nil, fmt.Errorf("report data must be at most %d bytes, got %d bytes", types.ReportDataSize, len(raw))
	}
	var data [types.ReportDataSize]byte
	copy(data[:], raw)
	return &data, nil
}

// parseNonce decodes a hex encoded nonce. An empty string yields a random nonce.
func parseNonce(s string) ([types.MNonceSize]byte, error) {
	if s == "" {
		var nonce [types.MNonceSize]byte
		if _, err := rand.Read(nonce[:]); err != nil {
			return nonce, fmt.Errorf("generating nonce: %w", err)
		}
		return nonce, nil
	}
	return decodeNonce(s)
}

// decodeNonce decodes a hex encoded nonce.
func decodeNonce(s string) ([types.MNonceSize]byte, error) {
	var nonce [types.MNonceSize]byte
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nonce, fmt.Errorf("decoding nonce: %w", err)
	}
	if len(raw) != types.MNonceSize {
		return nonce, fmt.Errorf("nonce must be %d bytes, got %d bytes", types.MNonceSize, len(raw))
	}
	copy(nonce[:], raw)
	return nonce, nil
}
