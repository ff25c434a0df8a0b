package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/edgelesssys/go-csv-qpl/csv"
	"github.com/edgelesssys/go-csv-qpl/verification/types"
	"github.com/spf13/cobra"
)

var pdhOutDir string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the platform status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withPlatform(func(p *csv.Platform) error {
			status, err := p.Status()
			if err != nil {
				return err
			}
			return formatOutput(cmd.OutOrStdout(), statusOutput{
				API:        fmt.Sprintf("%d.%d", status.APIMajor, status.APIMinor),
				Build:      status.Build,
				State:      stateName(status.State),
				Owned:      status.Owned(),
				GuestCount: status.GuestCount,
			})
		})
	},
}

var idCmd = &cobra.Command{
	Use:   "id",
	Short: "Show the chip id",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withPlatform(func(p *csv.Platform) error {
			id, err := p.GetID()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), id)
			return err
		})
	},
}

var pdhExportCmd = &cobra.Command{
	Use:   "pdh-export",
	Short: "Export the PDH certificate and the platform certificate chain",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		return withPlatform(func(p *csv.Platform) error {
			pdh, chain, err := p.PDHCertExport()
			if err != nil {
				return err
			}
			if err := os.MkdirAll(pdhOutDir, 0o755); err != nil {
				return fmt.Errorf("creating output directory: %w", err)
			}
			for name, cert := range map[string]types.CSVCertificate{
				"pdh.cert": pdh,
				"pek.cert": chain.PEK,
				"oca.cert": chain.OCA,
				"cek.cert": chain.CEK,
			} {
				raw := cert.Marshal()
				path := filepath.Join(pdhOutDir, name)
				if err := os.WriteFile(path, raw[:], 0o644); err != nil {
					return fmt.Errorf("writing %s: %w", path, err)
				}
				logger.Info("Wrote certificate to " + path)
			}
			return nil
		})
	},
}

func init() {
	pdhExportCmd.Flags().StringVar(&pdhOutDir, "out", ".", "Directory to write the certificates to")
	rootCmd.AddCommand(statusCmd, idCmd, pdhExportCmd)
}

type statusOutput struct {
	API        string `json:"api" yaml:"api"`
	Build      uint8  `json:"build" yaml:"build"`
	State      string `json:"state" yaml:"state"`
	Owned      bool   `json:"owned" yaml:"owned"`
	GuestCount uint32 `json:"guestCount" yaml:"guestCount"`
}

func stateName(state uint8) string {
	switch state {
	case csv.StateUninitialized:
		return "uninitialized"
	case csv.StateInitialized:
		return "initialized"
	case csv.StateWorking:
		return "working"
	default:
		return fmt.Sprintf("unknown (%d)", state)
	}
}

// withPlatform opens the platform device for the duration of fn.
func withPlatform(fn func(p *csv.Platform) error) error {
	dev, err := csv.OpenPlatform()
	if err != nil {
		return err
	}
	defer dev.Close()
	return fn(csv.NewPlatform(dev))
}
