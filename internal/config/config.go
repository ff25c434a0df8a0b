// Package config loads the configuration of the command line tools.
package config

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/edgelesssys/go-csv-qpl/verification/kds"
	"github.com/edgelesssys/go-csv-qpl/verification/types"
	"gopkg.in/yaml.v3"
)

// Config is the configuration file.
//
//	hrk: /etc/csv/hrk.cert
//	hsk: /etc/csv/hsk.cert   # optional, skips the KDS
//	cek: /etc/csv/cek.cert   # optional, skips the KDS
//	kds:
//	  url: https://cert.hygon.cn/hsk_cek
//	  cacheTTL: 24h
//	  timeout: 30s
//	log:
//	  level: info
//	  development: false
//	verify:
//	  measurement: <64 hex digits>
//	  reportData: <128 hex digits>
type Config struct {
	HRK    string       `yaml:"hrk"`
	HSK    string       `yaml:"hsk,omitempty"`
	CEK    string       `yaml:"cek,omitempty"`
	KDS    KDSConfig    `yaml:"kds"`
	Log    LogConfig    `yaml:"log"`
	Verify VerifyConfig `yaml:"verify"`
}

// KDSConfig configures the KDS client.
type KDSConfig struct {
	URL      string        `yaml:"url"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
	Timeout  time.Duration `yaml:"timeout"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// VerifyConfig holds the values a report must match.
type VerifyConfig struct {
	Measurement string `yaml:"measurement,omitempty"`
	ReportData  string `yaml:"reportData,omitempty"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		KDS: KDSConfig{
			URL:      kds.DefaultURL,
			CacheTTL: kds.DefaultCacheTTL,
			Timeout:  kds.DefaultTimeout,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads the configuration file at path. Unset fields keep their default value.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}
	return Parse(raw)
}

// Parse parses a configuration file. Unknown fields are rejected.
func Parse(raw []byte) (Config, error) {
	cfg := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(raw))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c Config) Validate() error {
	if (c.HSK == "") != (c.CEK == "") {
		return errors.New("hsk and cek must be set together")
	}
	if c.KDS.URL == "" {
		return errors.New("kds.url must not be empty")
	}
	if c.KDS.CacheTTL < 0 || c.KDS.Timeout < 0 {
		return errors.New("kds.cacheTTL and kds.timeout must not be negative")
	}
	if _, err := c.Measurement(); err != nil {
		return err
	}
	if _, err := c.ReportData(); err != nil {
		return err
	}
	return nil
}

// Measurement returns the expected measurement, or nil if none is configured.
func (c Config) Measurement() (*[32]byte, error) {
	if c.Verify.Measurement == "" {
		return nil, nil
	}
	var measurement [32]byte
	if err := decodeHex(c.Verify.Measurement, measurement[:]); err != nil {
		return nil, fmt.Errorf("verify.measurement: %w", err)
	}
	return &measurement, nil
}

// ReportData returns the expected report data, or nil if none is configured.
// Shorter values are padded with zeros.
func (c Config) ReportData() (*[types.ReportDataSize]byte, error) {
	if c.Verify.ReportData == "" {
		return nil, nil
	}
	raw, err := hex.DecodeString(c.Verify.ReportData)
	if err != nil {
		return nil, fmt.Errorf("verify.reportData: %w", err)
	}
	if len(raw) > types.ReportDataSize {
		return nil, fmt.Errorf("verify.reportData must be at most %d bytes, got %d bytes", types.ReportDataSize, len(raw))
	}
	var data [types.ReportDataSize]byte
	copy(data[:], raw)
	return &data, nil
}

func decodeHex(s string, dst []byte) error {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	if len(raw) != len(dst) {
		return fmt.Errorf("must be %d bytes, got %d bytes", len(dst), len(raw))
	}
	copy(dst, raw)
	return nil
}

// LoadHRK reads and parses the HRK certificate.
func (c Config) LoadHRK() (types.CACertificate, error) {
	if c.HRK == "" {
		return types.CACertificate{}, errors.New("no HRK configured")
	}
	raw, err := os.ReadFile(c.HRK)
	if err != nil {
		return types.CACertificate{}, fmt.Errorf("reading HRK: %w", err)
	}
	return types.ParseCACertificate(raw)
}

// LoadChain reads and parses the locally configured HSK and CEK.
// It returns nil certificates if none are configured.
func (c Config) LoadChain() (*types.CACertificate, *types.CSVCertificate, error) {
	if c.HSK == "" {
		return nil, nil, nil
	}
	rawHSK, err := os.ReadFile(c.HSK)
	if err != nil {
		return nil, nil, fmt.Errorf("reading HSK: %w", err)
	}
	hsk, err := types.ParseCACertificate(rawHSK)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing HSK: %w", err)
	}
	rawCEK, err := os.ReadFile(c.CEK)
	if err != nil {
		return nil, nil, fmt.Errorf("reading CEK: %w", err)
	}
	cek, err := types.ParseCSVCertificate(rawCEK)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing CEK: %w", err)
	}
	return &hsk, &cek, nil
}
