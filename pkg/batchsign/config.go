package batchsign

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultTimestampServer is used when neither timestamp server is configured.
	DefaultTimestampServer = "http://timestamp.verisign.com/scripts/timstamp.dll"

	DefaultMaxAttempts      = 3
	DefaultInitialRetryWait = 3 * time.Second
	DefaultBackoffExponent  = 2.0
)

// Config holds everything needed to sign a batch of files.
// It is built once at startup and must not be modified after Validate;
// every signing worker reads it concurrently.
type Config struct {
	InputFile   string `yaml:"input"`
	Description string `yaml:"description"`
	URL         string `yaml:"url"`

	CertificateFile       string `yaml:"certfile"`
	Password              string `yaml:"password"`
	AdditionalCertificate string `yaml:"addcert"`
	SubjectName           string `yaml:"subjectname"`

	TimestampServer        string `yaml:"timeserv"`
	RFC3161TimestampServer string `yaml:"rfc3161timeserver"`
	FileDigest             string `yaml:"filedigest"`
	TimestampDigest        string `yaml:"timedigest"`

	SigntoolPath    string `yaml:"sdkpath"`
	AppendSignature bool   `yaml:"appendsignature"`
	Verbose         bool   `yaml:"verbose"`
	ShowErrors      bool   `yaml:"errors"`

	MaxAttempts      int           `yaml:"maxattempts"`
	InitialRetryWait time.Duration `yaml:"retrywait"`
	BackoffExponent  float64       `yaml:"backoff"`
	Parallelism      int           `yaml:"parallel"`
}

// DefaultConfig returns a Config populated with the process-wide defaults.
func DefaultConfig() *Config {
	return &Config{
		TimestampServer:  DefaultTimestampServer,
		SigntoolPath:     DefaultSigntoolPath(),
		MaxAttempts:      DefaultMaxAttempts,
		InitialRetryWait: DefaultInitialRetryWait,
		BackoffExponent:  DefaultBackoffExponent,
		Parallelism:      runtime.NumCPU(),
	}
}

// DefaultSigntoolPath returns the 64-bit Windows 8.1 SDK location of signtool.exe.
func DefaultSigntoolPath() string {
	programFiles := os.Getenv("ProgramFiles(x86)")
	if programFiles == "" {
		programFiles = `C:\Program Files (x86)`
	}
	// Always a Windows path, regardless of the host separator.
	return programFiles + `\Windows Kits\8.1\bin\x64\signtool.exe`
}

// LoadConfigFile reads a YAML config file and overlays it on DefaultConfig.
// Relative input, certificate and signtool paths are resolved against the
// directory of the config file.
func LoadConfigFile(fs afero.Fs, path string) (*Config, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	for _, p := range []*string{&cfg.InputFile, &cfg.CertificateFile, &cfg.AdditionalCertificate} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(dir, *p)
		}
	}

	if cfg.Parallelism <= 0 {
		cfg.Parallelism = runtime.NumCPU()
	}
	return cfg, nil
}

// Validate checks the invariants every signing run relies on.
func (c *Config) Validate() error {
	if c.InputFile == "" {
		return fmt.Errorf("input file is required")
	}
	if c.Description == "" {
		return fmt.Errorf("description is required")
	}
	if c.URL == "" {
		return fmt.Errorf("content URL is required")
	}
	if c.CertificateFile == "" {
		return fmt.Errorf("certificate file is required")
	}
	if c.SigntoolPath == "" {
		return fmt.Errorf("signtool path is required")
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("maximum attempts must be at least 1, got %d", c.MaxAttempts)
	}
	if c.InitialRetryWait <= 0 {
		return fmt.Errorf("initial retry wait must be positive, got %s", c.InitialRetryWait)
	}
	if c.BackoffExponent <= 0 {
		return fmt.Errorf("backoff exponent must be positive, got %g", c.BackoffExponent)
	}
	if c.Parallelism <= 0 {
		c.Parallelism = runtime.NumCPU()
	}
	return nil
}

// UsesRFC3161 reports whether an RFC 3161 timestamp server takes precedence
// over the legacy Authenticode timestamp server.
func (c *Config) UsesRFC3161() bool {
	return c.RFC3161TimestampServer != ""
}
