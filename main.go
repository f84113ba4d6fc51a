package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aluedeke/go-batchsign/pkg/batchsign"
	"github.com/aluedeke/go-batchsign/pkg/logger"
	"github.com/docopt/docopt-go"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/term"
)

const version = "1.0.0"

const usage = `go-batchsign - Batch Authenticode signing with signtool.exe

Signs one file, or every file named in a .txt list, by running signtool.exe
once per file. Files from a list are signed in parallel, and failed runs are
retried with exponential backoff.

Usage:
  go-batchsign sign [--config=<path>] [--input=<path>] [--description=<text>] [--url=<url>] [--certfile=<path>] [--pfxpass=<password>] [options]
  go-batchsign info --certfile=<path> [--pfxpass=<password>]
  go-batchsign -h | --help
  go-batchsign --version

Commands:
  sign      Sign a file or a list of files
  info      Display the certificates contained in a certificate file

Options:
  --config=<path>               YAML file with default values for any of the options below
  --input=<path>                The file to sign. A .txt input is a list of files to sign,
                                one per line, relative to the list file
  --description=<text>          Content description, often the company/vendor name
  --url=<url>                   Content URL, often the company/vendor site URL
  --certfile=<path>             The signing certificate file (PFX)
  --pfxpass=<password>          Password of the PFX file (or BATCHSIGN_PASSWORD env var, "-" to prompt)
  --timeserv=<url>              Legacy timestamp server URL (defaults to Verisign)
  --rfc3161timeserver=<url>     RFC 3161 timestamp server URL, cannot be used with --timeserv
  --sdkpath=<path>              Path to signtool.exe (defaults to the 64-bit Windows 8.1 SDK)
  --filedigest=<alg>            File digest algorithm, for example SHA256
  --timedigest=<alg>            Timestamp digest algorithm, for example SHA256
  --subjectname=<name>          Subject name (or a substring of it) of the signing certificate
  --addcert=<path>              Additional certificate to add to the signature block
  --appendsignature             Append this signature instead of replacing the primary one
  --verbose                     Pass /v to signtool
  --errors                      Dump full command lines and signtool output (reveals the password)
  --maxattempts=<n>             Maximum attempts per file (default 3)
  --retrywait=<duration>        Wait before the first retry, e.g. 3s (default 3s)
  --backoff=<factor>            Backoff exponent applied to the wait on every retry (default 2)
  --parallel=<n>                Maximum number of files signed at once (default 0, the number of CPUs)
  -h --help                     Show this help message
  --version                     Show version

Environment Variables:
  BATCHSIGN_PASSWORD            PFX password (overridden by --pfxpass)

Exit Status:
  Single file: 0 on success, 1 on failure.
  List file:   the number of files that could not be signed.
  -1 when signtool.exe cannot be found, -2 when the run was aborted.

Examples:
  # Sign one assembly with an RFC 3161 timestamp
  go-batchsign sign --input=App.dll --description="Example Corp" --url=https://example.com \
    --certfile=cert.pfx --pfxpass=secret --rfc3161timeserver=http://timestamp.digicert.com --filedigest=SHA256

  # Sign every file listed in files.txt, four at a time
  go-batchsign sign --input=build/files.txt --config=signing.yaml --parallel=4

  # Inspect the certificates in a PFX
  go-batchsign info --certfile=cert.pfx --pfxpass=secret
`

func main() {
	opts, err := docopt.ParseArgs(usage, os.Args[1:], version)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing arguments: %v\n", err)
		os.Exit(1)
	}

	if sign, _ := opts.Bool("sign"); sign {
		os.Exit(runSign(opts))
	} else if info, _ := opts.Bool("info"); info {
		if err := runInfo(opts); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
}

func runSign(opts docopt.Opts) int {
	cfg, err := buildConfig(opts, afero.NewOsFs())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	log := logger.New(os.Stdout, logrus.InfoLevel)
	batch := batchsign.NewBatch(cfg, log)

	status, err := batch.Run(context.Background())
	if err != nil && !errors.Is(err, batchsign.ErrSigntoolNotFound) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return status
}

// buildConfig layers the config file (if any), the command line flags and
// the environment into a validated Config. Flags win over the file.
func buildConfig(opts docopt.Opts, fs afero.Fs) (*batchsign.Config, error) {
	cfg := batchsign.DefaultConfig()
	if path, _ := opts.String("--config"); path != "" {
		var err error
		if cfg, err = batchsign.LoadConfigFile(fs, path); err != nil {
			return nil, err
		}
	}

	setString(opts, "--input", &cfg.InputFile)
	setString(opts, "--description", &cfg.Description)
	setString(opts, "--url", &cfg.URL)
	setString(opts, "--certfile", &cfg.CertificateFile)
	setString(opts, "--pfxpass", &cfg.Password)
	setString(opts, "--sdkpath", &cfg.SigntoolPath)
	setString(opts, "--filedigest", &cfg.FileDigest)
	setString(opts, "--timedigest", &cfg.TimestampDigest)
	setString(opts, "--subjectname", &cfg.SubjectName)
	setString(opts, "--addcert", &cfg.AdditionalCertificate)

	timeserv, _ := opts.String("--timeserv")
	rfc3161, _ := opts.String("--rfc3161timeserver")
	if timeserv != "" && rfc3161 != "" {
		return nil, fmt.Errorf("--timeserv and --rfc3161timeserver cannot be used together")
	}
	if timeserv != "" {
		cfg.TimestampServer = timeserv
		cfg.RFC3161TimestampServer = ""
	}
	if rfc3161 != "" {
		cfg.RFC3161TimestampServer = rfc3161
	}

	setBool(opts, "--appendsignature", &cfg.AppendSignature)
	setBool(opts, "--verbose", &cfg.Verbose)
	setBool(opts, "--errors", &cfg.ShowErrors)

	if err := setInt(opts, "--maxattempts", &cfg.MaxAttempts); err != nil {
		return nil, err
	}
	if err := setInt(opts, "--parallel", &cfg.Parallelism); err != nil {
		return nil, err
	}
	if s, _ := opts.String("--retrywait"); s != "" {
		d, err := parseWait(s)
		if err != nil {
			return nil, fmt.Errorf("invalid --retrywait: %w", err)
		}
		cfg.InitialRetryWait = d
	}
	if s, _ := opts.String("--backoff"); s != "" {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid --backoff: %w", err)
		}
		cfg.BackoffExponent = f
	}

	if cfg.Password == "" {
		cfg.Password = os.Getenv("BATCHSIGN_PASSWORD")
	}
	if cfg.Password == "-" {
		password, err := promptPassword(cfg.CertificateFile)
		if err != nil {
			return nil, err
		}
		cfg.Password = password
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setString(opts docopt.Opts, key string, dst *string) {
	if v, _ := opts.String(key); v != "" {
		*dst = v
	}
}

func setBool(opts docopt.Opts, key string, dst *bool) {
	if v, _ := opts.Bool(key); v {
		*dst = true
	}
}

func setInt(opts docopt.Opts, key string, dst *int) error {
	s, _ := opts.String(key)
	if s == "" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

// parseWait accepts a Go duration ("1500ms") or a plain number of seconds.
func parseWait(s string) (time.Duration, error) {
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	return time.ParseDuration(s)
}

func promptPassword(certFile string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("--pfxpass=- requires an interactive terminal")
	}
	fmt.Fprintf(os.Stderr, "Password for %s: ", certFile)
	password, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimSpace(string(password)), nil
}

func runInfo(opts docopt.Opts) error {
	certPath, _ := opts.String("--certfile")
	password, _ := opts.String("--pfxpass")
	if password == "" {
		password = os.Getenv("BATCHSIGN_PASSWORD")
	}
	if password == "-" {
		var err error
		if password, err = promptPassword(certPath); err != nil {
			return err
		}
	}

	data, err := os.ReadFile(certPath)
	if err != nil {
		return fmt.Errorf("failed to read certificate file: %w", err)
	}

	infos, err := batchsign.LoadCertificateInfo(data, password, certPath)
	if err != nil {
		return fmt.Errorf("failed to parse certificate file: %w", err)
	}

	fmt.Println("Certificate File Information")
	fmt.Println("============================")
	fmt.Printf("File:           %s\n", certPath)
	batchsign.PrintCertificateInfo(infos, os.Stdout)
	return nil
}
