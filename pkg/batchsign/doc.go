// Package batchsign drives an external code signing tool (signtool.exe)
// over one file or a list of files.
//
// The package never signs anything itself. It builds the signtool command
// line for each target, runs it as a child process with a hard timeout,
// retries failures with exponential backoff and jitter, and aggregates the
// per-file outcomes into a single exit status.
//
// # Basic Usage
//
//	cfg := batchsign.DefaultConfig()
//	cfg.InputFile = "files.txt"
//	cfg.Description = "Example Corp"
//	cfg.URL = "https://example.com"
//	cfg.CertificateFile = "cert.pfx"
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
//	batch := batchsign.NewBatch(cfg, logger)
//	status, err := batch.Run(ctx)
//
// # List files
//
// An input ending in .txt is a list file: one path per line, relative to
// the list file's directory. Listed files that do not exist are skipped,
// the rest are signed concurrently.
package batchsign
