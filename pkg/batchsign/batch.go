package batchsign

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
)

// Batch signs the input of a Config, either a single file or a list file.
type Batch struct {
	cfg    *Config
	fs     afero.Fs
	signer *Signer
	log    logrus.FieldLogger
	out    io.Writer
}

// Option customizes a Batch.
type Option func(*batchOptions)

type batchOptions struct {
	fs       afero.Fs
	executor Executor
	out      io.Writer
}

// WithFs sets the filesystem used to read list files and check that
// signtool and the targets exist.
func WithFs(fs afero.Fs) Option {
	return func(o *batchOptions) { o.fs = fs }
}

// WithExecutor replaces the process executor used to launch signtool.
func WithExecutor(e Executor) Option {
	return func(o *batchOptions) { o.executor = e }
}

// WithOutput sets where the final summary line is written.
func WithOutput(w io.Writer) Option {
	return func(o *batchOptions) { o.out = w }
}

// NewBatch returns a Batch for a validated cfg. Every log entry of the run
// carries a run id so that interleaved output of concurrent runs can be told apart.
func NewBatch(cfg *Config, log logrus.FieldLogger, opts ...Option) *Batch {
	o := batchOptions{
		fs:       afero.NewOsFs(),
		executor: ProcessExecutor{},
		out:      os.Stdout,
	}
	for _, opt := range opts {
		opt(&o)
	}

	log = log.WithField("run", uuid.NewString())
	invoker := NewInvoker(cfg, o.executor, log)

	return &Batch{
		cfg:    cfg,
		fs:     o.fs,
		signer: NewSigner(cfg, invoker, log),
		log:    log,
		out:    o.out,
	}
}

// Run signs the configured input and returns the process exit status.
//
// Single file: 0 on success, 1 on failure. List file: the number of files
// that could not be signed. ExitToolNotFound when signtool is missing, in
// which case no target is read. ExitFatal together with the error when the
// run had to be aborted.
func (b *Batch) Run(ctx context.Context) (int, error) {
	if !fileExists(b.fs, b.cfg.SigntoolPath) {
		b.log.Errorf("The signtool path %s is invalid/incorrect", b.cfg.SigntoolPath)
		return ExitToolNotFound, fmt.Errorf("%w: %s", ErrSigntoolNotFound, b.cfg.SigntoolPath)
	}

	Preflight(b.cfg, b.fs, b.log)

	if !IsFileList(b.cfg.InputFile) {
		res, err := b.signer.SignWithRetry(ctx, b.cfg.InputFile)
		if err != nil {
			return ExitFatal, err
		}
		if !res.Succeeded {
			return 1, nil
		}
		return 0, nil
	}

	res, err := b.Execute(ctx)
	if err != nil {
		return ExitFatal, err
	}

	if res.Failed > 0 {
		color.New(color.FgRed).Fprintf(b.out, "** %d out of %d files were not successfully signed **\n", res.Failed, res.Total)
	} else {
		color.New(color.FgGreen).Fprintf(b.out, "OK: %d files successfully signed\n", res.Total)
	}
	return res.Failed, nil
}

// Execute signs every existing file of the list file concurrently and
// waits for all of them. Missing files are skipped and are not failures.
//
// At most cfg.Parallelism files are signed at the same time. A fatal error
// in one worker cancels the others between attempts and stops dispatching.
// When an error is returned the counts are partial: entries after the point
// of the abort are neither checked nor counted as skipped.
func (b *Batch) Execute(ctx context.Context) (BatchResult, error) {
	files, err := LoadFileList(b.fs, b.cfg.InputFile)
	if err != nil {
		return BatchResult{}, err
	}

	result := BatchResult{Total: len(files)}
	failed := atomic.NewInt64(0)
	succeeded := atomic.NewInt64(0)

	limit := b.cfg.Parallelism
	if limit <= 0 {
		limit = runtime.NumCPU()
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for _, file := range files {
		if !fileExists(b.fs, file) {
			b.log.WithField("file", file).Warnf("File %s does not exist: Skipping", file)
			result.Skipped++
			continue
		}
		if gctx.Err() != nil {
			break
		}

		g.Go(func() error {
			res, err := b.signer.SignWithRetry(gctx, file)
			if res.Succeeded {
				succeeded.Inc()
			} else {
				failed.Inc()
			}
			return err
		})
	}

	err = g.Wait()
	result.Failed = int(failed.Load())
	result.Succeeded = int(succeeded.Load())
	if err != nil {
		return result, fmt.Errorf("signing aborted: %w", err)
	}
	return result, nil
}

func fileExists(fs afero.Fs, path string) bool {
	info, err := fs.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
