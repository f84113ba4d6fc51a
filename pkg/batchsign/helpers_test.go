package batchsign

import (
	"context"
	"sync"
	"time"

	"github.com/aluedeke/go-batchsign/pkg/logger"
	"github.com/spf13/afero"
)

const testSigntool = "/sdk/signtool.exe"

// fakeExecutor records every invocation and answers with respond.
type fakeExecutor struct {
	mu       sync.Mutex
	calls    map[string]int
	argv     [][]string
	inFlight int
	maxSeen  int
	delay    time.Duration

	// respond returns the result for the n-th call (1-indexed) on target.
	respond func(target string, n int) (ExecResult, error)
}

func newFakeExecutor(respond func(target string, n int) (ExecResult, error)) *fakeExecutor {
	return &fakeExecutor{calls: map[string]int{}, respond: respond}
}

func (f *fakeExecutor) Execute(path string, args []string, timeout time.Duration) (ExecResult, error) {
	target := args[len(args)-1]

	f.mu.Lock()
	f.calls[target]++
	n := f.calls[target]
	f.argv = append(f.argv, args)
	f.inFlight++
	if f.inFlight > f.maxSeen {
		f.maxSeen = f.inFlight
	}
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()

	return f.respond(target, n)
}

func (f *fakeExecutor) callsFor(target string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[target]
}

func (f *fakeExecutor) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

func alwaysSucceed(string, int) (ExecResult, error) {
	return ExecResult{Stdout: "Successfully signed"}, nil
}

func alwaysFail(string, int) (ExecResult, error) {
	return ExecResult{ExitCode: 1, Stderr: "SignTool Error: timestamp server unreachable"}, nil
}

// succeedOn fails every call before the k-th one.
func succeedOn(k int) func(string, int) (ExecResult, error) {
	return func(_ string, n int) (ExecResult, error) {
		if n >= k {
			return alwaysSucceed("", n)
		}
		return alwaysFail("", n)
	}
}

// sleepRecorder replaces Signer.sleep and keeps the requested durations.
type sleepRecorder struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.sleeps = append(r.sleeps, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *sleepRecorder) recorded() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.sleeps...)
}

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.InputFile = "/work/App.dll"
	cfg.Description = "Example Corp"
	cfg.URL = "https://example.com"
	cfg.CertificateFile = "/certs/cert.pfx"
	cfg.Password = "hunter2"
	cfg.SigntoolPath = testSigntool
	cfg.Parallelism = 4
	return cfg
}

func newTestSigner(cfg *Config, exec Executor, rec *sleepRecorder, random float64) *Signer {
	log := logger.Discard()
	s := NewSigner(cfg, NewInvoker(cfg, exec, log), log)
	s.sleep = rec.sleep
	s.random = func() float64 { return random }
	return s
}

func newTestFs(files ...string) afero.Fs {
	fs := afero.NewMemMapFs()
	_ = afero.WriteFile(fs, testSigntool, []byte("MZ"), 0o755)
	for _, f := range files {
		_ = afero.WriteFile(fs, f, []byte("MZ"), 0o644)
	}
	return fs
}
