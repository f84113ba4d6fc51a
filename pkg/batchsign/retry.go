package batchsign

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/sirupsen/logrus"
)

// Signer signs a single target with bounded retries.
type Signer struct {
	cfg     *Config
	invoker *Invoker
	log     logrus.FieldLogger

	// random returns a value in [0, 1). Replaced in tests.
	random func() float64
	// sleep blocks for d or until ctx is done.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewSigner returns a Signer that runs attempts through invoker.
func NewSigner(cfg *Config, invoker *Invoker, log logrus.FieldLogger) *Signer {
	return &Signer{
		cfg:     cfg,
		invoker: invoker,
		log:     log,
		random:  rand.Float64,
		sleep:   sleepContext,
	}
}

// SignWithRetry signs target, retrying failed attempts up to cfg.MaxAttempts.
//
// The returned error is non-nil only when the run must stop: a process that
// could not be terminated, or ctx being cancelled between attempts. An
// exhausted target is reported through FileResult with a nil error.
func (s *Signer) SignWithRetry(ctx context.Context, target string) (FileResult, error) {
	log := s.log.WithField("file", target)
	result := FileResult{Target: target}
	wait := s.cfg.InitialRetryWait

	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			var delay time.Duration
			wait, delay = nextBackoff(wait, s.cfg.BackoffExponent, s.random())

			log.Infof("Performing attempt #%d of %d after %.3fs...", attempt, s.cfg.MaxAttempts, delay.Seconds())
			if err := s.sleep(ctx, delay); err != nil {
				return result, err
			}
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}

		result.Attempts = attempt
		outcome, err := s.invoker.Invoke(target)
		if err != nil {
			return result, err
		}
		if outcome.Succeeded() {
			log.Infof("Signed OK: %s", target)
			result.Succeeded = true
			return result, nil
		}
	}

	log.Errorf("Failed to sign %s: Maximum of %d attempts exceeded", target, s.cfg.MaxAttempts)
	return result, nil
}

// nextBackoff grows wait by exponent and picks the actual delay from
// [wait/2, wait) using r in [0, 1).
func nextBackoff(wait time.Duration, exponent, r float64) (next, delay time.Duration) {
	next = time.Duration(float64(wait) * exponent)
	half := float64(next) / 2
	delay = time.Duration(half + r*half)
	return next, delay
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
