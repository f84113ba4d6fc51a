package batchsign

import (
	"time"

	"github.com/sirupsen/logrus"
)

const rawOutputRule = "--------------------------------"

// Invoker runs signtool once for a single target.
type Invoker struct {
	cfg     *Config
	exec    Executor
	log     logrus.FieldLogger
	timeout time.Duration
}

// NewInvoker returns an Invoker that uses exec to launch signtool.
func NewInvoker(cfg *Config, exec Executor, log logrus.FieldLogger) *Invoker {
	return &Invoker{
		cfg:     cfg,
		exec:    exec,
		log:     log,
		timeout: DefaultTimeout,
	}
}

// Invoke signs target once.
//
// A non-zero exit, a timeout or a process that could not be started are all
// returned as a failed outcome with a nil error. The only error returned is
// a *TerminateError, which must abort the run.
func (i *Invoker) Invoke(target string) (AttemptOutcome, error) {
	args := BuildArguments(i.cfg, target)
	cmdLine := RenderCommandLine(i.cfg.SigntoolPath, args)
	log := i.log.WithField("file", target)

	if i.cfg.ShowErrors {
		log.Info(cmdLine)
	}

	res, err := i.exec.Execute(i.cfg.SigntoolPath, args, i.timeout)
	if err != nil {
		if IsFatal(err) {
			log.WithError(err).Error("signtool could not be terminated")
			return AttemptOutcome{Status: OutcomeTimedOut, ExitCode: -1, CommandLine: cmdLine}, err
		}
		log.WithError(err).Errorf("A signtool execution for filename %s failed", target)
		return AttemptOutcome{
			Status:      OutcomeFailed,
			ExitCode:    -1,
			Stderr:      err.Error(),
			CommandLine: cmdLine,
		}, nil
	}

	outcome := AttemptOutcome{
		ExitCode:    res.ExitCode,
		Stdout:      res.Stdout,
		Stderr:      res.Stderr,
		CommandLine: cmdLine,
	}

	switch {
	case res.TimedOut:
		outcome.Status = OutcomeTimedOut
		log.Errorf("A signtool execution for filename %s timed out after %s", target, i.timeout)
		i.dumpRaw(log, outcome)
	case res.ExitCode == 0:
		outcome.Status = OutcomeSucceeded
		if i.cfg.ShowErrors {
			log.Info(res.Stdout)
		}
	default:
		outcome.Status = OutcomeFailed
		log.Errorf("A signtool execution for filename %s failed", target)
		i.dumpRaw(log, outcome)
	}

	return outcome, nil
}

// dumpRaw writes the full command line and process output. Only enabled by
// ShowErrors because the command line carries the PFX password.
func (i *Invoker) dumpRaw(log logrus.FieldLogger, o AttemptOutcome) {
	if !i.cfg.ShowErrors {
		return
	}
	log.Info(rawOutputRule)
	log.Info(o.CommandLine)
	log.Info(rawOutputRule)
	log.Info(o.Stdout)
	log.Info(o.Stderr)
	log.Info(rawOutputRule)
	log.Infof("Raw exit code: %d", o.ExitCode)
}
