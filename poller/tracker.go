package poller

import (
	"context"
	"time"

	"github.com/crypticpy/Grantscope-2-sub004/clock"
	"github.com/crypticpy/Grantscope-2-sub004/domain"
)

type decision int

const (
	decisionContinue decision = iota
	decisionCompleted
	decisionFailed
)

// tracker is the per-job state machine. All fields are guarded by the
// owning Poller's mutex.
type tracker struct {
	jobID    string
	opts     Options
	attempts int
	status   domain.JobStatus
	started  time.Time
	timedOut bool

	alive  bool
	timer  clock.Timer
	ctx    context.Context
	cancel context.CancelFunc
}

// begin counts an attempt and reports whether it is within budget. The
// check runs before the network call so the timeout lands on a fixed attempt.
func (t *tracker) begin() bool {
	t.attempts++
	return t.attempts <= t.opts.MaxAttempts
}

// observe folds one status read into the tracker. A transport error leaves
// the status untouched and keeps polling.
func (t *tracker) observe(snap domain.JobSnapshot, err error) decision {
	if err != nil {
		return decisionContinue
	}
	switch snap.Status {
	case domain.JobCompleted:
		t.status = domain.JobCompleted
		return decisionCompleted
	case domain.JobFailed:
		t.status = domain.JobFailed
		return decisionFailed
	case domain.JobQueued, domain.JobProcessing:
		t.status = snap.Status
	}
	return decisionContinue
}

// finish ends polling but keeps the tracker for progress reads.
func (t *tracker) finish() {
	t.alive = false
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.cancel()
}

func (t *tracker) progress(now time.Time) Progress {
	return Progress{
		JobID:     t.jobID,
		Status:    t.status,
		Attempts:  t.attempts,
		TimedOut:  t.timedOut,
		Done:      !t.alive,
		StartedAt: t.started,
		Elapsed:   now.Sub(t.started),
		Estimated: time.Duration(t.opts.MaxAttempts) * t.opts.Interval,
	}
}
