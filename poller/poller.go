// Package poller tracks server-side jobs by polling their status until they
// complete, fail or run out of attempts.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"github.com/crypticpy/Grantscope-2-sub004/clock"
	"github.com/crypticpy/Grantscope-2-sub004/domain"
)

const (
	DefaultInterval    = 2 * time.Second
	DefaultMaxAttempts = 90
	// DefaultHistory is how many finished jobs stay readable through Progress.
	DefaultHistory = 16
)

// ErrJobFailed is wrapped by the error handed to OnFailed when the server
// reports a terminal failure.
var ErrJobFailed = errors.New("job failed")

// JobError carries the server-provided failure message.
type JobError struct {
	JobID   string
	Message string
}

func (e *JobError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("job %s failed", e.JobID)
	}
	return fmt.Sprintf("job %s failed: %s", e.JobID, e.Message)
}

func (e *JobError) Unwrap() error { return ErrJobFailed }

// StatusSource reads job status. It returns an error only for transport
// failures; an unfinished job is a successful read.
type StatusSource interface {
	PollJobStatus(ctx context.Context, jobID string) (domain.JobSnapshot, error)
}

// Options configures one tracked job.
type Options struct {
	Interval    time.Duration
	MaxAttempts int

	OnCompleted func(domain.JobSnapshot)
	OnFailed    func(error)
	OnTimeout   func()

	// Finalize optionally fetches the full result of a completed job. Its
	// error is reported through OnFailed.
	Finalize func(ctx context.Context, snap domain.JobSnapshot) (sonic.NoCopyRawMessage, error)
}

// Progress is the observable state of a tracked job.
type Progress struct {
	JobID     string
	Status    domain.JobStatus
	Attempts  int
	TimedOut  bool
	Done      bool
	StartedAt time.Time
	Elapsed   time.Duration
	Estimated time.Duration
}

// Poller tracks any number of jobs, each with its own timer and counter.
type Poller struct {
	source StatusSource
	clock  clock.Clock
	logger *log.Logger
	spawn  func(func())

	mu      sync.Mutex
	jobs    map[string]*tracker
	done    []*tracker
	history int
}

// New creates a poller. A nil clock uses the process clock and a nil logger
// the logrus standard logger.
func New(source StatusSource, c clock.Clock, logger *log.Logger) *Poller {
	if source == nil {
		panic("poller.New: status source is nil")
	}
	if c == nil {
		c = clock.Real()
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Poller{
		source: source,
		clock:  c,
		logger: logger,
		spawn:   func(f func()) { go f() },
		jobs:    make(map[string]*tracker),
		history: DefaultHistory,
	}
}

// Start begins tracking jobID and issues the first status check right away.
// Starting an id that is already tracked replaces the previous tracker.
func (p *Poller) Start(jobID string, opts Options) {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	ctx, cancel := context.WithCancel(context.Background())
	t := &tracker{
		jobID:   jobID,
		opts:    opts,
		status:  domain.JobQueued,
		started: p.clock.Now(),
		alive:   true,
		ctx:     ctx,
		cancel:  cancel,
	}

	p.mu.Lock()
	if prev, ok := p.jobs[jobID]; ok {
		prev.finish()
	}
	p.jobs[jobID] = t
	p.mu.Unlock()

	p.logger.WithFields(log.Fields{"job_id": jobID, "interval": opts.Interval, "max_attempts": opts.MaxAttempts}).Debug("job polling started")
	p.spawn(func() { p.check(t) })
}

// Stop stops tracking jobID. No callback for it fires afterwards, even for a
// check already in flight. Safe to call repeatedly and for unknown ids.
func (p *Poller) Stop(jobID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t, ok := p.jobs[jobID]; ok {
		t.finish()
		delete(p.jobs, jobID)
	}
}

// StopAll stops every tracked job. Used on teardown.
func (p *Poller) StopAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, t := range p.jobs {
		t.finish()
		delete(p.jobs, id)
	}
}

// Progress reports the state of a tracked or finished job.
func (p *Poller) Progress(jobID string) (Progress, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.jobs[jobID]
	if !ok {
		return Progress{}, false
	}
	return t.progress(p.clock.Now()), true
}

// Active counts jobs still being polled.
func (p *Poller) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, t := range p.jobs {
		if t.alive {
			n++
		}
	}
	return n
}

func (p *Poller) check(t *tracker) {
	p.mu.Lock()
	if !t.alive {
		p.mu.Unlock()
		return
	}
	t.timer = nil
	if !t.begin() {
		p.retireLocked(t)
		t.timedOut = true
		p.mu.Unlock()
		p.logger.WithFields(log.Fields{"job_id": t.jobID, "attempts": t.opts.MaxAttempts}).Warn("job polling timed out")
		if t.opts.OnTimeout != nil {
			t.opts.OnTimeout()
		}
		return
	}
	attempt := t.attempts
	p.mu.Unlock()

	snap, err := p.source.PollJobStatus(t.ctx, t.jobID)

	p.mu.Lock()
	if !t.alive {
		p.mu.Unlock()
		return
	}
	switch t.observe(snap, err) {
	case decisionContinue:
		if err != nil {
			p.logger.WithError(err).WithFields(log.Fields{"job_id": t.jobID, "attempt": attempt}).Warn("job status check failed; retrying")
		}
		t.timer = p.clock.AfterFunc(t.opts.Interval, func() { p.check(t) })
		p.mu.Unlock()
	case decisionFailed:
		p.retireLocked(t)
		p.mu.Unlock()
		if t.opts.OnFailed != nil {
			t.opts.OnFailed(&JobError{JobID: t.jobID, Message: snap.Error})
		}
	case decisionCompleted:
		if t.opts.Finalize == nil {
			p.retireLocked(t)
			p.mu.Unlock()
			if t.opts.OnCompleted != nil {
				t.opts.OnCompleted(snap)
			}
			return
		}
		p.mu.Unlock()
		p.finalize(t, snap)
	}
}

func (p *Poller) finalize(t *tracker, snap domain.JobSnapshot) {
	result, err := t.opts.Finalize(t.ctx, snap)

	p.mu.Lock()
	if !t.alive {
		p.mu.Unlock()
		return
	}
	p.retireLocked(t)
	p.mu.Unlock()

	if err != nil {
		p.logger.WithError(err).WithField("job_id", t.jobID).Error("job result fetch failed")
		if t.opts.OnFailed != nil {
			t.opts.OnFailed(fmt.Errorf("fetch result of job %s: %w", t.jobID, err))
		}
		return
	}
	snap.Result = result
	if t.opts.OnCompleted != nil {
		t.opts.OnCompleted(snap)
	}
}

// retireLocked ends t and keeps it readable until more than history jobs
// have finished after it.
func (p *Poller) retireLocked(t *tracker) {
	t.finish()
	p.done = append(p.done, t)
	for len(p.done) > p.history {
		old := p.done[0]
		p.done[0] = nil
		p.done = p.done[1:]
		if p.jobs[old.jobID] == old {
			delete(p.jobs, old.jobID)
		}
	}
}
