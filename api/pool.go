package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"github.com/crypticpy/Grantscope-2-sub004/domain"
)

// PoolConfig sizes the job worker pool.
type PoolConfig struct {
	Workers int
	Buffer  int
	// Step is how long a job stays in each of the queued and processing
	// states.
	Step time.Duration
	// Handoff is how long Submit waits for buffer room before giving up.
	Handoff time.Duration
	// Timeout bounds the storage work of one job.
	Timeout time.Duration
}

type jobTask struct {
	userID string
	snap   domain.JobSnapshot
}

// Pool runs brief and scan jobs on a fixed set of workers fed by a
// buffered channel.
type Pool struct {
	store  Storage
	logger *log.Logger
	cfg    PoolConfig

	mu     sync.RWMutex
	tasks  chan jobTask
	closed bool
	wg     sync.WaitGroup

	stop     chan struct{}
	stopOnce sync.Once
}

// NewPool starts cfg.Workers workers.
func NewPool(store Storage, logger *log.Logger, cfg PoolConfig) *Pool {
	if logger == nil {
		panic("api.NewPool: logger is nil")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 256
	}
	if cfg.Step < 0 {
		cfg.Step = 0
	}
	if cfg.Handoff <= 0 {
		cfg.Handoff = 15 * time.Millisecond
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	p := &Pool{
		store:  store,
		logger: logger,
		cfg:    cfg,
		tasks:  make(chan jobTask, cfg.Buffer),
		stop:   make(chan struct{}),
	}
	for i := 0; i < cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	logger.Infof("job pool started, workers: %d, buffer: %d, step: %v", cfg.Workers, cfg.Buffer, cfg.Step)
	return p
}

// Submit hands a job to the workers. It returns false when the buffer stays
// full for the handoff timeout or the pool is closed.
func (p *Pool) Submit(userID string, snap domain.JobSnapshot) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	task := jobTask{userID: userID, snap: snap}
	select {
	case p.tasks <- task:
		return true
	default:
	}
	timer := time.NewTimer(p.cfg.Handoff)
	defer timer.Stop()
	select {
	case p.tasks <- task:
		return true
	case <-timer.C:
		return false
	}
}

// Close stops accepting jobs, abandons pending waits and waits for the
// workers to exit. Safe to call repeatedly.
func (p *Pool) Close() {
	p.stopOnce.Do(func() {
		close(p.stop)
		p.mu.Lock()
		p.closed = true
		close(p.tasks)
		p.mu.Unlock()
	})
	p.wg.Wait()
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for t := range p.tasks {
		if err := p.run(t); err != nil {
			p.logger.WithError(err).WithFields(log.Fields{
				"job_id": t.snap.JobID,
				"kind":   t.snap.Kind,
				"user":   t.userID,
				"worker": id,
			}).Error("job failed")
		}
	}
}

// run walks one job through processing to completed or failed.
func (p *Pool) run(t jobTask) error {
	if !p.wait(p.cfg.Step) {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.Timeout)
	defer cancel()

	snap := t.snap
	snap.Status = domain.JobProcessing
	if err := p.store.UpdateJob(ctx, t.userID, snap); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}
	if !p.wait(p.cfg.Step) {
		return nil
	}

	items, err := p.store.FetchItems(ctx, t.userID)
	if err != nil {
		return p.fail(ctx, t.userID, snap, fmt.Sprintf("could not read board: %v", err))
	}
	doc, summary, msg := buildResult(snap, items, time.Now().UTC())
	if msg != "" {
		return p.fail(ctx, t.userID, snap, msg)
	}
	if err := p.store.SaveResult(ctx, t.userID, snap.JobID, doc); err != nil {
		return p.fail(ctx, t.userID, snap, fmt.Sprintf("could not save result: %v", err))
	}
	snap.Status = domain.JobCompleted
	snap.Result = summary
	if err := p.store.UpdateJob(ctx, t.userID, snap); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	p.logger.WithFields(log.Fields{"job_id": snap.JobID, "kind": snap.Kind}).Debug("job completed")
	return nil
}

func (p *Pool) fail(ctx context.Context, userID string, snap domain.JobSnapshot, msg string) error {
	snap.Status = domain.JobFailed
	snap.Error = msg
	if err := p.store.UpdateJob(ctx, userID, snap); err != nil {
		return fmt.Errorf("mark failed (%s): %w", msg, err)
	}
	return fmt.Errorf("job %s: %s", snap.JobID, msg)
}

func (p *Pool) wait(d time.Duration) bool {
	if d <= 0 {
		select {
		case <-p.stop:
			return false
		default:
			return true
		}
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-p.stop:
		return false
	}
}

type briefDoc struct {
	JobID       string    `json:"jobId"`
	ItemID      string    `json:"itemId"`
	Title       string    `json:"title"`
	Container   string    `json:"container"`
	Brief       string    `json:"brief"`
	GeneratedAt time.Time `json:"generatedAt"`
}

type scanDoc struct {
	JobID      string         `json:"jobId"`
	Total      int            `json:"total"`
	Containers map[string]int `json:"containers"`
	ScannedAt  time.Time      `json:"scannedAt"`
}

// buildResult produces the result document and the short summary stored on
// the job. A non-empty msg is a job failure.
func buildResult(snap domain.JobSnapshot, items []domain.Item, now time.Time) (doc, summary []byte, msg string) {
	var v any
	switch snap.Kind {
	case domain.JobKindBrief:
		var found *domain.Item
		for i := range items {
			if items[i].ID == snap.ItemID {
				found = &items[i]
				break
			}
		}
		if found == nil {
			return nil, nil, fmt.Sprintf("item %s is no longer on the board", snap.ItemID)
		}
		v = briefDoc{
			JobID:       snap.JobID,
			ItemID:      found.ID,
			Title:       found.Title,
			Container:   found.ContainerID,
			Brief:       fmt.Sprintf("Brief for %q: currently in %s at position %d. %s", found.Title, found.ContainerID, found.Position+1, found.Notes),
			GeneratedAt: now,
		}
	case domain.JobKindScan:
		counts := make(map[string]int)
		for _, it := range items {
			counts[it.ContainerID]++
		}
		v = scanDoc{JobID: snap.JobID, Total: len(items), Containers: counts, ScannedAt: now}
	default:
		return nil, nil, fmt.Sprintf("unknown job kind %q", snap.Kind)
	}
	doc, err := sonic.Marshal(v)
	if err != nil {
		return nil, nil, fmt.Sprintf("encode result: %v", err)
	}
	summary, err = sonic.Marshal(map[string]string{"resultUrl": "/api/jobs/" + snap.JobID + "/result"})
	if err != nil {
		return nil, nil, fmt.Sprintf("encode summary: %v", err)
	}
	return doc, summary, ""
}
