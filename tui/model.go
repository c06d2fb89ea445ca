// Package tui is the terminal front end of the board. It wires keyboard
// input through navigation and the debounce gates into the optimistic
// controller, and shows undo, notification and job progress state.
package tui

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	tea "github.com/charmbracelet/bubbletea"
	log "github.com/sirupsen/logrus"

	"github.com/crypticpy/Grantscope-2-sub004/board"
	"github.com/crypticpy/Grantscope-2-sub004/clock"
	"github.com/crypticpy/Grantscope-2-sub004/debounce"
	"github.com/crypticpy/Grantscope-2-sub004/domain"
	"github.com/crypticpy/Grantscope-2-sub004/navigation"
	"github.com/crypticpy/Grantscope-2-sub004/notify"
	"github.com/crypticpy/Grantscope-2-sub004/optimistic"
	"github.com/crypticpy/Grantscope-2-sub004/poller"
	"github.com/crypticpy/Grantscope-2-sub004/undo"
)

// Service is the board service as seen by the front end.
type Service interface {
	optimistic.Mutator
	poller.StatusSource
	FetchBoard(ctx context.Context) ([]domain.Item, error)
	StartJob(ctx context.Context, kind, itemID string) (domain.JobAccepted, error)
	Finalize(ctx context.Context, snap domain.JobSnapshot) (sonic.NoCopyRawMessage, error)
}

// Settings tunes the engine components built by New.
type Settings struct {
	RequestTimeout    time.Duration
	PollInterval      time.Duration
	PollMaxAttempts   int
	UndoWindow        time.Duration
	DebounceThreshold time.Duration
	Keymap            navigation.Keymap
	Thresholds        navigation.Thresholds
}

// Deps are the collaborators of the front end. Clock and Logger are optional.
type Deps struct {
	Service  Service
	Clock    clock.Clock
	Logger   *log.Logger
	Settings Settings
}

// Columns shown by the front end, in order. Approved and dismissed items
// are counted in the header only.
var Columns = []string{domain.ContainerInbox, domain.ContainerResearch, domain.ContainerReview}

const (
	eventBuffer = 64
	maxJobs     = 4

	// cellWidth converts terminal columns to the pixel units of the swipe
	// thresholds.
	cellWidth = 10.0
)

type (
	boardLoadedMsg struct {
		items []domain.Item
		err   error
	}
	settledMsg    struct{}
	noteMsg       domain.Notification
	undoMsg       undo.Affordance
	jobChangedMsg struct{ jobID string }
	jobStartedMsg struct {
		kind string
		acc  domain.JobAccepted
		err  error
	}
	progressTickMsg struct{}
)

// Model is the bubbletea model of the board.
type Model struct {
	svc      Service
	settings Settings
	logger   *log.Logger
	clock    clock.Clock

	store     *board.Store
	ctrl      *optimistic.Controller
	nav       *navigation.Controller
	poll      *poller.Poller
	countdown *undo.Countdown
	broker    *notify.Broker

	events      chan tea.Msg
	notes       <-chan domain.Notification
	cancelNotes func()

	column     int
	loaded     bool
	loadErr    error
	toast      *domain.Notification
	affordance undo.Affordance
	jobs       []string
	ticking    bool
	width      int
	quitting   bool

	dragging  bool
	dragX     int
	dragStart time.Time
}

// New builds the engine around d.Service and returns the front end model.
func New(d Deps) *Model {
	if d.Clock == nil {
		d.Clock = clock.Real()
	}
	if d.Logger == nil {
		d.Logger = log.StandardLogger()
	}
	if d.Settings.RequestTimeout <= 0 {
		d.Settings.RequestTimeout = 10 * time.Second
	}

	m := &Model{
		svc:      d.Service,
		settings: d.Settings,
		logger:   d.Logger,
		clock:    d.Clock,
		store:    board.New(append(append([]string(nil), Columns...), domain.ContainerApproved, domain.ContainerDismissed)...),
		poll:     poller.New(d.Service, d.Clock, d.Logger),
		broker:   notify.NewBroker(d.Logger, notify.DefaultBuffer),
		events:   make(chan tea.Msg, eventBuffer),
	}
	m.notes, m.cancelNotes = m.broker.Subscribe()

	stack := undo.New(d.Clock, d.Settings.UndoWindow)
	m.countdown = undo.NewCountdown(stack, d.Clock, undo.DefaultTick, func(a undo.Affordance) {
		m.post(undoMsg(a))
	})
	m.ctrl = optimistic.New(m.store, d.Service, stack, optimistic.Options{
		Notifier:  m.broker,
		Logger:    d.Logger,
		Clock:     d.Clock,
		OnSettled: m.settled,
	})
	m.nav = navigation.New(debounce.New(d.Clock, d.Settings.DebounceThreshold), navigation.Actions{
		Primary:   m.primary,
		Secondary: m.secondary,
		Undo:      m.undo,
	}, navigation.Options{Keymap: d.Settings.Keymap, Thresholds: d.Settings.Thresholds})
	return m
}

// Init loads the board and starts listening for engine events.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.load(), m.listen(), m.listenNotes())
}

// Close stops every timer and abandons in-flight calls.
func (m *Model) Close() {
	m.countdown.Stop()
	m.poll.StopAll()
	m.ctrl.Close()
	m.cancelNotes()
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		m.handleMouse(msg)
		return m, nil

	case boardLoadedMsg:
		if msg.err != nil {
			m.loadErr = msg.err
			m.broker.Notify(notify.Error(domain.KindMutationRejected, fmt.Sprintf("Could not load the board: %v", msg.err)))
			return m, nil
		}
		m.loadErr = nil
		m.loaded = true
		m.ctrl.Load(msg.items)
		m.refresh()
		return m, nil

	case settledMsg:
		m.refresh()
		return m, m.listen()

	case undoMsg:
		m.affordance = undo.Affordance(msg)
		return m, m.listen()

	case jobChangedMsg:
		m.refresh()
		return m, m.listen()

	case noteMsg:
		n := domain.Notification(msg)
		m.toast = &n
		return m, m.listenNotes()

	case jobStartedMsg:
		if msg.err != nil {
			m.broker.Notify(notify.Error(domain.KindJobFailed, fmt.Sprintf("Could not start %s: %v", msg.kind, msg.err)))
			return m, nil
		}
		m.track(msg.kind, msg.acc.JobID)
		return m, m.progressTick()

	case progressTickMsg:
		m.ticking = false
		return m, m.progressTick()
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	switch key {
	case "ctrl+c", "q":
		m.quitting = true
		m.Close()
		return m, tea.Quit
	case "tab":
		m.column = (m.column + 1) % len(Columns)
		m.refresh()
		return m, nil
	case "shift+tab":
		m.column = (m.column - 1 + len(Columns)) % len(Columns)
		m.refresh()
		return m, nil
	case "r":
		return m, m.load()
	case "b":
		if item, ok := m.nav.Focused(); ok {
			return m, m.startJob(domain.JobKindBrief, item.ID)
		}
		return m, nil
	case "s":
		return m, m.startJob(domain.JobKindScan, "")
	}
	if m.nav.HandleKey(key) {
		m.refresh()
	}
	return m, nil
}

// handleMouse turns a left-button press and release into a horizontal drag.
func (m *Model) handleMouse(msg tea.MouseMsg) {
	if msg.Button != tea.MouseButtonLeft {
		return
	}
	switch msg.Action {
	case tea.MouseActionPress:
		m.dragging = true
		m.dragX = msg.X
		m.dragStart = m.clock.Now()
	case tea.MouseActionRelease:
		if !m.dragging {
			return
		}
		m.dragging = false
		offset := float64(msg.X-m.dragX) * cellWidth
		var velocity float64
		if dt := m.clock.Now().Sub(m.dragStart).Seconds(); dt > 0 {
			velocity = offset / dt
		}
		if _, ran := m.nav.HandleDrag(navigation.Drag{OffsetX: offset, VelocityX: velocity}); ran {
			m.refresh()
		}
	}
}

// refresh hands the items of the current column to navigation.
func (m *Model) refresh() {
	m.nav.SetItems(m.store.Container(Columns[m.column]))
}

// primary approves a review item and advances any other item one column.
func (m *Model) primary(item domain.Item) {
	ctx, cancel := m.requestContext()
	defer cancel()
	var err error
	if item.ContainerID == domain.ContainerReview {
		_, err = m.ctrl.Review(ctx, item.ID, optimistic.DecisionApprove, "")
	} else {
		next := nextColumn(item.ContainerID)
		_, err = m.ctrl.Apply(ctx, domain.Mutation{
			Kind:        domain.MutationMove,
			ItemID:      item.ID,
			ToContainer: next,
			ToPosition:  len(m.store.Container(next)),
			Undoable:    true,
		})
	}
	if err != nil {
		m.broker.Notify(notify.Error(domain.KindMutationRejected, err.Error()))
	}
}

func (m *Model) secondary(item domain.Item) {
	ctx, cancel := m.requestContext()
	defer cancel()
	if _, err := m.ctrl.Review(ctx, item.ID, optimistic.DecisionDismiss, ""); err != nil {
		m.broker.Notify(notify.Error(domain.KindMutationRejected, err.Error()))
	}
}

func (m *Model) undo() {
	ctx, cancel := m.requestContext()
	defer cancel()
	_, err := m.ctrl.Undo(ctx)
	switch {
	case errors.Is(err, optimistic.ErrNothingToUndo):
		m.broker.Notify(notify.Info(domain.KindUndone, "Nothing to undo"))
	case err != nil:
		m.broker.Notify(notify.Error(domain.KindMutationRejected, err.Error()))
	}
}

// settled runs on the goroutine that resolved the remote call.
func (m *Model) settled(p *optimistic.Pending) {
	if p.Err() == nil && p.Mutation.Undoable {
		m.countdown.Start()
	}
	m.post(settledMsg{})
}

// post forwards an engine event to the UI. A full buffer drops the event;
// the next one re-renders from current state anyway.
func (m *Model) post(msg tea.Msg) {
	select {
	case m.events <- msg:
	default:
		m.logger.WithField("event", fmt.Sprintf("%T", msg)).Debug("ui event dropped")
	}
}

func (m *Model) listen() tea.Cmd {
	return func() tea.Msg { return <-m.events }
}

func (m *Model) listenNotes() tea.Cmd {
	return func() tea.Msg {
		n, ok := <-m.notes
		if !ok {
			return nil
		}
		return noteMsg(n)
	}
}

func (m *Model) load() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := m.requestContext()
		defer cancel()
		items, err := m.svc.FetchBoard(ctx)
		return boardLoadedMsg{items: items, err: err}
	}
}

func (m *Model) startJob(kind, itemID string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := m.requestContext()
		defer cancel()
		acc, err := m.svc.StartJob(ctx, kind, itemID)
		return jobStartedMsg{kind: kind, acc: acc, err: err}
	}
}

// track hands a started job to the poller.
func (m *Model) track(kind, jobID string) {
	m.jobs = append(m.jobs, jobID)
	if n := len(m.jobs) - maxJobs; n > 0 {
		for _, id := range m.jobs[:n] {
			m.poll.Stop(id)
		}
		m.jobs = append([]string(nil), m.jobs[n:]...)
	}
	m.poll.Start(jobID, poller.Options{
		Interval:    m.settings.PollInterval,
		MaxAttempts: m.settings.PollMaxAttempts,
		Finalize:    m.svc.Finalize,
		OnCompleted: func(snap domain.JobSnapshot) {
			m.broker.Notify(notify.Success(domain.KindJobCompleted, jobSummary(kind, snap)))
			m.post(jobChangedMsg{jobID: jobID})
		},
		OnFailed: func(err error) {
			m.broker.Notify(notify.Error(domain.KindJobFailed, err.Error()))
			m.post(jobChangedMsg{jobID: jobID})
		},
		OnTimeout: func() {
			m.broker.Notify(notify.Warning(domain.KindJobTimeout, fmt.Sprintf("The %s is taking longer than expected. Check back later.", kind)))
			m.post(jobChangedMsg{jobID: jobID})
		},
	})
}

// progressTick keeps elapsed times moving while a job is being polled.
func (m *Model) progressTick() tea.Cmd {
	if m.ticking || m.poll.Active() == 0 {
		return nil
	}
	m.ticking = true
	return tea.Tick(500*time.Millisecond, func(time.Time) tea.Msg { return progressTickMsg{} })
}

func (m *Model) requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), m.settings.RequestTimeout)
}

// nextColumn is where the primary action moves an item.
func nextColumn(container string) string {
	switch container {
	case domain.ContainerInbox:
		return domain.ContainerResearch
	default:
		return domain.ContainerReview
	}
}

// jobSummary is the notification text of a completed job.
func jobSummary(kind string, snap domain.JobSnapshot) string {
	switch kind {
	case domain.JobKindBrief:
		if node, err := sonic.Get(snap.Result, "brief"); err == nil {
			if s, err := node.String(); err == nil && s != "" {
				return "Brief ready: " + s
			}
		}
		return "Brief ready"
	case domain.JobKindScan:
		if node, err := sonic.Get(snap.Result, "total"); err == nil {
			if n, err := node.Int64(); err == nil {
				return fmt.Sprintf("Scan complete: %d items on the board", n)
			}
		}
		return "Scan complete"
	}
	return fmt.Sprintf("Job %s completed", snap.JobID)
}
