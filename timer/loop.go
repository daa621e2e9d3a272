package timer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/librescoot/librehsm"
)

var (
	// ErrLoopRunning is returned by Run when the loop was already started
	ErrLoopRunning = errors.New("loop already running")
	// ErrLoopStopped is returned by Do once Run has returned
	ErrLoopStopped = errors.New("loop stopped")
)

// DefaultInboxSize is the default number of posted events a Loop buffers
const DefaultInboxSize = 100

// timerEntry tracks a running wall-clock timer
type timerEntry struct {
	timer *time.Timer
	gen   uint64
}

type firing struct {
	id  librehsm.EventID
	gen uint64
}

// Loop drives a machine from a single goroutine. Posted events, fired
// timers and DO ticks are serialised so the machine never sees concurrent
// dispatches.
type Loop struct {
	m      *librehsm.Machine
	logger *slog.Logger

	inbox chan librehsm.Event
	fired chan firing
	calls chan func()
	done  chan struct{}

	tick    time.Duration
	start   bool
	running atomic.Bool

	timerMu sync.Mutex
	timers  map[librehsm.EventID]*timerEntry
	gen     uint64
}

// LoopOption is a functional option for configuring a Loop
type LoopOption func(*Loop)

// WithInboxSize sets how many posted events are buffered before Post drops
func WithInboxSize(n int) LoopOption {
	return func(l *Loop) {
		if n > 0 {
			l.inbox = make(chan librehsm.Event, n)
		}
	}
}

// WithTick dispatches EventDo every d while the loop runs
func WithTick(d time.Duration) LoopOption {
	return func(l *Loop) {
		l.tick = d
	}
}

// WithoutStart skips dispatching EventInitial when Run begins, for machines
// that were started by the caller
func WithoutStart() LoopOption {
	return func(l *Loop) {
		l.start = false
	}
}

// WithLoopLogger sets the logger, defaulting to the machine's
func WithLoopLogger(logger *slog.Logger) LoopOption {
	return func(l *Loop) {
		l.logger = logger
	}
}

// NewLoop wraps m and installs a wall-clock timer starter on it. From now on
// m must only be touched from the loop goroutine (see Do).
func NewLoop(m *librehsm.Machine, opts ...LoopOption) *Loop {
	l := &Loop{
		m:      m,
		logger: m.Logger(),
		inbox:  make(chan librehsm.Event, DefaultInboxSize),
		calls:  make(chan func()),
		done:   make(chan struct{}),
		start:  true,
		timers: make(map[librehsm.EventID]*timerEntry),
	}

	for _, opt := range opts {
		opt(l)
	}

	l.fired = make(chan firing, cap(l.inbox))
	m.SetTimerStarter(l.startTimer)
	return l
}

// Post queues an event for the loop. It never blocks; when the inbox is
// full the event is dropped and false is returned.
func (l *Loop) Post(ev librehsm.Event) bool {
	select {
	case l.inbox <- ev:
		return true
	default:
		l.logger.Warn("event inbox full, dropping event", "event", ev.ID, "arg", ev.Arg)
		return false
	}
}

// Do runs fn on the loop goroutine and waits for it to return
func (l *Loop) Do(ctx context.Context, fn func(m *librehsm.Machine)) error {
	finished := make(chan struct{})
	call := func() {
		defer close(finished)
		fn(l.m)
	}

	select {
	case l.calls <- call:
	case <-l.done:
		return ErrLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	// Once accepted the call always runs to completion.
	<-finished
	return nil
}

// Run processes events until ctx is done. All running timers are stopped
// before it returns. A loop can only be run once.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrLoopRunning
	}
	defer close(l.done)
	defer l.stopTimers()

	if l.start {
		l.report("start", l.m.Start())
	}

	var tick <-chan time.Time
	if l.tick > 0 {
		t := time.NewTicker(l.tick)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-ctx.Done():
			l.logger.Debug("loop stopped", "state", l.m.Tree().Name(l.m.CurrentState()))
			return nil
		case ev := <-l.inbox:
			l.report("dispatch", l.m.DispatchArg(ev.ID, ev.Arg))
		case f := <-l.fired:
			if l.claim(f) {
				l.logger.Debug("timer fired", "event", f.id)
				l.report("timer", l.m.Dispatch(f.id))
			}
		case <-tick:
			l.report("tick", l.m.Dispatch(librehsm.EventDo))
		case call := <-l.calls:
			call()
		}
	}
}

// Active reports whether a timer for id is running
func (l *Loop) Active(id librehsm.EventID) bool {
	l.timerMu.Lock()
	defer l.timerMu.Unlock()
	_, ok := l.timers[id]
	return ok
}

func (l *Loop) report(what string, err error) {
	if err != nil {
		l.logger.Warn("machine error", "op", what, "error", err)
	}
}

// startTimer is installed as the machine's timer starter. It runs on the
// loop goroutine, from inside a dispatch.
func (l *Loop) startTimer(_ *librehsm.Machine, id librehsm.EventID, period time.Duration) error {
	l.timerMu.Lock()
	defer l.timerMu.Unlock()

	if existing, ok := l.timers[id]; ok {
		existing.timer.Stop()
		delete(l.timers, id)
	}

	l.gen++
	f := firing{id: id, gen: l.gen}
	t := time.AfterFunc(period, func() {
		select {
		case l.fired <- f:
		case <-l.done:
		}
	})
	l.timers[id] = &timerEntry{timer: t, gen: f.gen}
	return nil
}

// claim reports whether f belongs to the timer currently armed for its
// event, removing it. Firings of stopped or restarted timers are stale.
func (l *Loop) claim(f firing) bool {
	l.timerMu.Lock()
	defer l.timerMu.Unlock()

	entry, ok := l.timers[f.id]
	if !ok || entry.gen != f.gen {
		return false
	}
	delete(l.timers, f.id)
	return true
}

func (l *Loop) stopTimers() {
	l.timerMu.Lock()
	defer l.timerMu.Unlock()

	for id, entry := range l.timers {
		entry.timer.Stop()
		l.logger.Debug("timer stopped (cleanup)", "event", id)
	}
	l.timers = make(map[librehsm.EventID]*timerEntry)
}
