package tracker

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
	"github.com/srg/blerank/internal/anchor"
	"github.com/srg/blerank/internal/device"
	"github.com/srg/blerank/internal/ringchan"
)

// DefaultInboxSize bounds the number of observations waiting for the loop.
const DefaultInboxSize = 256

// ErrLoopStopped is returned by Submit once Run has returned.
var ErrLoopStopped = errors.New("tracker loop stopped")

// ViewSource reports the presentation's scroll position before each cycle.
type ViewSource interface {
	ViewState() anchor.ViewState
}

// ViewFunc adapts a function to ViewSource.
type ViewFunc func() anchor.ViewState

func (f ViewFunc) ViewState() anchor.ViewState { return f() }

// Sink receives every update on the loop goroutine.
type Sink func(Update)

// Loop serializes everything that touches a Tracker onto one goroutine.
//
// Observations arrive through Offer from any goroutine (typically a radio
// callback) and wait in an overwrite-oldest inbox. Other work, such as
// scrolling or resetting, is queued with Submit. Run drains both.
type Loop struct {
	tracker *Tracker
	inbox   *ringchan.RingChannel[device.Observation]
	tasks   chan func(*Tracker)
	stopped chan struct{}
	logger  *logrus.Logger
}

// NewLoop creates a loop around t. size <= 0 uses DefaultInboxSize.
func NewLoop(t *Tracker, size int) *Loop {
	if size <= 0 {
		size = DefaultInboxSize
	}
	return &Loop{
		tracker: t,
		inbox:   ringchan.New[device.Observation](size),
		tasks:   make(chan func(*Tracker), 16),
		stopped: make(chan struct{}),
		logger:  t.logger,
	}
}

// Offer queues an observation. It never blocks; under pressure the oldest
// queued observation is dropped.
func (l *Loop) Offer(obs device.Observation) {
	if l.inbox.Send(obs) {
		l.logger.WithField("address", obs.Address).Debug("Inbox full, dropped oldest observation")
	}
}

// Submit queues task to run on the loop goroutine. It blocks while the task
// queue is full and fails once the loop has stopped.
func (l *Loop) Submit(task func(*Tracker)) error {
	select {
	case <-l.stopped:
		return ErrLoopStopped
	default:
	}
	select {
	case l.tasks <- task:
		return nil
	case <-l.stopped:
		return ErrLoopStopped
	}
}

// Close closes the inbox. Run returns once the remaining observations have
// been processed.
func (l *Loop) Close() {
	l.inbox.Close()
}

// Dropped returns how many observations were discarded because the inbox was full.
func (l *Loop) Dropped() int64 {
	return l.inbox.GetMetrics().Overwritten
}

// Run processes observations and tasks until ctx is done or the inbox is
// closed and empty. Each observation is one atomic cycle: the view is read,
// the tracker processes, and sink sees the result before the next cycle
// starts. After each task sink receives the tracker's current state.
func (l *Loop) Run(ctx context.Context, view ViewSource, sink Sink) error {
	defer close(l.stopped)

	if sink == nil {
		sink = func(Update) {}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case task := <-l.tasks:
			task(l.tracker)
			sink(l.tracker.Current())

		case obs, ok := <-l.inbox.C():
			if !ok {
				return nil
			}
			state := anchor.ViewState{}
			if view != nil {
				state = view.ViewState()
			}
			upd, err := l.tracker.Process(obs, state)
			if err != nil {
				continue
			}
			sink(upd)
		}
	}
}
