// Package tracker ties a device registry and a scroll anchor into one
// session object and runs it on a single goroutine.
package tracker

import (
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/srg/blerank/internal/anchor"
	"github.com/srg/blerank/internal/device"
	"github.com/srg/blerank/internal/registry"
)

// Update is the outcome of one processed observation.
type Update struct {
	SessionID uuid.UUID
	Seq       uint64
	Snapshot  registry.Snapshot
	Changed   device.Record
	Directive anchor.Directive
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithRegistryOptions passes options through to the registry.
func WithRegistryOptions(opts ...registry.Option) Option {
	return func(t *Tracker) { t.registryOpts = append(t.registryOpts, opts...) }
}

// WithLogger sets the logger used by the tracker and its registry.
func WithLogger(logger *logrus.Logger) Option {
	return func(t *Tracker) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// Tracker owns the state of one scanning session.
//
// A Tracker is not safe for concurrent use; drive it from one goroutine, or
// through a Loop.
type Tracker struct {
	registry     *registry.Registry
	anchor       *anchor.Controller
	session      uuid.UUID
	seq          uint64
	logger       *logrus.Logger
	registryOpts []registry.Option
}

// New creates a tracker with an empty registry and a fresh session id.
func New(opts ...Option) *Tracker {
	t := &Tracker{
		anchor: anchor.NewController(),
		logger: logrus.New(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.registryOpts = append(t.registryOpts, registry.WithLogger(t.logger))
	t.registry = registry.New(t.registryOpts...)
	t.session = uuid.New()
	return t
}

// Process runs one full cycle for obs: capture the anchor from view, ingest,
// then reconcile against the new ranking.
//
// A malformed observation returns device.ErrEmptyAddress; the registry is left
// as it was and the anchor is dropped.
func (t *Tracker) Process(obs device.Observation, view anchor.ViewState) (Update, error) {
	t.anchor.Capture(view, t.registry.Snapshot())

	snap, rec, err := t.registry.Ingest(obs)
	if err != nil {
		t.anchor.Clear()
		t.logger.WithError(err).WithField("rssi", obs.RSSI).Debug("Rejected observation")
		return Update{}, err
	}

	directive := t.anchor.Reconcile(snap)
	t.seq++

	if directive != anchor.DirectiveNone {
		t.logger.WithFields(logrus.Fields{
			"address":   rec.Address(),
			"directive": directive.String(),
			"seq":       t.seq,
		}).Debug("Anchored device displaced")
	}

	return Update{
		SessionID: t.session,
		Seq:       t.seq,
		Snapshot:  snap,
		Changed:   rec,
		Directive: directive,
	}, nil
}

// Reset starts a new session.
func (t *Tracker) Reset() {
	t.registry.Reset()
	t.anchor.Clear()
	t.seq = 0
	t.session = uuid.New()
	t.logger.WithField("session", t.session).Info("Started new scanning session")
}

// Snapshot returns the current ranking.
func (t *Tracker) Snapshot() registry.Snapshot { return t.registry.Snapshot() }

// SessionID identifies the current session.
func (t *Tracker) SessionID() uuid.UUID { return t.session }

// Seq returns the number of updates produced in this session.
func (t *Tracker) Seq() uint64 { return t.seq }

// Current returns an Update describing the present state without processing
// anything; Changed is the zero record.
func (t *Tracker) Current() Update {
	return Update{
		SessionID: t.session,
		Seq:       t.seq,
		Snapshot:  t.registry.Snapshot(),
	}
}
