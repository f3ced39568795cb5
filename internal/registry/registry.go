// Package registry keeps the per-session set of device records and produces
// ranked snapshots of it.
package registry

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	"github.com/srg/blerank/internal/device"
)

// NamePolicy decides what happens to a known name when a new observation arrives.
type NamePolicy int

const (
	// KeepKnownName only replaces the stored name with a non-empty one.
	KeepKnownName NamePolicy = iota
	// LastObservationWins always takes the incoming name, clearing it if absent.
	LastObservationWins
)

func (p NamePolicy) String() string {
	switch p {
	case KeepKnownName:
		return "keep"
	case LastObservationWins:
		return "last"
	default:
		return fmt.Sprintf("NamePolicy(%d)", int(p))
	}
}

// ParseNamePolicy parses the String form of a policy.
func ParseNamePolicy(s string) (NamePolicy, error) {
	switch s {
	case "keep", "":
		return KeepKnownName, nil
	case "last":
		return LastObservationWins, nil
	default:
		return 0, fmt.Errorf("invalid name policy '%s': must be one of [keep last]", s)
	}
}

// Option configures a Registry.
type Option func(*Registry)

// WithHistoryWindow sets how many readings each record averages over.
func WithHistoryWindow(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.window = n
		}
	}
}

// WithNamePolicy sets the name overwrite policy.
func WithNamePolicy(p NamePolicy) Option {
	return func(r *Registry) { r.policy = p }
}

// WithLogger sets the logger.
func WithLogger(logger *logrus.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// Registry maps addresses to records and is the only thing that mutates them.
//
// A Registry is meant to be driven from a single goroutine: ingest, sort and
// anchor reconciliation form one cycle and must not interleave.
type Registry struct {
	records *hashmap.Map[string, device.Record]
	window  int
	policy  NamePolicy
	logger  *logrus.Logger
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		records: hashmap.New[string, device.Record](),
		window:  device.DefaultHistoryWindow,
		policy:  KeepKnownName,
		logger:  logrus.New(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Ingest applies obs and returns the new ranking together with the record it
// produced. Observations without an address are rejected with
// device.ErrEmptyAddress and leave the registry untouched.
func (r *Registry) Ingest(obs device.Observation) (Snapshot, device.Record, error) {
	if err := obs.Validate(); err != nil {
		return Snapshot{}, device.Record{}, err
	}

	rec, known := r.records.Get(obs.Address)
	if !known {
		rec = device.FromObservation(obs, r.window)
		r.logger.WithFields(logrus.Fields{
			"device":  obs.Name,
			"address": obs.Address,
			"rssi":    obs.RSSI,
		}).Info("Discovered new device")
	} else {
		rec = rec.Observe(obs)
		rec = r.applyName(rec, obs.Name)
		r.logger.WithFields(logrus.Fields{
			"address":  obs.Address,
			"rssi":     rec.RSSI(),
			"smoothed": rec.Smoothed(),
		}).Debug("Updated device")
	}
	r.records.Set(obs.Address, rec)

	return r.Snapshot(), rec, nil
}

func (r *Registry) applyName(rec device.Record, name string) device.Record {
	switch r.policy {
	case LastObservationWins:
		return rec.WithName(name)
	default:
		if name != "" {
			return rec.WithName(name)
		}
		return rec
	}
}

// Snapshot returns the current ranking without changing anything.
func (r *Registry) Snapshot() Snapshot {
	recs := make([]device.Record, 0, r.records.Len())
	r.records.Range(func(_ string, rec device.Record) bool {
		recs = append(recs, rec)
		return true
	})
	sortRecords(recs)
	return Snapshot{records: recs}
}

// Get returns the record for address.
func (r *Registry) Get(address string) (device.Record, bool) {
	return r.records.Get(address)
}

// Len returns the number of known devices.
func (r *Registry) Len() int {
	return r.records.Len()
}

// Reset forgets every device.
func (r *Registry) Reset() {
	n := r.records.Len()
	r.records = hashmap.New[string, device.Record]()
	r.logger.WithField("device_count", n).Info("Cleared all discovered devices")
}

// Compare orders records by smoothed signal, strongest first, then by address.
// Distinct addresses never compare equal, so any sort yields the same order.
func Compare(a, b device.Record) int {
	if c := cmp.Compare(b.Smoothed(), a.Smoothed()); c != 0 {
		return c
	}
	return cmp.Compare(a.Address(), b.Address())
}

func sortRecords(recs []device.Record) {
	slices.SortFunc(recs, Compare)
}
