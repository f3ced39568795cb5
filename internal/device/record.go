package device

import (
	"encoding/json"
	"time"
)

// DefaultHistoryWindow is the number of raw readings a Record averages over.
const DefaultHistoryWindow = 5

// Record is the aggregated state of one peer.
//
// The zero Record is not usable; create records with NewRecord.
type Record struct {
	address   string
	name      string
	rssi      int
	history   []int
	smoothed  float64
	window    int
	seen      int
	firstSeen time.Time
	lastSeen  time.Time
}

// NewRecord creates a record seeded with a single reading.
// A window below 1 falls back to DefaultHistoryWindow.
func NewRecord(address, name string, rssi int, window int) Record {
	if window < 1 {
		window = DefaultHistoryWindow
	}
	return Record{
		address:  address,
		name:     name,
		rssi:     rssi,
		history:  []int{rssi},
		smoothed: float64(rssi),
		window:   window,
		seen:     1,
	}
}

// FromObservation creates a record from the first observation of an address.
func FromObservation(obs Observation, window int) Record {
	r := NewRecord(obs.Address, obs.Name, obs.RSSI, window)
	r.firstSeen = obs.Timestamp
	r.lastSeen = obs.Timestamp
	return r
}

// WithReading returns a copy of r with rssi appended to the history.
// The oldest readings are dropped so the history never exceeds the window,
// and the smoothed value is the mean of what is retained.
func (r Record) WithReading(rssi int) Record {
	drop := len(r.history) + 1 - r.window
	if drop < 0 {
		drop = 0
	}

	history := make([]int, 0, len(r.history)+1-drop)
	history = append(history, r.history[drop:]...)
	history = append(history, rssi)

	r.history = history
	r.rssi = rssi
	r.smoothed = mean(history)
	r.seen++
	return r
}

// Observe applies the reading of obs and advances the last-seen time.
// The name is left alone; naming policy belongs to the registry.
func (r Record) Observe(obs Observation) Record {
	r = r.WithReading(obs.RSSI)
	if !obs.Timestamp.IsZero() {
		r.lastSeen = obs.Timestamp
		if r.firstSeen.IsZero() {
			r.firstSeen = obs.Timestamp
		}
	}
	return r
}

// WithName returns a copy of r carrying name.
func (r Record) WithName(name string) Record {
	r.name = name
	return r
}

func (r Record) Address() string { return r.address }
func (r Record) Name() string    { return r.name }
func (r Record) HasName() bool   { return r.name != "" }

// RSSI returns the latest raw reading.
func (r Record) RSSI() int { return r.rssi }

// Smoothed returns the mean of the retained readings.
func (r Record) Smoothed() float64 { return r.smoothed }

func (r Record) Window() int          { return r.window }
func (r Record) Seen() int            { return r.seen }
func (r Record) FirstSeen() time.Time { return r.firstSeen }
func (r Record) LastSeen() time.Time  { return r.lastSeen }

// History returns the retained readings, oldest first.
func (r Record) History() []int {
	out := make([]int, len(r.history))
	copy(out, r.history)
	return out
}

type recordJSON struct {
	Address  string     `json:"address"`
	Name     string     `json:"name,omitempty"`
	RSSI     int        `json:"rssi"`
	History  []int      `json:"history"`
	Smoothed float64    `json:"smoothed"`
	Seen     int        `json:"seen"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}

func (r Record) toJSON() recordJSON {
	out := recordJSON{
		Address:  r.address,
		Name:     r.name,
		RSSI:     r.rssi,
		History:  r.History(),
		Smoothed: r.smoothed,
		Seen:     r.seen,
	}
	if !r.lastSeen.IsZero() {
		ts := r.lastSeen
		out.LastSeen = &ts
	}
	return out
}

// MarshalJSON implements json.Marshaler.
func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.toJSON())
}

// MarshalYAML implements yaml.Marshaler.
func (r Record) MarshalYAML() (interface{}, error) {
	v := r.toJSON()
	out := map[string]interface{}{
		"rssi":     v.RSSI,
		"history":  v.History,
		"smoothed": v.Smoothed,
		"seen":     v.Seen,
	}
	if v.Name != "" {
		out["name"] = v.Name
	}
	return out, nil
}

// mean sums in float64 so extreme readings cannot wrap.
func mean(values []int) float64 {
	var sum float64
	for _, v := range values {
		sum += float64(v)
	}
	return sum / float64(len(values))
}
