package device

import (
	"errors"
	"time"
)

// ErrEmptyAddress is returned for observations that carry no device address.
// Such observations are malformed and are dropped before they reach a registry.
var ErrEmptyAddress = errors.New("observation has empty address")

// Observation is a single decoded advertisement: who was heard, how loud, and
// under which name. An empty Name means the advertisement carried no name.
type Observation struct {
	Address   string
	Name      string
	RSSI      int
	Timestamp time.Time
}

// Validate reports whether the observation can be applied to a registry.
func (o Observation) Validate() error {
	if o.Address == "" {
		return ErrEmptyAddress
	}
	return nil
}
