package registry

import (
	"encoding/json"

	"github.com/srg/blerank/internal/device"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Snapshot is an immutable, ranked view of a registry at one point in time.
// It is safe to retain and to share between goroutines.
type Snapshot struct {
	records []device.Record
}

// NewSnapshot ranks records into a snapshot. The input slice is not modified.
func NewSnapshot(records []device.Record) Snapshot {
	ranked := make([]device.Record, len(records))
	copy(ranked, records)
	sortRecords(ranked)
	return Snapshot{records: ranked}
}

func (s Snapshot) Len() int               { return len(s.records) }
func (s Snapshot) At(i int) device.Record { return s.records[i] }
func (s Snapshot) IsEmpty() bool          { return len(s.records) == 0 }

// Top returns the highest ranked record.
func (s Snapshot) Top() (device.Record, bool) {
	if len(s.records) == 0 {
		return device.Record{}, false
	}
	return s.records[0], true
}

// IndexOf returns the rank of address, or -1 when it is not in the snapshot.
func (s Snapshot) IndexOf(address string) int {
	for i, r := range s.records {
		if r.Address() == address {
			return i
		}
	}
	return -1
}

// Records returns a copy of the ranked records.
func (s Snapshot) Records() []device.Record {
	out := make([]device.Record, len(s.records))
	copy(out, s.records)
	return out
}

// Addresses returns the addresses in rank order.
func (s Snapshot) Addresses() []string {
	out := make([]string, len(s.records))
	for i, r := range s.records {
		out[i] = r.Address()
	}
	return out
}

// Ordered returns the snapshot as an address-keyed map that keeps rank order
// when marshalled.
func (s Snapshot) Ordered() *orderedmap.OrderedMap[string, device.Record] {
	om := orderedmap.New[string, device.Record]()
	for _, r := range s.records {
		om.Set(r.Address(), r)
	}
	return om
}

// MarshalJSON encodes the snapshot as an array in rank order.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	if s.records == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.records)
}
