package device_test

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/srg/blerank/internal/device"
	"github.com/stretchr/testify/suite"
)

type RecordTestSuite struct {
	suite.Suite
}

func (suite *RecordTestSuite) TestNewRecord() {
	// GOAL: Verify a new record is seeded with exactly its first reading
	//
	// TEST SCENARIO: Create record → history has one element → smoothed equals the reading

	r := device.NewRecord("00:11:22:33:44:55", "TestDevice", -50, device.DefaultHistoryWindow)

	suite.Equal("00:11:22:33:44:55", r.Address())
	suite.Equal("TestDevice", r.Name())
	suite.True(r.HasName())
	suite.Equal(-50, r.RSSI())
	suite.Equal([]int{-50}, r.History())
	suite.InDelta(-50.0, r.Smoothed(), 0.001)
	suite.Equal(1, r.Seen())

	suite.Run("absent name stays absent", func() {
		r := device.NewRecord("01:02:03:04:05:06", "", -80, device.DefaultHistoryWindow)
		suite.False(r.HasName())
		suite.Empty(r.Name())
		suite.InDelta(-80.0, r.Smoothed(), 0.001)
	})

	suite.Run("non-positive window falls back to default", func() {
		r := device.NewRecord("AA", "", -1, 0)
		suite.Equal(device.DefaultHistoryWindow, r.Window())
	})
}

func (suite *RecordTestSuite) TestWithReading() {
	// GOAL: Verify readings are appended and the mean follows the retained window
	//
	// TEST SCENARIO: Apply -65 to a -60 record → current is -65 → smoothed is -62.5

	r := device.NewRecord("AA:BB:CC:DD:EE:FF", "TestRSSI", -60, device.DefaultHistoryWindow)
	r = r.WithReading(-65)

	suite.Equal(-65, r.RSSI())
	suite.Equal([]int{-60, -65}, r.History())
	suite.InDelta(-62.5, r.Smoothed(), 0.001)

	r = r.WithReading(-55)
	suite.InDelta(-60.0, r.Smoothed(), 0.001)
	suite.Equal(3, r.Seen())
}

func (suite *RecordTestSuite) TestHistoryWindow() {
	// GOAL: Verify the history is bounded and drops from the front
	//
	// TEST SCENARIO: Five readings -70..-74 → all kept, mean -72 → sixth -75 → -70 evicted, mean -73

	r := device.NewRecord("11:22:33:44:55:66", "HistoryTest", -70, device.DefaultHistoryWindow)
	for _, v := range []int{-71, -72, -73, -74} {
		r = r.WithReading(v)
	}

	suite.Equal([]int{-70, -71, -72, -73, -74}, r.History())
	suite.InDelta(-72.0, r.Smoothed(), 0.001)
	suite.Equal(-74, r.RSSI())

	r = r.WithReading(-75)

	suite.Equal([]int{-71, -72, -73, -74, -75}, r.History())
	suite.NotContains(r.History(), -70)
	suite.InDelta(-73.0, r.Smoothed(), 0.001)
	suite.Equal(-75, r.RSSI())
}

func (suite *RecordTestSuite) TestHistoryBoundProperty() {
	// GOAL: Verify len(history) <= H and smoothed == mean(history) after every reading
	//
	// TEST SCENARIO: Feed a long arbitrary sequence through several window sizes → check invariants at each step

	readings := []int{-40, -99, 0, 127, -128, -60, -61, -62, -200, 20, -55, -55, -70}

	for _, window := range []int{1, 2, 3, 5, 8} {
		r := device.NewRecord("AA", "", readings[0], window)
		seen := []int{readings[0]}

		for _, v := range readings[1:] {
			r = r.WithReading(v)
			seen = append(seen, v)

			h := r.History()
			suite.LessOrEqual(len(h), window)

			want := seen
			if len(want) > window {
				want = want[len(want)-window:]
			}
			suite.Equal(want, h, "history MUST equal the last %d readings", window)

			var sum float64
			for _, x := range h {
				sum += float64(x)
			}
			suite.InDelta(sum/float64(len(h)), r.Smoothed(), 1e-9)
		}
	}
}

func (suite *RecordTestSuite) TestExtremeReadings() {
	// GOAL: Verify the mean stays correct for readings at the limits of int
	//
	// TEST SCENARIO: Feed math.MinInt64 / math.MaxInt64 readings → smoothed keeps its sign and magnitude

	tests := []struct {
		name     string
		readings []int
		expected float64
	}{
		{"two minimums", []int{math.MinInt64, math.MinInt64}, float64(math.MinInt64)},
		{"maximum and one", []int{math.MaxInt64, 1}, float64(math.MaxInt64) / 2},
		{"two maximums", []int{math.MaxInt64, math.MaxInt64}, float64(math.MaxInt64)},
		{"minimum and maximum", []int{math.MinInt64, math.MaxInt64}, 0},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			r := device.NewRecord("X", "", tt.readings[0], 5)
			for _, v := range tt.readings[1:] {
				r = r.WithReading(v)
			}
			suite.InDelta(tt.expected, r.Smoothed(), math.Abs(tt.expected)*1e-12+1)
			suite.Equal(tt.readings, r.History())
		})
	}
}

func (suite *RecordTestSuite) TestCopyOnUpdate() {
	// GOAL: Verify updates never alias or mutate the original record
	//
	// TEST SCENARIO: Derive two records from one base → base unchanged → siblings independent

	base := device.NewRecord("AA", "base", -50, 3)
	base = base.WithReading(-51)

	a := base.WithReading(-10)
	b := base.WithReading(-90)

	suite.Equal([]int{-50, -51}, base.History())
	suite.Equal([]int{-50, -51, -10}, a.History())
	suite.Equal([]int{-50, -51, -90}, b.History())

	renamed := base.WithName("other")
	suite.Equal("base", base.Name())
	suite.Equal("other", renamed.Name())

	h := a.History()
	h[0] = 1000
	suite.Equal(-50, a.History()[0], "History MUST return a copy")
}

func (suite *RecordTestSuite) TestObserve() {
	first := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	later := first.Add(3 * time.Second)

	r := device.FromObservation(device.Observation{Address: "AA", Name: "n", RSSI: -60, Timestamp: first}, 5)
	r = r.Observe(device.Observation{Address: "AA", RSSI: -70, Timestamp: later})

	suite.Equal(first, r.FirstSeen())
	suite.Equal(later, r.LastSeen())
	suite.Equal("n", r.Name(), "Observe MUST NOT touch the name")
	suite.InDelta(-65.0, r.Smoothed(), 0.001)
}

func (suite *RecordTestSuite) TestMarshalJSON() {
	r := device.NewRecord("AA", "", -60, 5).WithReading(-70)

	data, err := json.Marshal(r)
	suite.Require().NoError(err)
	suite.JSONEq(`{"address":"AA","rssi":-70,"history":[-60,-70],"smoothed":-65,"seen":2}`, string(data))
}

func (suite *RecordTestSuite) TestObservationValidate() {
	suite.ErrorIs(device.Observation{}.Validate(), device.ErrEmptyAddress)
	suite.NoError(device.Observation{Address: "AA"}.Validate())
}

func TestRecordTestSuite(t *testing.T) {
	suite.Run(t, new(RecordTestSuite))
}
