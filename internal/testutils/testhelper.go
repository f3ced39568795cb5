package testutils

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blerank/internal/device"
)

type TestHelper struct {
	T      *testing.T
	Logger *logrus.Logger
}

// NewTestHelper creates a test helper with a debug-level logger.
func NewTestHelper(t *testing.T) *TestHelper {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel) // enable debug logs to track execution flow
	return &TestHelper{
		T:      t,
		Logger: logger,
	}
}

// Epoch is the timestamp NewObservation stamps on observations.
var Epoch = time.Date(2024, time.January, 1, 12, 0, 0, 0, time.UTC)

// NewObservation is shorthand for an observation stamped with Epoch.
func NewObservation(address, name string, rssi int) device.Observation {
	return device.Observation{
		Address:   address,
		Name:      name,
		RSSI:      rssi,
		Timestamp: Epoch,
	}
}
