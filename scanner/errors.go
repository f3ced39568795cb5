package scanner

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrBluetoothOff means the adapter exists but is powered off.
	ErrBluetoothOff = errors.New("bluetooth is turned off")
	// ErrUnsupported means no backend is available on this platform.
	ErrUnsupported = errors.New("unsupported")
)

// NormalizeError maps known platform error strings onto sentinel errors,
// keeping the original error text in the chain.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	switch {
	case msg == "central manager has invalid state: have=4 want=5: is Bluetooth turned on?":
		return fmt.Errorf("%w: %v", ErrBluetoothOff, err)
	case containsIgnoreCase(msg, "bluetooth is turned off"),
		containsIgnoreCase(msg, "org.bluez.Error.NotReady"),
		containsIgnoreCase(msg, "adapter is not powered"):
		return fmt.Errorf("%w: %v", ErrBluetoothOff, err)
	default:
		return err
	}
}

func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
