package main

import (
	"errors"

	"github.com/srg/blerank/internal/luafilter"
	"github.com/srg/blerank/scanner"
)

// FormatUserError turns known errors into messages a user can act on.
func FormatUserError(err error) string {
	var scriptErr *luafilter.ScriptError
	switch {
	case errors.Is(err, scanner.ErrBluetoothOff):
		return "Bluetooth is turned off. Enable Bluetooth and try again."
	case errors.Is(err, scanner.ErrUnsupported):
		return "the selected BLE backend is not supported on this platform; try --backend tinygo"
	case errors.As(err, &scriptErr):
		return "filter script: " + scriptErr.Error()
	default:
		return err.Error()
	}
}
