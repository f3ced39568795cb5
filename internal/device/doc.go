// Package device defines the value types that flow through blerank:
// decoded advertisement observations and the per-device record that
// aggregates them into a smoothed signal reading.
//
// Records are copy-on-update values. Every mutation returns a new Record and
// never touches the receiver, so a Record held by a snapshot stays valid after
// the registry has moved on.
package device
