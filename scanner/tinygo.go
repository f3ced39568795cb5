package scanner

import (
	"context"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"
)

// tinygoAdvertisement adapts bluetooth.ScanResult to Advertisement.
type tinygoAdvertisement struct {
	result bluetooth.ScanResult
}

func (a tinygoAdvertisement) Addr() string      { return a.result.Address.String() }
func (a tinygoAdvertisement) LocalName() string { return a.result.LocalName() }
func (a tinygoAdvertisement) RSSI() int         { return int(a.result.RSSI) }

func (a tinygoAdvertisement) HasService(uuid string) bool {
	parsed, err := bluetooth.ParseUUID(expandUUID(uuid))
	if err != nil {
		return false
	}
	return a.result.HasServiceUUID(parsed)
}

// tinygoAdapter is the subset of *bluetooth.Adapter the backend drives.
type tinygoAdapter interface {
	Enable() error
	Scan(callback func(*bluetooth.Adapter, bluetooth.ScanResult)) error
	StopScan() error
}

// TinyGoBackend scans with tinygo.org/x/bluetooth.
type TinyGoBackend struct {
	adapter tinygoAdapter

	enableOnce sync.Once
	enableErr  error
}

// NewTinyGoBackend uses the system default adapter.
func NewTinyGoBackend() *TinyGoBackend {
	return &TinyGoBackend{adapter: bluetooth.DefaultAdapter}
}

// Scan blocks until ctx is done. tinygo reports every advertisement it
// hears, so allowDup is ignored.
func (b *TinyGoBackend) Scan(ctx context.Context, _ bool, handler func(Advertisement)) error {
	b.enableOnce.Do(func() {
		b.enableErr = NormalizeError(b.adapter.Enable())
	})
	if b.enableErr != nil {
		return b.enableErr
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	stopped := make(chan struct{})
	go b.stopOnDone(ctx, stopped)
	defer close(stopped)

	err := b.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
		if ctx.Err() != nil {
			return
		}
		handler(tinygoAdvertisement{result: result})
	})
	if err != nil {
		return NormalizeError(err)
	}
	return ctx.Err()
}

// stopRetryInterval paces StopScan retries while the adapter has not started
// scanning yet.
const stopRetryInterval = 50 * time.Millisecond

// stopOnDone stops the scan once ctx is done. StopScan fails when the scan has
// not started yet, so it is retried until Scan returns and closes stopped.
func (b *TinyGoBackend) stopOnDone(ctx context.Context, stopped <-chan struct{}) {
	select {
	case <-ctx.Done():
	case <-stopped:
		return
	}

	ticker := time.NewTicker(stopRetryInterval)
	defer ticker.Stop()
	for {
		if err := b.adapter.StopScan(); err == nil {
			return
		}
		select {
		case <-stopped:
			return
		case <-ticker.C:
		}
	}
}
