package scanner

import (
	"context"
	"fmt"

	"github.com/go-ble/ble"
)

// DeviceFactory creates the go-ble device used by the goble backend.
// This is a variable so that it can be overridden in tests.
var DeviceFactory = newPlatformDevice

// gobleAdvertisement adapts ble.Advertisement to Advertisement.
type gobleAdvertisement struct {
	adv ble.Advertisement
}

// NewGoBLEAdvertisement wraps a go-ble advertisement.
func NewGoBLEAdvertisement(adv ble.Advertisement) Advertisement {
	return &gobleAdvertisement{adv: adv}
}

func (a *gobleAdvertisement) LocalName() string { return a.adv.LocalName() }
func (a *gobleAdvertisement) RSSI() int         { return a.adv.RSSI() }

func (a *gobleAdvertisement) Addr() string {
	addr := a.adv.Addr()
	if addr == nil {
		return ""
	}
	return addr.String()
}

func (a *gobleAdvertisement) HasService(uuid string) bool {
	for _, svc := range a.adv.Services() {
		if NormalizeUUID(svc.String()) == uuid {
			return true
		}
	}
	return false
}

// GoBLEBackend scans with github.com/go-ble/ble.
type GoBLEBackend struct {
	dev ble.Device
}

// NewGoBLEBackend opens the platform BLE device through DeviceFactory.
func NewGoBLEBackend() (*GoBLEBackend, error) {
	dev, err := DeviceFactory()
	if err != nil {
		return nil, NormalizeError(err)
	}
	if dev == nil {
		return nil, fmt.Errorf("device factory returned no device")
	}
	return &GoBLEBackend{dev: dev}, nil
}

// Scan converts each ble.Advertisement before handing it to handler.
func (b *GoBLEBackend) Scan(ctx context.Context, allowDup bool, handler func(Advertisement)) error {
	bleHandler := func(adv ble.Advertisement) {
		handler(NewGoBLEAdvertisement(adv))
	}
	if err := b.dev.Scan(ctx, allowDup, bleHandler); err != nil {
		return NormalizeError(err)
	}
	return nil
}
