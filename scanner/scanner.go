// Package scanner turns BLE advertisements into device observations.
//
// A Scanner drives a Backend (go-ble or tinygo bluetooth), filters what it
// hears and emits one device.Observation per accepted advertisement. It does
// no aggregation; that is the tracker's job.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blerank/internal/device"
)

// Advertisement is the part of a BLE advertisement the scanner looks at.
type Advertisement interface {
	Addr() string
	LocalName() string
	RSSI() int
	// HasService reports whether the advertisement lists the service with
	// the given normalized UUID.
	HasService(uuid string) bool
}

// Backend is a radio that can scan for advertisements.
type Backend interface {
	Scan(ctx context.Context, allowDup bool, handler func(Advertisement)) error
}

// Filter is an extra accept/reject hook run after the address and service filters.
type Filter interface {
	Accept(adv Advertisement) bool
}

// ScanOptions configures scanning behavior
type ScanOptions struct {
	Duration        time.Duration
	DuplicateFilter bool
	ServiceUUIDs    []string
	AllowList       []string
	BlockList       []string
	Filter          Filter
}

// DefaultScanOptions returns default scanning options
func DefaultScanOptions() *ScanOptions {
	return &ScanOptions{
		Duration:        10 * time.Second,
		DuplicateFilter: true,
	}
}

// Scanner handles BLE device discovery
type Scanner struct {
	backend Backend
	logger  *logrus.Logger

	// Now stamps observations; tests may replace it.
	Now func() time.Time

	accepted atomic.Int64
	rejected atomic.Int64
}

// NewScanner creates a scanner on top of backend.
func NewScanner(backend Backend, logger *logrus.Logger) (*Scanner, error) {
	if backend == nil {
		return nil, fmt.Errorf("scanner backend cannot be nil")
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Scanner{
		backend: backend,
		logger:  logger,
		Now:     time.Now,
	}, nil
}

// Scan listens until ctx is done or opts.Duration elapses and calls emit for
// every accepted advertisement. emit runs on the backend's callback goroutine
// and must not block.
//
// Cancellation and the duration deadline end a scan normally and return nil.
func (s *Scanner) Scan(ctx context.Context, opts *ScanOptions, emit func(device.Observation)) error {
	if opts == nil {
		opts = DefaultScanOptions()
	}
	if emit == nil {
		emit = func(device.Observation) {}
	}

	services := NormalizeUUIDs(opts.ServiceUUIDs)
	filtered := *opts
	filtered.ServiceUUIDs = services

	scanCtx := ctx
	if opts.Duration > 0 {
		var cancel context.CancelFunc
		scanCtx, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
	}

	s.logger.WithField("duration", opts.Duration).Info("Starting BLE scan...")

	err := s.backend.Scan(scanCtx, !opts.DuplicateFilter, func(adv Advertisement) {
		s.handleAdvertisement(adv, &filtered, emit)
	})
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("scan failed: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"accepted": s.accepted.Load(),
		"rejected": s.rejected.Load(),
	}).Info("BLE scan completed")
	return nil
}

func (s *Scanner) handleAdvertisement(adv Advertisement, opts *ScanOptions, emit func(device.Observation)) {
	addr := adv.Addr()
	if addr == "" {
		s.rejected.Add(1)
		s.logger.Debug("Dropped advertisement without address")
		return
	}
	if !s.shouldIncludeDevice(adv, opts) {
		s.rejected.Add(1)
		return
	}

	s.accepted.Add(1)
	emit(device.Observation{
		Address:   addr,
		Name:      adv.LocalName(),
		RSSI:      adv.RSSI(),
		Timestamp: s.Now(),
	})
}

// shouldIncludeDevice applies block, allow, service and script filters in that order.
func (s *Scanner) shouldIncludeDevice(adv Advertisement, opts *ScanOptions) bool {
	addr := adv.Addr()

	for _, blocked := range opts.BlockList {
		if addr == blocked {
			return false
		}
	}

	if len(opts.AllowList) > 0 {
		allowed := false
		for _, a := range opts.AllowList {
			if addr == a {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}

	if len(opts.ServiceUUIDs) > 0 {
		hasRequired := false
		for _, required := range opts.ServiceUUIDs {
			if adv.HasService(required) {
				hasRequired = true
				break
			}
		}
		if !hasRequired {
			return false
		}
	}

	if opts.Filter != nil && !opts.Filter.Accept(adv) {
		return false
	}

	return true
}

// Stats returns how many advertisements were accepted and rejected so far.
func (s *Scanner) Stats() (accepted, rejected int64) {
	return s.accepted.Load(), s.rejected.Load()
}
