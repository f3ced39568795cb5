package main

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"
)

const (
	progressUpdateInterval = 100 * time.Millisecond
	clearLineSequence      = "\r\033[K"
)

// ProgressPrinter shows a countdown and the number of devices found so far
// while a single scan runs.
//
// Usage:
//
//	p := NewProgressPrinter(os.Stdout, "Scanning for BLE devices", 10*time.Second)
//	p.Start()
//	defer p.Stop()
//
// A ProgressPrinter is single-use. Start may be called at most once; Stop is
// safe to call any number of times.
type ProgressPrinter struct {
	out       io.Writer
	prefix    string
	duration  time.Duration // 0 counts up instead of down
	devices   atomic.Int64
	startTime time.Time
	ticker    atomic.Pointer[time.Ticker]
	stopChan  chan struct{}
	done      chan struct{}
	started   atomic.Bool
}

// NewProgressPrinter creates a printer counting down from duration.
func NewProgressPrinter(out io.Writer, prefix string, duration time.Duration) *ProgressPrinter {
	return &ProgressPrinter{
		out:      out,
		prefix:   prefix,
		duration: duration,
	}
}

// Start begins displaying progress updates in a background goroutine.
// Panics if called more than once on the same ProgressPrinter instance.
func (p *ProgressPrinter) Start() {
	if !p.started.CompareAndSwap(false, true) {
		panic("ProgressPrinter.Start called more than once")
	}

	p.done = make(chan struct{})
	p.stopChan = make(chan struct{})
	p.startTime = time.Now()
	ticker := time.NewTicker(progressUpdateInterval)
	p.ticker.Store(ticker)

	p.print()
	go func() {
		defer close(p.done)
		for {
			select {
			case <-p.stopChan:
				return
			case <-ticker.C:
				p.print()
			}
		}
	}()
}

// SetDevices updates the device count shown on the progress line.
// Safe to call from any goroutine.
func (p *ProgressPrinter) SetDevices(n int) {
	p.devices.Store(int64(n))
}

func (p *ProgressPrinter) seconds() int {
	elapsed := time.Since(p.startTime)
	if p.duration <= 0 {
		return int(elapsed.Seconds())
	}
	remaining := p.duration - elapsed
	if remaining <= 0 {
		return 0
	}
	// Round to the nearest second, e.g. 3.7s -> 4s
	return int(remaining.Seconds() + 0.5)
}

func (p *ProgressPrinter) print() {
	fmt.Fprintf(p.out, "\r%s (%ds, %d devices)   ", p.prefix, p.seconds(), p.devices.Load())
}

// Stop stops the progress display and clears the line.
// Only the first call does any work.
func (p *ProgressPrinter) Stop() {
	ticker := p.ticker.Swap(nil)
	if ticker == nil {
		return
	}

	ticker.Stop()
	close(p.stopChan)
	<-p.done

	fmt.Fprint(p.out, clearLineSequence)
}
