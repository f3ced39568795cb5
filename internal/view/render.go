// Package view renders ranked snapshots for the terminal and tracks the
// visible window of the device table.
package view

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/srg/blerank/internal/device"
	"github.com/srg/blerank/internal/registry"
	"gopkg.in/yaml.v3"
)

// Format is an output format for snapshots.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// Formats lists the supported output formats.
var Formats = []string{string(FormatTable), string(FormatJSON), string(FormatYAML)}

// DefaultUnknownName is shown for devices that never advertised a name.
const DefaultUnknownName = "Unknown Device"

const (
	signalFloor = -100.0
	signalCeil  = -50.0
	barWidth    = 10
	maxNameLen  = 20
)

// ParseFormat validates an output format name.
func ParseFormat(s string) (Format, error) {
	for _, f := range Formats {
		if s == f {
			return Format(s), nil
		}
	}
	return "", fmt.Errorf("invalid format '%s': must be one of %v", s, Formats)
}

// SignalFraction maps a smoothed dBm value onto [0, 1], with -100 dBm and
// below as 0 and -50 dBm and above as 1.
func SignalFraction(smoothed float64) float64 {
	f := (smoothed - signalFloor) / (signalCeil - signalFloor)
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}

// SignalBar draws SignalFraction as a fixed-width bar.
func SignalBar(smoothed float64) string {
	filled := int(SignalFraction(smoothed)*barWidth + 0.5)
	return strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)
}

// Renderer writes snapshots in one format.
type Renderer struct {
	format      Format
	unknownName string
	now         func() time.Time
	bold        *color.Color
}

type RendererOption func(*Renderer)

// WithUnknownName sets the placeholder for unnamed devices.
func WithUnknownName(name string) RendererOption {
	return func(r *Renderer) {
		if name != "" {
			r.unknownName = name
		}
	}
}

// WithClock replaces time.Now for the LAST SEEN column.
func WithClock(now func() time.Time) RendererOption {
	return func(r *Renderer) { r.now = now }
}

func NewRenderer(format Format, opts ...RendererOption) *Renderer {
	r := &Renderer{
		format:      format,
		unknownName: DefaultUnknownName,
		now:         time.Now,
		bold:        color.New(color.Bold),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Renderer) Format() Format { return r.format }

// DisplayName returns the record's name or the unknown-name placeholder.
func (r *Renderer) DisplayName(rec device.Record) string {
	if rec.HasName() {
		return rec.Name()
	}
	return r.unknownName
}

// Render writes snap to w. A nil viewport renders every row.
func (r *Renderer) Render(w io.Writer, snap registry.Snapshot, vp *Viewport) error {
	switch r.format {
	case FormatJSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(snap)
	case FormatYAML:
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(snap.Ordered()); err != nil {
			return err
		}
		return encoder.Close()
	default:
		return r.renderTable(w, snap, vp)
	}
}

func (r *Renderer) renderTable(w io.Writer, snap registry.Snapshot, vp *Viewport) error {
	if snap.IsEmpty() {
		_, err := fmt.Fprintln(w, "No devices discovered")
		return err
	}

	lo, hi := 0, snap.Len()
	if vp != nil {
		lo, hi = vp.Window(snap.Len())
	}

	var buf bytes.Buffer
	tw := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tNAME\tADDRESS\tRSSI\tAVG\tSIGNAL\tSEEN\tLAST SEEN")
	for i := lo; i < hi; i++ {
		rec := snap.At(i)
		name := r.DisplayName(rec)
		if runes := []rune(name); len(runes) > maxNameLen {
			name = string(runes[:maxNameLen-3]) + "..."
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d dBm\t%.1f\t%s\t%d\t%s\n",
			i+1, name, rec.Address(), rec.RSSI(), rec.Smoothed(),
			SignalBar(rec.Smoothed()), rec.Seen(), r.lastSeen(rec))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	for i, line := range lines {
		// lines[1] is rank 1 when the window starts at the top
		if i == 1 && lo == 0 {
			line = r.bold.Sprint(line)
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}

	if hi > lo && (lo > 0 || hi < snap.Len()) {
		_, err := fmt.Fprintf(w, "rows %d-%d of %d\n", lo+1, hi, snap.Len())
		return err
	}
	return nil
}

func (r *Renderer) lastSeen(rec device.Record) string {
	if rec.LastSeen().IsZero() {
		return "-"
	}
	return r.now().Sub(rec.LastSeen()).Truncate(time.Second).String() + " ago"
}
