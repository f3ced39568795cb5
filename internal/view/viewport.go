package view

import (
	"github.com/srg/blerank/internal/anchor"
	"github.com/srg/blerank/internal/registry"
)

// Viewport is a window of height rows starting at offset into a ranked list.
// It is not safe for concurrent use; the watch loop owns it.
type Viewport struct {
	offset int
	height int
}

// NewViewport returns a viewport scrolled to the top.
func NewViewport(height int) *Viewport {
	v := &Viewport{}
	v.Resize(height)
	return v
}

func (v *Viewport) Offset() int { return v.offset }
func (v *Viewport) Height() int { return v.height }

// State reports whether row 0 is fully visible and which device it shows.
func (v *Viewport) State(snap registry.Snapshot) anchor.ViewState {
	if v.offset != 0 || v.height <= 0 {
		return anchor.ViewState{}
	}
	state := anchor.ViewState{TopRowVisible: true}
	if top, ok := snap.Top(); ok {
		state.TopAddress = top.Address()
	}
	return state
}

// ScrollBy moves the window by n rows, clamped to the list of total rows.
func (v *Viewport) ScrollBy(n, total int) {
	v.offset += n
	v.clamp(total)
}

func (v *Viewport) ScrollToTop() {
	v.offset = 0
}

// Apply acts on a directive and reports whether the offset changed. A viewport
// already at offset 0 shows the new top row and reports false.
func (v *Viewport) Apply(d anchor.Directive) bool {
	if d != anchor.DirectiveScrollToTop || v.offset == 0 {
		return false
	}
	v.ScrollToTop()
	return true
}

// Resize sets the number of visible rows. Negative heights become 0.
func (v *Viewport) Resize(height int) {
	if height < 0 {
		height = 0
	}
	v.height = height
}

// Window returns the half-open row range [lo, hi) visible out of total rows.
func (v *Viewport) Window(total int) (lo, hi int) {
	v.clamp(total)
	lo = v.offset
	hi = lo + v.height
	if hi > total {
		hi = total
	}
	if lo > hi {
		lo = hi
	}
	return lo, hi
}

func (v *Viewport) clamp(total int) {
	maxOffset := total - v.height
	if maxOffset < 0 {
		maxOffset = 0
	}
	if v.offset > maxOffset {
		v.offset = maxOffset
	}
	if v.offset < 0 {
		v.offset = 0
	}
}
