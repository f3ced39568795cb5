// Package anchor decides when a re-ranked device list should jump back to
// its first row.
//
// A cycle has two phases. Capture runs before the registry re-sorts and
// remembers which device was at the top of a view that was scrolled to the
// top. Reconcile runs on the new ranking: if that device was pushed down,
// the view is told to scroll to the top. The anchor is consumed by every
// Reconcile, so a directive is issued at most once per cycle.
package anchor

import (
	"github.com/srg/blerank/internal/registry"
)

// Directive tells the presentation layer what to do with its scroll position.
type Directive int

const (
	DirectiveNone Directive = iota
	DirectiveScrollToTop
)

func (d Directive) String() string {
	switch d {
	case DirectiveScrollToTop:
		return "scroll_to_top"
	default:
		return "none"
	}
}

// ViewState is what the presentation layer reports before each cycle.
type ViewState struct {
	// TopRowVisible is true when row 0 is fully visible.
	TopRowVisible bool
	// TopAddress is the address rendered at row 0, if the view knows it.
	TopAddress string
}

// Controller holds at most one anchor. It is not safe for concurrent use.
type Controller struct {
	address string
	set     bool
}

// NewController returns a controller with no anchor.
func NewController() *Controller {
	return &Controller{}
}

// Capture records the current top row as the anchor when the view is showing
// it, and clears the anchor otherwise. before is the ranking the view was
// rendered from.
func (c *Controller) Capture(view ViewState, before registry.Snapshot) {
	c.Clear()

	if !view.TopRowVisible || before.IsEmpty() {
		return
	}

	addr := view.TopAddress
	if addr == "" {
		top, _ := before.Top()
		addr = top.Address()
	}
	c.address = addr
	c.set = true
}

// Reconcile consumes the anchor and returns DirectiveScrollToTop only when the
// anchored device is still listed but no longer first.
func (c *Controller) Reconcile(after registry.Snapshot) Directive {
	if !c.set {
		return DirectiveNone
	}
	addr := c.address
	c.Clear()

	if after.IndexOf(addr) > 0 {
		return DirectiveScrollToTop
	}
	return DirectiveNone
}

// Anchor returns the anchored address.
func (c *Controller) Anchor() (string, bool) {
	return c.address, c.set
}

// Clear drops the anchor.
func (c *Controller) Clear() {
	c.address = ""
	c.set = false
}
