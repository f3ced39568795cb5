package view_test

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/srg/blerank/internal/anchor"
	"github.com/srg/blerank/internal/registry"
	"github.com/srg/blerank/internal/testutils"
	"github.com/srg/blerank/internal/view"
	"github.com/stretchr/testify/suite"
)

type ViewTestSuite struct {
	suite.Suite
	snap registry.Snapshot
}

func (s *ViewTestSuite) SetupTest() {
	reg := registry.New(registry.WithLogger(testutils.NewTestHelper(s.T()).Logger))
	for _, obs := range []struct {
		addr, name string
		rssi       int
	}{
		{"AA:BB:CC:DD:EE:03", "Thermometer", -90},
		{"AA:BB:CC:DD:EE:01", "Heart", -40},
		{"AA:BB:CC:DD:EE:02", "", -65},
	} {
		_, _, err := reg.Ingest(testutils.NewObservation(obs.addr, obs.name, obs.rssi))
		s.Require().NoError(err)
	}
	s.snap = reg.Snapshot()
}

func (s *ViewTestSuite) render(r *view.Renderer, vp *view.Viewport) string {
	var buf bytes.Buffer
	s.Require().NoError(r.Render(&buf, s.snap, vp))
	return buf.String()
}

func (s *ViewTestSuite) tableRenderer(opts ...view.RendererOption) *view.Renderer {
	opts = append([]view.RendererOption{view.WithClock(func() time.Time {
		return testutils.Epoch.Add(5 * time.Second)
	})}, opts...)
	return view.NewRenderer(view.FormatTable, opts...)
}

// GOAL: Verify viewport reports top-row visibility to the anchor controller
//
// TEST SCENARIO: Offsets and heights → ViewState matches "row 0 fully visible"
func (s *ViewTestSuite) TestViewportState() {
	tests := []struct {
		name     string
		height   int
		scroll   int
		expected anchor.ViewState
	}{
		{"at top", 5, 0, anchor.ViewState{TopRowVisible: true, TopAddress: "AA:BB:CC:DD:EE:01"}},
		{"scrolled", 2, 1, anchor.ViewState{}},
		{"zero height", 0, 0, anchor.ViewState{}},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			vp := view.NewViewport(tt.height)
			vp.ScrollBy(tt.scroll, s.snap.Len())
			s.Equal(tt.expected, vp.State(s.snap))
		})
	}

	s.Run("empty snapshot", func() {
		state := view.NewViewport(3).State(registry.Snapshot{})
		s.True(state.TopRowVisible)
		s.Empty(state.TopAddress)
	})
}

func (s *ViewTestSuite) TestViewportScrolling() {
	vp := view.NewViewport(2)

	vp.ScrollBy(10, 5)
	s.Equal(3, vp.Offset(), "clamped to last full page")
	lo, hi := vp.Window(5)
	s.Equal([]int{3, 5}, []int{lo, hi})

	vp.ScrollBy(-10, 5)
	s.Equal(0, vp.Offset())

	vp.ScrollBy(1, 5)
	s.True(vp.Apply(anchor.DirectiveScrollToTop))
	s.Equal(0, vp.Offset())
	s.False(vp.Apply(anchor.DirectiveScrollToTop), "already at top")

	vp.ScrollBy(2, 5)
	s.False(vp.Apply(anchor.DirectiveNone))
	s.Equal(2, vp.Offset())

	vp.Resize(10)
	lo, hi = vp.Window(5)
	s.Equal([]int{0, 5}, []int{lo, hi}, "list shorter than viewport")

	vp.Resize(-1)
	s.Equal(0, vp.Height())
}

func (s *ViewTestSuite) TestSignalFraction() {
	tests := []struct {
		dbm      float64
		expected float64
	}{
		{-120, 0},
		{-100, 0},
		{-75, 0.5},
		{-50, 1},
		{-30, 1},
		{0, 1},
	}
	for _, tt := range tests {
		s.InDelta(tt.expected, view.SignalFraction(tt.dbm), 1e-9, "dBm %v", tt.dbm)
	}

	s.Equal("█████░░░░░", view.SignalBar(-75))
	s.Equal("███████░░░", view.SignalBar(-65))
	s.Equal("░░░░░░░░░░", view.SignalBar(-110))
}

// GOAL: Verify the ranked table layout
//
// TEST SCENARIO: Three devices, one unnamed → rank order, placeholder, aligned columns
func (s *ViewTestSuite) TestRenderTable() {
	expected := `
#  NAME            ADDRESS            RSSI     AVG    SIGNAL      SEEN  LAST SEEN
1  Heart           AA:BB:CC:DD:EE:01  -40 dBm  -40.0  ██████████  1     5s ago
2  Unknown Device  AA:BB:CC:DD:EE:02  -65 dBm  -65.0  ███████░░░  1     5s ago
3  Thermometer     AA:BB:CC:DD:EE:03  -90 dBm  -90.0  ██░░░░░░░░  1     5s ago
`
	testutils.NewTextAsserter(s.T()).Assert(s.render(s.tableRenderer(), nil), strings.TrimPrefix(expected, "\n"))
}

func (s *ViewTestSuite) TestRenderTable_Window() {
	vp := view.NewViewport(2)
	vp.ScrollBy(1, s.snap.Len())

	expected := `
#  NAME            ADDRESS            RSSI     AVG    SIGNAL      SEEN  LAST SEEN
2  Unknown Device  AA:BB:CC:DD:EE:02  -65 dBm  -65.0  ███████░░░  1     5s ago
3  Thermometer     AA:BB:CC:DD:EE:03  -90 dBm  -90.0  ██░░░░░░░░  1     5s ago
rows 2-3 of 3
`
	testutils.NewTextAsserter(s.T()).Assert(s.render(s.tableRenderer(), vp), strings.TrimPrefix(expected, "\n"))
}

func (s *ViewTestSuite) TestRenderTable_TopRowBold() {
	original := color.NoColor
	color.NoColor = false
	s.T().Cleanup(func() { color.NoColor = original })

	lines := strings.Split(s.render(s.tableRenderer(), view.NewViewport(3)), "\n")
	s.True(strings.HasPrefix(lines[1], "\x1b[1m"), "rank 1 is bold")
	s.False(strings.HasPrefix(lines[2], "\x1b["))

	vp := view.NewViewport(2)
	vp.ScrollBy(1, s.snap.Len())
	lines = strings.Split(s.render(s.tableRenderer(), vp), "\n")
	s.False(strings.HasPrefix(lines[1], "\x1b["), "top row not shown")
}

func (s *ViewTestSuite) TestRenderTable_UnknownNameAndEmpty() {
	out := s.render(s.tableRenderer(view.WithUnknownName("(anon)")), nil)
	s.Contains(out, "(anon)")
	s.NotContains(out, view.DefaultUnknownName)

	var buf bytes.Buffer
	s.Require().NoError(s.tableRenderer().Render(&buf, registry.Snapshot{}, nil))
	s.Equal("No devices discovered\n", buf.String())
}

func (s *ViewTestSuite) TestRenderJSON() {
	out := s.render(view.NewRenderer(view.FormatJSON), nil)

	testutils.NewJSONAsserter(s.T()).
		WithOptions(testutils.WithIgnoredFields("lastSeen")).
		Assert(out, `[
			{"address": "AA:BB:CC:DD:EE:01", "name": "Heart", "rssi": -40, "history": [-40], "smoothed": -40, "seen": 1},
			{"address": "AA:BB:CC:DD:EE:02", "rssi": -65, "history": [-65], "smoothed": -65, "seen": 1},
			{"address": "AA:BB:CC:DD:EE:03", "name": "Thermometer", "rssi": -90, "history": [-90], "smoothed": -90, "seen": 1}
		]`)
}

func (s *ViewTestSuite) TestRenderYAML() {
	out := s.render(view.NewRenderer(view.FormatYAML), nil)

	first := strings.Index(out, "AA:BB:CC:DD:EE:01")
	second := strings.Index(out, "AA:BB:CC:DD:EE:02")
	third := strings.Index(out, "AA:BB:CC:DD:EE:03")
	s.True(first >= 0 && first < second && second < third, "ranked key order:\n%s", out)
	s.Contains(out, "name: Heart")
	s.Contains(out, "smoothed: -65")
}

func (s *ViewTestSuite) TestParseFormat() {
	for _, f := range view.Formats {
		got, err := view.ParseFormat(f)
		s.NoError(err)
		s.Equal(view.Format(f), got)
	}

	_, err := view.ParseFormat("xml")
	s.EqualError(err, "invalid format 'xml': must be one of [table json yaml]")
}

func TestViewTestSuite(t *testing.T) {
	suite.Run(t, new(ViewTestSuite))
}
