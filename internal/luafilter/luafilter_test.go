package luafilter_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/srg/blerank/internal/luafilter"
	"github.com/srg/blerank/internal/testutils"
	"github.com/stretchr/testify/suite"
)

type adv struct {
	addr     string
	name     string
	rssi     int
	services []string
}

func (a adv) Addr() string      { return a.addr }
func (a adv) LocalName() string { return a.name }
func (a adv) RSSI() int         { return a.rssi }

func (a adv) HasService(uuid string) bool {
	for _, s := range a.services {
		if s == uuid {
			return true
		}
	}
	return false
}

type LuaFilterTestSuite struct {
	suite.Suite
	helper *testutils.TestHelper
}

func (s *LuaFilterTestSuite) SetupTest() {
	s.helper = testutils.NewTestHelper(s.T())
}

func (s *LuaFilterTestSuite) newFilter(script string) *luafilter.Filter {
	f, err := luafilter.New(script, "test.lua", s.helper.Logger)
	s.Require().NoError(err)
	s.T().Cleanup(f.Close)
	return f
}

// GOAL: Verify the script sees address, name, rssi and services
//
// TEST SCENARIO: Scripts keyed on each field → verdict follows the field
func (s *LuaFilterTestSuite) TestAcceptFields() {
	heart := adv{addr: "AA:BB:CC:DD:EE:FF", name: "Heart", rssi: -55, services: []string{"180d"}}
	far := adv{addr: "11:22:33:44:55:66", rssi: -90}

	tests := []struct {
		name   string
		script string
		heart  bool
		far    bool
	}{
		{"rssi threshold", `function accept(a) return a.rssi > -80 end`, true, false},
		{"address prefix", `function accept(a) return string.sub(a.address, 1, 2) == "11" end`, false, true},
		{"named only", `function accept(a) return a.name ~= "" end`, true, false},
		{"service", `function accept(a) return a.has_service("0x180D") end`, true, false},
		{"accept all", `function accept(a) return true end`, true, true},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			f := s.newFilter(tt.script)
			s.Equal(tt.heart, f.Accept(heart))
			s.Equal(tt.far, f.Accept(far))
		})
	}
}

// GOAL: Verify failures reject instead of propagating
//
// TEST SCENARIO: Runtime error / non-boolean result → false, failure counted once
func (s *LuaFilterTestSuite) TestAcceptRejectsOnFailure() {
	f := s.newFilter(`function accept(a) if a.rssi < -70 then error("boom") end return "yes" end`)

	s.False(f.Accept(adv{addr: "A", rssi: -90}))
	s.Equal(int64(1), f.Failures())

	s.False(f.Accept(adv{addr: "B", rssi: -40}), "non-boolean result rejects")
	s.Equal(int64(2), f.Failures(), "non-boolean result counts as a failure")

	ok := s.newFilter(`function accept(a) return a.rssi > -50 end`)
	s.False(ok.Accept(adv{addr: "C", rssi: -60}))
	s.True(ok.Accept(adv{addr: "D", rssi: -40}))
	s.Equal(int64(0), ok.Failures(), "a false result is not a failure")
}

func (s *LuaFilterTestSuite) TestLoadErrors() {
	tests := []struct {
		name    string
		script  string
		errType string
	}{
		{"empty", "  ", "api"},
		{"syntax", "function accept(a) return", "syntax"},
		{"missing accept", "function other() return true end", "api"},
		{"accept not a function", "accept = 42", "api"},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := luafilter.New(tt.script, "bad.lua", s.helper.Logger)
			var scriptErr *luafilter.ScriptError
			s.Require().ErrorAs(err, &scriptErr)
			s.Equal(tt.errType, scriptErr.Type)
			s.Contains(err.Error(), "bad.lua")
		})
	}
}

func (s *LuaFilterTestSuite) TestNewFromFile() {
	path := filepath.Join(s.T().TempDir(), "filter.lua")
	s.Require().NoError(os.WriteFile(path, []byte(`
function accept(a)
  print("checking", a.address)
  return a.rssi >= -60
end
`), 0o644))

	f, err := luafilter.NewFromFile(path, s.helper.Logger)
	s.Require().NoError(err)
	defer f.Close()

	s.True(f.Accept(adv{addr: "A", rssi: -60}))
	s.False(f.Accept(adv{addr: "B", rssi: -61}))

	_, err = luafilter.NewFromFile(filepath.Join(s.T().TempDir(), "missing.lua"), s.helper.Logger)
	s.Error(err)
}

// GOAL: Verify concurrent callers share one state safely
//
// TEST SCENARIO: Many goroutines call Accept → all verdicts correct
func (s *LuaFilterTestSuite) TestConcurrentAccept() {
	f := s.newFilter(`function accept(a) return a.rssi % 2 == 0 end`)

	var wg sync.WaitGroup
	results := make([]bool, 64)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = f.Accept(adv{addr: "A", rssi: -i})
		}(i)
	}
	wg.Wait()

	for i, got := range results {
		s.Equal(i%2 == 0, got, "rssi %d", -i)
	}
}

func (s *LuaFilterTestSuite) TestClosedFilterRejects() {
	f, err := luafilter.New(`function accept(a) return true end`, "test.lua", s.helper.Logger)
	s.Require().NoError(err)

	f.Close()
	f.Close()
	s.False(f.Accept(adv{addr: "A"}))
}

func TestLuaFilterTestSuite(t *testing.T) {
	suite.Run(t, new(LuaFilterTestSuite))
}
