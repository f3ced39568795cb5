// Package luafilter lets a user script decide which advertisements reach the tracker.
//
// The script must define a global function accept(adv) returning a boolean.
// adv is a table with address, name and rssi fields plus a has_service(uuid)
// function:
//
//	function accept(adv)
//	  return adv.rssi > -80 and adv.has_service("180d")
//	end
//
// print() output is forwarded to the logger at debug level.
package luafilter

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/aarzilli/golua/lua"
	"github.com/sirupsen/logrus"
	"github.com/srg/blerank/scanner"
)

// AcceptFunction is the global the script must define.
const AcceptFunction = "accept"

// ScriptError describes a failure to load or run the filter script.
type ScriptError struct {
	Type    string // "syntax", "runtime", "api"
	Message string
	Line    int
	Source  string
}

func (e *ScriptError) Error() string {
	parts := []string{}
	if e.Source != "" {
		parts = append(parts, fmt.Sprintf("in %s", e.Source))
	}
	if e.Line > 0 {
		parts = append(parts, fmt.Sprintf("line %d", e.Line))
	}
	if len(parts) == 0 {
		return fmt.Sprintf("lua %s error: %s", e.Type, e.Message)
	}
	return fmt.Sprintf("lua %s error (%s): %s", e.Type, strings.Join(parts, ", "), e.Message)
}

// Filter runs accept() for each advertisement. It is safe for concurrent use;
// calls are serialized on one Lua state.
type Filter struct {
	mu     sync.Mutex
	state  *lua.State
	source string
	logger *logrus.Logger

	failures atomic.Int64
}

// NewFromFile loads the filter script at path.
func NewFromFile(path string, logger *logrus.Logger) (*Filter, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read filter script %s: %w", path, err)
	}
	return New(string(content), path, logger)
}

// New compiles script and checks that it defines accept.
func New(script, source string, logger *logrus.Logger) (*Filter, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if strings.TrimSpace(script) == "" {
		return nil, &ScriptError{Type: "api", Message: "empty script", Source: source}
	}

	f := &Filter{
		state:  lua.NewState(),
		source: source,
		logger: logger,
	}
	f.state.OpenLibs()
	f.registerPrint()

	if err := f.state.DoString(script); err != nil {
		scriptErr := f.parseError("syntax", err)
		f.state.Close()
		return nil, scriptErr
	}

	f.state.GetGlobal(AcceptFunction)
	defined := f.state.IsFunction(-1)
	f.state.Pop(1)
	if !defined {
		f.state.Close()
		return nil, &ScriptError{
			Type:    "api",
			Message: fmt.Sprintf("function %s not found or not a function", AcceptFunction),
			Source:  source,
		}
	}

	logger.WithField("script", source).Debug("Loaded advertisement filter")
	return f, nil
}

// registerPrint routes print() to the logger.
func (f *Filter) registerPrint() {
	f.state.PushGoFunction(func(L *lua.State) int {
		top := L.GetTop()
		parts := make([]string, 0, top)
		for i := 1; i <= top; i++ {
			switch {
			case L.IsNil(i):
				parts = append(parts, "nil")
			case L.IsBoolean(i):
				parts = append(parts, fmt.Sprintf("%t", L.ToBoolean(i)))
			default:
				parts = append(parts, L.ToString(i))
			}
		}
		f.logger.WithField("script", f.source).Debug(strings.Join(parts, "\t"))
		return 0
	})
	f.state.SetGlobal("print")
}

// Accept reports the script's verdict. A script error, a non-boolean result
// or a closed filter all reject the advertisement.
func (f *Filter) Accept(adv scanner.Advertisement) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state == nil {
		return false
	}
	L := f.state

	L.GetGlobal(AcceptFunction)
	L.NewTable()
	L.PushString(adv.Addr())
	L.SetField(-2, "address")
	L.PushString(adv.LocalName())
	L.SetField(-2, "name")
	L.PushInteger(int64(adv.RSSI()))
	L.SetField(-2, "rssi")
	L.PushGoFunction(func(L *lua.State) int {
		uuid := scanner.NormalizeUUID(L.ToString(1))
		L.PushBoolean(uuid != "" && adv.HasService(uuid))
		return 1
	})
	L.SetField(-2, "has_service")

	if err := L.Call(1, 1); err != nil {
		f.failures.Add(1)
		f.logger.WithFields(logrus.Fields{
			"script":  f.source,
			"address": adv.Addr(),
			"error":   err,
		}).Debug("Filter script failed, rejecting advertisement")
		L.SetTop(0)
		return false
	}

	if !L.IsBoolean(-1) {
		f.failures.Add(1)
		f.logger.WithFields(logrus.Fields{
			"script":  f.source,
			"address": adv.Addr(),
			"type":    L.LTypename(-1),
		}).Debug("Filter script returned a non-boolean, rejecting advertisement")
		L.SetTop(0)
		return false
	}

	accepted := L.ToBoolean(-1)
	L.Pop(1)
	return accepted
}

// Failures returns how many accept() calls raised an error or returned a
// non-boolean.
func (f *Filter) Failures() int64 {
	return f.failures.Load()
}

// Close releases the Lua state. Accept rejects everything afterwards.
func (f *Filter) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != nil {
		f.state.Close()
		f.state = nil
	}
}

// parseError pulls the line number out of "[string \"...\"]:3: message".
func (f *Filter) parseError(errType string, err error) *ScriptError {
	msg := err.Error()
	line := 0
	message := msg
	parts := strings.SplitN(msg, ":", 3)
	if len(parts) == 3 {
		if n, scanErr := fmt.Sscanf(strings.TrimSpace(parts[1]), "%d", &line); scanErr == nil && n == 1 {
			message = strings.TrimSpace(parts[2])
		}
	}
	return &ScriptError{Type: errType, Message: message, Line: line, Source: f.source}
}
