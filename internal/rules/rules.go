// Package rules lets an operator override the canonical compliance
// classification with a small Lua script, for site-specific exceptions
// (e.g. a zone where only a hardhat is required) without a rebuild.
package rules

import (
	"fmt"
	"sync"

	lua "github.com/yuin/gopher-lua"

	"github.com/sudharshan/ppe-monitor/internal/compliance"
)

// Script wraps a compiled Lua chunk that may override one worker
// evaluation's Status/Kind. The chunk is expected to define a global
// function `classify(hardhat, no_hardhat, vest, no_vest, status, kind)`
// returning the (possibly unchanged) status and kind strings.
type Script struct {
	mu     sync.Mutex
	state  *lua.LState
	source string
}

// Load compiles source once; a compile error means overrides are
// disabled and the canonical classification is used untouched.
func Load(source string) (*Script, error) {
	l := lua.NewState()
	if err := l.DoString(source); err != nil {
		l.Close()
		return nil, fmt.Errorf("rules: compile: %w", err)
	}
	if l.GetGlobal("classify").Type() != lua.LTFunction {
		l.Close()
		return nil, fmt.Errorf("rules: script does not define classify()")
	}
	return &Script{state: l, source: source}, nil
}

// Apply calls the script's classify function for one evaluation. Any Lua
// runtime error leaves e unchanged; the pipeline never fails a frame
// because of a rule script defect.
func (s *Script) Apply(e *compliance.Evaluation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn := s.state.GetGlobal("classify")
	args := []lua.LValue{
		lua.LBool(e.Hardhat), lua.LBool(e.NoHardhat),
		lua.LBool(e.Vest), lua.LBool(e.NoVest),
		lua.LString(string(e.Status)), lua.LString(string(e.Kind)),
	}
	if err := s.state.CallByParam(lua.P{Fn: fn, NRet: 2, Protect: true}, args...); err != nil {
		return
	}
	defer s.state.Pop(2)

	kind := s.state.ToString(-1)
	status := s.state.ToString(-2)
	if status != "" {
		e.Status = compliance.Status(status)
	}
	if kind != "" {
		e.Kind = compliance.ViolationKind(kind)
	}
}

// Close releases the Lua interpreter.
func (s *Script) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Close()
}
