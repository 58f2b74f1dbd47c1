package vm

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/atlas-lang/atlas/bytecode"
	"github.com/atlas-lang/atlas/value"
)

// Profiler counts function calls and executed opcodes to find hot code. A
// function becomes hot once its call count reaches HotThreshold; OnHot then
// fires exactly once for it. One Profiler may be shared by VMs running on
// different goroutines.
type Profiler struct {
	functions sync.Map // *value.Function -> *FunctionProfile
	natives   sync.Map // string -> *uint64
	opcodes   [256]atomic.Uint64

	// HotThreshold is the call count at which a function becomes hot.
	HotThreshold uint64

	// OnHot is called when a function becomes hot.
	OnHot func(fn *value.Function, profile *FunctionProfile)

	hotCount atomic.Uint64
}

// FunctionProfile holds the counters for one function.
type FunctionProfile struct {
	calls atomic.Uint64
	hot   atomic.Bool
}

// Calls returns the number of recorded calls.
func (p *FunctionProfile) Calls() uint64 { return p.calls.Load() }

// IsHot reports whether the threshold was reached.
func (p *FunctionProfile) IsHot() bool { return p.hot.Load() }

// NewProfiler creates a profiler with the default threshold.
func NewProfiler() *Profiler {
	return &Profiler{HotThreshold: 100}
}

// RecordCall counts a call of fn. It returns true if this call made fn hot.
func (p *Profiler) RecordCall(fn *value.Function) bool {
	if fn == nil {
		return false
	}
	val, _ := p.functions.LoadOrStore(fn, &FunctionProfile{})
	profile := val.(*FunctionProfile)

	count := profile.calls.Add(1)
	if count >= p.HotThreshold && profile.hot.CompareAndSwap(false, true) {
		p.hotCount.Add(1)
		if p.OnHot != nil {
			p.OnHot(fn, profile)
		}
		return true
	}
	return false
}

// RecordNative counts a native call.
func (p *Profiler) RecordNative(name string) {
	val, _ := p.natives.LoadOrStore(name, new(uint64))
	atomic.AddUint64(val.(*uint64), 1)
}

// RecordOpcode counts one executed instruction.
func (p *Profiler) RecordOpcode(op bytecode.Opcode) {
	p.opcodes[op].Add(1)
}

// Profile returns the profile of fn, or nil if it was never called.
func (p *Profiler) Profile(fn *value.Function) *FunctionProfile {
	if val, ok := p.functions.Load(fn); ok {
		return val.(*FunctionProfile)
	}
	return nil
}

// IsHot reports whether fn has reached the threshold.
func (p *Profiler) IsHot(fn *value.Function) bool {
	profile := p.Profile(fn)
	return profile != nil && profile.IsHot()
}

// NativeCalls returns how often the named native was called.
func (p *Profiler) NativeCalls(name string) uint64 {
	if val, ok := p.natives.Load(name); ok {
		return atomic.LoadUint64(val.(*uint64))
	}
	return 0
}

// OpcodeCount returns how often op was executed.
func (p *Profiler) OpcodeCount(op bytecode.Opcode) uint64 {
	return p.opcodes[op].Load()
}

// ProfilerStats holds aggregate profiling statistics.
type ProfilerStats struct {
	Functions    int    // functions called at least once
	HotFunctions int    // functions past the threshold
	Calls        uint64 // function calls
	NativeCalls  uint64
	Instructions uint64
}

// Stats returns aggregate profiling statistics.
func (p *Profiler) Stats() ProfilerStats {
	var stats ProfilerStats
	p.functions.Range(func(_, val any) bool {
		profile := val.(*FunctionProfile)
		stats.Functions++
		stats.Calls += profile.Calls()
		return true
	})
	p.natives.Range(func(_, val any) bool {
		stats.NativeCalls += atomic.LoadUint64(val.(*uint64))
		return true
	})
	for i := range p.opcodes {
		stats.Instructions += p.opcodes[i].Load()
	}
	stats.HotFunctions = int(p.hotCount.Load())
	return stats
}

// HotFunctions returns every function past the threshold.
func (p *Profiler) HotFunctions() []*value.Function {
	var hot []*value.Function
	p.functions.Range(func(key, val any) bool {
		if val.(*FunctionProfile).IsHot() {
			hot = append(hot, key.(*value.Function))
		}
		return true
	})
	return hot
}

// TopFunctions returns the n most called functions, most called first.
func (p *Profiler) TopFunctions(n int) []*value.Function {
	type fnCount struct {
		fn    *value.Function
		count uint64
	}
	var all []fnCount
	p.functions.Range(func(key, val any) bool {
		all = append(all, fnCount{key.(*value.Function), val.(*FunctionProfile).Calls()})
		return true
	})
	sort.Slice(all, func(i, j int) bool { return all[i].count > all[j].count })

	result := make([]*value.Function, 0, n)
	for i := 0; i < n && i < len(all); i++ {
		result = append(result, all[i].fn)
	}
	return result
}

// Reset clears all profiling data. It must not race with recording VMs.
func (p *Profiler) Reset() {
	p.functions.Clear()
	p.natives.Clear()
	for i := range p.opcodes {
		p.opcodes[i].Store(0)
	}
	p.hotCount.Store(0)
}
