package profiler

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Phase identifies one timed section of a sort run.
type Phase int

const (
	// PhaseInitialization covers device creation and kernel compilation.
	PhaseInitialization Phase = iota
	// PhaseComputation covers issuing the dispatch plan.
	PhaseComputation
	// PhaseDataTransfer covers uploads to and downloads from the device.
	PhaseDataTransfer
	// PhaseCPUReference covers the host reference sort used for verification.
	PhaseCPUReference

	phaseCount
)

func (p Phase) String() string {
	switch p {
	case PhaseInitialization:
		return "initialization"
	case PhaseComputation:
		return "computation"
	case PhaseDataTransfer:
		return "data_transfer"
	case PhaseCPUReference:
		return "cpu_reference"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// Phases returns every phase in report order.
func Phases() []Phase {
	phases := make([]Phase, 0, phaseCount)
	for p := range phaseCount {
		phases = append(phases, p)
	}
	return phases
}

// Profiler accumulates wall-clock time per Phase and reports it, together with heap
// and GC statistics, to a zap logger. A nil *Profiler is valid and records nothing.
type Profiler struct {
	mu       sync.Mutex
	logger   *zap.Logger
	totals   [phaseCount]time.Duration
	counts   [phaseCount]int
	memStats runtime.MemStats
}

// NewProfiler creates a new Profiler with no recorded time.
//
// Parameters:
//   - options: functional options for profiler configuration
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler(options ...ProfilerBuilderOption) *Profiler {
	p := &Profiler{
		logger: zap.NewNop(),
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

// Start begins timing phase and returns the function that stops it.
//
// Parameters:
//   - phase: the phase being timed
//
// Returns:
//   - func(): call once when the phase ends
func (p *Profiler) Start(phase Phase) func() {
	if p == nil {
		return func() {}
	}
	started := time.Now()
	return func() {
		p.Add(phase, time.Since(started))
	}
}

// Track times fn as phase and returns its error.
//
// Parameters:
//   - phase: the phase being timed
//   - fn: the work to time
//
// Returns:
//   - error: the error returned by fn
func (p *Profiler) Track(phase Phase, fn func() error) error {
	stop := p.Start(phase)
	defer stop()
	return fn()
}

// Add records d against phase.
func (p *Profiler) Add(phase Phase, d time.Duration) {
	if p == nil || phase < 0 || phase >= phaseCount {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.totals[phase] += d
	p.counts[phase]++
}

// Duration returns the total time recorded against phase.
func (p *Profiler) Duration(phase Phase) time.Duration {
	if p == nil || phase < 0 || phase >= phaseCount {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.totals[phase]
}

// Count returns how many times phase was recorded.
func (p *Profiler) Count(phase Phase) int {
	if p == nil || phase < 0 || phase >= phaseCount {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counts[phase]
}

// Reset clears every recorded duration.
func (p *Profiler) Reset() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.totals = [phaseCount]time.Duration{}
	p.counts = [phaseCount]int{}
}

// Report logs the recorded phase totals and current memory statistics at Info level.
//
// Returns:
//   - map[Phase]time.Duration: the recorded totals, one entry per phase
func (p *Profiler) Report() map[Phase]time.Duration {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	runtime.ReadMemStats(&p.memStats)
	// Alloc: bytes of live heap objects, Sys: bytes obtained from the OS
	allocMB := float64(p.memStats.Alloc) / 1024 / 1024
	sysMB := float64(p.memStats.Sys) / 1024 / 1024

	out := make(map[Phase]time.Duration, phaseCount)
	fields := make([]zap.Field, 0, phaseCount+3)
	for phase := range phaseCount {
		out[phase] = p.totals[phase]
		fields = append(fields, zap.Duration(phase.String(), p.totals[phase]))
	}
	fields = append(fields,
		zap.String("heap", fmt.Sprintf("%.2f MB", allocMB)),
		zap.String("sys", fmt.Sprintf("%.2f MB", sysMB)),
		zap.Uint32("gc", p.memStats.NumGC),
	)
	p.logger.Info("[Profiler] sort timings", fields...)
	return out
}
