package profiler

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestProfilerAccumulates(t *testing.T) {
	p := NewProfiler()
	p.Add(PhaseComputation, 2*time.Millisecond)
	p.Add(PhaseComputation, 3*time.Millisecond)
	p.Add(PhaseDataTransfer, time.Millisecond)

	assert.Equal(t, 5*time.Millisecond, p.Duration(PhaseComputation))
	assert.Equal(t, 2, p.Count(PhaseComputation))
	assert.Equal(t, time.Millisecond, p.Duration(PhaseDataTransfer))
	assert.Zero(t, p.Duration(PhaseInitialization))

	p.Reset()
	assert.Zero(t, p.Duration(PhaseComputation))
	assert.Zero(t, p.Count(PhaseComputation))
}

func TestProfilerTrack(t *testing.T) {
	p := NewProfiler()
	boom := errors.New("boom")
	err := p.Track(PhaseCPUReference, func() error {
		time.Sleep(time.Millisecond)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.GreaterOrEqual(t, p.Duration(PhaseCPUReference), time.Millisecond)
	assert.Equal(t, 1, p.Count(PhaseCPUReference))
}

func TestNilProfiler(t *testing.T) {
	var p *Profiler
	p.Start(PhaseComputation)()
	p.Add(PhaseComputation, time.Second)
	p.Reset()
	assert.Zero(t, p.Duration(PhaseComputation))
	assert.Nil(t, p.Report())
	assert.NoError(t, p.Track(PhaseInitialization, func() error { return nil }))
}

func TestProfilerReport(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	p := NewProfiler(WithLogger(zap.New(core)))
	p.Add(PhaseInitialization, time.Second)

	totals := p.Report()
	assert.Len(t, totals, len(Phases()))
	assert.Equal(t, time.Second, totals[PhaseInitialization])

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, time.Second, fields["initialization"])
		assert.Contains(t, fields, "heap")
	}
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, []string{"initialization", "computation", "data_transfer", "cpu_reference"},
		func() []string {
			var names []string
			for _, p := range Phases() {
				names = append(names, p.String())
			}
			return names
		}())
	assert.Equal(t, "Phase(9)", Phase(9).String())
}
