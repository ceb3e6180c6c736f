// Package sequencer derives the ordered list of compare-exchange stages that sorts
// an array of 2^k elements. It has no device dependencies and can be used to inspect
// or test a sort schedule without any accelerator present.
package sequencer

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-sort/common"
)

// ErrNotPowerOfTwo reports an array length that is not 2^k for any k >= 0.
var ErrNotPowerOfTwo = errors.New("array length is not a power of two")

// StageParameters is the parameter block uploaded before a single kernel dispatch.
// For a plan over 2^LogLen elements, 0 <= LogGroupInit <= LogGroupCurr <= LogLen-1.
type StageParameters struct {
	// LogLen is log2 of the array length.
	LogLen uint32
	// LogGroupInit is log2 of the number of groups at the start of the current stage.
	LogGroupInit uint32
	// LogGroupCurr is log2 of the number of groups at the current step.
	LogGroupCurr uint32
}

// GroupSizeLog returns log2 of the number of elements in one comparison group for this step.
func (p StageParameters) GroupSizeLog() uint32 {
	return p.LogLen - p.LogGroupCurr
}

// Flip reports whether this step compares mirrored positions inside each group
// (the first step of a stage) rather than elements half a group apart.
func (p StageParameters) Flip() bool {
	return p.LogGroupCurr == p.LogGroupInit
}

// GPU returns the device-layout representation of the parameter block.
func (p StageParameters) GPU() GPUStageParameters {
	return GPUStageParameters{
		LogLen:       p.LogLen,
		LogGroupInit: p.LogGroupInit,
		LogGroupCurr: p.LogGroupCurr,
	}
}

func (p StageParameters) String() string {
	return fmt.Sprintf("{log_len: %d, log_group_init: %d, log_group_curr: %d}", p.LogLen, p.LogGroupInit, p.LogGroupCurr)
}

// DispatchPlan is the ordered sequence of stage parameters for one full sort.
// A plan is computed once, consumed once and never mutated.
type DispatchPlan []StageParameters

// Len returns the number of entries a plan over 2^logLen elements holds: k(k+1)/2.
func Len(logLen uint32) int {
	k := int(logLen)
	return k * (k + 1) / 2
}

// Compute returns the dispatch plan for an array of 2^logLen elements.
// Stages run with the number of groups shrinking from 2^(k-1) down to 1; each stage
// then walks the current group count back up to 2^(k-1) one step at a time.
// logLen 0 yields an empty plan.
//
// Parameters:
//   - logLen: log2 of the array length
//
// Returns:
//   - DispatchPlan: exactly Len(logLen) entries in issue order
func Compute(logLen uint32) DispatchPlan {
	plan := make(DispatchPlan, 0, Len(logLen))
	for numStage := uint32(1); numStage <= logLen; numStage++ {
		logGroupInit := logLen - numStage
		for numStep := range numStage {
			plan = append(plan, StageParameters{
				LogLen:       logLen,
				LogGroupInit: logGroupInit,
				LogGroupCurr: logGroupInit + numStep,
			})
		}
	}
	return plan
}

// PlanFor returns the dispatch plan for an array of n elements.
//
// Parameters:
//   - n: the array length
//
// Returns:
//   - DispatchPlan: the plan for log2(n)
//   - error: an error wrapping ErrNotPowerOfTwo if n is not a positive power of two
func PlanFor(n int) (DispatchPlan, error) {
	if !common.IsPowerOfTwo(n) {
		return nil, fmt.Errorf("%w: %d", ErrNotPowerOfTwo, n)
	}
	return Compute(common.Log2(n)), nil
}

// LogLen returns the array length exponent the plan was computed for, or 0 for an empty plan.
func (p DispatchPlan) LogLen() uint32 {
	if len(p) == 0 {
		return 0
	}
	return p[0].LogLen
}

// Stages splits the plan into its stages. Stage i (0-based) holds i+1 steps that share LogGroupInit.
//
// Returns:
//   - [][]StageParameters: sub-slices of the plan, one per stage, in issue order
func (p DispatchPlan) Stages() [][]StageParameters {
	var stages [][]StageParameters
	start := 0
	for i := 1; i <= len(p); i++ {
		if i == len(p) || p[i].LogGroupInit != p[start].LogGroupInit {
			stages = append(stages, p[start:i])
			start = i
		}
	}
	return stages
}
