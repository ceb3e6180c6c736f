package sorter

import (
	"context"
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-sort/common"
	"github.com/Carmen-Shannon/oxy-sort/engine/backend"
	"github.com/Carmen-Shannon/oxy-sort/engine/kernel"
	"github.com/Carmen-Shannon/oxy-sort/engine/sequencer"
	"go.uber.org/zap"
)

// Issue submits every entry of plan against arr, one dispatch per entry, in plan order.
// Each dispatch carries its own stage parameters and the grid for the array length.
// Issue returns once the last dispatch is submitted; use Backend.Read to wait for the result.
//
// Parameters:
//   - ctx: checked before each dispatch, cancellation stops issuing
//   - b: the backend that owns arr and has k registered
//   - k: the compare-exchange kernel
//   - arr: the array to sort, of length 2^plan.LogLen()
//   - plan: the full dispatch plan for arr
//
// Returns:
//   - error: ErrNotPowerOfTwo or ErrLengthMismatch before any dispatch, an error wrapping
//     ErrDispatch naming the failing step, or ctx.Err()
func Issue(ctx context.Context, b backend.Backend, k kernel.Kernel, arr backend.Array, plan sequencer.DispatchPlan) error {
	return issue(ctx, b, k, arr, plan, zap.NewNop())
}

func issue(ctx context.Context, b backend.Backend, k kernel.Kernel, arr backend.Array, plan sequencer.DispatchPlan, logger *zap.Logger) error {
	n := arr.Len()
	if !common.IsPowerOfTwo(n) {
		return fmt.Errorf("%w: %s has %d elements", ErrNotPowerOfTwo, arr.Label(), n)
	}
	logLen := common.Log2(n)
	if len(plan) != sequencer.Len(logLen) || (len(plan) > 0 && plan.LogLen() != logLen) {
		return fmt.Errorf("%w: plan of %d steps for log_len %d, array %s has 2^%d elements",
			ErrLengthMismatch, len(plan), plan.LogLen(), arr.Label(), logLen)
	}

	grid := DispatchGrid(logLen, k.GroupCapacityLog())
	for step, params := range plan {
		if err := ctx.Err(); err != nil {
			return err
		}
		if params.LogLen != logLen {
			return fmt.Errorf("%w: step %d %s", ErrLengthMismatch, step, params)
		}
		if err := b.Dispatch(k, arr, params, grid); err != nil {
			if errors.Is(err, ErrDispatch) {
				return fmt.Errorf("step %d %s: %w", step, params, err)
			}
			return fmt.Errorf("%w: step %d %s: %w", ErrDispatch, step, params, err)
		}
		logger.Debug("dispatch", zap.Int("step", step), zap.Stringer("params", params), zap.Uint32s("grid", grid[:]))
	}
	return nil
}
