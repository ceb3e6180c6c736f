package sorter

import (
	"errors"

	"github.com/Carmen-Shannon/oxy-sort/engine/backend"
	"github.com/Carmen-Shannon/oxy-sort/engine/sequencer"
)

var (
	// ErrNotPowerOfTwo reports an input whose length is not 2^k.
	ErrNotPowerOfTwo = sequencer.ErrNotPowerOfTwo
	// ErrLengthMismatch reports a dispatch plan computed for a different array length.
	ErrLengthMismatch = errors.New("plan does not match array length")
	// ErrVerification reports a sorted result that differs from the reference sort.
	ErrVerification = errors.New("sorted result differs from reference")

	ErrBackendInit   = backend.ErrBackendInit
	ErrKernelCompile = backend.ErrKernelCompile
	ErrArrayTooLarge = backend.ErrArrayTooLarge
	ErrDispatch      = backend.ErrDispatch
	ErrReadback      = backend.ErrReadback
)

// retryable reports whether a failed attempt may be repeated from the input snapshot.
// Precondition failures and context cancellation are never retried.
func retryable(err error) bool {
	return errors.Is(err, ErrDispatch) || errors.Is(err, ErrReadback) || errors.Is(err, ErrVerification)
}
