package backend

import (
	"runtime"
	"time"

	"github.com/cogentcore/webgpu/wgpu"
	"go.uber.org/zap"
)

// backendConfig collects the pre-creation settings shared by every backend implementation.
type backendConfig struct {
	logger               *zap.Logger
	forceFallbackAdapter bool
	powerPreference      wgpu.PowerPreference
	deviceLabel          string
	pollInterval         time.Duration
	hostWorkers          int
	limits               *Limits
}

func defaultBackendConfig() *backendConfig {
	return &backendConfig{
		logger:          zap.NewNop(),
		powerPreference: wgpu.PowerPreferenceHighPerformance,
		deviceLabel:     "Sort Device",
		pollInterval:    100 * time.Microsecond,
		hostWorkers:     max(runtime.NumCPU()-1, 1),
	}
}

// BackendBuilderOption is a functional option applied to a backend during construction via NewBackend.
type BackendBuilderOption func(*backendConfig)

// WithLogger sets the logger used for device and dispatch diagnostics. Defaults to a no-op logger.
//
// Parameters:
//   - l: the logger to use, nil keeps the default
//
// Returns:
//   - BackendBuilderOption: a function that applies the logger option
func WithLogger(l *zap.Logger) BackendBuilderOption {
	return func(c *backendConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithForceFallbackAdapter requests the software fallback adapter when creating a WGPU backend.
//
// Parameters:
//   - force: if true, only a fallback adapter is accepted
//
// Returns:
//   - BackendBuilderOption: a function that applies the fallback adapter option
func WithForceFallbackAdapter(force bool) BackendBuilderOption {
	return func(c *backendConfig) {
		c.forceFallbackAdapter = force
	}
}

// WithPowerPreference sets the adapter power preference for a WGPU backend.
// Defaults to wgpu.PowerPreferenceHighPerformance.
//
// Parameters:
//   - pref: the preferred adapter power profile
//
// Returns:
//   - BackendBuilderOption: a function that applies the power preference option
func WithPowerPreference(pref wgpu.PowerPreference) BackendBuilderOption {
	return func(c *backendConfig) {
		c.powerPreference = pref
	}
}

// WithDeviceLabel sets the debug label of the WGPU device.
//
// Parameters:
//   - label: the device label
//
// Returns:
//   - BackendBuilderOption: a function that applies the label option
func WithDeviceLabel(label string) BackendBuilderOption {
	return func(c *backendConfig) {
		c.deviceLabel = label
	}
}

// WithPollInterval sets how long a readback sleeps between non-blocking device polls
// while it waits for a buffer map. Defaults to 100µs.
//
// Parameters:
//   - d: the sleep between polls
//
// Returns:
//   - BackendBuilderOption: a function that applies the poll interval option
func WithPollInterval(d time.Duration) BackendBuilderOption {
	return func(c *backendConfig) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithHostWorkers sets the number of workers the host backend spreads a dispatch over.
// Defaults to NumCPU-1 (at least 1).
//
// Parameters:
//   - n: worker count, values < 1 are ignored
//
// Returns:
//   - BackendBuilderOption: a function that applies the worker count option
func WithHostWorkers(n int) BackendBuilderOption {
	return func(c *backendConfig) {
		if n > 0 {
			c.hostWorkers = n
		}
	}
}

// WithLimits overrides the limits enforced by the host backend. WGPU backends always
// enforce the limits of the created device.
//
// Parameters:
//   - l: the limits to enforce
//
// Returns:
//   - BackendBuilderOption: a function that applies the limits option
func WithLimits(l Limits) BackendBuilderOption {
	return func(c *backendConfig) {
		c.limits = &l
	}
}
