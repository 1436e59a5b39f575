package accel

import "github.com/Carmen-Shannon/oxy-trace/engine/backend"

// TLASBuilderOption configures a TLAS manager.
type TLASBuilderOption func(*tlas)

// WithLabel sets the prefix used for buffer labels and log lines.
func WithLabel(label string) TLASBuilderOption {
	return func(t *tlas) {
		t.label = label
	}
}

// WithAlignment sets the granularity backing buffers grow by.
//
// Parameters:
//   - alignment: the growth granularity in bytes
//
// Returns:
//   - TLASBuilderOption: the option
func WithAlignment(alignment uint64) TLASBuilderOption {
	return func(t *tlas) {
		if alignment > 0 {
			t.alignment = alignment
		}
	}
}

// WithInitialInstances reserves room for n instances in the host-side list.
func WithInitialInstances(n int) TLASBuilderOption {
	return func(t *tlas) {
		if n > 0 {
			t.instances = make([]backend.Instance, 0, n)
		}
	}
}
