package common

// Coalesce returns the first non-zero value from the provided values, or the zero value if all are zero.
//
// Parameters:
//   - values: a variadic list of values to check for non-zero status
//
// Returns:
//   - T: the first non-zero value from the input, or the zero value if all are zero
func Coalesce[T comparable](values ...T) T {
	var zero T
	for _, v := range values {
		if v != zero {
			return v
		}
	}
	return zero
}

// GrowSize returns the capacity to allocate when a buffer of size current must hold required bytes.
// Buffers only grow: the result is never smaller than current, and growth rounds up to alignment.
//
// Parameters:
//   - current: the current allocation size
//   - required: the size the next use needs
//   - alignment: the allocation granularity (values < 1 are treated as 1)
//
// Returns:
//   - uint64: the size to allocate, equal to current when no growth is needed
func GrowSize(current, required, alignment uint64) uint64 {
	if required <= current {
		return current
	}
	return AlignUp(required, alignment)
}

// AlignUp rounds v up to the next multiple of alignment.
//
// Parameters:
//   - v: the value to round
//   - alignment: the granularity (values < 1 are treated as 1)
//
// Returns:
//   - uint64: the rounded value
func AlignUp(v, alignment uint64) uint64 {
	if alignment <= 1 {
		return v
	}
	return (v + alignment - 1) / alignment * alignment
}
