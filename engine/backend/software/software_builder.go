package software

// BuilderOption configures a software backend.
type BuilderOption func(*software)

// WithKernel installs the host function run by LaunchKernel. Without one, launches are counted
// and complete immediately.
//
// Parameters:
//   - kernel: the function to run for each launch
//
// Returns:
//   - BuilderOption: the option
func WithKernel(kernel KernelFunc) BuilderOption {
	return func(s *software) {
		s.kernel = kernel
	}
}

// WithQueueDepth sets how many submissions a stream buffers before SubmitTask blocks.
func WithQueueDepth(depth int) BuilderOption {
	return func(s *software) {
		if depth > 0 {
			s.queueDepth = depth
		}
	}
}
