package accel

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-trace/engine/backend"
	"github.com/Carmen-Shannon/oxy-trace/engine/errs"
)

// BLAS is a built bottom-level structure and the device memory it lives in.
type BLAS struct {
	Accel       backend.Accel
	Output      backend.Buffer
	Traversable backend.Traversable
	OutputSize  uint64
}

// blasOptions are fixed for geometry that never changes after build.
var blasOptions = backend.BuildOptions{PreferFastBuild: true}

// BuildBLAS builds a bottom-level structure over triangle inputs on the given stream. The scratch
// buffer is released as soon as the stream has finished the build. On failure nothing is left allocated.
//
// Parameters:
//   - b: the backend
//   - s: the stream to build on
//   - in: triangle build inputs
//
// Returns:
//   - BLAS: the built structure
//   - error: a failure wrapping errs.ErrBackendBuild
func BuildBLAS(b backend.Backend, s backend.Stream, in backend.BuildInputs) (BLAS, error) {
	in.Kind = backend.AccelBottom
	var out BLAS

	a, err := b.CreateAccel(backend.AccelBottom)
	if err != nil {
		return out, fmt.Errorf("create BLAS: %w", errors.Join(errs.ErrBackendBuild, err))
	}
	fail := func(step string, err error) (BLAS, error) {
		b.DestroyAccel(a)
		if out.Output != 0 {
			b.DestroyBuffer(out.Output)
		}
		return BLAS{}, fmt.Errorf("%s: %w", step, errors.Join(errs.ErrBackendBuild, err))
	}

	req, err := b.AccelMemoryRequirements(a, in, blasOptions)
	if err != nil {
		return fail("BLAS memory requirements", err)
	}
	out.Output, err = b.CreateBuffer("blas output", req.OutputSize)
	if err != nil {
		return fail("BLAS output buffer", err)
	}
	scratch, err := b.CreateBuffer("blas scratch", max(req.ScratchSize, 1))
	if err != nil {
		return fail("BLAS scratch buffer", err)
	}
	defer b.DestroyBuffer(scratch)

	if err := b.BuildAccel(s, a, in, blasOptions, scratch, out.Output); err != nil {
		return fail("BLAS build", err)
	}
	if err := b.WaitStream(s); err != nil {
		return fail("BLAS build wait", err)
	}
	if out.Traversable, err = b.Traversable(a); err != nil {
		return fail("BLAS handle", err)
	}
	out.Accel = a
	out.OutputSize = req.OutputSize
	return out, nil
}

// Destroy releases the structure and its memory.
func (l *BLAS) Destroy(b backend.Backend) {
	if l.Accel != 0 {
		b.DestroyAccel(l.Accel)
	}
	if l.Output != 0 {
		b.DestroyBuffer(l.Output)
	}
	*l = BLAS{}
}
