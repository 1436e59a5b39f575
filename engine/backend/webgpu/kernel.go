package webgpu

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-trace/engine/backend"
	"github.com/cogentcore/webgpu/wgpu"
)

// ensureImageLocked grows the per-pixel output buffer to hold width x height words.
// The caller holds w.mu.
func (w *wgpuBackend) ensureImageLocked(width, height uint32) error {
	size := max(uint64(width)*uint64(height)*4, 16)
	if w.image != nil && w.imageSize >= size {
		return nil
	}
	img, err := w.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "trace image",
		Size:  size,
		Usage: bufferUsage,
	})
	if err != nil {
		return err
	}
	if w.image != nil {
		w.image.Release()
	}
	w.image, w.imageSize = img, size
	return nil
}

// LaunchKernel binds the parameter block, the structure named by its traversable and the output
// image, then dispatches one invocation per pixel.
func (w *wgpuBackend) LaunchKernel(sid backend.Stream, params backend.Buffer, width, height uint32) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	st, err := w.stream(sid)
	if err != nil {
		return err
	}
	pb, err := w.buffer(params)
	if err != nil {
		return err
	}
	if w.pipeline == nil {
		return backend.ErrNoKernel
	}
	if width == 0 || height == 0 {
		return nil
	}

	scene := w.empty
	if id, ok := w.handles[traversableAt(pb.shadow)]; ok {
		if ob, ok := w.buffers[w.accels[id].output]; ok {
			scene = ob.gpu
		}
	}
	if err := w.ensureImageLocked(width, height); err != nil {
		return fmt.Errorf("launch: %w", err)
	}

	bindGroup, err := w.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "trace kernel",
		Layout: w.layout,
		Entries: []wgpu.BindGroupEntry{
			{Binding: ParamsBinding, Buffer: pb.gpu, Size: wgpu.WholeSize},
			{Binding: AccelBinding, Buffer: scene, Size: wgpu.WholeSize},
			{Binding: ImageBinding, Buffer: w.image, Size: wgpu.WholeSize},
		},
	})
	if err != nil {
		return fmt.Errorf("launch: %w", err)
	}
	defer bindGroup.Release()

	encoder, err := w.device.CreateCommandEncoder(nil)
	if err != nil {
		return fmt.Errorf("launch: %w", err)
	}
	defer encoder.Release()

	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(w.pipeline)
	pass.SetBindGroup(0, bindGroup, nil)
	pass.DispatchWorkgroups(
		(width+WorkgroupSize-1)/WorkgroupSize,
		(height+WorkgroupSize-1)/WorkgroupSize,
		1,
	)
	pass.End()

	commandBuffer, err := encoder.Finish(nil)
	if err != nil {
		return fmt.Errorf("launch: %w", err)
	}
	w.queue.Submit(commandBuffer)
	commandBuffer.Release()
	st.pending++
	return nil
}
