package engine

import (
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-trace/engine/backend/software"
	"github.com/Carmen-Shannon/oxy-trace/engine/model"
	"github.com/Carmen-Shannon/oxy-trace/engine/node"
	"github.com/Carmen-Shannon/oxy-trace/engine/renderer"
)

func newTestRenderer(t *testing.T) renderer.Renderer {
	t.Helper()
	b := software.New(software.WithKernel(renderer.PrimaryRayKernel(nil)))
	r := renderer.NewRenderer(b, renderer.WithImageSize(16, 9))
	t.Cleanup(func() {
		r.Finalize()
		_ = b.Close()
	})
	return r
}

func TestRunFrames(t *testing.T) {
	r := newTestRenderer(t)
	ticks := 0
	var frames []uint32
	e := NewEngine(r,
		WithTickCallback(func(float32) bool {
			ticks++
			return ticks == 3
		}),
		WithRenderCallback(func(_ float32, frame uint32) {
			frames = append(frames, frame)
		}),
		WithProfiling(true),
	)

	if err := e.RunFrames(2); err != nil {
		t.Fatal(err)
	}
	if !r.AddNode(node.NewRegistry().Add(node.NewRenderableNode(node.WithModel(model.NewCube(1, nil))))) {
		t.Fatal("add node failed")
	}

	tests := []uint32{0, 1, 2}
	for i, expected := range tests {
		if err := e.RunFrames(1); err != nil {
			t.Fatalf("[spec %d] %v", i, err)
		}
		if got := r.Accumulation(); got != expected {
			t.Errorf("[spec %d] expected accumulation %d; got %d", i, expected, got)
		}
	}

	if e.Frame() != 5 || len(frames) != 5 || frames[4] != 4 {
		t.Fatalf("expected frames 0..4; got %v (next %d)", frames, e.Frame())
	}
	if total, _ := e.Profiler().Total(); total != 5 {
		t.Fatalf("expected the profiler to see 5 frames; got %d", total)
	}
}

func TestRunQuit(t *testing.T) {
	r := newTestRenderer(t)
	e := NewEngine(r, WithTickRate(200), WithRenderFrameLimit(1000))
	e.SetRenderCallback(func(_ float32, frame uint32) {
		if frame == 3 {
			e.Quit()
		}
	})

	done := make(chan error, 1)
	go func() { done <- e.Run() }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected a clean stop; got %v", err)
		}
	case <-time.After(10 * time.Second):
		e.Quit()
		t.Fatal("engine did not stop")
	}
	if r.Initialized() {
		t.Fatal("Run should finalize the renderer")
	}
	if e.Frame() < 4 {
		t.Fatalf("expected at least 4 frames; got %d", e.Frame())
	}
	e.Quit()
}

func TestRunRecoversPanic(t *testing.T) {
	r := newTestRenderer(t)
	e := NewEngine(r,
		WithTickRate(200),
		WithRenderFrameLimit(500),
		WithTickCallback(func(float32) bool { panic("tick exploded") }),
	)

	done := make(chan error, 1)
	go func() { done <- e.Run() }()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected the recovered panic as an error")
		}
	case <-time.After(10 * time.Second):
		e.Quit()
		t.Fatal("engine did not stop after a panic")
	}
}
