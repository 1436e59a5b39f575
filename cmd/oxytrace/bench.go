package main

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/Carmen-Shannon/oxy-trace/engine"
	"github.com/Carmen-Shannon/oxy-trace/engine/camera"
	"github.com/Carmen-Shannon/oxy-trace/engine/errs"
	"github.com/Carmen-Shannon/oxy-trace/engine/model"
	"github.com/Carmen-Shannon/oxy-trace/engine/node"
	"github.com/Carmen-Shannon/oxy-trace/engine/profiler"
	"github.com/Carmen-Shannon/oxy-trace/engine/renderer"
	"github.com/Carmen-Shannon/oxy-trace/engine/scene"
	"github.com/urfave/cli"
)

const (
	// benchSpacing is the distance between neighbouring grid cells.
	benchSpacing = 3.0
	// benchOrbitStep is the camera azimuth change per orbiting frame in radians.
	benchOrbitStep = 0.05
	// benchTwist is the yaw added per instance in radians.
	benchTwist = 0.3
)

type benchConfig struct {
	backend   renderer.BackendType
	fallback  bool
	instances int
	meshes    int
	frames    int
	width     uint32
	height    uint32
	fovDeg    float64
	maxAccum  uint32
	noJitter  bool
}

type benchResult struct {
	scene        scene.Stats
	frames       uint64
	accumulation uint32
	buildTime    time.Duration
	renderTime   time.Duration
	kernel       *renderer.KernelStats
	profile      string
}

// benchMeshes returns k meshes with distinct geometry, alternating cubes and spheres.
func benchMeshes(k int) []model.Model {
	meshes := make([]model.Model, max(k, 1))
	for i := range meshes {
		if i%2 == 0 {
			meshes[i] = model.NewCube(1+0.1*float32(i), nil)
		} else {
			meshes[i] = model.NewUVSphere(0.6, 8+i, 6+i, nil)
		}
	}
	return meshes
}

// gridPosition places instance i of a side x side grid on the XZ plane, centred on the origin.
func gridPosition(i, side int) (float32, float32) {
	offset := float32(side-1) * benchSpacing / 2
	return float32(i%side)*benchSpacing - offset, float32(i/side)*benchSpacing - offset
}

func runBench(cfg benchConfig) (res benchResult, err error) {
	res.kernel = &renderer.KernelStats{}
	b, err := renderer.NewBackend(cfg.backend, cfg.fallback, res.kernel)
	if err != nil {
		return res, err
	}
	defer func() {
		err = errors.Join(err, b.Close())
	}()

	side := max(int(math.Ceil(math.Sqrt(float64(cfg.instances)))), 1)
	ctrl := camera.NewOrbitController(
		camera.WithRadius(float32(side)*benchSpacing+5),
		camera.WithAzimuth(math.Pi/4),
		camera.WithElevation(0.6),
		camera.WithRadiusBounds(1, 1e6),
	)
	camOpts := []camera.CameraBuilderOption{
		camera.WithController(ctrl),
		camera.WithUp(0, 1, 0),
		camera.WithAspect(float32(cfg.width)/float32(cfg.height)),
	}
	if cfg.fovDeg > 0 {
		camOpts = append(camOpts, camera.WithFovY(float32(cfg.fovDeg*math.Pi/180)))
	}
	cam := camera.NewCamera(camOpts...)
	r := renderer.NewRenderer(b,
		renderer.WithCamera(cam),
		renderer.WithMaxAccumFrames(cfg.maxAccum),
		renderer.WithJittering(!cfg.noJitter),
		renderer.WithImageSize(cfg.width, cfg.height),
		renderer.WithSceneOptions(
			scene.WithMaxInstances(max(cfg.instances, 1)),
			scene.WithMaxGeometryInstances(max(cfg.instances*2, scene.DefaultMaxGeometryInstances)),
		),
	)
	if err := r.Initialize(); err != nil {
		return res, err
	}
	defer r.Finalize()

	meshes := benchMeshes(cfg.meshes)
	reg := node.NewRegistry()
	start := time.Now()
	for i := range cfg.instances {
		x, z := gridPosition(i, side)
		h := reg.Add(node.NewRenderableNode(
			node.WithName(fmt.Sprintf("bench-%d", i)),
			node.WithModel(meshes[i%len(meshes)]),
			node.WithPosition(x, 0, z),
			node.WithRotation(0, float32(i)*benchTwist, 0),
		))
		if !r.Scene().AddRenderableNode(h) {
			return res, fmt.Errorf("instance %d: %w", i, errs.ErrResourceExhausted)
		}
	}
	if cfg.instances > 0 && !r.Scene().BuildAccelerationStructures() {
		return res, fmt.Errorf("%w: initial build", errs.ErrBackendBuild)
	}
	res.buildTime = time.Since(start)
	logger.Infof("built %d instances over %d meshes in %s", cfg.instances, len(meshes), res.buildTime)

	prof := profiler.NewProfiler(profiler.WithUpdateInterval(250 * time.Millisecond))
	e := engine.NewEngine(r, engine.WithProfiler(prof), engine.WithProfiling(true))
	orbitFrames := cfg.frames / 2
	e.SetTickCallback(func(float32) bool {
		if e.Frame() < uint32(orbitFrames) {
			ctrl.Orbit(benchOrbitStep, 0)
		}
		cam.Update()
		return false
	})

	start = time.Now()
	if err := e.RunFrames(cfg.frames); err != nil {
		return res, err
	}
	if err := b.WaitAll(); err != nil {
		return res, err
	}
	res.renderTime = time.Since(start)

	res.scene = r.Scene().Stats()
	res.frames = r.Frames()
	res.accumulation = r.Accumulation()
	res.profile = prof.Report()
	return res, nil
}

// Bench runs the bench command.
func Bench(ctx *cli.Context) error {
	t, fallback, err := backendFlags(ctx)
	if err != nil {
		return err
	}
	res, err := runBench(benchConfig{
		backend:   t,
		fallback:  fallback,
		instances: ctx.Int("instances"),
		meshes:    ctx.Int("meshes"),
		frames:    ctx.Int("frames"),
		width:     uint32(max(ctx.Int("width"), 1)),
		height:    uint32(max(ctx.Int("height"), 1)),
		fovDeg:    ctx.Float64("fov"),
		maxAccum:  uint32(max(ctx.Int("max-accum"), 0)),
		noJitter:  ctx.Bool("no-jitter"),
	})
	if err != nil {
		return err
	}

	logger.Noticef("scene statistics\n%s", sceneTable(res.scene))

	rows := [][2]string{
		{"Backend", t.String()},
		{"Frames", fmt.Sprintf("%d", res.frames)},
		{"Accumulated frames", fmt.Sprintf("%d", res.accumulation)},
		{"Build time", res.buildTime.String()},
		{"Render time", res.renderTime.String()},
	}
	if res.frames > 0 {
		rows = append(rows, [2]string{"Frame time", (res.renderTime / time.Duration(res.frames)).String()})
	}
	if t == renderer.BackendTypeSoftware {
		rows = append(rows,
			[2]string{"Primary rays", fmt.Sprintf("%d", res.kernel.Rays.Load())},
			[2]string{"Hit ratio", fmt.Sprintf("%02.1f %%", 100*res.kernel.HitRatio())},
		)
	}
	logger.Noticef("frame statistics\n%s", keyValueTable([2]string{"Metric", "Value"}, rows))

	if ctx.Bool("profile") {
		logger.Noticef("profile\n%s", res.profile)
	}
	return nil
}
