package main

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/Carmen-Shannon/oxy-trace/engine/node"
	"github.com/Carmen-Shannon/oxy-trace/engine/renderer"
	"github.com/Carmen-Shannon/oxy-trace/engine/scene"
	"github.com/urfave/cli"
)

type churnConfig struct {
	backend      renderer.BackendType
	fallback     bool
	rounds       int
	capacity     int
	rebuildEvery int
	seed         int64
}

type churnResult struct {
	adds       int
	rejected   int
	removes    int
	rebuilds   int
	peak       scene.Stats
	final      scene.Stats
	frames     uint64
	liveBefore int
}

// runChurn adds and removes random nodes, rebuilding and rendering periodically, then drains the
// scene so the final statistics show every resource returned.
func runChurn(cfg churnConfig) (res churnResult, err error) {
	b, err := renderer.NewBackend(cfg.backend, cfg.fallback, nil)
	if err != nil {
		return res, err
	}
	defer func() {
		err = errors.Join(err, b.Close())
	}()

	r := renderer.NewRenderer(b,
		renderer.WithImageSize(64, 36),
		renderer.WithSceneOptions(scene.WithMaxInstances(max(cfg.capacity, 1))),
	)
	if err := r.Initialize(); err != nil {
		return res, err
	}
	defer r.Finalize()

	rng := rand.New(rand.NewSource(cfg.seed))
	meshes := benchMeshes(6)
	reg := node.NewRegistry()
	var live []node.Handle
	frame := uint32(0)

	rebuild := func() error {
		if !r.Scene().BuildAccelerationStructures() {
			logger.Warningf("rebuild after round %d failed", res.adds+res.removes+res.rejected)
		}
		res.rebuilds++
		if err := r.Render(renderer.RenderInput{}, true, frame); err != nil {
			return err
		}
		frame++
		return nil
	}

	for round := range cfg.rounds {
		if len(live) == 0 || (rng.Intn(3) != 0 && len(live) <= cfg.capacity) {
			h := reg.Add(node.NewRenderableNode(
				node.WithModel(meshes[rng.Intn(len(meshes))]),
				node.WithPosition(rng.Float32()*20-10, rng.Float32()*20-10, rng.Float32()*20-10),
				node.WithEmissive(rng.Intn(8) == 0),
			))
			if r.Scene().AddRenderableNode(h) {
				live = append(live, h)
				res.adds++
			} else {
				reg.Remove(h.ID())
				res.rejected++
			}
		} else {
			i := rng.Intn(len(live))
			h := live[i]
			live[i] = live[len(live)-1]
			live = live[:len(live)-1]
			if !r.Scene().RemoveRenderableNode(h) {
				return res, fmt.Errorf("round %d: node %s was not in the scene", round, h.ID())
			}
			reg.Remove(h.ID())
			res.removes++
		}

		if st := r.Scene().Stats(); st.Nodes > res.peak.Nodes {
			res.peak = st
		}
		if cfg.rebuildEvery > 0 && (round+1)%cfg.rebuildEvery == 0 {
			if err := rebuild(); err != nil {
				return res, err
			}
		}
	}

	res.liveBefore = len(live)
	for _, h := range live {
		r.Scene().RemoveRenderableNode(h)
		reg.Remove(h.ID())
	}
	if err := rebuild(); err != nil {
		return res, err
	}
	if err := b.WaitAll(); err != nil {
		return res, err
	}
	res.final = r.Scene().Stats()
	res.frames = r.Frames()
	return res, nil
}

// Churn runs the churn command.
func Churn(ctx *cli.Context) error {
	t, fallback, err := backendFlags(ctx)
	if err != nil {
		return err
	}
	res, err := runChurn(churnConfig{
		backend:      t,
		fallback:     fallback,
		rounds:       ctx.Int("rounds"),
		capacity:     ctx.Int("capacity"),
		rebuildEvery: ctx.Int("rebuild-every"),
		seed:         ctx.Int64("seed"),
	})
	if err != nil {
		return err
	}

	logger.Noticef("churn summary\n%s", keyValueTable([2]string{"Metric", "Value"}, [][2]string{
		{"Adds", fmt.Sprintf("%d", res.adds)},
		{"Rejected adds", fmt.Sprintf("%d", res.rejected)},
		{"Removes", fmt.Sprintf("%d", res.removes)},
		{"Rebuilds", fmt.Sprintf("%d", res.rebuilds)},
		{"Frames", fmt.Sprintf("%d", res.frames)},
		{"Peak nodes", fmt.Sprintf("%d", res.peak.Nodes)},
		{"Drained nodes", fmt.Sprintf("%d", res.liveBefore)},
	}))
	logger.Noticef("scene at peak\n%s", sceneTable(res.peak))
	logger.Noticef("scene after draining\n%s", sceneTable(res.final))
	return nil
}
