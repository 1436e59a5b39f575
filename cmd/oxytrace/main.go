package main

import (
	"os"

	"github.com/urfave/cli"
)

func main() {
	cli.VersionFlag = cli.BoolFlag{
		Name:  "version",
		Usage: "print only the version",
	}

	app := cli.NewApp()
	app.Name = "oxytrace"
	app.Usage = "build ray tracing scenes and drive frames through a backend"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "v",
			Usage: "enable verbose logging",
		},
		cli.BoolFlag{
			Name:  "vv",
			Usage: "enable debug logging",
		},
		cli.StringFlag{
			Name:  "backend, b",
			Value: "software",
			Usage: "backend to run on: software or webgpu",
		},
		cli.BoolFlag{
			Name:  "fallback",
			Usage: "request the fallback adapter of the webgpu backend",
		},
	}
	app.Before = setupLogging
	app.Commands = []cli.Command{
		{
			Name:  "bench",
			Usage: "build a grid of instances and render frames with an orbiting camera",
			Description: `
Place N instances of K distinct meshes on a grid, build the acceleration structures
and render F frames. The camera orbits for the first half of the frames and holds
still for the rest so accumulation can be observed.

Geometry cache, slot and frame statistics are printed as tables.`,
			Flags: []cli.Flag{
				cli.IntFlag{
					Name:  "instances, n",
					Value: 1000,
					Usage: "number of instances",
				},
				cli.IntFlag{
					Name:  "meshes, k",
					Value: 4,
					Usage: "number of distinct meshes",
				},
				cli.IntFlag{
					Name:  "frames, f",
					Value: 60,
					Usage: "number of frames to render",
				},
				cli.IntFlag{
					Name:  "width",
					Value: 320,
					Usage: "frame width",
				},
				cli.IntFlag{
					Name:  "height",
					Value: 180,
					Usage: "frame height",
				},
				cli.Float64Flag{
					Name:  "fov",
					Value: 45,
					Usage: "vertical field of view in degrees",
				},
				cli.IntFlag{
					Name:  "max-accum",
					Usage: "cap on accumulated frames, 0 keeps the renderer default",
				},
				cli.BoolFlag{
					Name:  "no-jitter",
					Usage: "disable sub-pixel jittering of primary rays",
				},
				cli.BoolFlag{
					Name:  "profile",
					Usage: "print the per-window profiler report",
				},
			},
			Action: Bench,
		},
		{
			Name:  "churn",
			Usage: "randomly add and remove nodes with periodic rebuilds",
			Flags: []cli.Flag{
				cli.IntFlag{
					Name:  "rounds, r",
					Value: 1000,
					Usage: "number of add/remove operations",
				},
				cli.IntFlag{
					Name:  "capacity, c",
					Value: 64,
					Usage: "instance capacity of the scene",
				},
				cli.IntFlag{
					Name:  "rebuild-every",
					Value: 25,
					Usage: "rebuild and render a frame every this many rounds",
				},
				cli.Int64Flag{
					Name:  "seed",
					Value: 1,
					Usage: "random seed",
				},
			},
			Action: Churn,
		},
		{
			Name:   "devices",
			Usage:  "list the available backends",
			Action: ListDevices,
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Error(err)
		os.Exit(1)
	}
}
