package main

import (
	"github.com/Carmen-Shannon/oxy-trace/engine/log"
	"github.com/Carmen-Shannon/oxy-trace/engine/renderer"
	"github.com/urfave/cli"
)

var logger = log.New("oxytrace")

func setupLogging(ctx *cli.Context) error {
	if ctx.GlobalBool("v") {
		log.SetLevel(log.Info)
	}

	if ctx.GlobalBool("vv") {
		log.SetLevel(log.Debug)
	}
	return nil
}

// backendFlags reads the global backend selection.
func backendFlags(ctx *cli.Context) (renderer.BackendType, bool, error) {
	t, err := renderer.ParseBackendType(ctx.GlobalString("backend"))
	return t, ctx.GlobalBool("fallback"), err
}
