package main

import (
	"github.com/Carmen-Shannon/oxy-trace/engine/renderer"
	"github.com/urfave/cli"
)

type deviceInfo struct {
	backend renderer.BackendType
	status  string
	detail  string
}

// probeDevices creates each backend once to report whether it is usable on this machine.
func probeDevices(fallback bool) []deviceInfo {
	types := []renderer.BackendType{renderer.BackendTypeSoftware, renderer.BackendTypeWGPU}
	out := make([]deviceInfo, 0, len(types))
	for _, t := range types {
		info := deviceInfo{backend: t, status: "available"}
		b, err := renderer.NewBackend(t, fallback, nil)
		if err != nil {
			info.status = "unavailable"
			info.detail = err.Error()
		} else {
			info.detail = "device " + b.Name()
			if err := b.Close(); err != nil {
				info.detail += ", close: " + err.Error()
			}
		}
		out = append(out, info)
	}
	return out
}

// ListDevices runs the devices command.
func ListDevices(ctx *cli.Context) error {
	devices := probeDevices(ctx.GlobalBool("fallback"))
	rows := make([][2]string, 0, len(devices))
	for _, d := range devices {
		status := d.status
		if d.detail != "" {
			status += " (" + d.detail + ")"
		}
		rows = append(rows, [2]string{d.backend.String(), status})
	}
	logger.Noticef("backends\n%s", keyValueTable([2]string{"Backend", "Status"}, rows))
	return nil
}
