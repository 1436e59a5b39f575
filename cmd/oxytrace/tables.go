package main

import (
	"bytes"
	"fmt"

	"github.com/Carmen-Shannon/oxy-trace/engine/scene"
	"github.com/olekukonko/tablewriter"
)

func usage(u scene.SlotUsage) string {
	return fmt.Sprintf("%d / %d", u.InUse, u.Capacity)
}

// sceneTable renders scene statistics as a table.
func sceneTable(st scene.Stats) string {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"Resource", "Metric", "Value"})
	table.Append([]string{"Scene", "Nodes", fmt.Sprintf("%d", st.Nodes)})
	table.Append([]string{"", "Traversable", fmt.Sprintf("%d", st.Handle)})
	table.Append([]string{"", "TLAS state", st.TLASState.String()})
	table.Append([]string{" ", " ", " "})
	table.Append([]string{"Slots", "Instances", usage(st.Instances)})
	table.Append([]string{"", "Geometry instances", usage(st.GeometryInstances)})
	table.Append([]string{"", "Materials", usage(st.Materials)})
	table.Append([]string{" ", " ", " "})
	table.Append([]string{"Geometry cache", "Entries", fmt.Sprintf("%d", st.Geometry.Entries)})
	table.Append([]string{"", "Hits", fmt.Sprintf("%d", st.Geometry.Hits)})
	table.Append([]string{"", "Misses", fmt.Sprintf("%d", st.Geometry.Misses)})
	table.Append([]string{"", "BLAS builds", fmt.Sprintf("%d", st.Geometry.Builds)})
	table.Append([]string{"", "Build failures", fmt.Sprintf("%d", st.Geometry.Failures)})
	table.Append([]string{"", "Destroyed", fmt.Sprintf("%d", st.Geometry.Destroys)})
	table.Append([]string{"", "Awaiting destruction", fmt.Sprintf("%d", st.Retired)})
	table.Append([]string{" ", " ", " "})
	table.Append([]string{"TLAS", "Rebuilds", fmt.Sprintf("%d", st.TLAS.Rebuilds)})
	table.Append([]string{"", "Failures", fmt.Sprintf("%d", st.TLAS.Failures)})
	table.Append([]string{"", "Last instances", fmt.Sprintf("%d", st.TLAS.LastCount)})
	table.Append([]string{"", "Last build", st.TLAS.LastDuration.String()})
	table.Render()
	return buf.String()
}

// keyValueTable renders rows of label/value pairs under a two-column header.
func keyValueTable(header [2]string, rows [][2]string) string {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader(header[:])
	for _, row := range rows {
		table.Append(row[:])
	}
	table.Render()
	return buf.String()
}
