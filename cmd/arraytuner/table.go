package main

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/sarchlab/arraytuner/explorer"
	"github.com/sarchlab/arraytuner/record"
	"github.com/sarchlab/arraytuner/task"
)

func writeResults(w io.Writer, results []explorer.Result) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("SEARCH RESULTS")
	t.AppendHeader(table.Row{
		"Design", "Strategy", "Status", "Latency", "Reward", "DSP", "BRAM18K", "URAM",
	})

	for _, res := range results {
		switch {
		case res.Skipped:
			t.AppendRow(table.Row{res.Design, res.Strategy, "skipped", "-", "-", "-", "-", "-"})
		case res.Err != nil:
			t.AppendRow(table.Row{res.Design, res.Strategy, "error: " + res.Err.Error(), "-", "-", "-", "-", "-"})
		case res.Record == nil || !res.Record.Valid:
			t.AppendRow(table.Row{res.Design, res.Strategy, "infeasible", "-", "-", "-", "-", "-"})
		default:
			r := res.Record
			status := "ok"
			if res.Cached {
				status = "cached"
			}

			t.AppendRow(table.Row{
				res.Design, res.Strategy, status,
				r.Latency, fmt.Sprintf("%.4g", r.Reward), r.Cst.DSP, r.Cst.BRAM18K, r.Cst.URAM,
			})
		}
	}

	t.Render()

	for _, res := range results {
		if res.Record != nil && res.Record.Valid {
			writeTaskSols(w, res.Design, res.Record)
		}
	}
}

func writeTaskSols(w io.Writer, name string, r *record.Record) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(name + " per workload")
	t.AppendHeader(table.Row{"Workload", "Latency", "DSP Eff", "CTC", "BW (GB/s)", "Solution"})

	for _, ts := range r.TaskSols {
		t.AppendRow(table.Row{
			ts.Workload, ts.Latency,
			fmt.Sprintf("%.3f", ts.DSPEff), fmt.Sprintf("%.3f", ts.CTC), fmt.Sprintf("%.3f", ts.BW),
			ts.Sol.String(),
		})
	}

	t.Render()
}

func writeMeta(w io.Writer, name string, reward, seconds float64, meta *task.Meta) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(name)
	t.AppendHeader(table.Row{"Metric", "Value"})

	m := meta.Metrics
	t.AppendRows([]table.Row{
		{"reward", fmt.Sprintf("%.6g", reward)},
		{"latency (cycles)", m.Latency},
		{"latency (us)", fmt.Sprintf("%.3f", seconds*1e6)},
		{"ops", m.Ops},
		{"off-chip bytes", m.OffChipBytes},
		{"CTC", fmt.Sprintf("%.3f", m.CTC)},
		{"BW (GB/s)", fmt.Sprintf("%.3f", m.BW)},
		{"energy (pJ)", fmt.Sprintf("%.4g", m.Energy)},
		{"DSP efficiency", fmt.Sprintf("%.3f", m.DSPEff)},
		{"setup latency", meta.Setup},
		{"params", meta.Params.String()},
	})

	t.Render()
}
