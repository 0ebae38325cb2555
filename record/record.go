// Package record defines the result of a search and the ways results of
// sub-searches combine.
package record

import (
	"fmt"

	"github.com/sarchlab/arraytuner/design"
)

// Direction is the optimization direction of a reward.
type Direction int

// Optimization directions.
const (
	Maximize Direction = iota
	Minimize
)

// Metric is the objective a search optimizes. The reward of every metric
// is maximized.
type Metric int

// Objectives.
const (
	MetricLatency Metric = iota
	MetricEnergy
	MetricOffChip
	MetricDSPNum
)

var metricNames = map[Metric]string{
	MetricLatency: "latency",
	MetricEnergy:  "energy",
	MetricOffChip: "off_chip",
	MetricDSPNum:  "dsp_num",
}

func (m Metric) String() string {
	if s, ok := metricNames[m]; ok {
		return s
	}

	return fmt.Sprintf("metric(%d)", int(m))
}

// ParseMetric parses a metric name.
func ParseMetric(s string) (Metric, error) {
	for m, name := range metricNames {
		if name == s {
			return m, nil
		}
	}

	return 0, fmt.Errorf("unknown metric %q", s)
}

// TaskSol is the solution found for one workload.
type TaskSol struct {
	Workload string          `json:"workload"`
	Sol      design.Params   `json:"sol"`
	Ops      float64         `json:"ops"`
	Latency  float64         `json:"latency"`
	Resource design.Resource `json:"resource"`
	DSPEff   float64         `json:"dsp_eff"`
	CTC      float64         `json:"ctc"`
	BW       float64         `json:"bw"`
	Energy   float64         `json:"energy"`
}

// Record accumulates the best result of a search. Invalid records carry no
// meaningful reward.
type Record struct {
	Valid     bool               `json:"valid"`
	Reward    float64            `json:"reward"`
	Metric    Metric             `json:"metric"`
	Direction Direction          `json:"direction"`
	Latency   float64            `json:"latency"`
	Energy    float64            `json:"energy"`
	OffChip   float64            `json:"off_chip"`
	Ops       float64            `json:"ops"`
	Cst       design.Resource    `json:"cst"`
	ArchSol   design.Params      `json:"arch_sol,omitempty"`
	TaskSols  []TaskSol          `json:"task_sols,omitempty"`
	Records   []*Record          `json:"records,omitempty"`
	Meta      map[string]float64 `json:"meta,omitempty"`

	// Parts counts the records appended or merged into this one.
	Parts int `json:"parts,omitempty"`
}

// New returns an empty, invalid record.
func New(metric Metric) *Record {
	return &Record{Metric: metric}
}

// Reset makes r empty and invalid, keeping its metric and direction.
func (r *Record) Reset() {
	*r = Record{Metric: r.Metric, Direction: r.Direction}
}

// Better reports whether reward a improves on b in direction d.
func Better(d Direction, a, b float64) bool {
	if d == Minimize {
		return a < b
	}

	return a > b
}

// Update replaces r with a copy of o if o is valid and strictly improves
// the reward. It reports whether r changed.
func (r *Record) Update(o *Record) bool {
	if o == nil || !o.Valid {
		return false
	}

	if r.Valid && !Better(r.Direction, o.Reward, r.Reward) {
		return false
	}

	dir := r.Direction
	*r = *o.Clone()
	r.Direction = dir

	return true
}

// Append accumulates o as a task that runs after the ones in r on the same
// array: latencies add up and the array is provisioned for the largest
// resource demand.
func (r *Record) Append(o *Record) {
	r.combine(o, false)
}

// Merge accumulates o as a task running on a separate array in parallel:
// the slowest array sets the latency and resources add up.
func (r *Record) Merge(o *Record) {
	r.combine(o, true)
}

func (r *Record) combine(o *Record, parallel bool) {
	if o == nil {
		return
	}

	if r.Parts == 0 {
		r.Valid = o.Valid
		r.Metric = o.Metric
	} else {
		r.Valid = r.Valid && o.Valid
	}
	r.Parts++

	if parallel {
		r.Latency = max(r.Latency, o.Latency)
		r.Cst = r.Cst.Add(o.Cst)
	} else {
		r.Latency += o.Latency
		r.Cst = r.Cst.Max(o.Cst)
	}

	r.Energy += o.Energy
	r.OffChip += o.OffChip
	r.Ops += o.Ops

	if r.ArchSol == nil && o.ArchSol != nil {
		r.ArchSol = o.ArchSol.Clone()
	}

	c := o.Clone()
	r.TaskSols = append(r.TaskSols, c.TaskSols...)
	r.Records = append(r.Records, c)

	r.Reward = 0
	if r.Valid {
		r.Reward = r.Score()
	}
}

// Score computes the reward of r from its aggregate figures.
func (r *Record) Score() float64 {
	inv := func(v float64) float64 {
		if v <= 0 {
			return 0
		}

		return 1 / v
	}

	switch r.Metric {
	case MetricEnergy:
		return inv(r.Energy)
	case MetricOffChip:
		return inv(r.OffChip)
	case MetricDSPNum:
		return DSPEfficiency(r.Ops, r.Latency, r.Cst.DSP)
	default:
		return inv(r.Latency)
	}
}

// DSPEfficiency is the fraction of MAC slots doing useful work, with five
// DSPs per float MAC.
func DSPEfficiency(ops, latency, dsp float64) float64 {
	if latency <= 0 || dsp <= 0 {
		return 0
	}

	return ops / 2 / (latency * dsp / 5)
}

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}

	c := *r
	if r.ArchSol != nil {
		c.ArchSol = r.ArchSol.Clone()
	}

	if r.TaskSols != nil {
		c.TaskSols = make([]TaskSol, len(r.TaskSols))
		for i, ts := range r.TaskSols {
			ts.Sol = ts.Sol.Clone()
			c.TaskSols[i] = ts
		}
	}

	if r.Records != nil {
		c.Records = make([]*Record, len(r.Records))
		for i, sub := range r.Records {
			c.Records[i] = sub.Clone()
		}
	}

	if r.Meta != nil {
		c.Meta = make(map[string]float64, len(r.Meta))
		for k, v := range r.Meta {
			c.Meta[k] = v
		}
	}

	return &c
}

func (r *Record) String() string {
	if !r.Valid {
		return "invalid"
	}

	return fmt.Sprintf("reward=%g latency=%g %s=%g DSP=%g BRAM18K=%g URAM=%g",
		r.Reward, r.Latency, r.Metric, r.Score(), r.Cst.DSP, r.Cst.BRAM18K, r.Cst.URAM)
}
