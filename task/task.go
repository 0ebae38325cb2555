// Package task binds a design to workloads and a resource constraint and
// turns parameter assignments into rewards.
package task

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/samber/lo"

	"github.com/sarchlab/arraytuner/config"
	"github.com/sarchlab/arraytuner/design"
	"github.com/sarchlab/arraytuner/record"
	"github.com/sarchlab/arraytuner/util/divisor"
	"github.com/sarchlab/arraytuner/workload"
)

// Configs are the named overrides of a task.
type Configs struct {
	CinRead   CinReadMode
	CoutWrite CoutWriteMode
	WRead     WReadMode
	// FixParams pins parameters to a value.
	FixParams map[string]int
	// EquateParams copies the value of the second parameter of each pair
	// into the first.
	EquateParams [][2]string
}

// Prev describes the upstream array a task streams its input from.
type Prev struct {
	Workload workload.Workload
	Sol      design.Params
	Latency  float64
}

// Meta is the breakdown of an evaluation.
type Meta struct {
	Params   design.Params
	Latency  design.LatencyMeta
	Resource design.ResourceMeta
	Activity design.Activity
	Metrics  Metrics
	// Setup is the latency of waiting for the upstream array.
	Setup float64
}

// SingleTask is one workload on one design under a constraint.
type SingleTask struct {
	design     *design.Design
	workload   workload.Workload
	constraint config.Constraint
	externals  design.Params
	configs    Configs
	useURAM    bool
	serialize  bool
	fuse       bool
	prev       *Prev
	arch       design.ArchCst
	policies   []BufferPolicy
}

// SingleTaskBuilder builds single tasks.
type SingleTaskBuilder struct {
	design     *design.Design
	workload   workload.Workload
	constraint config.Constraint
	configs    Configs
	useURAM    bool
	serialize  bool
	fuse       bool
	prev       *Prev
}

// WithDesign sets the design.
func (b SingleTaskBuilder) WithDesign(d *design.Design) SingleTaskBuilder {
	b.design = d
	return b
}

// WithWorkload sets the workload.
func (b SingleTaskBuilder) WithWorkload(w workload.Workload) SingleTaskBuilder {
	b.workload = w
	return b
}

// WithConstraint sets the resource ceiling.
func (b SingleTaskBuilder) WithConstraint(c config.Constraint) SingleTaskBuilder {
	b.constraint = c
	return b
}

// WithConfigs sets the buffering modes and parameter overrides.
func (b SingleTaskBuilder) WithConfigs(c Configs) SingleTaskBuilder {
	b.configs = c
	return b
}

// WithURAM lets on-chip tensor buffers use URAM.
func (b SingleTaskBuilder) WithURAM(use bool) SingleTaskBuilder {
	b.useURAM = use
	return b
}

// WithSerialize makes the off-chip modules run back to back instead of
// overlapping with compute.
func (b SingleTaskBuilder) WithSerialize(s bool) SingleTaskBuilder {
	b.serialize = s
	return b
}

// WithFuse marks the task as part of a fused chain.
func (b SingleTaskBuilder) WithFuse(f bool) SingleTaskBuilder {
	b.fuse = f
	return b
}

// WithPrev sets the upstream array of a multi-array pipeline.
func (b SingleTaskBuilder) WithPrev(p *Prev) SingleTaskBuilder {
	b.prev = p
	return b
}

// Build creates the task. It fails if the workload does not provide the
// externals of the design.
func (b SingleTaskBuilder) Build() (*SingleTask, error) {
	if b.design == nil {
		panic("task: design is required")
	}

	ext, err := b.workload.Bind(b.design.ParamsConfig().External)
	if err != nil {
		return nil, fmt.Errorf("task %s on %s: %w", b.workload.Name, b.design.Name, err)
	}

	t := &SingleTask{
		design:     b.design,
		workload:   b.workload,
		constraint: b.constraint,
		externals:  design.Params(ext),
		configs:    b.configs,
		useURAM:    b.useURAM,
		serialize:  b.serialize,
		fuse:       b.fuse,
		prev:       b.prev,
	}
	t.policies = resolvePolicies(b.design, b.workload, b.configs, b.useURAM)

	return t, nil
}

// Design returns the design of t.
func (t *SingleTask) Design() *design.Design { return t.design }

// Workload returns the workload of t.
func (t *SingleTask) Workload() workload.Workload { return t.workload }

// Constraint returns the resource ceiling of t.
func (t *SingleTask) Constraint() config.Constraint { return t.constraint }

// Configs returns the overrides of t.
func (t *SingleTask) Configs() Configs { return t.configs }

// Externals returns the values of the design externals.
func (t *SingleTask) Externals() design.Params { return t.externals.Clone() }

// Ops returns the operation count of the workload.
func (t *SingleTask) Ops() float64 { return t.workload.Ops() }

// Arch returns the committed architecture, or nil.
func (t *SingleTask) Arch() design.ArchCst { return t.arch }

// Clone returns a copy of t that can be reconfigured independently.
func (t *SingleTask) Clone() *SingleTask {
	c := *t
	c.externals = t.externals.Clone()
	c.arch = append(design.ArchCst(nil), t.arch...)
	if t.arch == nil {
		c.arch = nil
	}

	return &c
}

// FixArch commits t to an architecture. Evaluations that need more than
// cst along any axis become infeasible.
func (t *SingleTask) FixArch(cst design.ArchCst) {
	t.arch = append(design.ArchCst(nil), cst...)
}

// SetConstraint replaces the resource ceiling.
func (t *SingleTask) SetConstraint(c config.Constraint) {
	t.constraint = c
}

// SetPrev sets or clears the upstream array.
func (t *SingleTask) SetPrev(p *Prev) {
	t.prev = p
}

// Full merges the externals of t into p.
func (t *SingleTask) Full(p design.Params) design.Params {
	out := p.Clone()
	for k, v := range t.externals {
		out[k] = v
	}

	return out
}

// Evaluate scores p. Any infeasibility (missing parameters, failed
// inference or bound check, architecture violation) yields (0, nil, nil).
// Resource usage is not checked against the constraint here.
func (t *SingleTask) Evaluate(p design.Params, metric record.Metric) (float64, *design.Resource, *Meta) {
	d := t.design

	full := t.Full(p)
	for _, n := range d.ParamsConfig().Tunable {
		if _, ok := full[n]; !ok {
			return 0, nil, nil
		}
	}

	full, ok := d.InferParams(full)
	if !ok || !d.BoundCheck(full) {
		return 0, nil, nil
	}

	if t.arch != nil && !t.arch.Covers(d.ArchConstraint(full)) {
		return 0, nil, nil
	}

	_, lmeta := d.EstLatency(full, 0)
	act := d.EstActivity(full)
	for _, pol := range t.policies {
		pol.UpdateLatency(&lmeta, &act)
	}

	lat := t.composeLatency(&lmeta)
	setup := t.AdjustLatencyMultiAcc(full)
	lat += setup

	res, rmeta := d.EstResource(full)
	for _, pol := range t.policies {
		pol.UpdateBuffer(&res)
	}

	meta := &Meta{
		Params:   full,
		Latency:  lmeta,
		Resource: rmeta,
		Activity: act,
		Setup:    setup,
	}
	meta.Metrics = t.metrics(full, lat, res, act)

	reward := rewardOf(metric, meta.Metrics)
	if reward <= 0 || math.IsNaN(reward) || math.IsInf(reward, 0) {
		return 0, nil, nil
	}

	return reward, &res, meta
}

func (t *SingleTask) composeLatency(meta *design.LatencyMeta) float64 {
	lat := meta.Compose()
	if !t.serialize {
		return math.Ceil(lat)
	}

	// Off-chip modules run one after another, the rest overlaps.
	serial, rest := 0.0, 0.0
	for _, ml := range meta.Modules {
		if t.design.ModuleToDRAM(ml.Name) {
			serial += ml.Total()
		} else {
			rest = max(rest, ml.Total())
		}
	}

	return math.Ceil(serial + rest + meta.DrainTail)
}

func rewardOf(metric record.Metric, m Metrics) float64 {
	inv := func(v float64) float64 {
		if v <= 0 {
			return 0
		}

		return 1 / v
	}

	switch metric {
	case record.MetricEnergy:
		return inv(m.Energy)
	case record.MetricOffChip:
		if m.OffChipBytes <= 0 {
			// Nothing moves off chip; rank by latency instead.
			return inv(m.Latency)
		}

		return inv(m.OffChipBytes)
	case record.MetricDSPNum:
		return m.DSPEff
	default:
		return inv(m.Latency)
	}
}

// Fits reports whether r is within the constraint of t.
func (t *SingleTask) Fits(r *design.Resource) bool {
	return r != nil && t.constraint.Fits(*r)
}

// Record evaluates p and packs the result. Infeasible or over-budget
// assignments give an invalid record.
func (t *SingleTask) Record(p design.Params, metric record.Metric) *record.Record {
	r := record.New(metric)

	reward, res, meta := t.Evaluate(p, metric)
	if reward == 0 || !t.Fits(res) {
		return r
	}

	m := meta.Metrics
	r.Valid = true
	r.Reward = reward
	r.Latency = m.Latency
	r.Energy = m.Energy
	r.OffChip = m.OffChipBytes
	r.Ops = m.Ops
	r.Cst = *res
	r.ArchSol = meta.Params
	r.Parts = 1
	r.TaskSols = []record.TaskSol{{
		Workload: t.workload.Name,
		Sol:      meta.Params.Clone(),
		Ops:      m.Ops,
		Latency:  m.Latency,
		Resource: *res,
		DSPEff:   m.DSPEff,
		CTC:      m.CTC,
		BW:       m.BW,
		Energy:   m.Energy,
	}}

	return r
}

// AdjustParams snaps every tunable parameter into its legal lattice:
// divisor-dependent parameters to the nearest legal divisor of their
// parent, others into their bounds, after applying the fix and equate
// overrides. Applying it twice gives the same result.
func (t *SingleTask) AdjustParams(p design.Params) design.Params {
	d := t.design
	out := t.Full(p)

	for range len(d.ParamNames()) + 1 {
		changed := false
		for _, n := range d.ParamsConfig().Tunable {
			v := t.override(n, out)

			if cands := d.Candidates(n, out); len(cands) > 0 {
				v = divisor.Nearest(cands, v)
			} else {
				v = max(v, 1)
			}

			if out[n] != v {
				out[n] = v
				changed = true
			}
		}

		if !changed {
			break
		}
	}

	return out
}

func (t *SingleTask) override(name string, p design.Params) int {
	if v, ok := t.configs.FixParams[name]; ok {
		return v
	}

	for _, eq := range t.configs.EquateParams {
		if eq[0] == name {
			if v, ok := p[eq[1]]; ok {
				return v
			}
		}
	}

	return p[name]
}

// Signature is the canonical cache key of t.
func (t *SingleTask) Signature() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "%s|%s|%s", t.design.Name, t.workload, t.constraint)
	fmt.Fprintf(&sb, "|fuse=%t,uram=%t,serialize=%t", t.fuse, t.useURAM, t.serialize)
	fmt.Fprintf(&sb, "|cin=%d,cout=%d,w=%d",
		t.configs.CinRead, t.configs.CoutWrite, t.configs.WRead)

	if len(t.configs.FixParams) > 0 {
		sb.WriteString("|fix=" + design.Params(t.configs.FixParams).String())
	}

	if len(t.configs.EquateParams) > 0 {
		pairs := lo.Map(t.configs.EquateParams, func(e [2]string, _ int) string {
			return e[0] + "=" + e[1]
		})
		sort.Strings(pairs)
		sb.WriteString("|eq=" + strings.Join(pairs, ","))
	}

	if t.arch != nil {
		fmt.Fprintf(&sb, "|arch=%v", []float64(t.arch))
	}

	if t.prev != nil {
		fmt.Fprintf(&sb, "|prev=%s:%s:%g", t.prev.Workload, t.prev.Sol, t.prev.Latency)
	}

	return sb.String()
}

func (t *SingleTask) String() string {
	return t.Signature()
}
