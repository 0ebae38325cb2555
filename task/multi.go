package task

import (
	"errors"
	"strings"

	"github.com/samber/lo"

	"github.com/sarchlab/arraytuner/config"
	"github.com/sarchlab/arraytuner/design"
	"github.com/sarchlab/arraytuner/workload"
)

// MultiTask is a sequence of workloads sharing one design and one
// constraint. A fused multi task chains its members through on-chip
// buffers.
type MultiTask struct {
	Tasks []*SingleTask

	design     *design.Design
	constraint config.Constraint
	fuse       bool
	useURAM    bool
	externals  design.Params
}

// MultiTaskBuilder builds multi tasks.
type MultiTaskBuilder struct {
	design     *design.Design
	workloads  []workload.Workload
	constraint config.Constraint
	fuse       bool
	useURAM    bool
	serialize  bool
}

// WithDesign sets the shared design.
func (b MultiTaskBuilder) WithDesign(d *design.Design) MultiTaskBuilder {
	b.design = d
	return b
}

// WithWorkloads sets the member workloads in execution order.
func (b MultiTaskBuilder) WithWorkloads(ws []workload.Workload) MultiTaskBuilder {
	b.workloads = ws
	return b
}

// WithConstraint sets the shared resource ceiling.
func (b MultiTaskBuilder) WithConstraint(c config.Constraint) MultiTaskBuilder {
	b.constraint = c
	return b
}

// WithFuse chains the members through on-chip buffers: the first member
// reads its input from DRAM, inner members read from and write to chip,
// the last writes its output to DRAM.
func (b MultiTaskBuilder) WithFuse(f bool) MultiTaskBuilder {
	b.fuse = f
	return b
}

// WithURAM places the fused hand-off buffers in URAM.
func (b MultiTaskBuilder) WithURAM(u bool) MultiTaskBuilder {
	b.useURAM = u
	return b
}

// WithSerialize serializes the off-chip transfers of every member.
func (b MultiTaskBuilder) WithSerialize(s bool) MultiTaskBuilder {
	b.serialize = s
	return b
}

// Build creates the multi task.
func (b MultiTaskBuilder) Build() (*MultiTask, error) {
	if len(b.workloads) == 0 {
		return nil, errors.New("multi task needs at least one workload")
	}

	mt := &MultiTask{
		design:     b.design,
		constraint: b.constraint,
		fuse:       b.fuse,
		useURAM:    b.useURAM,
		externals:  design.Params{},
	}

	n := len(b.workloads)
	for i, w := range b.workloads {
		cfg := Configs{}
		if b.fuse && n > 1 {
			cfg = chainConfigs(i, n, b.useURAM)
		}

		t, err := SingleTaskBuilder{}.
			WithDesign(b.design).
			WithWorkload(w).
			WithConstraint(b.constraint).
			WithConfigs(cfg).
			WithURAM(b.useURAM).
			WithSerialize(b.serialize).
			WithFuse(b.fuse).
			Build()
		if err != nil {
			return nil, err
		}

		for k, v := range t.externals {
			mt.externals[k] = max(mt.externals[k], v)
		}

		mt.Tasks = append(mt.Tasks, t)
	}

	return mt, nil
}

func chainConfigs(i, n int, useURAM bool) Configs {
	cfg := Configs{}

	if i > 0 {
		cfg.CinRead = CinFromBRAM
		if useURAM {
			cfg.CinRead = CinFromURAM
		}
	}

	if i < n-1 {
		cfg.CoutWrite = CoutToOnChip
	}

	return cfg
}

// Design returns the shared design.
func (m *MultiTask) Design() *design.Design { return m.design }

// Constraint returns the shared resource ceiling.
func (m *MultiTask) Constraint() config.Constraint { return m.constraint }

// Fused reports whether the members are chained on chip.
func (m *MultiTask) Fused() bool { return m.fuse }

// Externals returns the array-level externals: the max over members.
func (m *MultiTask) Externals() design.Params { return m.externals.Clone() }

// Workloads returns the member workloads.
func (m *MultiTask) Workloads() []workload.Workload {
	return lo.Map(m.Tasks, func(t *SingleTask, _ int) workload.Workload {
		return t.workload
	})
}

// Ops returns the total operation count.
func (m *MultiTask) Ops() float64 {
	return lo.SumBy(m.Tasks, func(t *SingleTask) float64 { return t.Ops() })
}

// ArchConstraint returns the architecture that runs every member with its
// solution: the element-wise max of the members' needs.
func (m *MultiTask) ArchConstraint(sols []design.Params) design.ArchCst {
	var cst design.ArchCst
	for i, t := range m.Tasks {
		if i >= len(sols) || sols[i] == nil {
			continue
		}

		full, ok := m.design.InferParams(t.Full(sols[i]))
		if !ok {
			continue
		}

		cst = cst.Max(m.design.ArchConstraint(full))
	}

	return cst
}

// FixArch commits every member to cst.
func (m *MultiTask) FixArch(cst design.ArchCst) {
	for _, t := range m.Tasks {
		t.FixArch(cst)
	}
}

// Signature is the canonical cache key of m.
func (m *MultiTask) Signature() string {
	sigs := lo.Map(m.Tasks, func(t *SingleTask, _ int) string { return t.Signature() })

	prefix := "multi"
	if m.fuse {
		prefix = "fused"
	}

	return prefix + "[" + strings.Join(sigs, ";") + "]"
}
