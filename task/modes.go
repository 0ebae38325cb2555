package task

import (
	"fmt"

	"github.com/sarchlab/arraytuner/design"
	"github.com/sarchlab/arraytuner/workload"
)

// CinReadMode selects where a task reads its input tensor from.
type CinReadMode int

// Input read modes.
const (
	// CinNormal streams the input from DRAM once per reuse.
	CinNormal CinReadMode = iota
	// CinLoadOnce loads the whole input on chip before the first tile.
	CinLoadOnce
	// CinFromBRAM reads the output of the previous fused task from BRAM.
	CinFromBRAM
	// CinFromURAM reads the output of the previous fused task from URAM.
	CinFromURAM
)

// CoutWriteMode selects where a task writes its output tensor.
type CoutWriteMode int

// Output write modes.
const (
	CoutNormal CoutWriteMode = iota
	// CoutToOnChip keeps the output on chip for the next fused task.
	CoutToOnChip
)

// WReadMode selects how a task reads its weights.
type WReadMode int

// Weight read modes.
const (
	WNormal WReadMode = iota
	// WPreloaded assumes the weights are on chip before the task starts.
	WPreloaded
)

// BufferPolicy changes the cost of a task whose transfers are redirected on
// chip. Policies are resolved once when the task is built.
type BufferPolicy interface {
	// UpdateLatency drops or moves the transfer terms of the affected
	// modules and their off-chip traffic.
	UpdateLatency(meta *design.LatencyMeta, act *design.Activity)
	// UpdateBuffer adds the on-chip buffer the mode needs.
	UpdateBuffer(res *design.Resource)
	fmt.Stringer
}

// onChipBuffer sizes a buffer holding a whole tensor of 4-byte elements.
func onChipBuffer(elems float64, uram bool) design.Resource {
	if uram {
		return design.Resource{URAM: design.URAMUnits(4, 1, elems)}
	}

	return design.Resource{BRAM18K: design.BRAMUnits(4, 1, elems)}
}

func bytesPerElem(act *design.Activity) float64 {
	if act.OffChip <= 0 {
		return 4
	}

	return act.OffChipBytes / act.OffChip
}

func setOffChip(act *design.Activity, module string, elems float64) {
	old := act.ModuleOffChip[module]
	bpe := bytesPerElem(act)

	act.OffChip += elems - old
	act.OffChipBytes += (elems - old) * bpe
	if act.ModuleOffChip != nil {
		act.ModuleOffChip[module] = elems
	}
}

// dropPolicy removes the off-chip transfer of one array entirely. The
// consumer side of an on-chip hand-off owns the buffer.
type dropPolicy struct {
	d      *design.Design
	name   string
	array  string
	tensor float64
	buffer bool
	uram   bool
}

func (p dropPolicy) String() string { return p.name }

func (p dropPolicy) UpdateLatency(meta *design.LatencyMeta, act *design.Activity) {
	for i := range meta.Modules {
		ml := &meta.Modules[i]
		if ml.Array != p.array || !p.d.ModuleToDRAM(ml.Name) {
			continue
		}

		ml.Prologue, ml.Main, ml.Epilogue = 0, 0, 0
		setOffChip(act, ml.Name, 0)
	}
}

func (p dropPolicy) UpdateBuffer(res *design.Resource) {
	if p.buffer {
		*res = res.Add(onChipBuffer(p.tensor, p.uram))
	}
}

// loadOncePolicy reads the input tensor from DRAM once into an on-chip
// buffer. The load is not overlapped with compute.
type loadOncePolicy struct {
	d      *design.Design
	array  string
	tensor float64
	uram   bool
}

func (p loadOncePolicy) String() string { return "cin_load_once" }

func (p loadOncePolicy) UpdateLatency(meta *design.LatencyMeta, act *design.Activity) {
	for i := range meta.Modules {
		ml := &meta.Modules[i]
		if ml.Array != p.array || !p.d.ModuleToDRAM(ml.Name) {
			continue
		}

		off := act.ModuleOffChip[ml.Name]
		reuse := 1.0
		if p.tensor > 0 && off > p.tensor {
			reuse = off / p.tensor
		}

		ml.Prologue += ml.Main / reuse
		ml.Main = 0
		setOffChip(act, ml.Name, min(off, p.tensor))
	}
}

func (p loadOncePolicy) UpdateBuffer(res *design.Resource) {
	*res = res.Add(onChipBuffer(p.tensor, p.uram))
}

// resolvePolicies turns buffering modes into policies.
func resolvePolicies(
	d *design.Design,
	w workload.Workload,
	cfg Configs,
	useURAM bool,
) []BufferPolicy {
	var out []BufferPolicy

	cin := d.Role(workload.RoleCin)
	switch cfg.CinRead {
	case CinLoadOnce:
		out = append(out, loadOncePolicy{
			d: d, array: cin, tensor: w.TensorElems(workload.RoleCin), uram: useURAM,
		})
	case CinFromBRAM, CinFromURAM:
		out = append(out, dropPolicy{
			d: d, name: "cin_on_chip", array: cin,
			tensor: w.TensorElems(workload.RoleCin),
			buffer: true, uram: cfg.CinRead == CinFromURAM,
		})
	}

	if cfg.CoutWrite == CoutToOnChip {
		out = append(out, dropPolicy{
			d: d, name: "cout_on_chip", array: d.Role(workload.RoleCout),
		})
	}

	if cfg.WRead == WPreloaded {
		out = append(out, dropPolicy{
			d: d, name: "w_preloaded", array: d.Role(workload.RoleW),
			tensor: w.TensorElems(workload.RoleW),
			buffer: true, uram: useURAM,
		})
	}

	return out
}
