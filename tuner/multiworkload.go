package tuner

import (
	"context"

	"github.com/sarchlab/arraytuner/design"
	"github.com/sarchlab/arraytuner/record"
	"github.com/sarchlab/arraytuner/task"
)

// MultiWorkloadArrayGeneticTuner finds one array for several workloads
// that run one after another without fusion. Each candidate array is
// scored by an inner search per workload under that array.
type MultiWorkloadArrayGeneticTuner struct {
	*archGenetic
}

// NewMultiWorkloadArrayGenetic creates the tuner for the members of mt.
func NewMultiWorkloadArrayGenetic(mt *task.MultiTask, o Options) (*MultiWorkloadArrayGeneticTuner, error) {
	inner := o.inner()
	g, err := newArchGenetic("multi_workload", mt, o,
		func(ctx context.Context, arch design.Params, cst design.ArchCst) *record.Record {
			return runSequential(ctx, mt, cst, arch, inner)
		})
	if err != nil {
		return nil, err
	}

	return &MultiWorkloadArrayGeneticTuner{archGenetic: g}, nil
}

// AllFuseGeneticTuner finds one array running every workload fused on
// chip as a single chain.
type AllFuseGeneticTuner struct {
	*archGenetic
}

// NewAllFuseGenetic creates the tuner for the members of mt.
func NewAllFuseGenetic(mt *task.MultiTask, o Options) (*AllFuseGeneticTuner, error) {
	fused, err := task.MultiTaskBuilder{}.
		WithDesign(mt.Design()).
		WithWorkloads(mt.Workloads()).
		WithConstraint(mt.Constraint()).
		WithFuse(true).
		WithURAM(o.UseURAM).
		Build()
	if err != nil {
		return nil, err
	}

	inner := o.inner()
	g, err := newArchGenetic("all_fuse", fused, o,
		func(ctx context.Context, arch design.Params, cst design.ArchCst) *record.Record {
			r := runSequential(ctx, fused, cst, arch, inner)
			r.Meta = map[string]float64{"segments": 1, "fused_segments": 1}

			return r
		})
	if err != nil {
		return nil, err
	}

	return &AllFuseGeneticTuner{archGenetic: g}, nil
}

// FuseGeneticTuner finds one array and, for each candidate, the best cut
// of the workload sequence into fused segments.
type FuseGeneticTuner struct {
	*archGenetic
}

// NewFuseGenetic creates the tuner for the members of mt.
func NewFuseGenetic(mt *task.MultiTask, o Options) (*FuseGeneticTuner, error) {
	inner := o.inner()
	g, err := newArchGenetic("partial_fuse", mt, o,
		func(ctx context.Context, arch design.Params, cst design.ArchCst) *record.Record {
			return NewFuseDP(mt, inner).WithArch(cst, arch).Search(ctx)
		})
	if err != nil {
		return nil, err
	}

	return &FuseGeneticTuner{archGenetic: g}, nil
}
