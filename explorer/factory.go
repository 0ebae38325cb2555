package explorer

import (
	"github.com/sarchlab/arraytuner/task"
	"github.com/sarchlab/arraytuner/tuner"
)

// Factory creates the searcher of each strategy the explorer dispatches
// to.
type Factory interface {
	Core(method string, t *task.SingleTask, o tuner.Options) tuner.Searcher
	MultiWorkload(mt *task.MultiTask, o tuner.Options) (tuner.Searcher, error)
	AllFuse(mt *task.MultiTask, o tuner.Options) (tuner.Searcher, error)
	PartialFuse(mt *task.MultiTask, o tuner.Options) (tuner.Searcher, error)
	MultiAcc(strategy int, mt *task.MultiTask, o tuner.Options) tuner.Searcher
	Programmable(mt *task.MultiTask, o tuner.Options) tuner.Searcher
}

// TunerFactory builds the searchers of the tuner package.
type TunerFactory struct{}

// Core returns the core tuner of method.
func (TunerFactory) Core(method string, t *task.SingleTask, o tuner.Options) tuner.Searcher {
	return tuner.NewCore(method, t, o)
}

// MultiWorkload returns a shared-array tuner.
func (TunerFactory) MultiWorkload(mt *task.MultiTask, o tuner.Options) (tuner.Searcher, error) {
	return tuner.NewMultiWorkloadArrayGenetic(mt, o)
}

// AllFuse returns a tuner fusing every workload.
func (TunerFactory) AllFuse(mt *task.MultiTask, o tuner.Options) (tuner.Searcher, error) {
	return tuner.NewAllFuseGenetic(mt, o)
}

// PartialFuse returns a tuner choosing fused segments.
func (TunerFactory) PartialFuse(mt *task.MultiTask, o tuner.Options) (tuner.Searcher, error) {
	return tuner.NewFuseGenetic(mt, o)
}

// MultiAcc returns the multi-array tuner of a strategy: 1 for pipelines of
// contiguous stages, anything else for balanced groups.
func (TunerFactory) MultiAcc(strategy int, mt *task.MultiTask, o tuner.Options) tuner.Searcher {
	if strategy == 1 {
		return tuner.NewMultiAcc1(mt, o)
	}

	return tuner.NewMultiAcc2(mt, o)
}

// Programmable returns the programmable-array tuner.
func (TunerFactory) Programmable(mt *task.MultiTask, o tuner.Options) tuner.Searcher {
	return tuner.NewProgrammable(mt, o)
}
