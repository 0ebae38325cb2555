package design

import "math"

// ModuleLatency is the latency breakdown of one module. Prologue and
// Epilogue are the one-time transfers that double buffering cannot
// overlap.
type ModuleLatency struct {
	Name     string
	Array    string
	Attr     AttrDesc
	Drain    bool
	Prologue float64
	Main     float64
	Epilogue float64
	// Tiles is the number of array tiles the module iterates over.
	Tiles float64
}

// Total returns prologue + main + epilogue.
func (m ModuleLatency) Total() float64 {
	return m.Prologue + m.Main + m.Epilogue
}

// LatencyMeta carries the per-module breakdown of a latency estimate.
type LatencyMeta struct {
	Modules     []ModuleLatency
	DrainTail   float64
	DrainModule string
	Critical    string
	Aborted     bool
}

// Module returns the breakdown of the named module.
func (m *LatencyMeta) Module(name string) (ModuleLatency, bool) {
	for _, ml := range m.Modules {
		if ml.Name == name {
			return ml, true
		}
	}

	return ModuleLatency{}, false
}

// Compose recomputes the design latency from the module breakdown: the
// slowest module plus the tail of draining the last tile.
func (m *LatencyMeta) Compose() float64 {
	lat, tail := 0.0, 0.0
	m.Critical, m.DrainModule = "", ""

	for _, ml := range m.Modules {
		total := ml.Total()
		if total > lat {
			lat = total
			m.Critical = ml.Name
		}

		if ml.Drain && ml.Tiles > 0 && total/ml.Tiles > tail {
			tail = total / ml.Tiles
			m.DrainModule = ml.Name
		}
	}

	m.DrainTail = tail

	return lat + tail
}

type moduleMode int

const (
	modeNormal moduleMode = iota
	modeOuter
	modeInter
	modeIntra
)

// walkCtx is the per-call state of the latency visitor. It is passed by
// value; children never see changes made by siblings.
type walkCtx struct {
	prefix      float64
	underUnroll bool
	burst       float64
	serialize   bool
	mode        moduleMode
}

type walkResult struct {
	lat    float64
	hasFor bool
	// transPrefix is the loop prefix at which transfer calls were found.
	transPrefix float64
	// tiles is the loop prefix at the array_tile node.
	tiles float64
}

func (r *walkResult) absorb(o walkResult) {
	r.hasFor = r.hasFor || o.hasFor
	r.transPrefix = math.Max(r.transPrefix, o.transPrefix)
	if r.tiles == 0 {
		r.tiles = o.tiles
	}
}

type latencyWalker struct {
	d    *Design
	vars env
}

func (w latencyWalker) walk(n node, ctx walkCtx) walkResult {
	switch n := n.(type) {
	case *blockNode:
		return w.block(n, ctx)
	case *forNode:
		return w.loop(n, ctx)
	case *markNode:
		return w.mark(n, ctx)
	case *userNode:
		return w.user(n, ctx)
	case *ifNode:
		return w.cond(n, ctx)
	case *arrayTileNode:
		r := w.walk(n.child, ctx)
		if r.tiles == 0 {
			r.tiles = ctx.prefix
		}

		return r
	}

	return walkResult{}
}

func (w latencyWalker) block(n *blockNode, ctx walkCtx) walkResult {
	var leafChildren []node
	for _, c := range n.children {
		if c.hasLeaf() {
			leafChildren = append(leafChildren, c)
		}
	}

	if len(leafChildren) == 1 {
		return w.walk(leafChildren[0], ctx)
	}

	for _, c := range n.children {
		if m, ok := c.(*markNode); ok && m.mark == MarkSIMD {
			return w.walk(c, ctx)
		}
	}

	allUser := len(n.children) > 0
	for _, c := range n.children {
		if _, ok := c.(*userNode); !ok {
			allUser = false
			break
		}
	}

	var res walkResult
	for _, c := range n.children {
		r := w.walk(c, ctx)
		if allUser {
			res.lat = math.Max(res.lat, r.lat)
		} else {
			res.lat += r.lat
		}

		res.absorb(r)
	}

	return res
}

func (w latencyWalker) loop(n *forNode, ctx walkCtx) walkResult {
	trip := n.ub.evalOr(w.vars, 0) - n.lb.evalOr(w.vars, 0) + 1
	if trip < 0 || math.IsNaN(trip) {
		trip = 0
	}

	if !ctx.underUnroll {
		ctx.prefix *= trip
	}

	r := w.walk(n.child, ctx)
	r.hasFor = true

	return r
}

func (w latencyWalker) mark(n *markNode, ctx walkCtx) walkResult {
	switch n.mark {
	case MarkSIMD, MarkUnroll:
		ctx.underUnroll = true
	case MarkCoalesce:
		ctx.burst = n.burst.evalOr(w.vars, w.d.burstLen)
	case MarkSerialize:
		ctx.serialize = true
	}

	return w.walk(n.child, ctx)
}

func (w latencyWalker) user(n *userNode, ctx walkCtx) walkResult {
	if ctx.mode == modeOuter && (n.call == CallInterTrans || n.call == CallIntraTrans) {
		return walkResult{transPrefix: math.Max(ctx.prefix, 1)}
	}

	p := ctx.prefix
	if p <= 0 {
		return walkResult{}
	}

	ii := n.ii.evalOr(w.vars, 1)
	depth := n.depth.evalOr(w.vars, 1)
	dram := w.d.dramCycles

	var lat float64
	switch {
	case n.dram && ctx.burst > 0:
		lat = p / ctx.burst * (dram + ctx.burst + depth)
	case ctx.serialize:
		lat = (p-1)*ii + depth
	case n.dram:
		lat = p * (dram + depth)
	default:
		lat = (p-1)*ii + depth
	}

	return walkResult{lat: lat}
}

func (w latencyWalker) cond(n *ifNode, ctx walkCtx) walkResult {
	branch := ctx
	branch.prefix = 1

	var res walkResult
	best := 1.0
	for _, b := range []node{n.then, n.els} {
		if b == nil {
			continue
		}

		r := w.walk(b, branch)
		if r.hasFor {
			best = math.Max(best, r.lat)
		}

		res.absorb(r)
	}

	res.lat = ctx.prefix * best

	return res
}

func (d *Design) moduleLatency(m *moduleModel, vars env) ModuleLatency {
	w := latencyWalker{d: d, vars: vars}
	base := walkCtx{prefix: 1, serialize: m.attr.Serialize}

	ml := ModuleLatency{
		Name:  m.name,
		Array: d.ModuleArray(m.name),
		Attr:  m.attr,
		Drain: m.isDrain(),
	}

	if !m.isTransfer() {
		r := w.walk(m.ast, base)
		ml.Main = r.lat
		ml.Tiles = math.Max(r.tiles, 1)

		return ml
	}

	outerCtx := base
	outerCtx.mode = modeOuter
	r := w.walk(m.ast, outerCtx)
	ml.Tiles = math.Max(r.tiles, 1)

	outer := math.Max(r.transPrefix, 1)

	interCtx := base
	interCtx.mode = modeInter
	inter := w.walk(m.inter, interCtx).lat

	intraCtx := base
	intraCtx.mode = modeIntra
	intra := w.walk(m.intra, intraCtx).lat

	if m.mem != nil && m.mem.DoubleBuffer {
		ml.Main = outer*math.Max(inter, intra) + r.lat
		if m.attr.Out {
			ml.Epilogue = inter
		} else {
			ml.Prologue = inter
		}
	} else {
		ml.Main = outer*(inter+intra) + r.lat
	}

	return ml
}

// EstLatency estimates the latency in cycles of the design under p. If
// earlyStop is positive, the estimate stops as soon as one module exceeds
// it; the returned value is then only a lower bound and meta.Aborted is set.
func (d *Design) EstLatency(p Params, earlyStop float64) (float64, LatencyMeta) {
	vars := d.env(p)
	meta := LatencyMeta{Modules: make([]ModuleLatency, 0, len(d.modules))}

	for _, m := range d.modules {
		ml := d.moduleLatency(m, vars)
		meta.Modules = append(meta.Modules, ml)

		if earlyStop > 0 && ml.Total() > earlyStop {
			meta.Aborted = true
			return ml.Total(), meta
		}
	}

	return math.Ceil(meta.Compose()), meta
}
