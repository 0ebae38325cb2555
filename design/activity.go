package design

import "math"

// Activity counts the statements a configuration executes. It feeds the
// energy and off-chip traffic metrics.
type Activity struct {
	// OffChip is the number of elements moved to or from DRAM.
	OffChip float64
	// OffChipBytes is OffChip weighted by element size.
	OffChipBytes float64
	// NoCHops is the number of transfer statements weighted by the average
	// hop distance of the I/O module fan-out.
	NoCHops   float64
	PECompute float64
	RegAccess float64
	MemAccess float64
	// ModuleOffChip is OffChip broken down by module.
	ModuleOffChip map[string]float64
}

type callCounts struct {
	dram, stmt   float64
	inter, intra float64
}

func (c *callCounts) add(o callCounts) {
	c.dram += o.dram
	c.stmt += o.stmt
	c.inter += o.inter
	c.intra += o.intra
}

func (c callCounts) total() float64 {
	return c.dram + c.stmt + c.inter + c.intra
}

// countWalker walks the same AST as the latency model but counts statement
// executions. Unrolled loops still execute every statement, so marks do
// not change the counts.
type countWalker struct {
	vars env
}

func (w countWalker) walk(n node, prefix float64) callCounts {
	switch n := n.(type) {
	case *blockNode:
		var c callCounts
		for _, child := range n.children {
			c.add(w.walk(child, prefix))
		}

		return c
	case *forNode:
		trip := n.ub.evalOr(w.vars, 0) - n.lb.evalOr(w.vars, 0) + 1
		if trip < 0 || math.IsNaN(trip) {
			trip = 0
		}

		return w.walk(n.child, prefix*trip)
	case *markNode:
		return w.walk(n.child, prefix)
	case *arrayTileNode:
		return w.walk(n.child, prefix)
	case *ifNode:
		then := w.walk(n.then, prefix)
		els := w.walk(n.els, prefix)
		if then.total() >= els.total() {
			return then
		}

		return els
	case *userNode:
		switch {
		case n.call == CallInterTrans:
			return callCounts{inter: prefix}
		case n.call == CallIntraTrans:
			return callCounts{intra: prefix}
		case n.dram:
			return callCounts{dram: prefix}
		default:
			return callCounts{stmt: prefix}
		}
	}

	return callCounts{}
}

func (d *Design) moduleCounts(m *moduleModel, vars env) callCounts {
	w := countWalker{vars: vars}
	c := w.walk(m.ast, 1)
	if !m.isTransfer() {
		return c
	}

	inter := w.walk(m.inter, 1)
	intra := w.walk(m.intra, 1)

	return callCounts{
		dram: c.dram + c.inter*inter.dram + c.intra*intra.dram,
		stmt: c.stmt + c.inter*inter.stmt + c.intra*intra.stmt,
	}
}

// EstActivity estimates statement counts for p.
func (d *Design) EstActivity(p Params) Activity {
	vars := d.env(p)
	peNum := d.pe.num.eval(vars)

	act := Activity{ModuleOffChip: map[string]float64{}}
	for _, m := range d.modules {
		c := d.moduleCounts(m, vars)

		instances := 1.0
		pack := 1.0
		switch {
		case m.isPE:
			instances = peNum
		case m.mem != nil:
			instances = m.mem.num.evalOr(vars, 1)
			pack = m.mem.packInter.evalOr(vars, m.mem.pack.evalOr(vars, 1))
		}

		if m.ioPack != nil {
			pack = m.ioPack.eval(vars)
		}

		if c.dram > 0 {
			elems := c.dram * pack * instances
			act.OffChip += elems
			act.ModuleOffChip[m.name] = elems
			act.OffChipBytes += elems * float64(m.eleSize)
		}

		if len(m.ioDims) > 0 {
			hop := 1.0
			for _, e := range m.ioDims {
				hop *= (1 + e.eval(vars)) / 2
			}

			act.NoCHops += c.stmt * hop
		}

		if m.isPE {
			act.PECompute += c.stmt * instances
			act.RegAccess += 3 * c.stmt * instances
		} else if m.mem != nil {
			act.MemAccess += c.stmt * instances
		}
	}

	return act
}
