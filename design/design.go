// Package design compiles accelerator template descriptors into cost models.
//
// A Design is built once per descriptor and is read-only afterwards, so all
// of its estimators can be called from concurrent searches. Expressions in the
// descriptor are compiled at registration; the latency and activity models
// walk typed AST nodes instead of generated code.
package design

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/sarchlab/akita/v4/sim"
)

// Configuration errors. They make a descriptor unusable and are never
// retried.
var (
	ErrUnsupportedType = errors.New("unsupported PE element type")
	ErrMissingKey      = errors.New("missing required descriptor key")
	ErrBrokenChain     = errors.New("tunable parameter is not rooted at an external parameter")
)

// Defaults of the descriptor "constants" section.
const (
	DefaultLatencyHidingFactor = 8
	DefaultDRAMLatencyNS       = 200
	DefaultFreqMHz             = 300
	DefaultBurstLen            = 16
	floatDSPCost               = 5
)

// ParamsConfig partitions the parameters of a design.
type ParamsConfig struct {
	Tunable  []string
	External []string
	Infer    []string
}

type paramModel struct {
	ParamDesc
	index     int
	lb, ub    *Expr
	parent    string
	external  bool
	pow2      bool
	autoInfer bool
}

type memoryModel struct {
	name string
	MemoryDesc
	bufSize, num, pack, packInter *Expr
}

type peModel struct {
	num, unroll   *Expr
	dims          []*Expr
	latencyHiding []*Expr
	localBuffer   bool
}

type moduleModel struct {
	name         string
	ast          node
	inter, intra node
	attr         AttrDesc
	mem          *memoryModel
	ioDims       []*Expr
	ioPack       *Expr
	eleSize      int
	isPE         bool
	toDRAM       bool
}

func (m *moduleModel) isTransfer() bool {
	return m.inter != nil || m.intra != nil
}

func (m *moduleModel) isDrain() bool {
	return m.attr.Drain || strings.Contains(m.name, "_drain_")
}

// Design is a compiled accelerator template.
type Design struct {
	Name string

	desc    *Descriptor
	params  []*paramModel
	byName  map[string]*paramModel
	names   []string
	memory  []*memoryModel
	pe      peModel
	modules []*moduleModel
	roles   map[string]string

	freq                sim.Freq
	dramCycles          float64
	latencyHidingFactor float64
	burstLen            float64

	config   ParamsConfig
	chains   [][]string
	pairs    [][2]string
	archKeys []string
}

// Register compiles a descriptor. Any error is a configuration error: the
// cost model cannot be constructed and the run should abort.
func Register(desc *Descriptor) (*Design, error) {
	if len(desc.Params) == 0 {
		return nil, fmt.Errorf("%w: params", ErrMissingKey)
	}

	if desc.Compute.PE == nil {
		return nil, fmt.Errorf("%w: compute.PE", ErrMissingKey)
	}

	if len(desc.Latency) == 0 {
		return nil, fmt.Errorf("%w: latency", ErrMissingKey)
	}

	if desc.Compute.PE.EleType != "float" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, desc.Compute.PE.EleType)
	}

	d := &Design{
		Name:   desc.Name,
		desc:   desc,
		byName: make(map[string]*paramModel),
		roles:  desc.Roles,
	}

	d.setConstants()

	if err := d.compileParams(); err != nil {
		return nil, err
	}

	if err := d.compileMemory(); err != nil {
		return nil, err
	}

	if err := d.compilePE(); err != nil {
		return nil, err
	}

	if err := d.compileModules(); err != nil {
		return nil, err
	}

	if err := d.checkChains(); err != nil {
		return nil, err
	}

	d.buildChains()
	d.buildArchKeys()

	return d, nil
}

func (d *Design) setConstants() {
	c := d.desc.Constants
	get := func(key string, def float64) float64 {
		if v, ok := c[key]; ok && v > 0 {
			return v
		}

		return def
	}

	d.latencyHidingFactor = get("latency_hiding_factor", DefaultLatencyHidingFactor)
	d.burstLen = get("burst_len", DefaultBurstLen)
	d.freq = sim.Freq(get("freq_mhz", DefaultFreqMHz)) * sim.MHz

	periodNS := float64(d.freq.Period()) * 1e9
	d.dramCycles = math.Round(get("dram_latency_ns", DefaultDRAMLatencyNS) / periodNS)
}

func (d *Design) compileParams() error {
	for _, p := range d.desc.Params {
		if _, dup := d.byName[p.Name]; dup {
			return fmt.Errorf("duplicate parameter %q", p.Name)
		}

		pm := &paramModel{
			ParamDesc: p,
			index:     len(d.params),
			external:  p.HasTag(TagExternal),
			pow2:      p.HasTag(TagPowerOfTwo),
			autoInfer: p.HasTag(TagAutoInfer),
		}
		d.params = append(d.params, pm)
		d.byName[p.Name] = pm
		d.names = append(d.names, p.Name)
	}

	for _, pm := range d.params {
		if len(pm.Bounds) > 0 && len(pm.Bounds) != 2 {
			return fmt.Errorf("parameter %q needs two bounds", pm.Name)
		}

		if len(pm.Bounds) == 2 {
			var err error
			if pm.lb, err = compileExpr(pm.Bounds[0], d.names); err != nil {
				return err
			}

			if pm.ub, err = compileExpr(pm.Bounds[1], d.names); err != nil {
				return err
			}
		}

		pm.parent = d.resolveParent(pm)

		switch {
		case pm.external:
			d.config.External = append(d.config.External, pm.Name)
		case pm.Tunable && pm.autoInfer:
			d.config.Infer = append(d.config.Infer, pm.Name)
		case pm.Tunable:
			d.config.Tunable = append(d.config.Tunable, pm.Name)
		}
	}

	return nil
}

func (d *Design) resolveParent(pm *paramModel) string {
	for _, div := range pm.Divisors {
		if _, ok := d.byName[div]; ok {
			return div
		}
	}

	if id := pm.ub.Ident(); id != "" {
		return id
	}

	return ""
}

func (d *Design) compileMemory() error {
	names := make([]string, 0, len(d.desc.Memory))
	for n := range d.desc.Memory {
		names = append(names, n)
	}
	sort.Strings(names)

	for _, n := range names {
		md := d.desc.Memory[n]
		m := &memoryModel{name: n, MemoryDesc: md}

		var err error
		if m.bufSize, err = compileExpr(md.BufSize, d.names); err != nil {
			return err
		}

		if m.num, err = compileExpr(md.Num, d.names); err != nil {
			return err
		}

		if m.pack, err = compileExpr(md.DataPack, d.names); err != nil {
			return err
		}

		if m.packInter, err = compileExpr(md.DataPackInter, d.names); err != nil {
			return err
		}

		if m.bufSize == nil {
			return fmt.Errorf("%w: memory.%s.buf_size", ErrMissingKey, n)
		}

		if m.EleSize <= 0 {
			return fmt.Errorf("%w: memory.%s.ele_size", ErrMissingKey, n)
		}

		d.memory = append(d.memory, m)
	}

	return nil
}

func (d *Design) compileExprs(srcs []ExprSrc) ([]*Expr, error) {
	out := make([]*Expr, 0, len(srcs))
	for _, s := range srcs {
		e, err := compileExpr(s, d.names)
		if err != nil {
			return nil, err
		}

		if e != nil {
			out = append(out, e)
		}
	}

	return out, nil
}

func (d *Design) compilePE() error {
	pd := d.desc.Compute.PE

	var err error
	if d.pe.num, err = compileExpr(pd.Num, d.names); err != nil {
		return err
	}

	if d.pe.unroll, err = compileExpr(pd.UnrollFactor, d.names); err != nil {
		return err
	}

	if d.pe.num == nil {
		return fmt.Errorf("%w: compute.PE.num", ErrMissingKey)
	}

	if d.pe.dims, err = d.compileExprs(pd.Dims); err != nil {
		return err
	}

	if d.pe.latencyHiding, err = d.compileExprs(pd.LatencyHiding); err != nil {
		return err
	}

	d.pe.localBuffer = pd.LocalBuffer

	return nil
}

func (d *Design) compileModules() error {
	names := make([]string, 0, len(d.desc.Latency))
	for n := range d.desc.Latency {
		names = append(names, n)
	}
	sort.Strings(names)

	c := astCompiler{names: d.names}
	for _, n := range names {
		la := d.desc.Latency[n]

		m := &moduleModel{name: n, attr: d.desc.Attr[n]}

		var err error
		if m.ast, err = c.compile(la.AST); err != nil {
			return fmt.Errorf("module %s: %w", n, err)
		}

		if m.inter, err = c.compile(la.InterTrans); err != nil {
			return fmt.Errorf("module %s: %w", n, err)
		}

		if m.intra, err = c.compile(la.IntraTrans); err != nil {
			return fmt.Errorf("module %s: %w", n, err)
		}

		if m.ast == nil {
			return fmt.Errorf("%w: latency.%s.ast", ErrMissingKey, n)
		}

		m.eleSize = 4
		if io, ok := d.desc.IO[n]; ok {
			if m.ioDims, err = d.compileExprs(io.Dims); err != nil {
				return err
			}

			if m.ioPack, err = compileExpr(io.DataPack, d.names); err != nil {
				return err
			}

			if io.EleSize > 0 {
				m.eleSize = io.EleSize
			}
		}

		for _, mem := range d.memory {
			if mem.name == n {
				m.mem = mem
				m.eleSize = mem.EleSize
			}
		}

		m.isPE = n == "PE" || strings.HasPrefix(n, "PE_")
		m.toDRAM = m.attr.ToDRAM || accessesDRAM(m.ast) ||
			accessesDRAM(m.inter) || accessesDRAM(m.intra)

		d.modules = append(d.modules, m)
	}

	return nil
}

// checkChains enforces that every tunable parameter that is not inferred
// reaches an external parameter by following its parents, and that parents
// are declared before their children.
func (d *Design) checkChains() error {
	for _, pm := range d.params {
		if !pm.Tunable || pm.autoInfer || pm.external {
			continue
		}

		seen := map[string]bool{}
		cur := pm
		for !cur.external {
			if seen[cur.Name] {
				return fmt.Errorf("%w: cycle at %q", ErrBrokenChain, cur.Name)
			}
			seen[cur.Name] = true

			parent, ok := d.byName[cur.parent]
			if !ok {
				return fmt.Errorf("%w: %q", ErrBrokenChain, pm.Name)
			}

			if parent.index > cur.index {
				return fmt.Errorf("%w: %q declared after child %q",
					ErrBrokenChain, parent.Name, cur.Name)
			}

			cur = parent
		}
	}

	return nil
}

func (d *Design) buildChains() {
	used := map[string]bool{}
	for _, ext := range d.config.External {
		chain := []string{ext}
		cur := ext
		for {
			next := ""
			for _, pm := range d.params {
				if pm.Tunable && !pm.autoInfer && !used[pm.Name] && pm.parent == cur {
					next = pm.Name
					break
				}
			}

			if next == "" {
				break
			}

			used[next] = true
			chain = append(chain, next)
			cur = next
		}

		if len(chain) > 1 {
			d.chains = append(d.chains, chain)
		}
	}

	for _, pm := range d.params {
		if !pm.Tunable || pm.autoInfer {
			continue
		}

		for _, div := range pm.Divisors {
			if parent, ok := d.byName[div]; ok && parent.Tunable && !parent.autoInfer {
				d.pairs = append(d.pairs, [2]string{div, pm.Name})
			}
		}
	}
}

func (d *Design) buildArchKeys() {
	for i := range d.pe.dims {
		d.archKeys = append(d.archKeys, fmt.Sprintf("dim%d", i))
	}

	d.archKeys = append(d.archKeys, "simd")

	for _, m := range d.memory {
		d.archKeys = append(d.archKeys, "pack:"+m.name, "mem:"+m.name)
	}
}

// ParamsConfig returns the tunable, external and inferred partitions.
func (d *Design) ParamsConfig() ParamsConfig {
	return d.config
}

// ParamNames returns all parameter names in declaration order.
func (d *Design) ParamNames() []string {
	return d.names
}

// Param returns the descriptor entry of a parameter.
func (d *Design) Param(name string) (ParamDesc, bool) {
	pm, ok := d.byName[name]
	if !ok {
		return ParamDesc{}, false
	}

	return pm.ParamDesc, true
}

// Parent returns the parameter that name is a tiling factor of.
func (d *Design) Parent(name string) string {
	if pm, ok := d.byName[name]; ok {
		return pm.parent
	}

	return ""
}

// SplitChains returns the tiling chains used by mutation. Each chain starts
// at an external parameter and descends through its tiling factors.
func (d *Design) SplitChains() [][]string {
	return d.chains
}

// DivisorPairs returns the (parent, child) tunable pairs that crossover
// copies together.
func (d *Design) DivisorPairs() [][2]string {
	return d.pairs
}

// ArchKeys names the entries of an architecture constraint vector.
func (d *Design) ArchKeys() []string {
	return d.archKeys
}

// Role returns the array name playing a role (cin, w, cout).
func (d *Design) Role(role string) string {
	return d.roles[role]
}

// Modules returns the module names in sorted order.
func (d *Design) Modules() []string {
	names := make([]string, 0, len(d.modules))
	for _, m := range d.modules {
		names = append(names, m.name)
	}

	return names
}

// ModuleAttr returns the flags of a module.
func (d *Design) ModuleAttr(name string) AttrDesc {
	return d.desc.Attr[name]
}

// ModuleArray returns the array a module moves, or "" if unknown.
func (d *Design) ModuleArray(name string) string {
	if m, ok := d.desc.Memory[name]; ok && m.Array != "" {
		return m.Array
	}

	if i := strings.Index(name, "_"); i > 0 {
		return name[:i]
	}

	return ""
}

// ModuleToDRAM reports whether a module talks to off-chip memory.
func (d *Design) ModuleToDRAM(name string) bool {
	for _, m := range d.modules {
		if m.name == name {
			return m.toDRAM
		}
	}

	return false
}

// Descriptor returns the source descriptor.
func (d *Design) Descriptor() *Descriptor {
	return d.desc
}

// DRAMCycles is the fixed off-chip access latency in cycles.
func (d *Design) DRAMCycles() float64 {
	return d.dramCycles
}

// Freq is the clock the latency model assumes.
func (d *Design) Freq() sim.Freq {
	return d.freq
}

// Seconds converts a latency in cycles to wall time at the design clock.
func (d *Design) Seconds(cycles float64) float64 {
	return cycles * float64(d.freq.Period())
}
