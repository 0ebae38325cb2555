package design

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
)

// Resource is an FPGA resource usage or budget.
type Resource struct {
	DSP     float64 `json:"DSP" yaml:"DSP"`
	BRAM18K float64 `json:"BRAM18K" yaml:"BRAM18K"`
	URAM    float64 `json:"URAM" yaml:"URAM"`
}

// Add returns r + o.
func (r Resource) Add(o Resource) Resource {
	return Resource{DSP: r.DSP + o.DSP, BRAM18K: r.BRAM18K + o.BRAM18K, URAM: r.URAM + o.URAM}
}

// Max returns the element-wise maximum of r and o.
func (r Resource) Max(o Resource) Resource {
	return Resource{
		DSP:     math.Max(r.DSP, o.DSP),
		BRAM18K: math.Max(r.BRAM18K, o.BRAM18K),
		URAM:    math.Max(r.URAM, o.URAM),
	}
}

// MemoryUsage is the on-chip memory of one buffer module.
type MemoryUsage struct {
	Name    string
	Array   string
	BufSize float64
	Pack    float64
	Num     float64
	// UnitBRAM is the BRAM18K of one instance, double buffering included.
	UnitBRAM float64
	BRAM18K  float64
	URAM     float64
	Elided   bool
}

// ResourceMeta carries the breakdown of a resource estimate.
type ResourceMeta struct {
	PENum   float64
	Unroll  float64
	Modules []MemoryUsage
}

// BRAMUnits returns the BRAM18K blocks needed for a buffer of depth
// elements of eleSize bytes, packed pack elements per word.
func BRAMUnits(eleSize int, pack, depth float64) float64 {
	if depth <= 0 {
		return 0
	}

	pack = math.Max(pack, 1)
	width := math.Ceil(float64(eleSize) * 8 * pack / 36)

	return width * math.Ceil(depth/pack/512)
}

// URAMUnits returns the URAM blocks needed for the same buffer.
func URAMUnits(eleSize int, pack, depth float64) float64 {
	if depth <= 0 {
		return 0
	}

	pack = math.Max(pack, 1)
	width := math.Ceil(float64(eleSize) * 8 * pack / 72)

	return width * math.Ceil(depth/pack/4096)
}

var drainName = regexp.MustCompile(`^(.*)_drain_IO_L(\d+)_out$`)

// drainConsumer returns the next-level drain module of a drain module.
func drainConsumer(name string) (string, bool) {
	m := drainName.FindStringSubmatch(name)
	if m == nil {
		return "", false
	}

	level, err := strconv.Atoi(m[2])
	if err != nil {
		return "", false
	}

	return fmt.Sprintf("%s_drain_IO_L%d_out", m[1], level+1), true
}

// EstResource estimates DSP, BRAM18K and URAM usage of p.
func (d *Design) EstResource(p Params) (Resource, ResourceMeta) {
	vars := d.env(p)

	meta := ResourceMeta{
		PENum:  math.Ceil(d.pe.num.eval(vars)),
		Unroll: d.pe.unroll.evalOr(vars, 1),
	}

	res := Resource{DSP: meta.PENum * meta.Unroll * floatDSPCost}

	usage := make(map[string]MemoryUsage, len(d.memory))
	for _, m := range d.memory {
		u := MemoryUsage{
			Name:    m.name,
			Array:   m.Array,
			BufSize: math.Ceil(m.bufSize.eval(vars)),
			Pack:    m.pack.evalOr(vars, 1),
			Num:     math.Ceil(m.num.evalOr(vars, 1)),
		}

		if m.URAM {
			u.URAM = URAMUnits(m.EleSize, u.Pack, u.BufSize)
		} else {
			u.UnitBRAM = BRAMUnits(m.EleSize, u.Pack, u.BufSize)
		}

		if m.DoubleBuffer {
			u.UnitBRAM *= 2
			u.URAM *= 2
		}

		u.BRAM18K = u.UnitBRAM * u.Num
		u.URAM *= u.Num
		usage[m.name] = u
	}

	for _, m := range d.memory {
		u := usage[m.name]
		if consumer, ok := drainConsumer(m.name); ok {
			if c, ok := usage[consumer]; ok && c.BufSize == u.BufSize && c.Num == u.Num {
				u.Elided = true
			}
		}

		if !u.Elided {
			res.BRAM18K += u.BRAM18K
			res.URAM += u.URAM
		}

		meta.Modules = append(meta.Modules, u)
	}

	return res, meta
}
