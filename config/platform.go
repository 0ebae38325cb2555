package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sarchlab/arraytuner/design"
)

// Constraint is the resource ceiling of a search run.
type Constraint struct {
	DSP     float64 `json:"DSP" yaml:"DSP"`
	BRAM18K float64 `json:"BRAM18K" yaml:"BRAM18K"`
	URAM    float64 `json:"URAM" yaml:"URAM"`
}

// Fits reports whether r is within the ceiling on every resource.
func (c Constraint) Fits(r design.Resource) bool {
	return r.DSP <= c.DSP && r.BRAM18K <= c.BRAM18K && r.URAM <= c.URAM
}

// Scale returns c with every resource multiplied by f.
func (c Constraint) Scale(f float64) Constraint {
	return Constraint{DSP: c.DSP * f, BRAM18K: c.BRAM18K * f, URAM: c.URAM * f}
}

// Sub returns the budget left after using r.
func (c Constraint) Sub(r design.Resource) Constraint {
	return Constraint{DSP: c.DSP - r.DSP, BRAM18K: c.BRAM18K - r.BRAM18K, URAM: c.URAM - r.URAM}
}

// Add returns c + o.
func (c Constraint) Add(o Constraint) Constraint {
	return Constraint{DSP: c.DSP + o.DSP, BRAM18K: c.BRAM18K + o.BRAM18K, URAM: c.URAM + o.URAM}
}

// Resource returns c as a resource vector.
func (c Constraint) Resource() design.Resource {
	return design.Resource{DSP: c.DSP, BRAM18K: c.BRAM18K, URAM: c.URAM}
}

func (c Constraint) String() string {
	return fmt.Sprintf("DSP=%g,BRAM18K=%g,URAM=%g", c.DSP, c.BRAM18K, c.URAM)
}

type platformEntry struct {
	Total float64 `json:"total"`
	Ratio float64 `json:"ratio"`
}

// PlatformBuilder builds the constraint of an FPGA platform from its total
// resources and the usable ratio.
type PlatformBuilder struct {
	dsp, bram, uram platformEntry
}

// WithDSP sets the DSP slices of the platform.
func (b PlatformBuilder) WithDSP(total float64) PlatformBuilder {
	b.dsp.Total = total
	return b
}

// WithBRAM sets the BRAM18K blocks of the platform.
func (b PlatformBuilder) WithBRAM(total float64) PlatformBuilder {
	b.bram.Total = total
	return b
}

// WithURAM sets the URAM blocks of the platform.
func (b PlatformBuilder) WithURAM(total float64) PlatformBuilder {
	b.uram.Total = total
	return b
}

// WithRatio sets the usable ratio of every resource.
func (b PlatformBuilder) WithRatio(ratio float64) PlatformBuilder {
	b.dsp.Ratio, b.bram.Ratio, b.uram.Ratio = ratio, ratio, ratio
	return b
}

// Build returns total*ratio for every resource. A zero ratio means 1.
func (b PlatformBuilder) Build() Constraint {
	return Constraint{
		DSP:     b.dsp.effective(),
		BRAM18K: b.bram.effective(),
		URAM:    b.uram.effective(),
	}
}

func (e platformEntry) effective() float64 {
	if e.Ratio == 0 {
		return e.Total
	}

	return e.Total * e.Ratio
}

// LoadPlatform reads a platform file mapping each resource to
// {"total": N, "ratio": r}.
func LoadPlatform(path string) (Constraint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Constraint{}, fmt.Errorf("reading platform: %w", err)
	}

	var entries map[string]platformEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return Constraint{}, fmt.Errorf("%s: %w", path, err)
	}

	b := PlatformBuilder{}
	for name, e := range entries {
		switch name {
		case "DSP":
			b.dsp = e
		case "BRAM18K":
			b.bram = e
		case "URAM":
			b.uram = e
		default:
			return Constraint{}, fmt.Errorf("%s: unknown resource %q", path, name)
		}
	}

	return b.Build(), nil
}
