package design

import (
	"encoding/json"
	"fmt"
	"os"
)

// Param tags.
const (
	TagExternal   = "external"
	TagPowerOfTwo = "power_of_two"
	TagAutoInfer  = "auto_infer"
)

// Descriptor is the declarative description of an accelerator template, as
// emitted by the code generator.
type Descriptor struct {
	Name      string                `json:"name"`
	Params    []ParamDesc           `json:"params"`
	Memory    map[string]MemoryDesc `json:"memory"`
	Compute   ComputeDesc           `json:"compute"`
	Latency   map[string]ModuleAST  `json:"latency"`
	IO        map[string]IODesc     `json:"io"`
	Attr      map[string]AttrDesc   `json:"attr"`
	Roles     map[string]string     `json:"roles"`
	Constants map[string]float64    `json:"constants"`
}

// ParamDesc describes one parameter of the template.
type ParamDesc struct {
	Name     string    `json:"name"`
	Tunable  bool      `json:"tunable"`
	Bounds   []ExprSrc `json:"bounds"`
	Tags     []string  `json:"tags"`
	Divisors []string  `json:"divisors"`
}

// HasTag reports whether the parameter carries the tag.
func (p ParamDesc) HasTag(tag string) bool {
	for _, t := range p.Tags {
		if t == tag {
			return true
		}
	}

	return false
}

// MemoryDesc describes an on-chip buffer module.
type MemoryDesc struct {
	EleSize       int     `json:"ele_size"`
	BufSize       ExprSrc `json:"buf_size"`
	Num           ExprSrc `json:"num"`
	DoubleBuffer  bool    `json:"double_buffer"`
	Array         string  `json:"array"`
	DataPack      ExprSrc `json:"data_pack_factor"`
	DataPackInter ExprSrc `json:"data_pack_factor_inter"`
	URAM          bool    `json:"uram"`
}

// ComputeDesc holds the compute description. Only systolic PEs are
// supported.
type ComputeDesc struct {
	PE *PEDesc `json:"PE"`
}

// PEDesc describes the processing elements.
type PEDesc struct {
	Num           ExprSrc   `json:"num"`
	UnrollFactor  ExprSrc   `json:"unroll_factor"`
	EleType       string    `json:"ele_type"`
	Dims          []ExprSrc `json:"dims"`
	LatencyHiding []ExprSrc `json:"latency_hiding"`
	LocalBuffer   bool      `json:"local_buffer"`
}

// ModuleAST is the latency description of one hardware module. Transfer
// modules carry separate sub-trees for the inter- and intra-module
// transfers.
type ModuleAST struct {
	AST        *NodeDesc `json:"ast"`
	InterTrans *NodeDesc `json:"inter_trans"`
	IntraTrans *NodeDesc `json:"intra_trans"`
}

// IODesc describes the fan-out of an I/O module.
type IODesc struct {
	Dims     []ExprSrc `json:"dims"`
	DataPack ExprSrc   `json:"data_pack"`
	EleSize  int       `json:"ele_size"`
}

// AttrDesc carries per-module flags.
type AttrDesc struct {
	In        bool `json:"in"`
	Out       bool `json:"out"`
	ToDRAM    bool `json:"to_dram"`
	ToPE      bool `json:"to_pe"`
	Serialize bool `json:"serialize"`
	Drain     bool `json:"drain"`
}

// NodeDesc is the JSON form of a latency AST node.
type NodeDesc struct {
	Type     string      `json:"type"`
	Children []*NodeDesc `json:"children,omitempty"`
	Child    *NodeDesc   `json:"child,omitempty"`
	Iterator string      `json:"iterator,omitempty"`
	Bounds   []ExprSrc   `json:"bounds,omitempty"`
	Mark     string      `json:"mark,omitempty"`
	BurstLen ExprSrc     `json:"burst_len,omitempty"`
	Call     string      `json:"call,omitempty"`
	DRAM     bool        `json:"dram,omitempty"`
	II       ExprSrc     `json:"ii,omitempty"`
	Depth    ExprSrc     `json:"depth,omitempty"`
	Then     *NodeDesc   `json:"then,omitempty"`
	Else     *NodeDesc   `json:"else,omitempty"`
}

// LoadDescriptor reads a descriptor from a JSON file.
func LoadDescriptor(path string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading design file: %w", err)
	}

	return ParseDescriptor(data)
}

// ParseDescriptor decodes a descriptor from JSON bytes.
func ParseDescriptor(data []byte) (*Descriptor, error) {
	var d Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parsing design JSON: %w", err)
	}

	return &d, nil
}

// Load reads and registers a design in one step.
func Load(path string) (*Design, error) {
	desc, err := LoadDescriptor(path)
	if err != nil {
		return nil, err
	}

	d, err := Register(desc)
	if err != nil {
		return nil, fmt.Errorf("registering %s: %w", path, err)
	}

	return d, nil
}
