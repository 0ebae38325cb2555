// Package workload loads the computations a search maps onto an array.
package workload

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
)

// Kind classifies a workload by its loop nest.
type Kind int

// Workload kinds.
const (
	KindGEMM Kind = iota
	KindConv
	KindPool
)

func (k Kind) String() string {
	switch k {
	case KindGEMM:
		return "gemm"
	case KindConv:
		return "conv"
	case KindPool:
		return "pool"
	}

	return "unknown"
}

const poolTagPrefix = "maxpool_"

// ErrUnmapped is returned when a workload cannot bind the external
// parameters of a design.
var ErrUnmapped = errors.New("workload does not provide design externals")

// Workload is one problem instance, e.g. a GEMM or a convolution layer.
type Workload struct {
	Name   string         `json:"name"`
	Tags   []string       `json:"tags"`
	Params map[string]int `json:"params"`
}

type file struct {
	Workloads []Workload `json:"workloads"`
}

// Load reads a workload file of the form {"workloads": [...]}.
func Load(path string) ([]Workload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading workloads: %w", err)
	}

	ws, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return ws, nil
}

// Parse decodes a workload file.
func Parse(data []byte) ([]Workload, error) {
	var f file
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}

	for i, w := range f.Workloads {
		if w.Name == "" {
			f.Workloads[i].Name = fmt.Sprintf("w%d", i)
		}

		if len(w.Params) == 0 {
			return nil, fmt.Errorf("workload %q has no params", f.Workloads[i].Name)
		}
	}

	return f.Workloads, nil
}

// HasTag reports whether w carries tag.
func (w Workload) HasTag(tag string) bool {
	for _, t := range w.Tags {
		if t == tag {
			return true
		}
	}

	return false
}

// Kind derives the kind from the tags. Untagged workloads are GEMMs.
func (w Workload) Kind() Kind {
	switch {
	case w.HasTag("conv"):
		return KindConv
	case w.PoolStride() > 0:
		return KindPool
	default:
		return KindGEMM
	}
}

// PoolStride returns the stride of a trailing max pooling, or 0.
func (w Workload) PoolStride() int {
	for _, t := range w.Tags {
		if s, ok := strings.CutPrefix(t, poolTagPrefix); ok {
			if v, err := strconv.Atoi(s); err == nil {
				return v
			}
		}
	}

	return 0
}

func (w Workload) get(names ...string) float64 {
	prod := 1.0
	for _, n := range names {
		prod *= float64(w.Params[n])
	}

	return prod
}

// Ops returns the arithmetic operation count (a multiply-accumulate counts
// two).
func (w Workload) Ops() float64 {
	switch w.Kind() {
	case KindConv:
		return 2 * w.get("i", "o", "r", "c", "p", "q")
	case KindPool:
		s := float64(w.PoolStride())
		return w.get("o", "r", "c") * s * s
	default:
		return 2 * w.get("i", "j", "k")
	}
}

// OutDims returns the rows and columns of the output matrix as the next
// layer consumes it.
func (w Workload) OutDims() (int, int) {
	switch w.Kind() {
	case KindConv, KindPool:
		cols := w.Params["r"] * w.Params["c"]
		if s := w.PoolStride(); s > 1 {
			cols /= s * s
		}

		return w.Params["o"], max(cols, 1)
	default:
		return w.Params["i"], w.Params["j"]
	}
}

// Tensor roles.
const (
	RoleCin  = "cin"
	RoleW    = "w"
	RoleCout = "cout"
)

// TensorElems returns the element count of the input (cin), weight (w) or
// output (cout) tensor.
func (w Workload) TensorElems(role string) float64 {
	p := w.Params
	switch w.Kind() {
	case KindConv, KindPool:
		switch role {
		case RoleCin:
			return float64(p["i"] * (p["r"] + p["p"] - 1) * (p["c"] + p["q"] - 1))
		case RoleW:
			return w.get("o", "i", "p", "q")
		case RoleCout:
			rows, cols := w.OutDims()
			return float64(rows * cols)
		}
	default:
		switch role {
		case RoleCin:
			return w.get("i", "k")
		case RoleW:
			return w.get("k", "j")
		case RoleCout:
			return w.get("i", "j")
		}
	}

	return 0
}

// Bind returns the values of the design externals. A convolution bound to
// a GEMM design (externals i, j, k) is lowered with i=o, j=r*c and
// k=i*p*q.
func (w Workload) Bind(externals []string) (map[string]int, error) {
	out := make(map[string]int, len(externals))

	direct := true
	for _, e := range externals {
		v, ok := w.Params[e]
		if !ok {
			direct = false
			break
		}

		out[e] = v
	}

	if direct {
		return out, nil
	}

	if w.Kind() == KindConv {
		gemm := map[string]int{
			"i": w.Params["o"],
			"j": w.Params["r"] * w.Params["c"],
			"k": w.Params["i"] * w.Params["p"] * w.Params["q"],
		}

		for _, e := range externals {
			v, ok := gemm[e]
			if !ok {
				return nil, fmt.Errorf("%w: %s needs %q", ErrUnmapped, w.Name, e)
			}

			out[e] = v
		}

		return out, nil
	}

	return nil, fmt.Errorf("%w: %s needs %v", ErrUnmapped, w.Name, externals)
}

// MaxParams returns the element-wise max of the params of ws.
func MaxParams(ws []Workload) map[string]int {
	out := map[string]int{}
	for _, w := range ws {
		for k, v := range w.Params {
			if v > out[k] {
				out[k] = v
			}
		}
	}

	return out
}

// String renders "name(k=v,...)" with sorted keys.
func (w Workload) String() string {
	keys := make([]string, 0, len(w.Params))
	for k := range w.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(w.Name)
	sb.WriteByte('(')
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, "%s=%d", k, w.Params[k])
	}
	sb.WriteByte(')')

	if len(w.Tags) > 0 {
		sb.WriteByte('[')
		sb.WriteString(strings.Join(w.Tags, ","))
		sb.WriteByte(']')
	}

	return sb.String()
}
