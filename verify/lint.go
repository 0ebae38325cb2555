package verify

import (
	"fmt"
	"sort"

	"github.com/sarchlab/arraytuner/design"
)

// RunLint performs static checks on a descriptor. Registration failures
// are reported as a single STRUCT issue; the remaining checks run on the
// raw descriptor so that every problem shows up in one pass.
func RunLint(desc *design.Descriptor) []Issue {
	var issues []Issue

	if _, err := design.Register(desc); err != nil {
		issues = append(issues, Issue{
			Type:    IssueStruct,
			Message: fmt.Sprintf("Descriptor does not register: %v", err),
			Details: map[string]any{"error": err.Error()},
		})
	}

	issues = append(issues, checkParams(desc)...)
	issues = append(issues, checkModules(desc)...)
	issues = append(issues, checkTiming(desc)...)

	return issues
}

// HasStruct reports whether any issue is structural.
func HasStruct(issues []Issue) bool {
	for _, is := range issues {
		if is.Type == IssueStruct {
			return true
		}
	}

	return false
}

func checkParams(desc *design.Descriptor) []Issue {
	var issues []Issue

	seen := map[string]bool{}
	for _, p := range desc.Params {
		if seen[p.Name] {
			issues = append(issues, Issue{
				Type:    IssueStruct,
				Param:   p.Name,
				Message: fmt.Sprintf("Parameter %s is declared twice", p.Name),
			})
		}
		seen[p.Name] = true
	}

	for _, p := range desc.Params {
		for _, parent := range p.Divisors {
			if !seen[parent] {
				issues = append(issues, Issue{
					Type:    IssueStruct,
					Param:   p.Name,
					Message: fmt.Sprintf("Parameter %s divides unknown parameter %s", p.Name, parent),
					Details: map[string]any{"parent": parent},
				})
			}
		}

		if p.Tunable && p.HasTag(design.TagExternal) {
			issues = append(issues, Issue{
				Type:    IssueStruct,
				Param:   p.Name,
				Message: fmt.Sprintf("Parameter %s is both tunable and external", p.Name),
			})
		}

		if p.Tunable && len(p.Bounds) != 2 && !p.HasTag(design.TagAutoInfer) {
			issues = append(issues, Issue{
				Type:    IssueTiming,
				Param:   p.Name,
				Message: fmt.Sprintf("Tunable parameter %s has no [lb, ub] bounds", p.Name),
			})
		}
	}

	return issues
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return keys
}

func checkModules(desc *design.Descriptor) []Issue {
	var issues []Issue

	for _, name := range sortedKeys(desc.Attr) {
		if _, ok := desc.Latency[name]; !ok {
			issues = append(issues, Issue{
				Type:    IssueStruct,
				Module:  name,
				Message: fmt.Sprintf("Attributes given for module %s which has no latency description", name),
			})
		}
	}

	for _, name := range sortedKeys(desc.Latency) {
		m := desc.Latency[name]
		if m.AST == nil {
			issues = append(issues, Issue{
				Type:    IssueStruct,
				Module:  name,
				Message: fmt.Sprintf("Module %s has no latency AST", name),
			})
		}

		if (m.InterTrans == nil) != (m.IntraTrans == nil) {
			issues = append(issues, Issue{
				Type:    IssueStruct,
				Module:  name,
				Message: fmt.Sprintf("Transfer module %s needs both inter_trans and intra_trans", name),
			})
		}
	}

	for _, name := range sortedKeys(desc.Memory) {
		if _, ok := desc.Latency[name]; !ok {
			issues = append(issues, Issue{
				Type:    IssueTiming,
				Module:  name,
				Message: fmt.Sprintf("Memory module %s costs resources but has no latency description", name),
			})
		}
	}

	return issues
}

func checkTiming(desc *design.Descriptor) []Issue {
	var issues []Issue

	if pe := desc.Compute.PE; pe != nil && len(pe.LatencyHiding) > 0 && !pe.LocalBuffer {
		issues = append(issues, Issue{
			Type:    IssueTiming,
			Message: "Latency hiding expressions are ignored without a PE-local buffer",
		})
	}

	toDRAM := false
	for _, a := range desc.Attr {
		toDRAM = toDRAM || a.ToDRAM
	}

	for _, name := range sortedKeys(desc.Latency) {
		m := desc.Latency[name]

		if m.InterTrans != nil {
			if mem, ok := desc.Memory[name]; ok && !mem.DoubleBuffer {
				issues = append(issues, Issue{
					Type:    IssueTiming,
					Module:  name,
					Message: fmt.Sprintf("Transfer module %s is not double buffered; transfers will not overlap", name),
				})
			}
		}

		for _, n := range []*design.NodeDesc{m.AST, m.InterTrans, m.IntraTrans} {
			w := &walker{}
			w.walk(n, false)

			toDRAM = toDRAM || w.dram > 0
			if w.uncoalesced > 0 {
				issues = append(issues, Issue{
					Type:    IssueTiming,
					Module:  name,
					Message: fmt.Sprintf("Module %s accesses DRAM without a coalesce mark", name),
					Details: map[string]any{"statements": w.uncoalesced},
				})
			}

			if w.unknown > 0 {
				issues = append(issues, Issue{
					Type:    IssueStruct,
					Module:  name,
					Message: fmt.Sprintf("Module %s has %d nodes of unknown type", name, w.unknown),
				})
			}
		}
	}

	if !toDRAM {
		issues = append(issues, Issue{
			Type:    IssueTiming,
			Message: "No module reaches DRAM; off-chip figures will be zero",
		})
	}

	return issues
}

type walker struct {
	dram        int
	uncoalesced int
	unknown     int
}

func (w *walker) walk(n *design.NodeDesc, coalesced bool) {
	if n == nil {
		return
	}

	switch n.Type {
	case "user":
		if n.DRAM {
			w.dram++
			if !coalesced {
				w.uncoalesced++
			}
		}
	case "mark":
		coalesced = coalesced || n.Mark == design.MarkCoalesce
	case "block", "for", "loop", "if", "array_tile":
	default:
		w.unknown++
	}

	for _, c := range n.Children {
		w.walk(c, coalesced)
	}

	w.walk(n.Child, coalesced)
	w.walk(n.Then, coalesced)
	w.walk(n.Else, coalesced)
}
