// Package verify lints accelerator descriptors before they are searched.
//
// Issues come in two kinds:
//
//   - STRUCT issues make the descriptor unusable: it does not register, or
//     names point at nothing. A run must not search such a design.
//   - TIMING issues flag descriptors that register fine but whose latency
//     model is likely not what the author meant, such as transfer modules
//     that never overlap with compute or DRAM accesses without bursts.
//
// # Usage Example
//
//	desc, _ := design.LoadDescriptor("kernel3.json")
//	report := verify.GenerateReport(desc)
//	report.WriteReport(os.Stdout)
//	if report.HasStruct() {
//	    return errors.New("descriptor has structural issues")
//	}
package verify

// IssueType categorizes lint issues
type IssueType string

const (
	IssueStruct IssueType = "STRUCT" // The descriptor cannot be used
	IssueTiming IssueType = "TIMING" // The latency model is suspicious
)

// Issue represents a single lint issue
type Issue struct {
	Type    IssueType      // STRUCT or TIMING
	Module  string         // Module name, empty if not applicable
	Param   string         // Parameter name, empty if not applicable
	Message string         // Human-readable description
	Details map[string]any // Additional structured data
}
