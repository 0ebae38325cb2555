package verify

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/sarchlab/arraytuner/design"
)

// Report is the lint result of one descriptor.
type Report struct {
	Design       string
	Issues       []Issue
	StructIssues []Issue
	TimingIssues []Issue
}

// GenerateReport lints desc and sorts the issues by type.
func GenerateReport(desc *design.Descriptor) *Report {
	r := &Report{Design: desc.Name, Issues: RunLint(desc)}

	for _, issue := range r.Issues {
		if issue.Type == IssueStruct {
			r.StructIssues = append(r.StructIssues, issue)
		} else {
			r.TimingIssues = append(r.TimingIssues, issue)
		}
	}

	return r
}

// HasStruct reports whether the descriptor is unusable.
func (r *Report) HasStruct() bool {
	return len(r.StructIssues) > 0
}

// WriteReport writes a formatted report to a writer
func (r *Report) WriteReport(w io.Writer) {
	separator := strings.Repeat("=", 60)

	fmt.Fprintln(w, separator)
	fmt.Fprintf(w, "DESCRIPTOR LINT REPORT: %s\n", r.Design)
	fmt.Fprintln(w, separator)

	if len(r.Issues) == 0 {
		fmt.Fprintln(w, "No lint issues found.")
		return
	}

	t := table.NewWriter()
	t.SetTitle(fmt.Sprintf("%d issues (%d STRUCT, %d TIMING)",
		len(r.Issues), len(r.StructIssues), len(r.TimingIssues)))
	t.AppendHeader(table.Row{"Type", "Module", "Param", "Message"})

	for _, group := range [][]Issue{r.StructIssues, r.TimingIssues} {
		for _, issue := range group {
			t.AppendRow(table.Row{issue.Type, issue.Module, issue.Param, issue.Message})
		}
	}

	fmt.Fprintln(w, t.Render())

	if r.HasStruct() {
		fmt.Fprintln(w, "The descriptor cannot be searched until the STRUCT issues are fixed.")
	}
}

// SaveReportToFile saves the report to a file
func (r *Report) SaveReportToFile(filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer file.Close()

	r.WriteReport(file)

	return nil
}
