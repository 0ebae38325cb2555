package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/sarchlab/arraytuner/design"
	"github.com/sarchlab/arraytuner/verify"
)

var lintCmd = cobra.Command{
	Use:   "lint [flags] <design.json>...",
	Short: "Checks design descriptors for structural and timing issues",
	Args:  cobra.MinimumNArgs(1),
	RunE:  lintRun,

	DisableFlagsInUseLine: true,
}

var lintFlags = struct {
	report string
}{}

func initLint() {
	rootCmd.AddCommand(&lintCmd)
	lintCmd.Flags().StringVar(&lintFlags.report, "report", "", "also write the report of the last design to a file")
}

func lintRun(cmd *cobra.Command, args []string) error {
	failed := false

	for _, path := range args {
		desc, err := design.LoadDescriptor(path)
		if err != nil {
			return err
		}

		rep := verify.GenerateReport(desc)
		rep.WriteReport(cmd.OutOrStdout())

		if lintFlags.report != "" {
			if err := rep.SaveReportToFile(lintFlags.report); err != nil {
				return err
			}
		}

		failed = failed || rep.HasStruct()
	}

	if failed {
		return errors.New("structural issues found")
	}

	return nil
}
