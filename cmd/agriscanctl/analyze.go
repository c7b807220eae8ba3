package main

import (
	"fmt"

	"agriscan/internal/service/analysis"

	"github.com/spf13/cobra"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [id...]",
	Short: "Send pending images to the detector",
	Long: `Without arguments every pending image is analyzed. With IDs only the
pending ones among them are; the rest are reported as skipped.`,
	RunE: runAnalyze,
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	mng, closeAll, err := openManager()
	if err != nil {
		return err
	}
	defer closeAll()

	var report analysis.BatchReport
	if len(args) == 0 {
		report, err = mng.GetAnalyzer().AnalyzePending(cmd.Context())
	} else {
		report, err = mng.GetAnalyzer().AnalyzeSelected(cmd.Context(), args)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "📊 Requested: %d, analyzed: %d, skipped: %d, discarded: %d, failed: %d\n",
		report.Requested, report.Analyzed, report.Skipped, report.Discarded, len(report.Failed))
	for _, f := range report.Failed {
		fmt.Fprintf(out, "   ❌ %s: %s\n", f.ID, f.Error)
	}
	if len(report.Failed) > 0 {
		return fmt.Errorf("%d analyses failed", len(report.Failed))
	}
	return nil
}
