package main

import (
	"fmt"
	"io"
	"sort"

	"agriscan/internal/disease"
	"agriscan/internal/dto"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print database statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		mng, closeAll, err := openManager()
		if err != nil {
			return err
		}
		defer closeAll()

		stats, err := mng.Stats(cmd.Context())
		if err != nil {
			return err
		}
		printStats(cmd.OutOrStdout(), stats)
		return nil
	},
}

var diseasesFormat string

var diseasesCmd = &cobra.Command{
	Use:   "diseases",
	Short: "Print the disease catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		return printDiseases(cmd.OutOrStdout(), disease.Default().All(), diseasesFormat)
	},
}

func init() {
	diseasesCmd.Flags().StringVar(&diseasesFormat, "format", "table", "output format: table or yaml")
}

func printStats(w io.Writer, stats *dto.Stats) {
	fmt.Fprintf(w, "📊 Database Statistics:\n")
	fmt.Fprintf(w, "   Total images: %d (%s)\n", stats.TotalImages, stats.TotalSize)
	fmt.Fprintf(w, "   Analyzed: %d\n", stats.AnalyzedImages)
	fmt.Fprintf(w, "   Pending: %d\n", stats.PendingImages)
	fmt.Fprintf(w, "   Known disease classes: %d\n", stats.DiseaseClasses)

	if len(stats.MainCounts) == 0 {
		return
	}
	classes := make([]string, 0, len(stats.MainCounts))
	for class := range stats.MainCounts {
		classes = append(classes, class)
	}
	sort.Strings(classes)
	fmt.Fprintf(w, "   Main prediction per class:\n")
	for _, class := range classes {
		fmt.Fprintf(w, "      - %s: %d images\n", class, stats.MainCounts[class])
	}
}

func printDiseases(w io.Writer, entries []disease.Info, format string) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(entries); err != nil {
			return fmt.Errorf("failed to encode catalog: %w", err)
		}
		return enc.Close()
	case "table":
		for _, d := range entries {
			fmt.Fprintf(w, "%s %-28s %-8s %s\n", d.Icon, d.Class, d.Severity, d.Label)
		}
		return nil
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}
