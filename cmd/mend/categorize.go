package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mendgate/internal/safety"
)

var (
	diffPath        string
	categorizeFiles []string
)

var categorizeCmd = &cobra.Command{
	Use:   "categorize",
	Short: "Classify a diff's safety category",
	Long: `Reads a unified diff and reports its safety category (safe,
moderate, risky) along with the reasons, using the protected paths from
the configuration.`,
	RunE: runCategorize,
}

func init() {
	categorizeCmd.Flags().StringVar(&diffPath, "diff", "", "path to a unified diff file (required)")
	categorizeCmd.Flags().StringSliceVar(&categorizeFiles, "file", nil, "affected file not visible in the diff headers (repeatable)")
	_ = categorizeCmd.MarkFlagRequired("diff")
}

func runCategorize(cmd *cobra.Command, args []string) error {
	diffText, err := os.ReadFile(diffPath)
	if err != nil {
		return fmt.Errorf("failed to read diff: %w", err)
	}

	categorizer := safety.New(cfg.Safety.ProtectedPaths)
	assessment := categorizer.Categorize(string(diffText), categorizeFiles)

	out, err := json.MarshalIndent(struct {
		Category       string   `json:"category"`
		Reasons        []string `json:"reasons"`
		ProtectedPaths []string `json:"protected_paths_matched,omitempty"`
		LinesChanged   int      `json:"lines_changed"`
	}{
		Category:       string(assessment.Category),
		Reasons:        assessment.Reasons,
		ProtectedPaths: assessment.ProtectedPathsMatched,
		LinesChanged:   safety.CountChangedLines(string(diffText)),
	}, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
