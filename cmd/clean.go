package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/nguyenvanduocit/sitetrans/pkg/site"
)

var Clean = &cobra.Command{
	Use:   "clean [sitePath]",
	Short: "Clean the html files",
	Args:  cobra.ExactArgs(1),
	RunE:  runCleaner,
}

type CleaningOperation func(string) string

func init() {
	Clean.Flags().Int("workers", runtime.NumCPU(), "Number of worker goroutines")
}

func runCleaner(cmd *cobra.Command, args []string) error {
	root := args[0]

	pages, err := site.Discover(root)
	if err != nil {
		return fmt.Errorf("discovering pages: %w", err)
	}

	workers, _ := cmd.Flags().GetInt("workers")

	cleaningOps := []CleaningOperation{
		removeEmptyAnchor,
		removeEmptyDiv,
		removeTrackingScripts,
	}

	return site.Process(cmd.Context(), pages, workers, func(ctx context.Context, path string) error {
		return cleanFile(ctx, path, cleaningOps)
	})
}

func cleanFile(_ context.Context, filePath string, cleaningOps []CleaningOperation) error {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read file %s: %w", filePath, err)
	}

	cleanedContent := string(content)
	for _, op := range cleaningOps {
		cleanedContent = op(cleanedContent)
	}

	if cleanedContent != string(content) {
		err = os.WriteFile(filePath, []byte(cleanedContent), 0644)
		if err != nil {
			return fmt.Errorf("failed to write file %s: %w", filePath, err)
		}
		fmt.Printf("Cleaned file: %s\n", filepath.Base(filePath))
	} else {
		fmt.Printf("No changes needed for file: %s\n", filepath.Base(filePath))
	}

	return nil
}

func removeEmptyAnchor(htmlContent string) string {
	regexPattern := regexp.MustCompile(`<a[^>]*(?:/>|>[\s\n]*</a>)`)
	return regexPattern.ReplaceAllString(htmlContent, "")
}

func removeEmptyDiv(htmlContent string) string {
	regexPattern := regexp.MustCompile(`<div[^>]*>[\s\n]*</div>`)
	return regexPattern.ReplaceAllString(htmlContent, "")
}

func removeTrackingScripts(htmlContent string) string {
	regexPattern := regexp.MustCompile(`(?is)<script[^>]*src="[^"]*(?:googletagmanager|google-analytics|gtag|hotjar|segment|mixpanel)[^"]*"[^>]*>\s*</script>`)
	return regexPattern.ReplaceAllString(htmlContent, "")
}
