package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/dolma-harvest/internal/batch"
)

// newSplitCmd creates the 'split' subcommand, which partitions source URL
// lists into batch files without fetching anything. Useful for inspecting
// the partition before committing to a long run, and harmless to repeat:
// an existing partition is never re-split.
func newSplitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "split",
		Short: "Partition source URL lists into batch files only",
		RunE:  runSplit,
	}
}

func runSplit(_ *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck // stderr sync failure is unactionable

	var filter *regexp.Regexp
	if cfg.Pipeline.URLFilter != "" {
		filter = regexp.MustCompile(cfg.Pipeline.URLFilter)
	}

	sources := cfg.Pipeline.Sources
	if len(sources) == 0 {
		discovered, err := discoverSourceNames(cfg.Pipeline.SourceDir)
		if err != nil {
			return err
		}
		sources = discovered
	}

	for _, source := range sources {
		urls, err := batch.LoadURLList(filepath.Join(cfg.Pipeline.SourceDir, source+".txt"))
		if err != nil {
			return err
		}
		dir := filepath.Join(cfg.Pipeline.WorkDir, "batches", source)
		if _, err := batch.Split(logger, dir, source, urls, filter, cfg.Batch.Size); err != nil {
			return err
		}
	}
	return nil
}

// discoverSourceNames lists every *.txt source list under sourceDir.
func discoverSourceNames(sourceDir string) ([]string, error) {
	entries, err := os.ReadDir(sourceDir)
	if err != nil {
		return nil, fmt.Errorf("read source dir %s: %w", sourceDir, err)
	}
	var sources []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".txt") {
			continue
		}
		sources = append(sources, strings.TrimSuffix(e.Name(), ".txt"))
	}
	sort.Strings(sources)
	return sources, nil
}
