// Package batch partitions source URL lists into fixed-size, numbered
// batch files and enumerates existing batches in numeric order.
package batch

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// batchFilePattern matches download_urls_batch_<5-digit>.txt and captures
// the numeric suffix.
var batchFilePattern = regexp.MustCompile(`^download_urls_batch_(\d{5})\.txt$`)

// Batch identifies one numbered slice of a source's URL list.
type Batch struct {
	Source string
	Number int
	Path   string
}

// FileName returns the canonical batch file name for a batch number.
func FileName(number int) string {
	return fmt.Sprintf("download_urls_batch_%05d.txt", number)
}

// LoadURLList reads a source list file, one URL per line, skipping blank
// lines.
func LoadURLList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open url list %s: %w", path, err)
	}
	defer f.Close()

	var urls []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read url list %s: %w", path, err)
	}
	return urls, nil
}

// Split partitions urls into batch files of at most size entries under dir,
// numbered contiguously from 1. Only URLs matching filter are kept; a nil
// filter keeps everything.
//
// Split is idempotent at the source level: if any batch file already exists
// under dir, the existing partition is authoritative and Split returns it
// without re-splitting, even if the upstream list changed.
func Split(logger *zap.Logger, dir, source string, urls []string, filter *regexp.Regexp, size int) ([]Batch, error) {
	if size <= 0 {
		return nil, fmt.Errorf("batch size must be > 0, got %d", size)
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create batch dir %s: %w", dir, err)
	}

	existing, err := List(logger, dir, source)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		logger.Info("batch files already exist, skipping split",
			zap.String("source", source),
			zap.Int("batches", len(existing)),
		)
		return existing, nil
	}

	var matching []string
	for _, u := range urls {
		if filter == nil || filter.MatchString(u) {
			matching = append(matching, u)
		}
	}
	if len(matching) == 0 {
		logger.Info("no matching urls for source, nothing to batch",
			zap.String("source", source),
		)
		return nil, nil
	}

	var batches []Batch
	for start, number := 0, 1; start < len(matching); start, number = start+size, number+1 {
		end := start + size
		if end > len(matching) {
			end = len(matching)
		}
		path := filepath.Join(dir, FileName(number))
		if err := writeBatchFile(path, matching[start:end]); err != nil {
			return nil, err
		}
		batches = append(batches, Batch{Source: source, Number: number, Path: path})
	}

	logger.Info("source list split into batches",
		zap.String("source", source),
		zap.Int("urls", len(matching)),
		zap.Int("batches", len(batches)),
	)
	return batches, nil
}

func writeBatchFile(path string, urls []string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o640)
	if err != nil {
		return fmt.Errorf("create batch file %s: %w", path, err)
	}
	w := bufio.NewWriter(f)
	for _, u := range urls {
		if _, err := w.WriteString(u + "\n"); err != nil {
			f.Close()
			return fmt.Errorf("write batch file %s: %w", path, err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flush batch file %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close batch file %s: %w", path, err)
	}
	return nil
}

// List enumerates existing batch files under dir in ascending numeric order.
// Files matching the batch naming scheme but with an unparseable number are
// logged as warnings and skipped.
func List(logger *zap.Logger, dir, source string) ([]Batch, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read batch dir %s: %w", dir, err)
	}

	var batches []Batch
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		m := batchFilePattern.FindStringSubmatch(name)
		if m == nil {
			if strings.HasPrefix(name, "download_urls_batch_") {
				logger.Warn("skipping malformed batch file name",
					zap.String("source", source),
					zap.String("file", name),
				)
			}
			continue
		}
		number, err := strconv.Atoi(m[1])
		if err != nil || number < 1 {
			logger.Warn("skipping batch file with unparseable number",
				zap.String("source", source),
				zap.String("file", name),
			)
			continue
		}
		batches = append(batches, Batch{
			Source: source,
			Number: number,
			Path:   filepath.Join(dir, name),
		})
	}

	// Numeric sort, not lexicographic; the zero padding keeps the two
	// aligned but the comparator is explicit regardless.
	sort.Slice(batches, func(i, j int) bool { return batches[i].Number < batches[j].Number })
	return batches, nil
}

// URLs reads the batch file's non-blank lines in order.
func (b Batch) URLs() ([]string, error) {
	return LoadURLList(b.Path)
}
