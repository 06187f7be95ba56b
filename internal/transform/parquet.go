package transform

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"

	"github.com/JakeFAU/dolma-harvest/internal/manifest"
)

// innerURLRow is the artifact schema: the inner URL extracted from each
// downloaded document plus its registered domain (nil when the domain
// cannot be derived).
type innerURLRow struct {
	URL    string  `parquet:"name=url, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Domain *string `parquet:"name=domain, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL, encoding=PLAIN_DICTIONARY"`
}

// docLine mirrors the relevant slice of one NDJSON document record.
type docLine struct {
	Metadata struct {
		URL string `json:"url"`
	} `json:"metadata"`
}

// Parquet is the in-process transformer. It reads each downloaded file as
// gzipped newline-delimited JSON, extracts metadata.url from every record,
// and writes the batch artifact as a two-column parquet file. Manifest
// entries with no local file are skipped: absence means the fetch failed,
// which is tolerated by design.
type Parquet struct {
	logger *zap.Logger
}

// NewParquet builds the in-process transformer.
func NewParquet(logger *zap.Logger) *Parquet {
	return &Parquet{logger: logger}
}

// Transform produces the artifact. An empty manifest still yields a valid
// (zero-row) parquet file. A half-written artifact is removed on error.
func (t *Parquet) Transform(ctx context.Context, req Request) (string, error) {
	entries, err := manifest.Read(req.ManifestPath)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(req.OutputDir, 0o750); err != nil {
		return "", fmt.Errorf("create output dir %s: %w", req.OutputDir, err)
	}
	artifactPath := artifactFor(req)

	if err := t.write(ctx, artifactPath, entries); err != nil {
		// Never leave a half-written artifact behind to be mistaken for
		// a successful transform on a later inspection.
		os.Remove(artifactPath)
		return "", fmt.Errorf("transform batch %d: %w", req.BatchNum, err)
	}

	info, err := os.Stat(artifactPath)
	if err != nil || info.Size() == 0 {
		return "", fmt.Errorf("batch %d artifact %s: %w", req.BatchNum, artifactPath, ErrArtifactMissing)
	}
	return artifactPath, nil
}

func (t *Parquet) write(ctx context.Context, artifactPath string, entries []manifest.Entry) error {
	fw, err := local.NewLocalFileWriter(artifactPath)
	if err != nil {
		return fmt.Errorf("create artifact %s: %w", artifactPath, err)
	}

	pw, err := writer.NewParquetWriter(fw, new(innerURLRow), 2)
	if err != nil {
		fw.Close()
		return fmt.Errorf("create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	rows := 0
	for _, entry := range entries {
		if ctx.Err() != nil {
			pw.WriteStop()
			fw.Close()
			return ctx.Err()
		}
		n, err := t.appendFromFile(pw, entry)
		if err != nil {
			pw.WriteStop()
			fw.Close()
			return err
		}
		rows += n
	}

	if err := pw.WriteStop(); err != nil {
		fw.Close()
		return fmt.Errorf("finalize parquet: %w", err)
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("close artifact %s: %w", artifactPath, err)
	}

	t.logger.Info("artifact written",
		zap.String("artifact", artifactPath),
		zap.Int("rows", rows),
		zap.Int("manifest_entries", len(entries)),
	)
	return nil
}

// appendFromFile streams one downloaded document file into the writer,
// returning the number of rows appended. A missing local file is skipped.
func (t *Parquet) appendFromFile(pw *writer.ParquetWriter, entry manifest.Entry) (int, error) {
	f, err := os.Open(entry.LocalPath)
	if err != nil {
		if os.IsNotExist(err) {
			t.logger.Debug("no downloaded content for entry, skipping",
				zap.String("url", entry.URL),
			)
			return 0, nil
		}
		return 0, fmt.Errorf("open %s: %w", entry.LocalPath, err)
	}
	defer f.Close()

	var reader io.Reader = f
	gz, err := gzip.NewReader(f)
	switch {
	case err == nil:
		defer gz.Close()
		reader = gz
	case errors.Is(err, gzip.ErrHeader):
		// Some sources serve the documents uncompressed; rewind and read
		// the file as plain NDJSON.
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return 0, fmt.Errorf("rewind %s: %w", entry.LocalPath, err)
		}
	default:
		return 0, fmt.Errorf("read gzip %s: %w", entry.LocalPath, err)
	}

	rows := 0
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var doc docLine
		if err := json.Unmarshal([]byte(line), &doc); err != nil {
			t.logger.Warn("skipping unparseable document line",
				zap.String("file", entry.LocalPath),
				zap.Error(err),
			)
			continue
		}
		if doc.Metadata.URL == "" {
			continue
		}
		row := innerURLRow{URL: doc.Metadata.URL, Domain: registeredDomain(doc.Metadata.URL)}
		if err := pw.Write(row); err != nil {
			return rows, fmt.Errorf("append row from %s: %w", entry.LocalPath, err)
		}
		rows++
	}
	if err := scanner.Err(); err != nil {
		return rows, fmt.Errorf("scan %s: %w", entry.LocalPath, err)
	}
	return rows, nil
}

// registeredDomain extracts the domain+suffix pair from a URL, or nil when
// it cannot be derived.
func registeredDomain(raw string) *string {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return nil
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(strings.ToLower(u.Hostname()))
	if err != nil {
		return nil
	}
	return &domain
}
