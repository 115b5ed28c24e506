package reliability

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	archivePrefix   = "sharpescan-results-"
	archiveSuffix   = ".tar.gz"
	timestampLayout = "2006-01-02-150405"
	metadataFile    = "export-metadata.json"

	// minExportsToKeep survive rotation regardless of age.
	minExportsToKeep = 3
)

// ExportMetadata is written into every archive next to the run outputs.
type ExportMetadata struct {
	Timestamp time.Time      `json:"timestamp"`
	RunID     string         `json:"run_id"`
	Name      string         `json:"name"`
	Files     []FileMetadata `json:"files"`
}

// FileMetadata describes one archived file.
type FileMetadata struct {
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes"`
	Checksum  string `json:"checksum"`
}

// ExportInfo describes an archive found in the bucket.
type ExportInfo struct {
	Key       string    `json:"key"`
	RunID     string    `json:"run_id"`
	Timestamp time.Time `json:"timestamp"`
	SizeBytes int64     `json:"size_bytes"`
	AgeHours  int64     `json:"age_hours"`
}

// ResultsExporter packs run outputs into a tar.gz and uploads it.
type ResultsExporter struct {
	store  ObjectStore
	prefix string
	log    zerolog.Logger
	now    func() time.Time
}

// NewResultsExporter creates an exporter writing under prefix (may be empty).
func NewResultsExporter(store ObjectStore, prefix string, log zerolog.Logger) *ResultsExporter {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &ResultsExporter{
		store:  store,
		prefix: prefix,
		log:    log.With().Str("service", "results_export").Logger(),
		now:    time.Now,
	}
}

// Export archives the named files from dir together with a checksum manifest
// and uploads the archive. It returns the object key.
func (e *ResultsExporter) Export(ctx context.Context, runID, name, dir string, files []string) (string, error) {
	startTime := time.Now()

	metadata := ExportMetadata{
		Timestamp: e.now().UTC(),
		RunID:     runID,
		Name:      name,
		Files:     make([]FileMetadata, 0, len(files)),
	}
	for _, file := range files {
		path := filepath.Join(dir, file)
		info, err := os.Stat(path)
		if err != nil {
			return "", fmt.Errorf("failed to stat %s: %w", file, err)
		}
		checksum, err := calculateChecksum(path)
		if err != nil {
			return "", fmt.Errorf("failed to checksum %s: %w", file, err)
		}
		metadata.Files = append(metadata.Files, FileMetadata{
			Filename:  file,
			SizeBytes: info.Size(),
			Checksum:  checksum,
		})
	}

	archive, err := os.CreateTemp("", "sharpescan-export-*"+archiveSuffix)
	if err != nil {
		return "", fmt.Errorf("failed to create archive file: %w", err)
	}
	defer os.Remove(archive.Name())
	defer archive.Close()

	if err := writeArchive(archive, dir, files, metadata); err != nil {
		return "", fmt.Errorf("failed to create archive: %w", err)
	}

	size, err := archive.Seek(0, io.SeekEnd)
	if err != nil {
		return "", fmt.Errorf("failed to size archive: %w", err)
	}
	if _, err := archive.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("failed to rewind archive: %w", err)
	}

	key := e.prefix + archivePrefix + metadata.Timestamp.Format(timestampLayout) + "-" + runID + archiveSuffix
	if err := e.store.Upload(ctx, key, archive, size); err != nil {
		return "", err
	}

	e.log.Info().
		Str("run_id", runID).
		Str("key", key).
		Int64("size_bytes", size).
		Dur("duration_ms", time.Since(startTime)).
		Msg("Results exported")

	return key, nil
}

// ListExports returns the archives in the bucket, newest first.
func (e *ResultsExporter) ListExports(ctx context.Context) ([]ExportInfo, error) {
	objects, err := e.store.List(ctx, e.prefix+archivePrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list exports: %w", err)
	}

	now := e.now()
	exports := make([]ExportInfo, 0, len(objects))
	for _, obj := range objects {
		ts, runID, ok := parseArchiveKey(strings.TrimPrefix(obj.Key, e.prefix))
		if !ok {
			e.log.Warn().Str("key", obj.Key).Msg("Skipping object with unexpected name")
			continue
		}
		exports = append(exports, ExportInfo{
			Key:       obj.Key,
			RunID:     runID,
			Timestamp: ts,
			SizeBytes: obj.Size,
			AgeHours:  int64(now.Sub(ts).Hours()),
		})
	}

	sort.SliceStable(exports, func(i, j int) bool {
		return exports[i].Timestamp.After(exports[j].Timestamp)
	})
	return exports, nil
}

// RotateOldExports deletes archives older than retentionDays, always keeping
// the newest few. A zero retention keeps everything. It returns the number
// of deleted archives.
func (e *ResultsExporter) RotateOldExports(ctx context.Context, retentionDays int) (int, error) {
	exports, err := e.ListExports(ctx)
	if err != nil {
		return 0, err
	}
	if retentionDays <= 0 || len(exports) <= minExportsToKeep {
		return 0, nil
	}

	cutoff := e.now().AddDate(0, 0, -retentionDays)
	deleted := 0
	for _, exp := range exports[minExportsToKeep:] {
		if !exp.Timestamp.Before(cutoff) {
			continue
		}
		if err := e.store.Delete(ctx, exp.Key); err != nil {
			e.log.Error().Err(err).Str("key", exp.Key).Msg("Failed to delete old export")
			continue
		}
		deleted++
	}

	e.log.Info().
		Int("deleted", deleted).
		Int("remaining", len(exports)-deleted).
		Msg("Export rotation completed")

	return deleted, nil
}

// parseArchiveKey splits sharpescan-results-<timestamp>-<runID>.tar.gz.
func parseArchiveKey(name string) (time.Time, string, bool) {
	if !strings.HasPrefix(name, archivePrefix) || !strings.HasSuffix(name, archiveSuffix) {
		return time.Time{}, "", false
	}
	rest := strings.TrimSuffix(strings.TrimPrefix(name, archivePrefix), archiveSuffix)
	if len(rest) < len(timestampLayout)+2 || rest[len(timestampLayout)] != '-' {
		return time.Time{}, "", false
	}
	ts, err := time.Parse(timestampLayout, rest[:len(timestampLayout)])
	if err != nil {
		return time.Time{}, "", false
	}
	return ts, rest[len(timestampLayout)+1:], true
}

func calculateChecksum(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return fmt.Sprintf("sha256:%x", hash.Sum(nil)), nil
}

func writeArchive(w io.Writer, dir string, files []string, metadata ExportMetadata) error {
	gzipWriter := gzip.NewWriter(w)
	tarWriter := tar.NewWriter(gzipWriter)

	for _, file := range files {
		if err := addFileToArchive(tarWriter, filepath.Join(dir, file), file); err != nil {
			return fmt.Errorf("failed to add %s: %w", file, err)
		}
	}

	manifest, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return err
	}
	header := &tar.Header{
		Name:    metadataFile,
		Size:    int64(len(manifest)),
		Mode:    0644,
		ModTime: metadata.Timestamp,
	}
	if err := tarWriter.WriteHeader(header); err != nil {
		return err
	}
	if _, err := tarWriter.Write(manifest); err != nil {
		return err
	}

	if err := tarWriter.Close(); err != nil {
		return err
	}
	return gzipWriter.Close()
}

func addFileToArchive(tarWriter *tar.Writer, filePath, nameInArchive string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	header := &tar.Header{
		Name:    nameInArchive,
		Size:    info.Size(),
		Mode:    int64(info.Mode().Perm()),
		ModTime: info.ModTime(),
	}
	if err := tarWriter.WriteHeader(header); err != nil {
		return err
	}

	_, err = io.Copy(tarWriter, file)
	return err
}
