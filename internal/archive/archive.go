package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/oshokin/webext-packager/internal/logger"
)

// WantFileFunc decides whether a path (absolute) belongs in the archive.
type WantFileFunc func(ctx context.Context, path string) bool

// BuildBuffer walks sourceDir and returns a complete zip buffer containing
// every regular file admitted by wantFile. Traversal order is not
// deterministic across platforms; each admitted file appears exactly once.
func BuildBuffer(ctx context.Context, sourceDir string, wantFile WantFileFunc) (*bytes.Buffer, error) {
	sourceDir, err := filepath.Abs(sourceDir)
	if err != nil {
		return nil, fmt.Errorf("resolve source directory: %w", err)
	}

	var (
		buffer    bytes.Buffer
		zipWriter = zip.NewWriter(&buffer)
		fileCount int
	)

	walkErr := filepath.WalkDir(sourceDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if path == sourceDir {
			return nil
		}

		if d.IsDir() {
			// An excluded directory is excluded with all of its contents,
			// so there is no point descending into it.
			if !wantFile(ctx, path) {
				return filepath.SkipDir
			}

			return nil
		}

		if !d.Type().IsRegular() {
			return nil
		}

		if !wantFile(ctx, path) {
			return nil
		}

		if err := addFile(zipWriter, sourceDir, path, d); err != nil {
			return err
		}

		fileCount++

		return nil
	})
	if walkErr != nil {
		//nolint:errcheck // The buffer is discarded on failure.
		_ = zipWriter.Close()

		return nil, fmt.Errorf("archive %s: %w", sourceDir, walkErr)
	}

	if err := zipWriter.Close(); err != nil {
		return nil, fmt.Errorf("finalize archive: %w", err)
	}

	logger.DebugKV(ctx, "Archive buffer built", "source_dir", sourceDir, "files", fileCount, "bytes", buffer.Len())

	return &buffer, nil
}

// addFile writes one regular file into the zip with its original mode bits
// and a forward-slash entry name relative to the source directory.
func addFile(zipWriter *zip.Writer, sourceDir, path string, d fs.DirEntry) error {
	relPath, err := filepath.Rel(sourceDir, path)
	if err != nil {
		return fmt.Errorf("relativize %s: %w", path, err)
	}

	info, err := d.Info()
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("header for %s: %w", path, err)
	}

	header.Name = filepath.ToSlash(relPath)
	header.Method = zip.Deflate

	entry, err := zipWriter.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("create entry %s: %w", header.Name, err)
	}

	source, err := os.Open(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}

	//nolint:errcheck // Read-only file, close error carries no information.
	defer source.Close()

	if _, err := io.Copy(entry, source); err != nil {
		return fmt.Errorf("write entry %s: %w", header.Name, err)
	}

	return nil
}
