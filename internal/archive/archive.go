// package archive unpacks uploaded zip archives into a scratch directory.
//
// Entry names are decoded as UTF-8 when the entry says so and as IBM code page 437 otherwise,
// which is what legacy zip tools write.
package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tracklift/internal/shared"
	"golang.org/x/text/encoding/charmap"
)

// flagUTF8 is general purpose bit 11 of a zip entry header.
const flagUTF8 = 0x800

// ExtractedFile is one regular file written to the destination.
type ExtractedFile struct {
	Path string // Absolute path on disk
	Name string // Decoded entry name, slash separated
}

// Extractor writes archive entries to disk.
type Extractor struct {
	logger *log.Logger
}

// NewExtractor creates an Extractor. A nil logger discards output.
func NewExtractor(logger *log.Logger) *Extractor {
	if logger == nil {
		logger = shared.DiscardLogger()
	}
	return &Extractor{logger: logger}
}

// Extract unpacks archivePath into destDir and returns regular files in archive order.
//
// destDir is created when missing and must be empty otherwise. Files written before a failure
// are left in place; removing destDir is the caller's job (see [Cleanup]).
func (e *Extractor) Extract(archivePath, destDir string) ([]ExtractedFile, error) {
	if archivePath == "" {
		return nil, fmt.Errorf("%w: archive path is required", shared.ErrValidation)
	}

	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		if reader != nil {
			reader.Close()
		}
		return nil, fmt.Errorf("%w: failed to open %s: %v", shared.ErrExtraction, filepath.Base(archivePath), err)
	}
	defer reader.Close()

	root, err := prepareDestination(destDir)
	if err != nil {
		return nil, err
	}

	var files []ExtractedFile
	for _, entry := range reader.File {
		name := DecodeName(entry)

		if entry.FileInfo().IsDir() || strings.HasSuffix(name, "/") {
			continue
		}

		target, err := safeJoin(root, name)
		if err != nil {
			return files, err
		}

		if err := writeEntry(entry, target); err != nil {
			return files, fmt.Errorf("%w: %s: %v", shared.ErrExtraction, name, err)
		}

		e.logger.Debug("extracted entry", "name", name, "size", entry.UncompressedSize64)
		files = append(files, ExtractedFile{Path: target, Name: name})
	}

	e.logger.Info("archive extracted", "archive", filepath.Base(archivePath), "files", len(files))
	return files, nil
}

// Extract unpacks archivePath into destDir without logging.
func Extract(archivePath, destDir string) ([]ExtractedFile, error) {
	return NewExtractor(nil).Extract(archivePath, destDir)
}

// Cleanup removes a scratch directory and everything under it. Missing directories are ignored.
func Cleanup(dir string) error {
	if dir == "" {
		return nil
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove scratch directory %s: %w", dir, err)
	}
	return nil
}

// DecodeName returns the entry's name as the archiving tool recorded it.
func DecodeName(entry *zip.File) string {
	if entry.Flags&flagUTF8 != 0 {
		return entry.Name
	}

	decoded, err := charmap.CodePage437.NewDecoder().String(entry.Name)
	if err != nil {
		return entry.Name
	}
	return decoded
}

func prepareDestination(destDir string) (string, error) {
	if destDir == "" {
		return "", fmt.Errorf("%w: destination directory is required", shared.ErrValidation)
	}

	root, err := filepath.Abs(destDir)
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrExtraction, err)
	}

	entries, err := os.ReadDir(root)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if err := os.MkdirAll(root, 0o755); err != nil {
			return "", fmt.Errorf("%w: failed to create %s: %v", shared.ErrExtraction, root, err)
		}
	case err != nil:
		return "", fmt.Errorf("%w: %v", shared.ErrExtraction, err)
	case len(entries) > 0:
		return "", fmt.Errorf("%w: destination %s is not empty", shared.ErrExtraction, root)
	}

	return root, nil
}

// safeJoin resolves name under root and rejects entries that would land outside it.
func safeJoin(root, name string) (string, error) {
	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") || strings.HasPrefix(name, `\`) {
		return "", fmt.Errorf("%w: absolute entry path %q", shared.ErrExtraction, name)
	}

	target := filepath.Join(root, filepath.FromSlash(name))
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: entry %q escapes destination", shared.ErrExtraction, name)
	}
	return target, nil
}

func writeEntry(entry *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	src, err := entry.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}
