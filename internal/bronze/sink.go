// Package bronze implements the byte-oriented file sink for raw payloads,
// laid out by ingestion date, provider, endpoint and page.
package bronze

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// FileSink writes raw payload bytes under a stable partitioned layout:
//
//	<root>/ingestion_date=<as-of>/provider=<id>/endpoint=<name>/page=NNNN.json
//
// Writes are atomic (temp file + rename) so a torn write never leaves a
// partial page behind, and re-writing the same key replaces the file.
type FileSink struct {
	root string
}

// NewFileSink creates a FileSink rooted at dir.
func NewFileSink(dir string) *FileSink {
	return &FileSink{root: dir}
}

// PagePath returns the target path for a page without writing it.
func (s *FileSink) PagePath(asOf, providerID, endpoint string, pageNum int) string {
	return filepath.Join(
		s.root,
		"ingestion_date="+safeSegment(asOf),
		"provider="+safeSegment(providerID),
		"endpoint="+safeSegment(endpoint),
		fmt.Sprintf("page=%04d.json", pageNum),
	)
}

// DetailPath returns the target path for a product-detail document: details
// land next to the list pages, keyed by product id instead of page number.
func (s *FileSink) DetailPath(asOf, providerID, endpoint, productID string) string {
	return filepath.Join(
		s.root,
		"ingestion_date="+safeSegment(asOf),
		"provider="+safeSegment(providerID),
		"endpoint="+safeSegment(endpoint),
		"product="+safeSegment(productID)+".json",
	)
}

// WritePage persists one page's payload and returns the final path.
func (s *FileSink) WritePage(asOf, providerID, endpoint string, pageNum int, payload []byte) (string, error) {
	path := s.PagePath(asOf, providerID, endpoint, pageNum)
	if err := writeAtomic(path, payload); err != nil {
		return "", err
	}
	return path, nil
}

// Stage writes the payload to a temporary file next to its final location
// and returns a promote/discard pair. Promote renames the temp file into
// place; discard removes it. This lets the caller order the file write
// against the structured-sink write so both sinks stay consistent.
func (s *FileSink) Stage(asOf, providerID, endpoint string, pageNum int, payload []byte) (promote func() error, discard func(), err error) {
	return s.stage(s.PagePath(asOf, providerID, endpoint, pageNum), payload)
}

// StageDetail is Stage for product-detail documents.
func (s *FileSink) StageDetail(asOf, providerID, endpoint, productID string, payload []byte) (promote func() error, discard func(), err error) {
	return s.stage(s.DetailPath(asOf, providerID, endpoint, productID), payload)
}

func (s *FileSink) stage(path string, payload []byte) (promote func() error, discard func(), err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, eris.Wrapf(err, "bronze: mkdir %s", filepath.Dir(path))
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".page-*.tmp")
	if err != nil {
		return nil, nil, eris.Wrap(err, "bronze: create temp file")
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return nil, nil, eris.Wrapf(err, "bronze: write %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return nil, nil, eris.Wrapf(err, "bronze: close %s", tmpName)
	}

	promote = func() error {
		return eris.Wrapf(os.Rename(tmpName, path), "bronze: promote %s", path)
	}
	discard = func() {
		_ = os.Remove(tmpName)
	}
	return promote, discard, nil
}

func writeAtomic(path string, payload []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "bronze: mkdir %s", filepath.Dir(path))
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".page-*.tmp")
	if err != nil {
		return eris.Wrap(err, "bronze: create temp file")
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return eris.Wrapf(err, "bronze: write %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return eris.Wrapf(err, "bronze: close %s", tmpName)
	}
	return eris.Wrapf(os.Rename(tmpName, path), "bronze: rename %s", path)
}

// safeSegment replaces characters that are unsafe in a path segment.
func safeSegment(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '_'
		}
	}, s)
}
