package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"golang.org/x/sync/errgroup"
)

var ErrUploadMissing = errors.New("upload temp file not found")

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// Store owns the on-disk layout: one temp file per (document, nonce) while
// bytes arrive, one final file per (document, sanitized filename) afterwards.
type Store struct {
	uploadDir string
	filesDir  string
}

func NewStore(uploadDir, filesDir string) *Store {
	return &Store{uploadDir: uploadDir, filesDir: filesDir}
}

func (s *Store) EnsureDirs() error {
	for _, dir := range []string{s.uploadDir, s.filesDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create upload dir %s failed: %w", dir, err)
		}
	}
	return nil
}

func (s *Store) TempPath(t Ticket) string {
	return filepath.Join(s.uploadDir, fmt.Sprintf("%d-%s.part", t.DocumentID, t.Nonce))
}

func (s *Store) FinalPath(documentID uint, filename string) string {
	return filepath.Join(s.filesDir, fmt.Sprintf("doc-%d-%s", documentID, SanitizeFilename(documentID, filename)))
}

func SanitizeFilename(documentID uint, filename string) string {
	safe := unsafeFilenameChars.ReplaceAllString(filename, "_")
	if safe == "" {
		return "doc-" + strconv.FormatUint(uint64(documentID), 10) + ".bin"
	}
	return safe
}

// Create truncates the temp file so appends always target an existing file.
func (s *Store) Create(t Ticket) error {
	if err := s.EnsureDirs(); err != nil {
		return err
	}
	f, err := os.OpenFile(s.TempPath(t), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create temp upload failed: %w", err)
	}
	return f.Close()
}

// Append writes r to the end of the temp file and returns the bytes written
// and the resulting file size.
func (s *Store) Append(t Ticket, r io.Reader) (int64, int64, error) {
	if err := s.EnsureDirs(); err != nil {
		return 0, 0, err
	}
	f, err := os.OpenFile(s.TempPath(t), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, 0, fmt.Errorf("open temp upload failed: %w", err)
	}
	written, copyErr := io.Copy(f, r)
	closeErr := f.Close()
	if copyErr != nil {
		return written, 0, fmt.Errorf("append upload chunk failed: %w", copyErr)
	}
	if closeErr != nil {
		return written, 0, fmt.Errorf("close temp upload failed: %w", closeErr)
	}
	info, err := os.Stat(s.TempPath(t))
	if err != nil {
		return written, 0, fmt.Errorf("stat temp upload failed: %w", err)
	}
	return written, info.Size(), nil
}

// Promote moves the temp file over any stale final file for the same
// document. An absent or empty temp file yields ErrUploadMissing.
func (s *Store) Promote(t Ticket, filename string) (string, int64, error) {
	tempPath := s.TempPath(t)
	info, err := os.Stat(tempPath)
	if errors.Is(err, os.ErrNotExist) {
		return "", 0, ErrUploadMissing
	}
	if err != nil {
		return "", 0, fmt.Errorf("stat temp upload failed: %w", err)
	}
	if info.Size() == 0 {
		return "", 0, ErrUploadMissing
	}
	if err := s.EnsureDirs(); err != nil {
		return "", 0, err
	}

	finalPath := s.FinalPath(t.DocumentID, filename)
	if err := os.Remove(finalPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", 0, fmt.Errorf("remove stale final file failed: %w", err)
	}
	if err := os.Rename(tempPath, finalPath); err != nil {
		return "", 0, fmt.Errorf("promote upload failed: %w", err)
	}
	finalInfo, err := os.Stat(finalPath)
	if err != nil {
		return "", 0, fmt.Errorf("stat final file failed: %w", err)
	}
	return finalPath, finalInfo.Size(), nil
}

func (s *Store) Remove(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s failed: %w", path, err)
	}
	return nil
}

// RemoveDocumentFiles deletes every temp and final file belonging to the
// given documents. It returns the number of files removed and the first error.
func (s *Store) RemoveDocumentFiles(ctx context.Context, documentIDs []uint) (int, error) {
	var paths []string
	for _, id := range documentIDs {
		for _, pattern := range []string{
			filepath.Join(s.uploadDir, fmt.Sprintf("%d-*.part", id)),
			filepath.Join(s.filesDir, fmt.Sprintf("doc-%d-*", id)),
		} {
			matches, err := filepath.Glob(pattern)
			if err != nil {
				return 0, fmt.Errorf("glob %s failed: %w", pattern, err)
			}
			paths = append(paths, matches...)
		}
	}
	if len(paths) == 0 {
		return 0, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, p := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return s.Remove(p)
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return len(paths), nil
}
