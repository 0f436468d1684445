// Package poster stores uploaded poster images on local disk.
//
// Files live in <dir>/posters and are served by the HTTP server under
// /uploads/, so a stored file's public path is /uploads/posters/<name>.
package poster

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/xid"
	"github.com/sakif/moviecatalog/internal/apperror"
)

const (
	// FormField is the multipart field carrying the image.
	FormField = "poster"

	// PublicPrefix is the URL prefix of stored posters.
	PublicPrefix = "/uploads/posters/"

	DefaultMaxBytes = 5 << 20
)

// allowed maps sniffed content types to the extension we store them under.
var allowed = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// DiskStore saves and removes poster files.
type DiskStore struct {
	dir      string // <upload dir>/posters
	maxBytes int64
}

// NewDiskStore creates <uploadDir>/posters if needed.
func NewDiskStore(uploadDir string, maxBytes int64) (*DiskStore, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	dir := filepath.Join(uploadDir, "posters")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("poster: creating %s: %w", dir, err)
	}
	return &DiskStore{dir: dir, maxBytes: maxBytes}, nil
}

func (s *DiskStore) MaxBytes() int64 { return s.maxBytes }
func (s *DiskStore) Dir() string     { return s.dir }

// Save sniffs the image type, writes the file as movie-poster-<xid><ext>
// and returns its public path. Non-images and oversized files are
// validation errors on the poster field.
func (s *DiskStore) Save(r io.Reader) (string, error) {
	head := make([]byte, 512)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("poster: reading upload: %w", err)
	}
	head = head[:n]
	if n == 0 {
		return "", apperror.ValidationFailed(FormField, "poster file is empty")
	}

	ext, ok := allowed[http.DetectContentType(head)]
	if !ok {
		return "", apperror.ValidationFailed(FormField, "only image files are allowed (jpeg, png, gif, webp)")
	}

	name := "movie-poster-" + xid.New().String() + ext
	path := filepath.Join(s.dir, name)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("poster: creating file: %w", err)
	}

	// Copy one byte past the limit so an oversized upload is detectable.
	body := io.MultiReader(bytes.NewReader(head), r)
	written, err := io.Copy(f, io.LimitReader(body, s.maxBytes+1))
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("poster: writing file: %w", err)
	}
	if written > s.maxBytes {
		os.Remove(path)
		return "", apperror.ValidationFailed(FormField,
			fmt.Sprintf("poster must be %d MB or smaller", s.maxBytes>>20))
	}

	return PublicPrefix + name, nil
}

// Remove deletes the file behind a public path returned by Save. Missing
// files are not an error. Paths that do not point into the poster
// directory are refused.
func (s *DiskStore) Remove(publicPath string) error {
	if publicPath == "" {
		return nil
	}
	name, ok := strings.CutPrefix(publicPath, PublicPrefix)
	if !ok || name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("poster: refusing to remove %q", publicPath)
	}

	if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("poster: removing %s: %w", name, err)
	}
	return nil
}
