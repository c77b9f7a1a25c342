// Package storage is the flat directory that receives uploads and serves
// compressed outputs.
package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidName is returned for names that are not a plain file name.
var ErrInvalidName = errors.New("invalid file name")

// maxNameSuffix bounds the numeric suffixes tried when a name is taken.
const maxNameSuffix = 1000

// Store is a flat directory of files.
type Store struct {
	dir string
}

// New returns a Store rooted at dir, creating it if absent.
func New(dir string) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve storage dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Store{dir: abs}, nil
}

// Dir returns the absolute storage directory.
func (s *Store) Dir() string { return s.dir }

// Path returns the absolute path of name inside the store.
func (s *Store) Path(name string) string { return filepath.Join(s.dir, name) }

// SaveUpload copies r into a new uniquely named landing file and returns
// its name and size.
func (s *Store) SaveUpload(r io.Reader, ext string) (string, int64, error) {
	name := uuid.NewString() + strings.ToLower(ext)
	return s.write(name, func(w io.Writer) (int64, error) { return io.Copy(w, r) })
}

// WriteFile stores data under name and returns the name actually used.
// Existing files are never replaced: if name is taken a numeric suffix is
// added before the extension (photo-1.jpg, photo-2.jpg, ...). The file
// appears only once fully written; on error nothing is left behind.
func (s *Store) WriteFile(name string, data []byte) (string, error) {
	final, _, err := s.write(name, func(w io.Writer) (int64, error) {
		n, err := w.Write(data)
		return int64(n), err
	})
	return final, err
}

// Remove deletes name from the store. Missing files are not an error.
func (s *Store) Remove(name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	if err := os.Remove(s.Path(name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *Store) write(name string, fill func(io.Writer) (int64, error)) (string, int64, error) {
	if err := checkName(name); err != nil {
		return "", 0, err
	}
	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return "", 0, fmt.Errorf("create temp: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	n, err := fill(tmp)
	if err != nil {
		cleanup()
		return "", 0, fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", 0, fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		os.Remove(tmpPath)
		return "", 0, fmt.Errorf("chmod %s: %w", name, err)
	}
	final, err := s.publish(tmpPath, name)
	os.Remove(tmpPath)
	if err != nil {
		return "", 0, err
	}
	return final, n, nil
}

// publish hard-links tmpPath into place under the first free variant of
// name. A link fails on an existing target, unlike a rename.
func (s *Store) publish(tmpPath, name string) (string, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 0; i < maxNameSuffix; i++ {
		candidate := name
		if i > 0 {
			candidate = stem + "-" + strconv.Itoa(i) + ext
		}
		err := os.Link(tmpPath, s.Path(candidate))
		if err == nil {
			return candidate, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("link %s: %w", candidate, err)
		}
	}
	return "", fmt.Errorf("no free name for %s: %w", name, fs.ErrExist)
}

func checkName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// CompressedName derives the output file name for an uploaded file:
// <base>-compressed-<unix millis><ext>. The original extension is kept when
// it already names the payload format; otherwise payloadExt is used.
func CompressedName(original string, now time.Time, payloadExt string) string {
	// Browsers may send full client paths with either separator.
	if i := strings.LastIndexAny(original, `/\`); i >= 0 {
		original = original[i+1:]
	}
	ext := filepath.Ext(original)
	// Dot files are not served from the upload directory.
	base := strings.TrimLeft(sanitize(strings.TrimSuffix(original, ext)), ".")
	if base == "" {
		base = "image"
	}
	if normalizeExt(ext) != normalizeExt(payloadExt) {
		ext = "." + strings.TrimPrefix(payloadExt, ".")
	}
	return base + "-compressed-" + strconv.FormatInt(now.UnixMilli(), 10) + sanitize(ext)
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if ext == "jpeg" {
		return "jpg"
	}
	return ext
}

func sanitize(s string) string {
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
