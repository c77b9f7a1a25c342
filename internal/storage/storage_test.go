package storage

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "uploads")
	s, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if info, err := os.Stat(s.Dir()); err != nil || !info.IsDir() {
		t.Fatalf("storage dir missing: %v", err)
	}
}

func TestWriteFileIsAtomic(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	name, err := s.WriteFile("out.jpg", []byte("payload"))
	if err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if name != "out.jpg" {
		t.Fatalf("name: got %q", name)
	}
	data, err := os.ReadFile(s.Path("out.jpg"))
	if err != nil || string(data) != "payload" {
		t.Fatalf("read back: %q %v", data, err)
	}
	entries, _ := os.ReadDir(s.Dir())
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %v", entries)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestSaveUploadFailureLeavesNothing(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, _, err := s.SaveUpload(failingReader{}, ".png"); err == nil {
		t.Fatal("expected error")
	}
	entries, _ := os.ReadDir(s.Dir())
	if len(entries) != 0 {
		t.Fatalf("files left behind: %v", entries)
	}

	name, n, err := s.SaveUpload(bytes.NewReader([]byte("abc")), ".PNG")
	if err != nil {
		t.Fatalf("SaveUpload: %v", err)
	}
	if n != 3 || !strings.HasSuffix(name, ".png") {
		t.Fatalf("unexpected upload: %q %d", name, n)
	}
	if err := s.Remove(name); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := s.Remove(name); err != nil {
		t.Fatalf("Remove missing: %v", err)
	}
}

func TestRejectsPathNames(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for _, name := range []string{"", "..", "../escape.jpg", `a\b.jpg`} {
		if _, err := s.WriteFile(name, nil); !errors.Is(err, ErrInvalidName) {
			t.Errorf("%q: expected ErrInvalidName, got %v", name, err)
		}
	}
}

func TestCompressedName(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	cases := []struct {
		original, want string
	}{
		{"holiday.jpg", "holiday-compressed-1700000000123.jpg"},
		{"Holiday.JPEG", "Holiday-compressed-1700000000123.JPEG"},
		{"logo.png", "logo-compressed-1700000000123.jpg"},
		{`C:\fakepath\my photo.jpg`, "my_photo-compressed-1700000000123.jpg"},
		{"../../etc/passwd.jpg", "passwd-compressed-1700000000123.jpg"},
		{".jpg", "image-compressed-1700000000123.jpg"},
		{".hidden.jpg", "hidden-compressed-1700000000123.jpg"},
		{"...png", "image-compressed-1700000000123.jpg"},
	}
	for _, c := range cases {
		if got := CompressedName(c.original, now, "jpg"); got != c.want {
			t.Errorf("%q: got %q, want %q", c.original, got, c.want)
		}
	}
}

func TestWriteFileNeverReplaces(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	payloads := []string{"first", "second", "third"}
	want := []string{"photo-compressed-42.jpg", "photo-compressed-42-1.jpg", "photo-compressed-42-2.jpg"}
	for i, p := range payloads {
		name, err := s.WriteFile("photo-compressed-42.jpg", []byte(p))
		if err != nil {
			t.Fatalf("WriteFile %d: %v", i, err)
		}
		if name != want[i] {
			t.Errorf("write %d: got name %q, want %q", i, name, want[i])
		}
	}
	for i, name := range want {
		data, err := os.ReadFile(s.Path(name))
		if err != nil || string(data) != payloads[i] {
			t.Errorf("%s: got %q %v, want %q", name, data, err, payloads[i])
		}
	}
	entries, _ := os.ReadDir(s.Dir())
	if len(entries) != len(want) {
		t.Fatalf("unexpected files: %v", entries)
	}
}
