package server

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/AnyUserName/imgshrink/internal/logging"
	"github.com/AnyUserName/imgshrink/internal/shrink"
	"github.com/AnyUserName/imgshrink/internal/storage"
)

func gradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 128, A: 255,
			})
		}
	}
	return img
}

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, gradient(w, h), &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("fixture: %v", err)
	}
	return buf.Bytes()
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, gradient(w, h)); err != nil {
		t.Fatalf("fixture: %v", err)
	}
	return buf.Bytes()
}

type upload struct {
	filename    string
	contentType string
	data        []byte
	size        *string
}

func strPtr(s string) *string { return &s }

func multipartBody(t *testing.T, u upload) (io.Reader, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if u.filename != "" {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="image"; filename="`+u.filename+`"`)
		h.Set("Content-Type", u.contentType)
		part, err := mw.CreatePart(h)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		part.Write(u.data)
	}
	if u.size != nil {
		if err := mw.WriteField("size", *u.size); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	mw.Close()
	return &body, mw.FormDataContentType()
}

func newTestServer(t *testing.T, opts Options) (*Server, *storage.Store) {
	t.Helper()
	store, err := storage.New(t.TempDir())
	if err != nil {
		t.Fatalf("storage: %v", err)
	}
	sh, err := shrink.New(shrink.DefaultConfig())
	if err != nil {
		t.Fatalf("shrinker: %v", err)
	}
	srv, err := New(opts, store, sh, logging.NewNop())
	if err != nil {
		t.Fatalf("server: %v", err)
	}
	srv.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return srv, store
}

func post(t *testing.T, srv *Server, u upload) *httptest.ResponseRecorder {
	t.Helper()
	body, ct := multipartBody(t, u)
	req := httptest.NewRequest(http.MethodPost, "/compress", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func compressedFiles(t *testing.T, store *storage.Store) []string {
	t.Helper()
	entries, err := os.ReadDir(store.Dir())
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	var names []string
	for _, e := range entries {
		if strings.Contains(e.Name(), "-compressed-") {
			names = append(names, e.Name())
		}
	}
	return names
}

func TestIndexRendersForm(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `name="image"`) || !strings.Contains(body, `name="size"`) {
		t.Fatalf("form fields missing: %s", body)
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Error("missing request id header")
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/static/style.css", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("static asset status: %d", rec.Code)
	}
}

func TestCompressJPEG(t *testing.T) {
	srv, store := newTestServer(t, Options{})
	src := jpegBytes(t, 1200, 900)
	rec := post(t, srv, upload{filename: "holiday.jpg", contentType: "image/jpeg", data: src, size: strPtr("500")})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}

	want := "holiday-compressed-1700000000000.jpg"
	files := compressedFiles(t, store)
	if len(files) != 1 || files[0] != want {
		t.Fatalf("outputs: got %v, want [%s]", files, want)
	}
	body := rec.Body.String()
	for _, s := range []string{"holiday.jpg", want, formatKB(float64(len(src)) / 1024)} {
		if !strings.Contains(body, s) {
			t.Errorf("result page missing %q", s)
		}
	}

	out, err := os.ReadFile(store.Path(want))
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if !strings.Contains(body, formatKB(float64(len(out))/1024)+" KB") {
		t.Errorf("result page missing compressed size")
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("output not jpeg: %v", err)
	}
	if cfg.Width != 800 || cfg.Height != 600 {
		t.Errorf("output dims: %dx%d", cfg.Width, cfg.Height)
	}

	// The output is served from the storage directory.
	get := httptest.NewRecorder()
	srv.Handler().ServeHTTP(get, httptest.NewRequest(http.MethodGet, "/uploads/"+want, nil))
	if get.Code != http.StatusOK || !bytes.Equal(get.Body.Bytes(), out) {
		t.Errorf("serve output: status %d, %d bytes", get.Code, get.Body.Len())
	}
}

func TestCompressPNGWritesJPEGExtension(t *testing.T) {
	srv, store := newTestServer(t, Options{})
	rec := post(t, srv, upload{filename: "logo.png", contentType: "image/png", data: pngBytes(t, 200, 100), size: strPtr("50")})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	files := compressedFiles(t, store)
	if len(files) != 1 || files[0] != "logo-compressed-1700000000000.jpg" {
		t.Fatalf("outputs: %v", files)
	}
}

func TestCompressRejections(t *testing.T) {
	cases := []struct {
		name   string
		upload upload
		status int
		msg    string
	}{
		{"no file", upload{size: strPtr("100")}, http.StatusBadRequest, msgNoFile},
		{"gif extension", upload{filename: "a.gif", contentType: "image/gif", data: []byte("GIF89a"), size: strPtr("100")}, http.StatusBadRequest, msgFileType},
		{"mime mismatch", upload{filename: "a.jpg", contentType: "text/plain", data: []byte("x"), size: strPtr("100")}, http.StatusBadRequest, msgFileType},
		{"missing target", upload{filename: "a.jpg", contentType: "image/jpeg", data: []byte("x")}, http.StatusBadRequest, msgInvalidTarget},
		{"non-numeric target", upload{filename: "a.jpg", contentType: "image/jpeg", data: []byte("x"), size: strPtr("big")}, http.StatusBadRequest, msgInvalidTarget},
		{"zero target", upload{filename: "a.jpg", contentType: "image/jpeg", data: []byte("x"), size: strPtr("0")}, http.StatusBadRequest, msgInvalidTarget},
		{"corrupt image", upload{filename: "a.jpg", contentType: "image/jpeg", data: []byte("not really a jpeg"), size: strPtr("100")}, http.StatusUnprocessableEntity, msgNotAnImage},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			srv, store := newTestServer(t, Options{})
			rec := post(t, srv, c.upload)
			if rec.Code != c.status {
				t.Fatalf("status: got %d, want %d (%s)", rec.Code, c.status, rec.Body.String())
			}
			if !strings.Contains(rec.Body.String(), c.msg) {
				t.Errorf("body: got %q, want %q", rec.Body.String(), c.msg)
			}
			entries, _ := os.ReadDir(store.Dir())
			if len(entries) != 0 {
				t.Errorf("files left in storage: %v", entries)
			}
		})
	}
}

func TestCompressTooLarge(t *testing.T) {
	srv, store := newTestServer(t, Options{MaxUploadBytes: 1024})
	rec := post(t, srv, upload{filename: "big.png", contentType: "image/png", data: pngBytes(t, 300, 300), size: strPtr("10")})
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status: got %d", rec.Code)
	}
	if files := compressedFiles(t, store); len(files) != 0 {
		t.Errorf("outputs written: %v", files)
	}
}

func TestCompressSameNameSameMillisecond(t *testing.T) {
	srv, store := newTestServer(t, Options{})
	first := post(t, srv, upload{filename: "photo.jpg", contentType: "image/jpeg", data: jpegBytes(t, 400, 300), size: strPtr("500")})
	second := post(t, srv, upload{filename: "photo.jpg", contentType: "image/jpeg", data: jpegBytes(t, 900, 600), size: strPtr("500")})
	if first.Code != http.StatusOK || second.Code != http.StatusOK {
		t.Fatalf("status: %d, %d", first.Code, second.Code)
	}

	names := []string{"photo-compressed-1700000000000.jpg", "photo-compressed-1700000000000-1.jpg"}
	files := compressedFiles(t, store)
	if len(files) != 2 {
		t.Fatalf("outputs: got %v, want %v", files, names)
	}
	if !strings.Contains(first.Body.String(), names[0]) || !strings.Contains(second.Body.String(), names[1]) {
		t.Error("result pages do not link their own outputs")
	}

	wantDims := [][2]int{{400, 300}, {800, 533}}
	for i, name := range names {
		data, err := os.ReadFile(store.Path(name))
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if cfg.Width != wantDims[i][0] || cfg.Height != wantDims[i][1] {
			t.Errorf("%s: got %dx%d, want %dx%d", name, cfg.Width, cfg.Height, wantDims[i][0], wantDims[i][1])
		}
	}
}

// pngHeader is a PNG stream holding only an IHDR chunk for w x h RGBA.
func pngHeader(w, h uint32) []byte {
	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	chunk := append([]byte("IHDR"), 0, 0, 0, 0, 0, 0, 0, 0, 8, 6, 0, 0, 0)
	binary.BigEndian.PutUint32(chunk[4:], w)
	binary.BigEndian.PutUint32(chunk[8:], h)
	binary.Write(&buf, binary.BigEndian, uint32(13))
	buf.Write(chunk)
	binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

func TestCompressRejectsOversizedDimensions(t *testing.T) {
	srv, store := newTestServer(t, Options{})
	rec := post(t, srv, upload{filename: "huge.png", contentType: "image/png", data: pngHeader(30000, 30000), size: strPtr("100")})
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status: got %d (%s)", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), msgTooManyPixels) {
		t.Errorf("body: %q", rec.Body.String())
	}
	entries, _ := os.ReadDir(store.Dir())
	if len(entries) != 0 {
		t.Errorf("files left in storage: %v", entries)
	}
}

func TestCompressWriteFailureRemovesUpload(t *testing.T) {
	srv, store := newTestServer(t, Options{})
	srv.writeOutput = func(string, []byte) (string, error) { return "", errors.New("disk full") }
	rec := post(t, srv, upload{filename: "a.jpg", contentType: "image/jpeg", data: jpegBytes(t, 400, 300), size: strPtr("500")})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status: got %d", rec.Code)
	}
	entries, _ := os.ReadDir(store.Dir())
	if len(entries) != 0 {
		t.Errorf("files left in storage: %v", entries)
	}
}

func TestCompressTimeoutWritesNothing(t *testing.T) {
	srv, store := newTestServer(t, Options{EncodeTimeout: time.Nanosecond})
	rec := post(t, srv, upload{filename: "a.jpg", contentType: "image/jpeg", data: jpegBytes(t, 400, 300), size: strPtr("1")})
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status: got %d (%s)", rec.Code, rec.Body.String())
	}
	entries, _ := os.ReadDir(store.Dir())
	if len(entries) != 0 {
		t.Errorf("files left in storage: %v", entries)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/compress", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status: %d", rec.Code)
	}
}

func TestUploadsHidesTempFiles(t *testing.T) {
	srv, store := newTestServer(t, Options{})
	if err := os.WriteFile(store.Path(".tmp-123"), []byte("partial"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/uploads/.tmp-123", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status: %d", rec.Code)
	}
}

func TestServeShutsDownOnCancel(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
}
