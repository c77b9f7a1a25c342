//go:build ignore

// gen_fixtures creates test images for the E2E smoke test:
//
//	go run gen_fixtures.go <output_dir>
//	imgshrink compress <output_dir> --target 60 --out <output_dir>/out
//	imgshrink validate <output_dir>/out/imgshrink.manifest.json
package main

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math/rand"
	"os"
	"path/filepath"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: gen_fixtures <output_dir>")
		os.Exit(1)
	}
	dir := os.Args[1]
	os.MkdirAll(filepath.Join(dir, "gallery"), 0o755)

	// Large detailed photo (JPEG, 2400x1600): needs several step-downs.
	writeJPEG(filepath.Join(dir, "photo.jpg"), texture(2400, 1600, 1))

	// Portrait shots (JPEG, 900x1200) that fit on the first attempt at 200 KB.
	for i := 1; i <= 3; i++ {
		name := fmt.Sprintf("portrait-%d.jpeg", i)
		writeJPEG(filepath.Join(dir, "gallery", name), gradient(900, 1200, uint8(i*60)))
	}

	// Small translucent logo (PNG, 120x120): flattened onto white.
	writePNG(filepath.Join(dir, "logo.png"), alphaGradient(120, 120))

	// Not an image: must fail decode without failing the batch.
	os.WriteFile(filepath.Join(dir, "broken.jpg"), []byte("not a jpeg"), 0o644)

	fmt.Fprintf(os.Stderr, "[gen_fixtures] created 6 fixtures in %s\n", dir)
}

func texture(w, h int, seed int64) *image.NRGBA {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			n := uint8(rng.Intn(64))
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8(x*191/w) + n,
				G: uint8(y*191/h) + n,
				B: uint8((x+y)%128) + n,
				A: 255,
			})
		}
	}
	return img
}

func gradient(w, h int, base uint8) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: base, G: uint8(y * 255 / h), B: uint8(x * 255 / w), A: 255})
		}
	}
	return img
}

func alphaGradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 220, G: 60, B: 30, A: uint8(x * 255 / w)})
		}
	}
	return img
}

func writePNG(path string, img image.Image) {
	f, err := os.Create(path)
	if err != nil {
		panic(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		panic(err)
	}
}

func writeJPEG(path string, img image.Image) {
	f, err := os.Create(path)
	if err != nil {
		panic(err)
	}
	defer f.Close()
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: 92}); err != nil {
		panic(err)
	}
}
