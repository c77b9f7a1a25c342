package pipeline

import (
	"os"
	"path/filepath"
	"strings"
)

// Source represents a discovered image file.
type Source struct {
	// AbsPath is the absolute path to the file on disk.
	AbsPath string
	// RelPath is the path relative to the input directory.
	RelPath string
	// Key is the asset key: relpath without extension, or the full relpath
	// when that would be ambiguous.
	Key string
	// Format is the source format (jpeg or png).
	Format string
	// Size is the file size in bytes.
	Size int64
}

// imageExtensions lists the accepted source extensions.
var imageExtensions = map[string]string{
	".png":  "png",
	".jpg":  "jpeg",
	".jpeg": "jpeg",
}

// ScanImages walks the input directory and returns all image sources.
// Hidden directories and previously compressed outputs are skipped. Sources
// whose extension-less keys collide (photo.jpg, photo.png) are keyed by
// their full relative path instead.
func ScanImages(inputDir string) ([]Source, error) {
	var sources []Source

	err := filepath.Walk(inputDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if strings.HasPrefix(info.Name(), ".") && path != inputDir {
				return filepath.SkipDir
			}
			return nil
		}

		ext := strings.ToLower(filepath.Ext(path))
		format, ok := imageExtensions[ext]
		if !ok || strings.Contains(info.Name(), compressedMarker) {
			return nil
		}

		relPath, err := filepath.Rel(inputDir, path)
		if err != nil {
			return err
		}

		// Key: relative path without extension, using forward slashes.
		key := filepath.ToSlash(strings.TrimSuffix(relPath, filepath.Ext(relPath)))

		sources = append(sources, Source{
			AbsPath: path,
			RelPath: filepath.ToSlash(relPath),
			Key:     key,
			Format:  format,
			Size:    info.Size(),
		})

		return nil
	})
	if err != nil {
		return nil, err
	}

	disambiguateKeys(sources)
	return sources, nil
}

func disambiguateKeys(sources []Source) {
	count := make(map[string]int, len(sources))
	for _, s := range sources {
		count[s.Key]++
	}
	for i := range sources {
		if count[sources[i].Key] > 1 {
			sources[i].Key = sources[i].RelPath
		}
	}
}
