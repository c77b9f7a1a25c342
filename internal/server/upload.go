package server

import (
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"path/filepath"
	"strings"
)

const (
	msgNoFile        = "No file uploaded."
	msgFileType      = "Only jpeg, jpg, and png image files are allowed!"
	msgInvalidTarget = "Target size must be a positive number of kilobytes."
	msgTooLarge      = "Uploaded file is too large."
	msgTooManyPixels = "Image dimensions are too large."
	msgNotAnImage    = "The uploaded file is not a valid image."
	msgTimeout       = "Compression took too long, please try again."
	msgInternal      = "Error compressing image"
)

var (
	errNoFile         = errors.New("no file uploaded")
	errFileTypeDenied = errors.New("file type not allowed")
)

// Both the declared MIME type and the file extension must be allowed.
var (
	allowedMIMETypes = map[string]bool{
		"image/jpeg": true,
		"image/jpg":  true,
		"image/png":  true,
	}
	allowedExtensions = map[string]bool{
		".jpeg": true,
		".jpg":  true,
		".png":  true,
	}
)

// checkUpload validates an uploaded file header and returns its lowercased
// extension.
func checkUpload(h *multipart.FileHeader) (string, error) {
	if h == nil || h.Filename == "" {
		return "", errNoFile
	}
	ext := strings.ToLower(filepath.Ext(h.Filename))
	if !allowedExtensions[ext] {
		return "", fmt.Errorf("%w (extension %q)", errFileTypeDenied, ext)
	}
	mediaType, _, err := mime.ParseMediaType(h.Header.Get("Content-Type"))
	if err != nil || !allowedMIMETypes[strings.ToLower(mediaType)] {
		return "", fmt.Errorf("%w (type %q)", errFileTypeDenied, h.Header.Get("Content-Type"))
	}
	return ext, nil
}
