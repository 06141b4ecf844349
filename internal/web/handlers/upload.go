package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"

	"github.com/kozaktomas/face-registry/internal/recognition"
)

var errNoMultipart = errors.New("failed to parse multipart form")

// parseForm parses a multipart body, keeping at most maxMemory bytes in
// memory before spilling to temporary files.
func parseForm(r *http.Request, maxMemory int64) error {
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		return errNoMultipart
	}
	return nil
}

// readImages loads every file uploaded under field. The source of each
// image is its base file name.
// Nameless uploads get a generated source.
func readImages(r *http.Request, field string) ([]recognition.Image, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}
	files := r.MultipartForm.File[field]
	images := make([]recognition.Image, 0, len(files))
	for _, fileHeader := range files {
		data, err := readFile(fileHeader)
		if err != nil {
			return nil, err
		}
		source := filepath.Base(fileHeader.Filename)
		if source == "." || source == string(filepath.Separator) {
			source = ""
		}
		images = append(images, recognition.Image{Source: source, Data: data})
	}
	return images, nil
}

func readFile(fileHeader *multipart.FileHeader) ([]byte, error) {
	file, err := fileHeader.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %s", fileHeader.Filename)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %s", fileHeader.Filename)
	}
	return data, nil
}

// formValue returns a multipart field and whether it was sent at all.
func formValue(r *http.Request, key string) (string, bool) {
	if r.MultipartForm == nil {
		return "", false
	}
	values, ok := r.MultipartForm.Value[key]
	if !ok || len(values) == 0 {
		return "", false
	}
	return values[0], true
}
