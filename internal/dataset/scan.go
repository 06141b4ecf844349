// Package dataset bulk-enrolls identities from a directory tree with one
// sub-folder of photos per person.
package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// imageExtensions are the file types picked up from a folder.
var imageExtensions = []string{".jpg", ".jpeg", ".png", ".bmp", ".webp"}

// IsImage reports whether path has a supported image extension.
func IsImage(path string) bool {
	return slices.Contains(imageExtensions, strings.ToLower(filepath.Ext(path)))
}

// Folder is one identity directory of the dataset.
type Folder struct {
	// Key is the directory name.
	Key string
	// Dir is the directory path.
	Dir string
	// Images are the image paths, sorted by file name.
	Images []string
}

// ScanFolder lists the images in dir.
func ScanFolder(dir string) (Folder, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Folder{}, fmt.Errorf("reading folder %s: %w", dir, err)
	}
	f := Folder{Key: filepath.Base(dir), Dir: dir}
	for _, e := range entries {
		if e.Type().IsRegular() && IsImage(e.Name()) {
			f.Images = append(f.Images, filepath.Join(dir, e.Name()))
		}
	}
	return f, nil
}

// Scan lists every identity folder directly under root, sorted by name.
// Hidden directories are ignored.
func Scan(root string) ([]Folder, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("reading dataset %s: %w", root, err)
	}
	var folders []Folder
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		f, err := ScanFolder(filepath.Join(root, e.Name()))
		if err != nil {
			return nil, err
		}
		folders = append(folders, f)
	}
	return folders, nil
}
