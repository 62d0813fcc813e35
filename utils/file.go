package utils

import (
	"path/filepath"
	"strings"
)

var supportedImageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
}

// IsRasterImage checks if the filename has a common raster image extension
func IsRasterImage(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return supportedImageExtensions[ext]
}

// SanitizeFilename strips path components and rejects traversal tricks,
// returning fallback when nothing usable remains.
func SanitizeFilename(name, fallback string) string {
	name = filepath.Base(filepath.ToSlash(name))
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, "/\\") {
		return fallback
	}
	return name
}
