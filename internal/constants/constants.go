// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

// Image constants
const (
	// MaxImagesPerRequest caps the number of photos accepted in a single
	// enrollment or attendance request
	MaxImagesPerRequest = 50
)

// ImageExtensions lists the file extensions the CLI picks up from a directory
var ImageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
	".webp": true,
}

// Retention constants
const (
	// DefaultRetentionDays is how long attendance sessions are kept by default
	DefaultRetentionDays = 30
)
