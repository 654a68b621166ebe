// Package constants provides shared constants used across the codebase.
package constants

// Handler pagination constants
const (
	// DefaultSessionPageSize is the number of sessions listed per class
	DefaultSessionPageSize = 50

	// MaxSessionPageSize is the largest accepted limit for session listings
	MaxSessionPageSize = 500
)

// File upload constants
const (
	// MaxUploadSize is the maximum multipart body size held in memory (100MB)
	MaxUploadSize = 100 << 20
)
