// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

import "time"

// File upload constants
const (
	// MaxUploadSize is the maximum multipart request size in bytes (16MB)
	MaxUploadSize = 16 << 20

	// MaxImagesPerEnrollment bounds the number of files accepted in one enrollment
	MaxImagesPerEnrollment = 32
)

// HTTP server constants
const (
	// RequestTimeout bounds the handling time of a single request
	RequestTimeout = 2 * time.Minute

	// ShutdownTimeout is how long graceful shutdown waits for in-flight requests
	ShutdownTimeout = 30 * time.Second
)

// Bulk enrollment constants
const (
	// IdentityFileName is the per-identity metadata file read by enroll --dir
	IdentityFileName = "identity.yaml"
)

// SupportedImageExtensions lists the file extensions picked up from enrollment directories
var SupportedImageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".webp": true,
}
