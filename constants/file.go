package constants

import "strings"

// MaxUploadSize caps receipt image uploads at 10MB.
const MaxUploadSize = 10 << 20

// AllowedContentTypes holds the accepted MIME types for receipt uploads.
var AllowedContentTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/jpg":  {},
	"image/png":  {},
	"image/webp": {},
}

// AllowedExtensions holds the accepted file extensions for receipt uploads.
var AllowedExtensions = map[string]struct{}{
	"jpg":  {},
	"jpeg": {},
	"png":  {},
	"webp": {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// IsAllowedContentType reports whether ct is an accepted upload MIME type.
func IsAllowedContentType(ct string) bool {
	_, ok := AllowedContentTypes[strings.ToLower(ct)]
	return ok
}

// IsAllowedExt reports whether ext (with or without dot) is accepted.
func IsAllowedExt(ext string) bool {
	_, ok := AllowedExtensions[NormalizeExt(ext)]
	return ok
}
