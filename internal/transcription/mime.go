package transcription

import (
	"mime"
	"path/filepath"
	"sort"
	"strings"
)

// Officially supported upload formats.
var supportedMimeTypes = map[string]struct{}{
	"audio/m4a":  {},
	"audio/mpeg": {},
	"audio/webm": {},
	"audio/wav":  {},
	"audio/mp4":  {},
}

// Platform spellings of supported formats.
var mimeAliases = map[string]string{
	"audio/x-m4a":    "audio/m4a",
	"audio/x-wav":    "audio/wav",
	"audio/wave":     "audio/wav",
	"audio/vnd.wave": "audio/wav",
	"audio/x-mp3":    "audio/mpeg",
	"audio/mp3":      "audio/mpeg",
}

var extensionMimeTypes = map[string]string{
	".m4a":  "audio/m4a",
	".mp3":  "audio/mpeg",
	".webm": "audio/webm",
	".wav":  "audio/wav",
	".mp4":  "audio/mp4",
}

// NormalizeMimeType lowercases mimeType, strips parameters such as
// ";codecs=opus" and maps platform aliases to their canonical type.
func NormalizeMimeType(mimeType string) string {
	mediaType, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0]))
	}
	if canonical, ok := mimeAliases[mediaType]; ok {
		return canonical
	}
	return mediaType
}

// IsSupported reports whether mimeType passes the format gate after normalization.
func IsSupported(mimeType string) bool {
	_, ok := supportedMimeTypes[NormalizeMimeType(mimeType)]
	return ok
}

// SupportedMimeTypes lists the canonical accepted types.
func SupportedMimeTypes() []string {
	types := make([]string, 0, len(supportedMimeTypes))
	for t := range supportedMimeTypes {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// MimeTypeForFile guesses a supported type from a file name. It returns ""
// for unknown extensions.
func MimeTypeForFile(name string) string {
	return extensionMimeTypes[strings.ToLower(filepath.Ext(name))]
}
