package files

import (
	"path/filepath"
	"strings"
)

// mimeByExt is the fixed lookup table for stored filenames. Unknown
// extensions fall back to octet-stream.
var mimeByExt = map[string]string{
	".pdf":  "application/pdf",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".txt":  "text/plain",
	".mp4":  "video/mp4",
	".avi":  "video/x-msvideo",
	".mov":  "video/quicktime",
	".wmv":  "video/x-ms-wmv",
	".webm": "video/webm",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".aac":  "audio/aac",
	".ogg":  "audio/ogg",
	".flac": "audio/flac",
	".m4a":  "audio/mp4",
}

// MIMEType derives the canonical MIME string from a filename's extension.
func MIMEType(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if mt, ok := mimeByExt[ext]; ok {
		return mt
	}
	return "application/octet-stream"
}

// IsVideoFilename reports whether the extension belongs to a supported video container.
func IsVideoFilename(filename string) bool {
	return strings.HasPrefix(MIMEType(filename), "video/")
}

// IsAudioFilename reports whether the extension belongs to a supported audio format.
func IsAudioFilename(filename string) bool {
	return strings.HasPrefix(MIMEType(filename), "audio/")
}
