package frames

import (
	"bytes"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
)

// videoExtensions covers containers ffmpeg reads that the platform mime
// table often lacks.
var videoExtensions = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/x-m4v",
	".mov":  "video/quicktime",
	".qt":   "video/quicktime",
	".webm": "video/webm",
	".mkv":  "video/x-matroska",
	".avi":  "video/x-msvideo",
	".3gp":  "video/3gpp",
	".ogv":  "video/ogg",
}

// DetectMediaType resolves the media type of an upload. A declared video/*
// type wins. A declared non-generic type that is not video is kept so the
// caller can reject it. Otherwise the filename extension is consulted, then
// the content itself.
func DetectMediaType(filename, declared string, data []byte) string {
	if declared != "" {
		if mediaType, _, err := mime.ParseMediaType(declared); err == nil {
			if IsVideo(mediaType) || mediaType != "application/octet-stream" {
				return mediaType
			}
		}
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if ext != "" {
		if t, ok := videoExtensions[ext]; ok {
			return t
		}
		if t, _, err := mime.ParseMediaType(mime.TypeByExtension(ext)); err == nil && IsVideo(t) {
			return t
		}
	}

	return sniff(data)
}

// IsVideo reports whether mediaType is a video/* type.
func IsVideo(mediaType string) bool {
	return strings.HasPrefix(mediaType, "video/")
}

func sniff(data []byte) string {
	// ISO base media: size(4) "ftyp" brand(4); http sniffing misses QuickTime
	if len(data) >= 12 && bytes.Equal(data[4:8], []byte("ftyp")) {
		switch brand := string(data[8:12]); brand {
		case "qt  ":
			return "video/quicktime"
		case "heic", "heix", "mif1", "msf1", "avif":
			return "image/" + strings.TrimSpace(brand)
		default:
			return "video/mp4"
		}
	}
	mediaType, _, _ := mime.ParseMediaType(http.DetectContentType(data))
	return mediaType
}
