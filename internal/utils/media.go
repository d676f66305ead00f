package utils

import (
	"mime"
	"net/url"
	"path"
	"strings"
	"unicode"
)

const maxFileNameLength = 200

var contentTypeToExt = map[string]string{
	"video/mp4":        "mp4",
	"video/webm":       "webm",
	"video/quicktime":  "mov",
	"video/x-matroska": "mkv",
	"video/x-flv":      "flv",
	"video/x-m4v":      "m4v",
	"video/3gpp":       "3gp",
	"video/mp2t":       "ts",
	"audio/mp4":        "m4a",
	"audio/x-m4a":      "m4a",
	"audio/mpeg":       "mp3",
	"audio/webm":       "weba",
	"audio/ogg":        "ogg",
	"audio/opus":       "opus",
	"audio/aac":        "aac",
	"audio/wav":        "wav",
	"image/jpeg":       "jpg",
	"image/png":        "png",
	"image/gif":        "gif",
	"image/webp":       "webp",
	"image/avif":       "avif",
}

var extToContentType = map[string]string{
	"mp4":  "video/mp4",
	"webm": "video/webm",
	"mov":  "video/quicktime",
	"mkv":  "video/x-matroska",
	"flv":  "video/x-flv",
	"m4v":  "video/x-m4v",
	"3gp":  "video/3gpp",
	"ts":   "video/mp2t",
	"m4a":  "audio/mp4",
	"mp3":  "audio/mpeg",
	"weba": "audio/webm",
	"ogg":  "audio/ogg",
	"opus": "audio/opus",
	"aac":  "audio/aac",
	"wav":  "audio/wav",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"webp": "image/webp",
	"avif": "image/avif",
}

// ExtensionFor infers a file extension (without the dot) from the upstream
// content type, then from the URL path. It returns "bin" when neither is known.
func ExtensionFor(contentType, rawURL string) string {
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		if ext, ok := contentTypeToExt[strings.ToLower(mediaType)]; ok {
			return ext
		}
	}

	if ext := urlExtension(rawURL); ext != "" {
		if _, ok := extToContentType[ext]; ok {
			return ext
		}
	}

	// Signed CDN URLs often carry the container in a query parameter.
	if u, err := url.Parse(rawURL); err == nil {
		for _, key := range []string{"mime", "mime_type", "type"} {
			if v := u.Query().Get(key); v != "" {
				if ext, ok := contentTypeToExt[strings.ToLower(v)]; ok {
					return ext
				}
			}
		}
	}

	return "bin"
}

// ContentTypeForExt returns the content type for a known extension or
// application/octet-stream.
func ContentTypeForExt(ext string) string {
	if ct, ok := extToContentType[strings.ToLower(strings.TrimPrefix(ext, "."))]; ok {
		return ct
	}
	return "application/octet-stream"
}

func urlExtension(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	ext := strings.TrimPrefix(path.Ext(u.Path), ".")
	return strings.ToLower(ext)
}

// SanitizeFileName turns a display title into a safe attachment file name
// stem: path separators and reserved characters become underscores, control
// characters are dropped, and the result is capped in length.
func SanitizeFileName(title string) string {
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
		"..", "_",
	)
	sanitized := replacer.Replace(title)

	sanitized = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, sanitized)

	sanitized = strings.Join(strings.Fields(sanitized), " ")
	sanitized = strings.Trim(sanitized, " ._")

	if len(sanitized) > maxFileNameLength {
		cut := maxFileNameLength
		// avoid splitting a multi-byte rune
		for cut > 0 && !isRuneStart(sanitized[cut]) {
			cut--
		}
		sanitized = strings.TrimSpace(sanitized[:cut])
	}

	if sanitized == "" {
		return "media"
	}
	return sanitized
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

// AttachmentFileName builds "<sanitized title>.<ext>".
func AttachmentFileName(title, contentType, rawURL string) string {
	return SanitizeFileName(title) + "." + ExtensionFor(contentType, rawURL)
}
