package media

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// mime subtype overrides where the subtype is not a usable extension.
var extByMime = map[string]string{
	"audio/ogg; codecs=opus": "ogg",
	"audio/mpeg":             "mp3",
	"image/jpeg":             "jpeg",
	"video/mp4":              "mp4",
	"application/pdf":        "pdf",
	"image/webp":             "webp",
	"audio/mp4":              "m4a",
}

// Sanitize makes a filename safe to join onto the public media root:
// wrapping quotes are stripped and every character outside [A-Za-z0-9_.-]
// becomes an underscore.
func Sanitize(name string) string {
	name = strings.Trim(name, `"'`)
	return unsafeChars.ReplaceAllString(name, "_")
}

// Filename picks the on-disk name for a downloaded attachment. Documents
// arrive with an original filename, which is kept but prefixed with the
// receive timestamp to avoid collisions; everything else is named from the
// timestamp plus an extension inferred from the MIME type.
func Filename(original, mimeType string, receivedAt time.Time) string {
	ts := receivedAt.UnixMilli()
	if original != "" {
		return fmt.Sprintf("%d_%s", ts, Sanitize(original))
	}
	return fmt.Sprintf("%d.%s", ts, extensionFor(mimeType))
}

func extensionFor(mimeType string) string {
	if ext, ok := extByMime[mimeType]; ok {
		return ext
	}
	// Strip codec parameters, then take the subtype.
	base := mimeType
	if i := strings.Index(base, ";"); i >= 0 {
		base = strings.TrimSpace(base[:i])
	}
	if ext, ok := extByMime[base]; ok {
		return ext
	}
	if i := strings.Index(base, "/"); i >= 0 && i+1 < len(base) {
		return Sanitize(base[i+1:])
	}
	return "unknown"
}
