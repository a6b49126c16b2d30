package plugin

import (
	"path/filepath"
	"regexp"
	"strings"
)

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// SanitizeFilename strips path components and unsafe characters from
// a remotely-supplied filename so it can be written inside the
// pipelines temporary directory without escaping it.
func SanitizeFilename(filename string) string {
	filename = filepath.Base(filename)
	filename = unsafeFilenameChars.ReplaceAllString(filename, "_")

	ext := filepath.Ext(filename)
	name := strings.TrimSuffix(filename, ext)
	if ext == "." {
		ext = ""
	}

	name = strings.TrimRight(name, ".")
	if len(name) > 100 {
		name = name[:100]
	}
	if name == "" {
		name = "download"
	}

	return name + ext
}
