package sourcemap

import (
	"path"
	"runtime"
	"strings"
)

// caseInsensitiveFS mirrors the default filesystem semantics of the platform.
var caseInsensitiveFS = runtime.GOOS == "windows" || runtime.GOOS == "darwin"

// NormalizePath canonicalizes a path for equality checks. Map "sources"
// entries are URL-like and may mix separators and casing conventions, so all
// comparisons go through this.
func NormalizePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = path.Clean(p)
	if caseInsensitiveFS {
		p = strings.ToLower(p)
	}
	return p
}

// PathEquals compares two paths under the platform's case convention.
func PathEquals(a, b string) bool {
	return NormalizePath(a) == NormalizePath(b)
}

// swapPathSegment replaces the first occurrence of /old/ with /new/ and
// reports whether anything changed.
func swapPathSegment(p, old, new string) (string, bool) {
	normalized := strings.ReplaceAll(p, "\\", "/")
	needle := "/" + old + "/"
	idx := strings.Index(normalized, needle)
	if idx < 0 {
		return p, false
	}
	return normalized[:idx] + "/" + new + "/" + normalized[idx+len(needle):], true
}

// swapExtension rewrites the trailing extension, e.g. ".ts" -> ".js".
func swapExtension(p, ext string) string {
	old := path.Ext(strings.ReplaceAll(p, "\\", "/"))
	if old == "" {
		return p + ext
	}
	return p[:len(p)-len(old)] + ext
}
