package amd

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultExtension is appended to module identifiers that carry no extension.
const DefaultExtension = ".js"

var (
	reProtocol    = regexp.MustCompile(`(?i)^[a-z][a-z0-9+.\-]*:`)
	reHasProtocol = regexp.MustCompile(`(?i)[a-z]+:`)
	reResourceExt = regexp.MustCompile(`\.[a-zA-Z0-9_]+$`)
)

// Resolve resolves id relative to the module identified by relativeTo.
// Only ids starting with "./" or "../" are relative; any other id is
// returned unchanged.
func Resolve(id, relativeTo string) string {
	segments := strings.Split(relativeTo, "/")
	segments = segments[:len(segments)-1]

	switch {
	case strings.HasPrefix(id, "./"):
		return joinDir(segments) + id[2:]
	case strings.HasPrefix(id, "../"):
		if len(segments) > 0 {
			segments = segments[:len(segments)-1]
		}
		return joinDir(segments) + id[3:]
	}
	return id
}

func joinDir(segments []string) string {
	if len(segments) == 0 {
		return ""
	}
	return strings.Join(segments, "/") + "/"
}

// ToURL converts a module identifier into the URL of the script that
// defines it, using the base URL, path aliases and URL arguments of cfg.
// An empty ext means DefaultExtension.
func ToURL(id, relativeTo string, cfg Config, ext string) string {
	return ToURLWith(id, relativeTo, cfg.BaseURL, cfg.Paths, cfg.URLArgs, ext)
}

// ToURLWith is ToURL with every configuration part passed explicitly.
//
// Path aliases match when the key equals the resolved id or is a
// "/"-bounded prefix of it; the longest matching key wins. Ids that are
// absolute, protocol-qualified or already end in ext are returned as is.
func ToURLWith(id, relativeTo, baseURL string, paths map[string]string, urlArgs, ext string) string {
	ext = normalizeExt(ext)

	id = expandPath(Resolve(id, relativeTo), paths)

	if strings.HasPrefix(id, "/") || reProtocol.MatchString(id) ||
		strings.HasSuffix(strings.ToLower(id), strings.ToLower(ext)) {
		return id
	}

	return baseURL + id + ext + urlArgs
}

func normalizeExt(ext string) string {
	if ext == "" {
		return DefaultExtension
	}
	if !strings.HasPrefix(ext, ".") {
		return "." + ext
	}
	return ext
}

func expandPath(id string, paths map[string]string) string {
	best := ""
	found := false
	for key := range paths {
		if id != key && !strings.HasPrefix(id, key+"/") {
			continue
		}
		if !found || len(key) > len(best) {
			best = key
			found = true
		}
	}
	if !found {
		return id
	}
	return paths[best] + id[len(best):]
}

// IsValidIdentifier reports whether id only contains alphanumerics, '_',
// '-', '/' and '.', has no file-extension-like '.' and no empty segment.
func IsValidIdentifier(id string) bool {
	for i := 0; i < len(id); i++ {
		if !isIdentifierChar(id[i]) {
			return false
		}
	}

	// A '.' that sits between two non-'/' characters looks like an extension.
	for i := 1; i < len(id)-1; i++ {
		if id[i] == '.' && id[i-1] != '/' && id[i-1] != '.' && id[i+1] != '/' && id[i+1] != '.' {
			return false
		}
	}

	return !strings.Contains(id, "//")
}

func isIdentifierChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '_', c == '-', c == '/', c == '.':
		return true
	}
	return false
}

// IsValidExplicitIdentifier reports whether id may be used as the explicit
// identifier of a definition: valid, not relative, and without a protocol.
func IsValidExplicitIdentifier(id string) bool {
	if id == "" || !IsValidIdentifier(id) {
		return false
	}
	if strings.HasPrefix(id, "./") || strings.HasPrefix(id, "../") {
		return false
	}
	return !reHasProtocol.MatchString(id)
}

// ResourceURL converts a non-module resource such as "templates/row.html"
// into a URL. The extension is preserved and no URL arguments are added.
func ResourceURL(resource, relativeTo string, cfg Config) (string, error) {
	ext := reResourceExt.FindString(resource)
	if ext == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidResource, resource)
	}
	id := strings.TrimSuffix(resource, ext)
	return ToURLWith(id, relativeTo, cfg.BaseURL, cfg.Paths, "", ext), nil
}
