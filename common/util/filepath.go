package util

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// EscapeFileName escapes each part of the input path and makes it suitable to be used in a filename.
// The returned path is cleaned (which means it is separated using filepath.Separator, regardless of
// if the input path used slashes or filepath.Separator).
func EscapeFileName(path string) string {
	var (
		encoded string
		parts   = strings.Split(filepath.Clean(path), string(filepath.Separator))
	)
	for _, part := range parts {
		enc := url.QueryEscape(part)
		if encoded == "" {
			encoded = enc
		} else {
			encoded = filepath.Join(encoded, enc)
		}
	}
	return encoded
}

// UnescapeFileName unescapes each part of the input path and restores the original part values that were
// passed into EscapeFileName.
// The returned path is cleaned (which means it is separated using filepath.Separator, regardless of
// if the input path used slashes or filepath.Separator).
func UnescapeFileName(path string) (string, error) {
	var (
		decoded string
		parts   = strings.Split(filepath.Clean(path), string(filepath.Separator))
	)
	for _, part := range parts {
		dec, err := url.QueryUnescape(part)
		if err != nil {
			return "", fmt.Errorf("error decoding part %q: %w", part, err)
		}
		if decoded == "" {
			decoded = dec
		} else {
			decoded = filepath.Join(decoded, dec)
		}
	}
	return decoded, nil
}

// SafeJoin joins a slash-separated relative path onto root, returning an error if the result would
// not be inside root.
func SafeJoin(root string, relPath string) (string, error) {
	if strings.HasPrefix(relPath, "/") || filepath.IsAbs(relPath) {
		return "", fmt.Errorf("error path %q must be relative", relPath)
	}
	joined := filepath.Join(root, filepath.FromSlash(relPath))
	rel, err := filepath.Rel(root, joined)
	if err != nil {
		return "", fmt.Errorf("error making path %q relative to %q: %w", joined, root, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("error path %q escapes %q", relPath, root)
	}
	return joined, nil
}
