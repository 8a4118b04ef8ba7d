package csvw

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// MetadataError reports metadata that cannot be resolved into tables. It is
// fatal: the description, not the data, is broken.
type MetadataError struct {
	Path    string // e.g. "$.tables[?(@.url = 'a.csv')].tableSchema.columns"
	Message string
}

func (e *MetadataError) Error() string {
	if e.Path == "" {
		return "metadata: " + e.Message
	}
	return fmt.Sprintf("metadata: %s: %s", e.Path, e.Message)
}

// FileURL converts a local path to an absolute file:// URL.
func FileURL(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	return u.String(), nil
}

// PathFromURL converts a file:// URL back to a local path. ok is false for
// any other kind of URL.
func PathFromURL(u string) (path string, ok bool) {
	if !strings.HasPrefix(u, "file:") {
		return "", false
	}
	parsed, err := url.Parse(u)
	if err != nil {
		return "", false
	}
	return filepath.FromSlash(parsed.Path), true
}
