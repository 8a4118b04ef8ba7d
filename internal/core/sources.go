package core

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/csvlint/internal/csvw"
)

// DocumentKind says which validator a document drives.
type DocumentKind int

const (
	// DocumentUnknown is neither a table schema nor CSVW metadata.
	DocumentUnknown DocumentKind = iota
	// DocumentTableSchema is a JSON Table Schema with a top-level fields list.
	DocumentTableSchema
	// DocumentMetadata is a CSVW metadata document.
	DocumentMetadata
)

// DetectDocument inspects the top-level keys of a JSON or YAML document.
// YAML is a superset of JSON, so one decoder serves both.
func DetectDocument(data []byte) DocumentKind {
	var top map[string]any
	if err := yaml.Unmarshal(data, &top); err != nil || top == nil {
		return DocumentUnknown
	}
	if _, ok := top["fields"]; ok {
		return DocumentTableSchema
	}
	for _, key := range []string{"tables", "tableSchema", "url", "@context"} {
		if _, ok := top[key]; ok {
			return DocumentMetadata
		}
	}
	return DocumentUnknown
}

// OpenTableFiles opens the data for a run. With no paths it opens every
// table of g that points at a local file. The returned func closes them.
func OpenTableFiles(g *csvw.Group, paths []string) ([]Source, func(), error) {
	var files []*os.File
	closeAll := func() {
		for _, f := range files {
			f.Close()
		}
	}

	if len(paths) == 0 {
		for _, t := range g.Tables {
			p, ok := csvw.PathFromURL(t.URL)
			if !ok {
				closeAll()
				return nil, nil, fmt.Errorf("table %s is not a local file; pass its path explicitly", t.URL)
			}
			paths = append(paths, p)
		}
	}

	sources := make([]Source, 0, len(paths))
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("open %s: %w", p, err)
		}
		files = append(files, f)

		name := filepath.Base(p)
		if u, err := csvw.FileURL(p); err == nil {
			if _, ok := g.Table(u); ok {
				name = u
			}
		}
		sources = append(sources, Source{Name: name, Reader: f})
	}
	return sources, closeAll, nil
}
