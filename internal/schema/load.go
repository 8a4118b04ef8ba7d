package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/csvlint/internal/field"
)

// MetadataError reports a schema document that cannot be turned into a
// Schema. It is fatal: the schema, not the data, is broken.
type MetadataError struct {
	Path    string // location inside the document, e.g. "$.fields[2].constraints.type"
	Message string
}

func (e *MetadataError) Error() string {
	if e.Path == "" {
		return "schema: " + e.Message
	}
	return fmt.Sprintf("schema: %s: %s", e.Path, e.Message)
}

type document struct {
	Title       string            `json:"title" yaml:"title"`
	Description string            `json:"description" yaml:"description"`
	Fields      []fieldDescriptor `json:"fields" yaml:"fields"`
}

type fieldDescriptor struct {
	Name        string                `json:"name" yaml:"name"`
	Title       string                `json:"title" yaml:"title"`
	Description string                `json:"description" yaml:"description"`
	Constraints constraintsDescriptor `json:"constraints" yaml:"constraints"`
}

type constraintsDescriptor struct {
	Required    bool   `json:"required" yaml:"required"`
	Unique      bool   `json:"unique" yaml:"unique"`
	MinLength   *int   `json:"minLength" yaml:"minLength"`
	MaxLength   *int   `json:"maxLength" yaml:"maxLength"`
	Pattern     string `json:"pattern" yaml:"pattern"`
	Type        string `json:"type" yaml:"type"`
	DatePattern string `json:"datePattern" yaml:"datePattern"`
	Minimum     any    `json:"minimum" yaml:"minimum"`
	Maximum     any    `json:"maximum" yaml:"maximum"`
}

// Load reads a schema document from disk. Files ending in .yaml or .yml are
// decoded as YAML, everything else as JSON.
func Load(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema %s: %w", path, err)
	}
	uri := path
	if abs, err := filepath.Abs(path); err == nil {
		uri = abs
	}
	return Parse(uri, data, IsYAMLPath(path))
}

// IsYAMLPath reports whether path names a YAML document.
func IsYAMLPath(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// Parse decodes a schema document.
func Parse(uri string, data []byte, isYAML bool) (*Schema, error) {
	var doc document
	if isYAML {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, &MetadataError{Message: "invalid YAML: " + err.Error()}
		}
	} else {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&doc); err != nil {
			return nil, &MetadataError{Message: "invalid JSON: " + err.Error()}
		}
	}

	s := &Schema{URI: uri, Title: doc.Title, Description: doc.Description}
	for i, fd := range doc.Fields {
		typ, err := field.ParseDatatype(fd.Constraints.Type)
		if err != nil {
			return nil, &MetadataError{
				Path:    fmt.Sprintf("$.fields[%d].constraints.type", i),
				Message: err.Error(),
			}
		}
		f := field.New(fd.Name, field.Constraints{
			Required:    fd.Constraints.Required,
			Unique:      fd.Constraints.Unique,
			MinLength:   fd.Constraints.MinLength,
			MaxLength:   fd.Constraints.MaxLength,
			Pattern:     fd.Constraints.Pattern,
			Type:        typ,
			DatePattern: fd.Constraints.DatePattern,
			Minimum:     BoundString(fd.Constraints.Minimum),
			Maximum:     BoundString(fd.Constraints.Maximum),
		})
		f.Title = fd.Title
		f.Description = fd.Description
		s.Fields = append(s.Fields, f)
	}
	return s, nil
}

// BoundString renders a minimum/maximum value from a decoded document in
// the textual form field constraints expect.
func BoundString(v any) string {
	switch b := v.(type) {
	case nil:
		return ""
	case string:
		return b
	case json.Number:
		return b.String()
	case float64:
		return strconv.FormatFloat(b, 'f', -1, 64)
	case int:
		return strconv.Itoa(b)
	case int64:
		return strconv.FormatInt(b, 10)
	case uint64:
		return strconv.FormatUint(b, 10)
	case bool:
		return strconv.FormatBool(b)
	case time.Time:
		// YAML resolves unquoted dates to timestamps.
		if b.Hour() == 0 && b.Minute() == 0 && b.Second() == 0 && b.Nanosecond() == 0 {
			return b.Format("2006-01-02")
		}
		return b.Format("2006-01-02T15:04:05Z07:00")
	default:
		return fmt.Sprint(b)
	}
}
