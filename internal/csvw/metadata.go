package csvw

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"slices"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/csvlint/internal/diagnostic"
	"github.com/JonMunkholm/csvlint/internal/field"
	"github.com/JonMunkholm/csvlint/internal/schema"
)

type metadataDocument struct {
	Type        string            `json:"@type" yaml:"@type"`
	URL         string            `json:"url" yaml:"url"`
	TableSchema *schemaDescriptor `json:"tableSchema" yaml:"tableSchema"`
	Tables      []tableDescriptor `json:"tables" yaml:"tables"`
}

type tableDescriptor struct {
	Type        string            `json:"@type" yaml:"@type"`
	URL         string            `json:"url" yaml:"url"`
	TableSchema *schemaDescriptor `json:"tableSchema" yaml:"tableSchema"`
}

type schemaDescriptor struct {
	ID          string                 `json:"@id" yaml:"@id"`
	Columns     []columnDescriptor     `json:"columns" yaml:"columns"`
	PrimaryKey  stringList             `json:"primaryKey" yaml:"primaryKey"`
	ForeignKeys []foreignKeyDescriptor `json:"foreignKeys" yaml:"foreignKeys"`
}

type columnDescriptor struct {
	Name      string              `json:"name" yaml:"name"`
	Titles    stringList          `json:"titles" yaml:"titles"`
	Datatype  *datatypeDescriptor `json:"datatype" yaml:"datatype"`
	Required  bool                `json:"required" yaml:"required"`
	Unique    bool                `json:"unique" yaml:"unique"`
	Null      *stringList         `json:"null" yaml:"null"`
	Separator string              `json:"separator" yaml:"separator"`
	Virtual   bool                `json:"virtual" yaml:"virtual"`
}

type foreignKeyDescriptor struct {
	ColumnReference stringList          `json:"columnReference" yaml:"columnReference"`
	Reference       referenceDescriptor `json:"reference" yaml:"reference"`
}

type referenceDescriptor struct {
	Resource        string     `json:"resource" yaml:"resource"`
	SchemaReference string     `json:"schemaReference" yaml:"schemaReference"`
	ColumnReference stringList `json:"columnReference" yaml:"columnReference"`
}

// datatypeDescriptor is either a bare type name or an object with a base
// type and constraint facets.
type datatypeDescriptor struct {
	Base         string `json:"base" yaml:"base"`
	Format       string `json:"format" yaml:"format"`
	Pattern      string `json:"pattern" yaml:"pattern"`
	MinLength    *int   `json:"minLength" yaml:"minLength"`
	MaxLength    *int   `json:"maxLength" yaml:"maxLength"`
	Minimum      any    `json:"minimum" yaml:"minimum"`
	Maximum      any    `json:"maximum" yaml:"maximum"`
	MinInclusive any    `json:"minInclusive" yaml:"minInclusive"`
	MaxInclusive any    `json:"maxInclusive" yaml:"maxInclusive"`
}

func (d *datatypeDescriptor) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err == nil {
		*d = datatypeDescriptor{Base: name}
		return nil
	}
	type plain datatypeDescriptor
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	return dec.Decode((*plain)(d))
}

func (d *datatypeDescriptor) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		*d = datatypeDescriptor{Base: n.Value}
		return nil
	}
	type plain datatypeDescriptor
	return n.Decode((*plain)(d))
}

// stringList accepts a string, a list of strings, or a language map of
// either (as used by titles).
type stringList []string

func (s *stringList) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	out, err := flattenStrings(v)
	*s = out
	return err
}

func (s *stringList) UnmarshalYAML(n *yaml.Node) error {
	var v any
	if err := n.Decode(&v); err != nil {
		return err
	}
	out, err := flattenStrings(v)
	*s = out
	return err
}

func flattenStrings(v any) ([]string, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{t}, nil
	case []any:
		var out []string
		for _, e := range t {
			s, err := flattenStrings(e)
			if err != nil {
				return nil, err
			}
			out = append(out, s...)
		}
		return out, nil
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var out []string
		for _, k := range keys {
			s, err := flattenStrings(t[k])
			if err != nil {
				return nil, err
			}
			out = append(out, s...)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected string or list of strings, got %T", v)
	}
}

// LoadMetadata reads a metadata document from disk and resolves its tables.
// Table URLs are resolved against the document's own file:// URL.
func LoadMetadata(path string) (*Group, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read metadata %s: %w", path, err)
	}
	base, err := FileURL(path)
	if err != nil {
		return nil, err
	}
	return ParseMetadata(base, data, schema.IsYAMLPath(path))
}

// ParseMetadata decodes a metadata document whose location is baseURL.
func ParseMetadata(baseURL string, data []byte, isYAML bool) (*Group, error) {
	var doc metadataDocument
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

	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, &MetadataError{Message: fmt.Sprintf("invalid base URL %q: %v", baseURL, err)}
	}

	descs := doc.Tables
	if len(descs) == 0 {
		if doc.URL == "" {
			return nil, &MetadataError{Path: "$", Message: "no tables described"}
		}
		descs = []tableDescriptor{{Type: doc.Type, URL: doc.URL, TableSchema: doc.TableSchema}}
	}

	g := &Group{URL: baseURL}
	schemaIDs := make(map[*Table]string, len(descs))
	for i := range descs {
		if descs[i].TableSchema == nil {
			descs[i].TableSchema = doc.TableSchema
		}
		td := descs[i]
		t, err := buildTable(base, td)
		if err != nil {
			return nil, err
		}
		if td.TableSchema != nil && td.TableSchema.ID != "" {
			schemaIDs[t] = resolve(base, td.TableSchema.ID)
		}
		g.Tables = append(g.Tables, t)
	}

	for i, td := range descs {
		if err := linkForeignKeys(base, g, g.Tables[i], td, schemaIDs); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func resolve(base *url.URL, ref string) string {
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(r).String()
}

func tablePath(td tableDescriptor) string {
	return fmt.Sprintf("$.tables[?(@.url = '%s')]", td.URL)
}

func buildTable(base *url.URL, td tableDescriptor) (*Table, error) {
	if td.Type != "" && td.Type != "Table" {
		return nil, &MetadataError{Path: tablePath(td) + ".@type", Message: "@type of table is not 'Table'"}
	}
	if td.URL == "" {
		return nil, &MetadataError{Path: "$.tables", Message: "table has no url"}
	}

	t := NewTable(resolve(base, td.URL))
	ts := td.TableSchema
	if ts == nil {
		return t, nil
	}

	virtual := false
	for i, cd := range ts.Columns {
		c, err := buildColumn(i+1, cd)
		if err != nil {
			var me *MetadataError
			if errors.As(err, &me) {
				me.Path = fmt.Sprintf("%s.tableSchema.columns[%d]%s", tablePath(td), i, me.Path)
			}
			return nil, err
		}
		if virtual && !c.Virtual {
			return nil, &MetadataError{
				Path:    fmt.Sprintf("%s.tableSchema.columns[%d].virtual", tablePath(td), i),
				Message: "virtual columns before non-virtual column " + c.Name,
			}
		}
		virtual = virtual || c.Virtual
		if _, dup := t.Column(c.Name); dup {
			return nil, &MetadataError{
				Path:    tablePath(td) + ".tableSchema.columns",
				Message: "multiple columns named " + c.Name,
			}
		}
		t.Columns = append(t.Columns, c)
	}

	if len(ts.PrimaryKey) > 0 {
		valid := true
		for _, name := range ts.PrimaryKey {
			if _, ok := t.Column(name); !ok {
				t.Warnings = append(t.Warnings, diagnostic.Record{
					Kind:     diagnostic.InvalidColumnReference,
					Category: diagnostic.CategoryMetadata,
					Content:  "primaryKey: " + name,
				})
				valid = false
			}
		}
		if valid {
			if err := t.SetPrimaryKey(ts.PrimaryKey...); err != nil {
				return nil, err
			}
		}
	}
	return t, nil
}

func buildColumn(number int, cd columnDescriptor) (*Column, error) {
	name := cd.Name
	if name == "" && len(cd.Titles) > 0 {
		name = cd.Titles[0]
	}
	if name == "" {
		name = fmt.Sprintf("_col.%d", number)
	}

	c := field.Constraints{Required: cd.Required, Unique: cd.Unique}
	if dt := cd.Datatype; dt != nil {
		typ, err := field.ParseDatatype(dt.Base)
		if err != nil {
			return nil, &MetadataError{Path: ".datatype", Message: err.Error()}
		}
		c.Type = typ
		c.MinLength = dt.MinLength
		c.MaxLength = dt.MaxLength
		c.Pattern = dt.Pattern
		if dt.Format != "" {
			if typ.IsDate() {
				c.DatePattern = dt.Format
			} else if c.Pattern == "" {
				c.Pattern = dt.Format
			}
		}
		c.Minimum = firstBound(dt.Minimum, dt.MinInclusive)
		c.Maximum = firstBound(dt.Maximum, dt.MaxInclusive)
	}

	col := NewColumn(number, name, field.New(name, c))
	col.Titles = slices.Clone([]string(cd.Titles))
	col.Separator = cd.Separator
	col.Virtual = cd.Virtual
	if cd.Null != nil {
		col.Null = slices.Clone([]string(*cd.Null))
	}
	return col, nil
}

func firstBound(values ...any) string {
	for _, v := range values {
		if s := schema.BoundString(v); s != "" {
			return s
		}
	}
	return ""
}

func linkForeignKeys(base *url.URL, g *Group, t *Table, td tableDescriptor, schemaIDs map[*Table]string) error {
	if td.TableSchema == nil {
		return nil
	}
	for i, fd := range td.TableSchema.ForeignKeys {
		path := fmt.Sprintf("%s.tableSchema.foreignKeys[%d]", tablePath(td), i)

		referenced, err := findReferenced(base, g, fd.Reference, schemaIDs)
		if err != nil {
			return &MetadataError{Path: path + ".reference", Message: err.Error()}
		}
		if _, err := t.AddForeignKey(fd.ColumnReference, referenced, fd.Reference.ColumnReference); err != nil {
			var me *MetadataError
			if errors.As(err, &me) {
				return &MetadataError{Path: path + strings.TrimPrefix(me.Path, "foreignKeys"), Message: me.Message}
			}
			return err
		}
	}
	return nil
}

func findReferenced(base *url.URL, g *Group, ref referenceDescriptor, schemaIDs map[*Table]string) (*Table, error) {
	switch {
	case ref.Resource != "":
		target := resolve(base, ref.Resource)
		for _, t := range g.Tables {
			if t.URL == target {
				return t, nil
			}
		}
		return nil, fmt.Errorf("resource %s is not described", ref.Resource)
	case ref.SchemaReference != "":
		target := resolve(base, ref.SchemaReference)
		for _, t := range g.Tables {
			if schemaIDs[t] == target {
				return t, nil
			}
		}
		return nil, fmt.Errorf("schemaReference %s is not described", ref.SchemaReference)
	default:
		return nil, errors.New("reference needs a resource or schemaReference")
	}
}
