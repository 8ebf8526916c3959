// Package catalogfile reads catalog documents from YAML or JSON files.
//
// A document pairs the record schema with the catalogs evaluated against it:
//
//	schema:
//	  Age: int
//	  Tags: "[]string"
//	catalogs:
//	  - name: eligibility
//	    groups:
//	      - label: adults
//	        conditions:
//	          - {property: Age, operator: GreaterThanOrEqual, value: 18, code: AGE}
//
// Scalar values may be written unquoted; a list value is joined into a
// comma-separated literal set.
package catalogfile

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"sigs.k8s.io/yaml"

	"github.com/solatis/ruleset/internal/types"
)

// Document is the parsed content of a catalog file.
type Document struct {
	Schema   map[string]string
	Catalogs []types.Catalog
}

type fileDocument struct {
	Schema   map[string]string `json:"schema"`
	Catalogs []fileCatalog     `json:"catalogs"`
}

type fileCatalog struct {
	Name   string      `json:"name"`
	Groups []fileGroup `json:"groups"`
}

type fileGroup struct {
	Label      string          `json:"label"`
	Conditions []fileCondition `json:"conditions"`
}

type fileCondition struct {
	Property    string         `json:"property"`
	Operator    types.Operator `json:"operator"`
	Value       any            `json:"value"`
	Code        string         `json:"code"`
	Description string         `json:"description"`
}

// Load reads and parses the document at path.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// Parse decodes a YAML or JSON document and checks catalog names.
// Operators are not validated here; unknown tokens surface as compile
// diagnostics so one bad condition does not reject the file.
func Parse(data []byte) (*Document, error) {
	var raw fileDocument
	if err := yaml.UnmarshalStrict(data, &raw); err != nil {
		return nil, fmt.Errorf("parse catalog document: %w", err)
	}

	doc := &Document{
		Schema:   raw.Schema,
		Catalogs: make([]types.Catalog, 0, len(raw.Catalogs)),
	}
	if doc.Schema == nil {
		doc.Schema = map[string]string{}
	}

	seen := make(map[string]int, len(raw.Catalogs))
	for i, fc := range raw.Catalogs {
		if fc.Name == "" {
			return nil, fmt.Errorf("catalogs[%d]: name is required", i)
		}
		if prev, dup := seen[fc.Name]; dup {
			return nil, fmt.Errorf("catalogs[%d]: name %q already used by catalogs[%d]", i, fc.Name, prev)
		}
		seen[fc.Name] = i

		cat := types.Catalog{Name: fc.Name, Groups: make([]types.Group, 0, len(fc.Groups))}
		for j, fg := range fc.Groups {
			g := types.Group{Label: fg.Label, Conditions: make([]types.Condition, 0, len(fg.Conditions))}
			for k, c := range fg.Conditions {
				value, err := literal(c.Value)
				if err != nil {
					return nil, fmt.Errorf("catalogs[%d].groups[%d].conditions[%d]: %w", i, j, k, err)
				}
				g.Conditions = append(g.Conditions, types.Condition{
					Property:    c.Property,
					Operator:    c.Operator,
					Value:       value,
					Code:        c.Code,
					Description: c.Description,
				})
			}
			cat.Groups = append(cat.Groups, g)
		}
		doc.Catalogs = append(doc.Catalogs, cat)
	}

	return doc, nil
}

// literal renders a decoded YAML value as condition literal text.
func literal(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", nil
	case string:
		return x, nil
	case bool:
		return strconv.FormatBool(x), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case []any:
		parts := make([]string, len(x))
		for i, item := range x {
			if _, nested := item.([]any); nested {
				return "", fmt.Errorf("value: nested lists are not supported")
			}
			s, err := literal(item)
			if err != nil {
				return "", err
			}
			parts[i] = s
		}
		return strings.Join(parts, ","), nil
	default:
		return "", fmt.Errorf("value: unsupported literal of type %T", v)
	}
}

// FileSource reads catalogs from a document on every call; it satisfies rules.Source.
type FileSource struct {
	Path string
}

// Catalogs implements rules.Source.
func (s FileSource) Catalogs(ctx context.Context) ([]types.Catalog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, err := Load(s.Path)
	if err != nil {
		return nil, err
	}
	return doc.Catalogs, nil
}
