package compiler

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// DecodeYAML parses a YAML query file and returns its queries in document
// order.
func DecodeYAML(data []byte, filename string) ([]*QuerySpec, error) {
	var doc struct {
		Query yaml.Node `yaml:"query"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}

	if doc.Query.Kind == 0 {
		return nil, fmt.Errorf("%s: query: no queries declared", filename)
	}
	if doc.Query.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%s:%d: query: expected a mapping of query names", filename, doc.Query.Line)
	}

	var specs []*QuerySpec
	content := doc.Query.Content
	for i := 0; i+1 < len(content); i += 2 {
		key, body := content[i], content[i+1]

		spec := &QuerySpec{}
		if err := body.Decode(spec); err != nil {
			return nil, fmt.Errorf("%s:%d: query %s: %w", filename, key.Line, key.Value, err)
		}
		if spec.Map == nil {
			return nil, fmt.Errorf("%s:%d: query %s: map is required", filename, key.Line, key.Value)
		}
		for j, m := range spec.Map {
			if m.Op == "" {
				return nil, fmt.Errorf("%s:%d: query %s: map[%d].op is required", filename, key.Line, key.Value, j)
			}
		}
		spec.Name = key.Value
		spec.File = filename
		spec.Line = key.Line
		specs = append(specs, spec)
	}
	return specs, nil
}
