package compiler

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// QuerySpec is one query as declared in a query file.
type QuerySpec struct {
	Name    string               `json:"name" yaml:"-"`
	Source  string               `json:"source,omitempty" yaml:"source"`
	Table   string               `json:"table,omitempty" yaml:"table"`
	Columns []string             `json:"columns,omitempty" yaml:"columns"`
	OrderBy []string             `json:"order_by,omitempty" yaml:"order_by"`
	Policy  string               `json:"policy,omitempty" yaml:"policy"`
	Map     []MappingSpec        `json:"map" yaml:"map"`
	Scopes  map[string]ScopeSpec `json:"scopes,omitempty" yaml:"scopes"`
	Parse   map[string]string    `json:"parse,omitempty" yaml:"parse"`
	Permit  []string             `json:"permit,omitempty" yaml:"permit"`

	// File and Line locate the declaration for error messages.
	File string `json:"-" yaml:"-"`
	Line int    `json:"-" yaml:"-"`
}

// SourceName returns the declared source, defaulting to the query name.
func (s *QuerySpec) SourceName() string {
	if s.Source != "" {
		return s.Source
	}
	return s.Name
}

// TableName returns the declared table, defaulting to the source name.
func (s *QuerySpec) TableName() string {
	if s.Table != "" {
		return s.Table
	}
	return s.SourceName()
}

// MappingSpec declares one mapping: an operation fed by keys.
type MappingSpec struct {
	Op       string       `json:"op" yaml:"op"`
	Keys     []string     `json:"keys" yaml:"keys"`
	Require  KeySelection `json:"require,omitzero" yaml:"require"`
	AllowNil KeySelection `json:"allow_nil,omitzero" yaml:"allow_nil"`
}

// ScopeSpec declares one scope of the source table.
type ScopeSpec struct {
	Kind   string   `json:"kind" yaml:"kind"`
	Fields []string `json:"fields" yaml:"fields"`
}

// KeySelection is either "true" (every key of the mapping) or a list of
// keys.
type KeySelection struct {
	All  bool
	Keys []string
}

// IsZero reports whether nothing is selected.
func (k KeySelection) IsZero() bool {
	return !k.All && len(k.Keys) == 0
}

// UnmarshalYAML accepts a boolean or a sequence of strings.
func (k *KeySelection) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var b bool
		if err := node.Decode(&b); err != nil {
			return fmt.Errorf("line %d: expected true, false or a list of keys", node.Line)
		}
		*k = KeySelection{All: b}
		return nil
	case yaml.SequenceNode:
		var keys []string
		if err := node.Decode(&keys); err != nil {
			return err
		}
		*k = KeySelection{Keys: keys}
		return nil
	default:
		return fmt.Errorf("line %d: expected true, false or a list of keys", node.Line)
	}
}

// MarshalYAML writes the shortest form.
func (k KeySelection) MarshalYAML() (any, error) {
	if k.All {
		return true, nil
	}
	return k.Keys, nil
}

// MarshalJSON writes the same shape as MarshalYAML.
func (k KeySelection) MarshalJSON() ([]byte, error) {
	if k.All {
		return []byte("true"), nil
	}
	return json.Marshal(k.Keys)
}

// UnmarshalJSON reads the shape written by MarshalJSON.
func (k *KeySelection) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*k = KeySelection{All: b}
		return nil
	}
	var keys []string
	if err := json.Unmarshal(data, &keys); err != nil {
		return fmt.Errorf("expected true, false or a list of keys")
	}
	*k = KeySelection{Keys: keys}
	return nil
}
