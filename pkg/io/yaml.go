package io

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// UnmarshalYAML decodes a node, keeping number literals in data as
// json.Number so they survive a trip through either encoding unchanged.
// Mapping keys in data are always strings; a key such as 1 or true is kept
// as its literal text.
func (n *Node) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		ID       string    `yaml:"id"`
		Type     string    `yaml:"type"`
		Position *Position `yaml:"position"`
		Data     yaml.Node `yaml:"data"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	*n = Node{ID: raw.ID, Type: raw.Type, Position: raw.Position}
	if raw.Data.Kind == 0 {
		return nil
	}
	data, err := yamlValue(&raw.Data)
	if err != nil {
		return err
	}
	switch d := data.(type) {
	case nil:
	case map[string]any:
		n.Data = d
	default:
		return fmt.Errorf("line %d: node %q: data must be a mapping", raw.Data.Line, raw.ID)
	}
	return nil
}

func yamlValue(n *yaml.Node) (any, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return yamlValue(n.Content[0])
	case yaml.AliasNode:
		return yamlValue(n.Alias)
	case yaml.SequenceNode:
		out := make([]any, len(n.Content))
		for i, c := range n.Content {
			v, err := yamlValue(c)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case yaml.MappingNode:
		return yamlMapping(n)
	case yaml.ScalarNode:
		if tag := n.ShortTag(); (tag == "!!int" || tag == "!!float") && isJSONNumber(n.Value) {
			return json.Number(n.Value), nil
		}
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, err
		}
		return v, nil
	}
	return nil, fmt.Errorf("line %d: unsupported yaml node", n.Line)
}

// yamlMapping decodes a mapping. Explicit keys win over keys pulled in with
// a << merge, wherever the merge appears.
func yamlMapping(n *yaml.Node) (map[string]any, error) {
	out := make(map[string]any, len(n.Content)/2)
	explicit := make(map[string]bool, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		k, v := n.Content[i], n.Content[i+1]
		val, err := yamlValue(v)
		if err != nil {
			return nil, err
		}
		if k.ShortTag() == "!!merge" {
			if err := mergeInto(out, explicit, val, k.Line); err != nil {
				return nil, err
			}
			continue
		}
		key, err := yamlKey(k)
		if err != nil {
			return nil, err
		}
		out[key] = val
		explicit[key] = true
	}
	return out, nil
}

func mergeInto(out map[string]any, explicit map[string]bool, src any, line int) error {
	switch s := src.(type) {
	case map[string]any:
		for k, v := range s {
			if !explicit[k] {
				out[k] = v
			}
		}
	case []any:
		// Earlier maps in a merge sequence take precedence.
		for i := len(s) - 1; i >= 0; i-- {
			if err := mergeInto(out, explicit, s[i], line); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("line %d: << needs a mapping or a sequence of mappings", line)
	}
	return nil
}

func yamlKey(k *yaml.Node) (string, error) {
	switch k.Kind {
	case yaml.ScalarNode:
		return k.Value, nil
	case yaml.AliasNode:
		return yamlKey(k.Alias)
	}
	v, err := yamlValue(k)
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("line %d: unsupported mapping key: %w", k.Line, err)
	}
	return string(b), nil
}

// isJSONNumber reports whether s is a valid JSON number literal. YAML also
// accepts forms like 0x1F or .inf; those are decoded to Go numbers instead.
func isJSONNumber(s string) bool {
	if s == "" || (s[0] != '-' && (s[0] < '0' || s[0] > '9')) {
		return false
	}
	return json.Valid([]byte(s))
}

// yamlNumbers replaces json.Number values with scalar nodes holding the
// literal text, so YAML emits them as plain numbers without reformatting.
func yamlNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		tag := "!!int"
		if strings.ContainsAny(t.String(), ".eE") {
			tag = "!!float"
		}
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: t.String()}
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[k] = yamlNumbers(vv)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			out[i] = yamlNumbers(vv)
		}
		return out
	}
	return v
}
