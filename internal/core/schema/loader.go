package schema

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/talaub/lowzero/pkg/concurrent"
)

// Parse decodes one schema document. Mapping order of types, properties, functions
// and enums is preserved.
func Parse(data []byte, source string) (*Document, error) {
	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse schema %s: %w", source, err)
	}
	doc.Source = source
	for _, t := range doc.Types {
		t.Module = doc.Module
	}
	return &doc, nil
}

// Load reads and parses the schema file at path.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	return Parse(data, path)
}

// LoadAll reads every path in parallel and returns the documents in path order.
func LoadAll(ctx context.Context, paths []string) ([]*Document, error) {
	return concurrent.Map(ctx, 0, paths, func(_ context.Context, path string) (*Document, error) {
		return Load(path)
	})
}

func (d *Document) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: schema document must be a mapping", node.Line)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		var err error
		switch key.Value {
		case "module":
			err = value.Decode(&d.Module)
		case "types":
			d.Types, err = decodeOrdered(value, "type", func(t *Type, name string) { t.Name = name })
		case "enums":
			d.Enums, err = decodeOrdered(value, "enum", func(e *Enum, name string) { e.Name = name })
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *Type) UnmarshalYAML(node *yaml.Node) error {
	type plain Type
	if err := node.Decode((*plain)(t)); err != nil {
		return err
	}
	if node.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		var err error
		switch key.Value {
		case "properties":
			t.Properties, err = decodeOrdered(value, "property", func(p *Property, name string) { p.Name = name })
		case "functions":
			t.Functions, err = decodeOrdered(value, "function", func(f *Function, name string) { f.Name = name })
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *Property) UnmarshalYAML(node *yaml.Node) error {
	type plain Property
	if err := node.Decode((*plain)(p)); err != nil {
		return err
	}
	if node.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == "default" && !isNull(node.Content[i+1]) {
			p.Default = node.Content[i+1]
		}
	}
	return nil
}

func decodeOrdered[T any](node *yaml.Node, what string, setName func(*T, string)) ([]*T, error) {
	if isNull(node) {
		return nil, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: %ss must be a mapping", node.Line, what)
	}
	out := make([]*T, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		item := new(T)
		if !isNull(value) {
			if err := value.Decode(item); err != nil {
				return nil, fmt.Errorf("%s %s: %w", what, key.Value, err)
			}
		}
		setName(item, key.Value)
		out = append(out, item)
	}
	return out, nil
}

func isNull(node *yaml.Node) bool {
	return node == nil || node.Kind == 0 || (node.Kind == yaml.ScalarNode && node.Tag == "!!null")
}
