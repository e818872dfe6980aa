// Package serialization maps live instances to yaml.v3 node trees and back,
// driven by the kind tag of every registered property.
package serialization

import (
	"bytes"
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/talaub/lowzero/pkg/generic"
)

// NewMapping returns an empty mapping node.
func NewMapping() *yaml.Node {
	return &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
}

// Child returns the value stored under key, or nil.
func Child(node *yaml.Node, key string) *yaml.Node {
	if node == nil || node.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}

// SetChild stores value under key, replacing an existing entry in place.
func SetChild(node *yaml.Node, key string, value *yaml.Node) {
	if node.Kind == 0 {
		node.Kind = yaml.MappingNode
		node.Tag = "!!map"
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			node.Content[i+1] = value
			return
		}
	}
	node.Content = append(node.Content, stringNode(key), value)
}

// Keys lists the mapping keys of node in document order.
func Keys(node *yaml.Node) []string {
	if node == nil || node.Kind != yaml.MappingNode {
		return nil
	}
	keys := make([]string, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		keys = append(keys, node.Content[i].Value)
	}
	return keys
}

var buffers = generic.NewPool(func() *bytes.Buffer { return new(bytes.Buffer) }, (*bytes.Buffer).Reset)

// Marshal renders node as a YAML document.
func Marshal(node *yaml.Node) ([]byte, error) {
	buf := buffers.Get()
	defer buffers.Put(buf)
	enc := yaml.NewEncoder(buf)
	enc.SetIndent(2)
	if err := enc.Encode(node); err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	return bytes.Clone(buf.Bytes()), nil
}

// Unmarshal parses a YAML document and returns its root node.
func Unmarshal(data []byte) (*yaml.Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal document: %w", err)
	}
	if doc.Kind == yaml.DocumentNode && len(doc.Content) == 1 {
		return doc.Content[0], nil
	}
	if doc.Kind == 0 {
		return NewMapping(), nil
	}
	return &doc, nil
}

func stringNode(v string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v}
}

func boolNode(v bool) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(v)}
}

func intNode(v int64) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.FormatInt(v, 10)}
}

func uintNode(v uint64) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.FormatUint(v, 10)}
}

// floatNode is left untagged so integral values render without a !!float tag.
func floatNode(v float32) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Value: strconv.FormatFloat(float64(v), 'g', -1, 32)}
}

func mappingOf(pairs ...any) *yaml.Node {
	node := NewMapping()
	for i := 0; i+1 < len(pairs); i += 2 {
		node.Content = append(node.Content, stringNode(pairs[i].(string)), pairs[i+1].(*yaml.Node))
	}
	return node
}

func scalarValue(node *yaml.Node) (string, error) {
	if node == nil || node.Kind != yaml.ScalarNode {
		return "", fmt.Errorf("%w: expected scalar", ErrMalformed)
	}
	return node.Value, nil
}

func parseBool(node *yaml.Node) (bool, error) {
	var v bool
	if err := node.Decode(&v); err != nil {
		return false, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return v, nil
}

func parseInt(node *yaml.Node, bits int) (int64, error) {
	s, err := scalarValue(node)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(s, 0, bits)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return v, nil
}

func parseUint(node *yaml.Node, bits int) (uint64, error) {
	s, err := scalarValue(node)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(s, 0, bits)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return v, nil
}

func parseFloat(node *yaml.Node) (float32, error) {
	s, err := scalarValue(node)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(s, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return float32(v), nil
}

// floatField reads key from a composite node; missing components stay zero.
func floatField(node *yaml.Node, key string) (float32, error) {
	child := Child(node, key)
	if child == nil {
		return 0, nil
	}
	return parseFloat(child)
}

func uintField(node *yaml.Node, key string) (uint32, error) {
	child := Child(node, key)
	if child == nil {
		return 0, nil
	}
	v, err := parseUint(child, 32)
	return uint32(v), err
}
