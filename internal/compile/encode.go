package compile

import (
	"bytes"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/hyperjump/kumitate/internal/models"
)

// Marshal serializes a compiled document to YAML with fully deterministic
// ordering: map keys and toolset member lists appear alphabetically, and tool
// record fields in a fixed order, so identical input always yields
// byte-identical output. The document is built as an explicit yaml.Node tree
// rather than marshalled from Go maps, whose key order is not guaranteed.
func Marshal(doc *models.CompiledDocument) ([]byte, error) {
	root := mappingNode()
	appendEntry(root, "sources", sourcesNode(doc.Source))
	appendEntry(root, "tools", toolsNode(doc.Tools))
	appendEntry(root, "toolsets", toolsetsNode(doc.Toolsets))

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(root); err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize document: %w", err)
	}
	return buf.Bytes(), nil
}

func sourcesNode(source models.SourceRef) *yaml.Node {
	ref := mappingNode()
	appendEntry(ref, "kind", scalarNode(source.Kind))
	if source.Project != "" {
		appendEntry(ref, "project", scalarNode(source.Project))
	}
	sources := mappingNode()
	appendEntry(sources, source.Name, ref)
	return sources
}

func toolsNode(tools map[string]models.Tool) *yaml.Node {
	node := mappingNode()
	for _, name := range sortedKeys(tools) {
		appendEntry(node, name, toolNode(tools[name]))
	}
	return node
}

func toolNode(tool models.Tool) *yaml.Node {
	node := mappingNode()
	appendEntry(node, "kind", scalarNode(tool.Kind))
	appendEntry(node, "source", scalarNode(tool.Source))
	appendEntry(node, "statement", scalarNode(tool.Statement))
	appendEntry(node, "description", scalarNode(tool.Description))
	if len(tool.Parameters) > 0 {
		params := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, p := range tool.Parameters {
			params.Content = append(params.Content, parameterNode(p))
		}
		appendEntry(node, "parameters", params)
	}
	return node
}

func parameterNode(p models.ToolParameter) *yaml.Node {
	node := mappingNode()
	appendEntry(node, "name", scalarNode(p.Name))
	appendEntry(node, "type", scalarNode(p.Type))
	if p.Description != "" {
		appendEntry(node, "description", scalarNode(p.Description))
	}
	appendEntry(node, "required", boolNode(p.Required))
	if p.Default != nil {
		value := &yaml.Node{}
		// Defaults are scalars or flat arrays; Encode handles both.
		if err := value.Encode(p.Default); err == nil {
			appendEntry(node, "default", value)
		}
	}
	return node
}

func toolsetsNode(toolsets map[string][]string) *yaml.Node {
	node := mappingNode()
	for _, category := range sortedKeys(toolsets) {
		list := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, name := range toolsets[category] {
			list.Content = append(list.Content, scalarNode(name))
		}
		appendEntry(node, category, list)
	}
	return node
}

func mappingNode() *yaml.Node {
	return &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
}

func scalarNode(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
}

func boolNode(b bool) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: fmt.Sprintf("%t", b)}
}

func appendEntry(m *yaml.Node, key string, value *yaml.Node) {
	m.Content = append(m.Content, scalarNode(key), value)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
