package models

// SourceRef is the constant data source reference rendered into a compiled
// document. It comes from configuration, never from the registry.
type SourceRef struct {
	Name    string `yaml:"name" json:"name"`
	Kind    string `yaml:"kind" json:"kind"`
	Project string `yaml:"project" json:"project,omitempty"`
}

// ToolParameter is one parameter rendered into the document's vocabulary.
// Type uses the document type names (e.g. "number" for registry kind "float").
type ToolParameter struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required"`
	Default     any    `json:"default,omitempty"`
}

// Tool is one rendered tool record in a compiled document.
type Tool struct {
	Kind        string          `json:"kind"`
	Source      string          `json:"source"`
	Statement   string          `json:"statement"`
	Description string          `json:"description"`
	Parameters  []ToolParameter `json:"parameters,omitempty"`
}

// CompiledDocument is the publishable artifact. It is immutable once produced;
// a new compile creates a brand-new document. Tools holds exactly one entry per
// enabled, valid definition keyed by name, and Toolsets partitions those names
// by category.
type CompiledDocument struct {
	Source   SourceRef           `json:"source"`
	Tools    map[string]Tool     `json:"tools"`
	Toolsets map[string][]string `json:"toolsets"`
}
