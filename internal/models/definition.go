// Package models defines core data structures for query definitions and compiled documents.
package models

import "time"

// ParamKind is the kind of a query parameter as stored in the registry.
type ParamKind string

const (
	KindString  ParamKind = "string"
	KindInteger ParamKind = "integer"
	KindFloat   ParamKind = "float"
	KindBoolean ParamKind = "boolean"
	KindArray   ParamKind = "array"
)

// Valid reports whether k belongs to the closed set of parameter kinds.
func (k ParamKind) Valid() bool {
	switch k {
	case KindString, KindInteger, KindFloat, KindBoolean, KindArray:
		return true
	}
	return false
}

// ParameterSpec describes one bound variable in a query statement.
// Default is only legal when Required is false and must match Kind.
type ParameterSpec struct {
	Name        string    `json:"name"`
	Kind        ParamKind `json:"kind"`
	Required    bool      `json:"required"`
	Default     any       `json:"default,omitempty"`
	Description string    `json:"description,omitempty"`
}

// QueryDefinition is one row from the query registry. The registry itself does
// not enforce name uniqueness; the validator does.
type QueryDefinition struct {
	Name        string          `json:"name" db:"query_name"`
	Category    string          `json:"category" db:"query_category"`
	Statement   string          `json:"statement" db:"query_sql"`
	Description string          `json:"description,omitempty" db:"description"`
	Parameters  []ParameterSpec `json:"parameters,omitempty" db:"parameters"`
	Enabled     bool            `json:"enabled" db:"enabled"`
	CreatedBy   string          `json:"created_by,omitempty" db:"created_by"`
	Tags        []string        `json:"tags,omitempty" db:"tags"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}
