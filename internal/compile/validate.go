// Package compile turns a registry snapshot into a publishable toolset document.
package compile

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"

	"github.com/hyperjump/kumitate/internal/models"
)

// Violation is one validation failure attributed to a definition by name.
type Violation struct {
	Definition string `json:"definition"`
	Reason     string `json:"reason"`
}

// RejectedError carries every violation found in a snapshot. When any
// definition fails, the whole compile is rejected and the previously published
// document stays in force.
type RejectedError struct {
	Violations []Violation
}

func (e *RejectedError) Error() string {
	if len(e.Violations) == 1 {
		return fmt.Sprintf("compile rejected: %s: %s", e.Violations[0].Definition, e.Violations[0].Reason)
	}
	return fmt.Sprintf("compile rejected: %d violations", len(e.Violations))
}

// ValidatedSet is a snapshot that passed validation. It can only be obtained
// through Validate, so Compile never has to re-check its input.
type ValidatedSet struct {
	defs []models.QueryDefinition
}

// Definitions returns the validated definitions in snapshot order.
func (s ValidatedSet) Definitions() []models.QueryDefinition { return s.defs }

// Validate checks every definition in the snapshot, accumulating all
// violations before failing so a single attempt reports every problem at once.
// An empty snapshot is valid.
func Validate(snapshot []models.QueryDefinition) (ValidatedSet, error) {
	var violations []Violation
	add := func(name, format string, args ...any) {
		violations = append(violations, Violation{Definition: name, Reason: fmt.Sprintf(format, args...)})
	}

	// The registry has no uniqueness constraint on name, so count occurrences
	// up front and report every colliding definition, not just the later ones.
	occurrences := make(map[string]int, len(snapshot))
	for _, def := range snapshot {
		if def.Name != "" {
			occurrences[def.Name]++
		}
	}

	for i, def := range snapshot {
		name := def.Name
		if name == "" {
			name = fmt.Sprintf("(unnamed #%d)", i)
			add(name, "name is empty")
		} else if occurrences[def.Name] > 1 {
			add(name, "duplicate name %q in snapshot", def.Name)
		}
		if def.Category == "" {
			add(name, "category is empty")
		}
		if def.Statement == "" {
			add(name, "statement is empty")
		}

		paramSeen := make(map[string]bool, len(def.Parameters))
		for j, p := range def.Parameters {
			pname := p.Name
			if pname == "" {
				add(name, "parameter #%d: name is empty", j)
				pname = fmt.Sprintf("#%d", j)
			} else if paramSeen[pname] {
				add(name, "parameter %q: duplicate name within definition", pname)
			} else {
				paramSeen[pname] = true
			}
			if !p.Kind.Valid() {
				add(name, "parameter %q: unknown kind %q", pname, p.Kind)
			}
			if p.Default != nil {
				if p.Required {
					add(name, "parameter %q: default is only legal when required is false", pname)
				}
				if p.Kind.Valid() && !defaultMatchesKind(p.Kind, p.Default) {
					add(name, "parameter %q: default %v does not match kind %q", pname, p.Default, p.Kind)
				}
			}
		}
	}

	if len(violations) > 0 {
		return ValidatedSet{}, &RejectedError{Violations: violations}
	}
	return ValidatedSet{defs: snapshot}, nil
}

// defaultMatchesKind reports whether v is a legal default for kind. Values may
// come from Go literals (seeding, tests) or from JSON decoding of registry
// rows, where numbers arrive as float64 or json.Number.
func defaultMatchesKind(kind models.ParamKind, v any) bool {
	switch kind {
	case models.KindString:
		_, ok := v.(string)
		return ok
	case models.KindBoolean:
		_, ok := v.(bool)
		return ok
	case models.KindInteger:
		switch n := v.(type) {
		case int, int32, int64:
			return true
		case float64:
			return n == math.Trunc(n)
		case json.Number:
			_, err := n.Int64()
			return err == nil
		}
		return false
	case models.KindFloat:
		switch v.(type) {
		case int, int32, int64, float32, float64, json.Number:
			return true
		}
		return false
	case models.KindArray:
		rv := reflect.ValueOf(v)
		return rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array
	}
	return false
}
