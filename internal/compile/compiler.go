package compile

import (
	"sort"

	"github.com/hyperjump/kumitate/internal/models"
)

// toolKind is the document vocabulary for SQL tools executed against the
// configured source.
const toolKind = "bigquery-sql"

// paramTypes maps registry parameter kinds to the document's parameter type
// vocabulary. The mapping is fixed; validation guarantees every kind is known.
var paramTypes = map[models.ParamKind]string{
	models.KindString:  "string",
	models.KindInteger: "integer",
	models.KindFloat:   "number",
	models.KindBoolean: "boolean",
	models.KindArray:   "array",
}

// Compile renders a validated set into a compiled document. It is pure and
// total: given a ValidatedSet it cannot fail, and identical input always
// produces an identical document.
func Compile(set ValidatedSet, source models.SourceRef) *models.CompiledDocument {
	defs := set.Definitions()
	doc := &models.CompiledDocument{
		Source:   source,
		Tools:    make(map[string]models.Tool, len(defs)),
		Toolsets: make(map[string][]string),
	}

	for _, def := range defs {
		params := make([]models.ToolParameter, 0, len(def.Parameters))
		for _, p := range def.Parameters {
			params = append(params, models.ToolParameter{
				Name:        p.Name,
				Type:        paramTypes[p.Kind],
				Description: p.Description,
				Required:    p.Required,
				Default:     p.Default,
			})
		}
		description := def.Description
		if description == "" {
			description = "Execute " + def.Name
		}
		doc.Tools[def.Name] = models.Tool{
			Kind:        toolKind,
			Source:      source.Name,
			Statement:   def.Statement,
			Description: description,
			Parameters:  params,
		}
		doc.Toolsets[def.Category] = append(doc.Toolsets[def.Category], def.Name)
	}

	for category := range doc.Toolsets {
		sort.Strings(doc.Toolsets[category])
	}
	return doc
}
