// Package cli provides CLI utilities for Kumitate.
package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/hyperjump/kumitate/internal/compile"
	"github.com/hyperjump/kumitate/internal/models"
	"github.com/hyperjump/kumitate/internal/orchestrator"
	"github.com/hyperjump/kumitate/internal/registry"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// WriteReport writes a compile report to w in the given format.
func WriteReport(w io.Writer, report *orchestrator.Report, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, report)
	}
	fmt.Fprintf(w, "Compiled %d tools into %d toolsets in %dms\n",
		report.Tools, report.Toolsets, report.DurationMS)
	fmt.Fprintf(w, "Version: %s\n", report.Version)
	fmt.Fprintf(w, "Digest:  %s\n", report.Digest)
	if report.NoOp {
		fmt.Fprintln(w, "Document unchanged since the previous run.")
	}
	return nil
}

// WriteViolations writes a rejected snapshot's violation list to w.
func WriteViolations(w io.Writer, violations []compile.Violation, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, map[string]interface{}{"violations": violations})
	}
	fmt.Fprintf(w, "Snapshot rejected with %d violation(s):\n", len(violations))
	for _, v := range violations {
		name := v.Definition
		if name == "" {
			name = "(unnamed)"
		}
		fmt.Fprintf(w, "  %s: %s\n", name, v.Reason)
	}
	return nil
}

// WriteDefinitions writes a definition listing to w in the given format.
func WriteDefinitions(w io.Writer, defs []models.QueryDefinition, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, map[string]interface{}{"definitions": defs, "count": len(defs)})
	}
	fmt.Fprintf(w, "%d definition(s):\n", len(defs))
	for _, d := range defs {
		state := "enabled"
		if !d.Enabled {
			state = "disabled"
		}
		fmt.Fprintf(w, "  [%s] %s/%s: %s\n", state, d.Category, d.Name, Truncate(d.Statement, 60))
	}
	return nil
}

// WriteStats writes registry stats to w in the given format.
func WriteStats(w io.Writer, stats *registry.Stats, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, stats)
	}
	fmt.Fprintf(w, "Definitions: %d total, %d enabled, %d disabled\n",
		stats.Total, stats.Enabled, stats.Disabled)
	for _, c := range stats.Categories {
		fmt.Fprintf(w, "  %s: %d (%d enabled)\n", c.Name, c.Total, c.Enabled)
	}
	return nil
}

func writeJSON(w io.Writer, data interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// Truncate truncates s to maxLen and appends "..." if truncated.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
