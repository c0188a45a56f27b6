// Package export renders generation results for the command line.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/raine/listing-studio/internal/listing"
)

// Exporter writes the records of the selected platforms.
type Exporter interface {
	Export(w io.Writer, result *listing.GenerationResult, platforms []listing.Platform) error
}

// Formats lists the accepted --format values.
var Formats = []string{"text", "json", "yaml"}

// ForFormat returns the exporter for name. styled enables terminal colors
// for the text format.
func ForFormat(name string, styled bool) (Exporter, error) {
	switch strings.ToLower(name) {
	case "text", "":
		return &TextExporter{Styled: styled}, nil
	case "json":
		return &JSONExporter{}, nil
	case "yaml", "yml":
		return &YAMLExporter{}, nil
	}
	return nil, fmt.Errorf("unknown format %q (want one of %s)", name, strings.Join(Formats, ", "))
}

// selectPlatforms returns a copy of result keeping only the given records.
func selectPlatforms(result *listing.GenerationResult, platforms []listing.Platform) *listing.GenerationResult {
	out := result.Clone()
	if out == nil {
		return nil
	}
	keep := make(map[listing.Platform]bool, len(platforms))
	for _, p := range platforms {
		keep[p] = true
	}
	if !keep[listing.Amazon] {
		out.Amazon = nil
	}
	if !keep[listing.Trendyol] {
		out.Trendyol = nil
	}
	return out
}

// JSONExporter writes the result as indented JSON.
type JSONExporter struct{}

func (e *JSONExporter) Export(w io.Writer, result *listing.GenerationResult, platforms []listing.Platform) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(selectPlatforms(result, platforms))
}

// YAMLExporter writes the result as YAML.
type YAMLExporter struct{}

func (e *YAMLExporter) Export(w io.Writer, result *listing.GenerationResult, platforms []listing.Platform) error {
	enc := yaml.NewEncoder(w)
	defer func() { _ = enc.Close() }()

	return enc.Encode(selectPlatforms(result, platforms))
}
