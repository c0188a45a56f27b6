package llm

import (
	"context"

	"github.com/raine/listing-studio/internal/listing"
	"github.com/raine/listing-studio/internal/media"
)

// Model identifiers the tool knows about.
const (
	ModelFlash3    = "gemini-3-flash-preview"
	ModelPro3      = "gemini-3-pro-preview"
	ModelFlashLite = "gemini-flash-lite-latest"

	DefaultModel = ModelPro3
)

// KnownModels lists the selectable model identifiers.
func KnownModels() []string {
	return []string{ModelPro3, ModelFlash3, ModelFlashLite}
}

// Usage contains token usage and cost information.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
	TotalTokens  int64
	CostUSD      float64
	Cached       bool
}

// Generation is a parsed listing result with its usage.
type Generation struct {
	Result *listing.GenerationResult
	Usage  Usage
}

// Generator turns a product photo into listing copy for both marketplaces.
type Generator interface {
	// Generate returns a validated result tagged with the model name.
	Generate(ctx context.Context, image media.EncodedImage) (*Generation, error)
	// Model returns the model identifier used for calls.
	Model() string
}
