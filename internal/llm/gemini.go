package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/raine/listing-studio/internal/listing"
	"github.com/raine/listing-studio/internal/media"
)

// Gemini pricing (USD per million tokens)
type modelPricing struct {
	input, output float64
}

var geminiPricing = map[string]modelPricing{
	ModelPro3:      {input: 2.00, output: 12.00},
	ModelFlash3:    {input: 0.50, output: 3.00},
	ModelFlashLite: {input: 0.10, output: 0.40},
}

// contentGenerator is the part of the genai client the generator uses.
// *genai.Models satisfies it.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiGenerator uses Google's Gemini API with structured output.
type GeminiGenerator struct {
	models contentGenerator
	model  string
}

// NewGeminiGenerator creates a generator authenticated with apiKey.
// An empty model selects DefaultModel.
func NewGeminiGenerator(ctx context.Context, apiKey, model string) (*GeminiGenerator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return newGeminiGenerator(client.Models, model), nil
}

func newGeminiGenerator(models contentGenerator, model string) *GeminiGenerator {
	if model == "" {
		model = DefaultModel
	}
	return &GeminiGenerator{models: models, model: model}
}

func (g *GeminiGenerator) Model() string {
	return g.model
}

// Generate sends the image with the fixed instruction and response schema.
// Transport errors, empty replies and schema violations are all returned
// as errors; nothing is retried.
func (g *GeminiGenerator) Generate(ctx context.Context, image media.EncodedImage) (*Generation, error) {
	if len(image.Data) == 0 {
		return nil, fmt.Errorf("no image provided")
	}

	parts := []*genai.Part{
		{InlineData: &genai.Blob{Data: image.Data, MIMEType: image.MIMEType}},
		genai.NewPartFromText(Instruction),
	}
	contents := []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}
	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   ResponseSchema(),
	}

	result, err := g.models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}

	if len(result.Candidates) == 0 || result.Candidates[0].Content == nil || len(result.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("no response from Gemini")
	}

	parsed, err := parseGenerationResult(result.Text(), g.model)
	if err != nil {
		return nil, err
	}

	usage := Usage{}
	if result.UsageMetadata != nil {
		usage.InputTokens = int64(result.UsageMetadata.PromptTokenCount)
		usage.OutputTokens = int64(result.UsageMetadata.CandidatesTokenCount)
		usage.TotalTokens = int64(result.UsageMetadata.TotalTokenCount)
		usage.CostUSD = calculateGeminiCost(g.model, usage.InputTokens, usage.OutputTokens)
	}

	log.Info().
		Str("model", g.model).
		Str("mimeType", image.MIMEType).
		Int("imageBytes", len(image.Data)).
		Int64("inputTokens", usage.InputTokens).
		Int64("outputTokens", usage.OutputTokens).
		Float64("costUSD", usage.CostUSD).
		Msg("listing generation llm call")

	return &Generation{Result: parsed, Usage: usage}, nil
}

func calculateGeminiCost(model string, inputTokens, outputTokens int64) float64 {
	p, ok := geminiPricing[model]
	if !ok {
		return 0
	}
	inputCost := float64(inputTokens) / 1_000_000 * p.input
	outputCost := float64(outputTokens) / 1_000_000 * p.output
	return inputCost + outputCost
}

// extractJSONObject extracts a JSON object from text that may contain markdown
// code blocks or other formatting. Returns the extracted JSON string or an error.
func extractJSONObject(text string) (string, error) {
	text = strings.TrimSpace(text)
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end <= start {
		return "", fmt.Errorf("no JSON object found in response: %s", text)
	}
	return text[start : end+1], nil
}

// parseGenerationResult parses the model reply and tags it with model.
// The result is only returned when it passes validation.
func parseGenerationResult(text, model string) (*listing.GenerationResult, error) {
	jsonStr, err := extractJSONObject(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse response JSON: %w", err)
	}

	var reply struct {
		Amazon   *listing.AmazonListing   `json:"amazon"`
		Trendyol *listing.TrendyolListing `json:"trendyol"`
	}
	if err := json.Unmarshal([]byte(jsonStr), &reply); err != nil {
		return nil, fmt.Errorf("failed to parse response JSON: %w (response: %s)", err, jsonStr)
	}

	result := &listing.GenerationResult{
		ModelName: model,
		Amazon:    reply.Amazon,
		Trendyol:  reply.Trendyol,
	}
	if err := result.Validate(); err != nil {
		return nil, err
	}
	return result, nil
}
