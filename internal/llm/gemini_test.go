package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/raine/listing-studio/internal/listing"
	"github.com/raine/listing-studio/internal/listing/listingtest"
	"github.com/raine/listing-studio/internal/media"
)

type mockModels struct {
	mock.Mock
}

func (m *mockModels) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	args := m.Called(ctx, model, contents, config)
	resp, _ := args.Get(0).(*genai.GenerateContentResponse)
	return resp, args.Error(1)
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{
				Role:  genai.RoleModel,
				Parts: []*genai.Part{{Text: text}},
			},
		}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{
			PromptTokenCount:     1000,
			CandidatesTokenCount: 500,
			TotalTokenCount:      1500,
		},
	}
}

var testImage = media.EncodedImage{MIMEType: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}}

func TestGeminiGenerator_Success(t *testing.T) {
	models := new(mockModels)
	models.On("GenerateContent", mock.Anything, ModelPro3, mock.Anything, mock.Anything).
		Return(textResponse(listingtest.JSON()), nil).Once()

	g := newGeminiGenerator(models, "")
	gen, err := g.Generate(context.Background(), testImage)
	require.NoError(t, err)

	assert.Equal(t, listingtest.Result(ModelPro3), gen.Result)
	assert.Equal(t, int64(1000), gen.Usage.InputTokens)
	assert.Equal(t, int64(500), gen.Usage.OutputTokens)
	assert.InDelta(t, 0.002+0.006, gen.Usage.CostUSD, 1e-9)
	models.AssertExpectations(t)
}

func TestGeminiGenerator_RequestShape(t *testing.T) {
	models := new(mockModels)
	models.On("GenerateContent", mock.Anything, ModelFlash3,
		mock.MatchedBy(func(contents []*genai.Content) bool {
			if len(contents) != 1 || len(contents[0].Parts) != 2 {
				return false
			}
			img := contents[0].Parts[0].InlineData
			return img != nil &&
				img.MIMEType == "image/png" &&
				string(img.Data) == string(testImage.Data) &&
				contents[0].Parts[1].Text == Instruction
		}),
		mock.MatchedBy(func(cfg *genai.GenerateContentConfig) bool {
			return cfg.ResponseMIMEType == "application/json" &&
				cfg.ResponseSchema != nil &&
				assert.ObjectsAreEqual([]string{"amazon", "trendyol"}, cfg.ResponseSchema.Required)
		}),
	).Return(textResponse(listingtest.JSON()), nil).Once()

	_, err := newGeminiGenerator(models, ModelFlash3).Generate(context.Background(), testImage)
	require.NoError(t, err)
	models.AssertExpectations(t)
}

func TestGeminiGenerator_TransportError(t *testing.T) {
	models := new(mockModels)
	models.On("GenerateContent", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("503 service unavailable")).Once()

	_, err := newGeminiGenerator(models, "").Generate(context.Background(), testImage)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to generate content")
	// No retry
	models.AssertNumberOfCalls(t, "GenerateContent", 1)
}

func TestGeminiGenerator_NonJSONReply(t *testing.T) {
	models := new(mockModels)
	models.On("GenerateContent", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(textResponse("Sorry, I can't help with that."), nil)

	_, err := newGeminiGenerator(models, "").Generate(context.Background(), testImage)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse response JSON")
}

func TestGeminiGenerator_SchemaMismatch(t *testing.T) {
	models := new(mockModels)
	models.On("GenerateContent", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(textResponse(`{"amazon": {"seo": {"title": "x"}}}`), nil)

	_, err := newGeminiGenerator(models, "").Generate(context.Background(), testImage)
	assert.ErrorIs(t, err, listing.ErrSchemaMismatch)
}

func TestGeminiGenerator_EmptyCandidates(t *testing.T) {
	models := new(mockModels)
	models.On("GenerateContent", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&genai.GenerateContentResponse{}, nil)

	_, err := newGeminiGenerator(models, "").Generate(context.Background(), testImage)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no response from Gemini")
}

func TestGeminiGenerator_NoImage(t *testing.T) {
	models := new(mockModels)

	_, err := newGeminiGenerator(models, "").Generate(context.Background(), media.EncodedImage{})
	assert.Error(t, err)
	models.AssertNotCalled(t, "GenerateContent", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestParseGenerationResult_MarkdownFence(t *testing.T) {
	text := "```json\n" + listingtest.JSON() + "\n```"

	got, err := parseGenerationResult(text, ModelFlashLite)
	require.NoError(t, err)
	assert.Equal(t, ModelFlashLite, got.ModelName)
	for _, ph := range listing.SizingPlaceholders {
		assert.Contains(t, got.Amazon.Prompts.Sizing, ph)
		assert.Contains(t, got.Trendyol.Prompts.Sizing, ph)
	}
}

func TestExtractJSONObject(t *testing.T) {
	got, err := extractJSONObject("noise {\"a\": {\"b\": 1}} trailing")
	require.NoError(t, err)
	assert.Equal(t, `{"a": {"b": 1}}`, got)

	_, err = extractJSONObject("no json here")
	assert.Error(t, err)
}

func TestCalculateGeminiCost(t *testing.T) {
	assert.InDelta(t, 0.5+3.0, calculateGeminiCost(ModelFlash3, 1_000_000, 1_000_000), 1e-9)
	assert.Equal(t, 0.0, calculateGeminiCost("unknown-model", 1_000_000, 1_000_000))
}

func TestInstruction(t *testing.T) {
	for _, ph := range listing.SizingPlaceholders {
		assert.Contains(t, Instruction, ph)
	}
	assert.Contains(t, Instruction, QualityStack)
	assert.Contains(t, Instruction, "85% of the frame")
	assert.False(t, strings.HasPrefix(Instruction, "\t"), "instruction should be dedented")
}

func TestResponseSchema(t *testing.T) {
	s := ResponseSchema()

	assert.Equal(t, genai.TypeObject, s.Type)
	assert.Equal(t, []string{"amazon", "trendyol"}, s.Required)

	amazonSEO := s.Properties["amazon"].Properties["seo"]
	assert.Equal(t, []string{"title", "description", "bulletPoints", "averageSize"}, amazonSEO.Required)
	assert.Equal(t, genai.TypeArray, amazonSEO.Properties["bulletPoints"].Type)

	trendyolSEO := s.Properties["trendyol"].Properties["seo"]
	assert.Equal(t, []string{"title", "description"}, trendyolSEO.Required)

	for _, market := range []string{"amazon", "trendyol"} {
		prompts := s.Properties[market].Properties["prompts"]
		assert.Equal(t, []string{"lifestyle1", "lifestyle2", "usage", "features", "sizing"}, prompts.Required, market)
	}
}
