package llm

import (
	"fmt"
	"strings"

	"github.com/lithammer/dedent"
	"google.golang.org/genai"

	"github.com/raine/listing-studio/internal/listing"
)

// QualityStack is the phrase every generated prompt must end with.
const QualityStack = "high-end commercial photography, 8k resolution, sharp focus, professional color grading, studio lighting, highly detailed textures, realistic shadows"

const instructionTemplate = `
	You are a world-class e-commerce creative director. Look at the product in the
	attached photo and write listing copy plus photography prompts for AI image
	generators, for two marketplaces: Amazon and Trendyol.

	PRODUCT FIDELITY:
	1. DESIGN LOCK: keep the product's exact shape, color, texture and design
	   details. Use phrases like "1:1 exact replica", "identical design details",
	   "preserve original material textures".
	2. NO INVENTED FEATURES: never add buttons, parts or decorations that are not
	   visible in the photo.
	3. QUALITY STACK: every prompt must end with: "%[1]s".

	For EACH marketplace write five distinct prompts:
	- lifestyle1 (MAIN): a commercial studio shot of the EXACT product centered on a
	  flat PURE WHITE background (#FFFFFF), filling about 85%% of the frame, with a
	  soft natural drop shadow. No props, no clutter.
	- lifestyle2 (LIFESTYLE): the EXACT product in a premium, aspirational setting
	  that fits it (for example a modern living room or a designer kitchen), soft
	  window light, shallow depth of field with the product in sharp focus.
	- usage (USAGE): a person naturally interacting with the EXACT product (choose
	  an action that fits the item). The product stays the central focus; realistic
	  skin texture and a natural pose.
	- features (FEATURES): a full view of the EXACT product from front to back,
	  surrounded by sleek floating callout lines and labels pointing at features
	  visible in the photo, infographic style.
	- sizing (SIZING): a technical sizing diagram of the EXACT product on a flat
	  PURE WHITE background with 3D dimension arrows for height, width and length.
	  The prompt text MUST contain the literal placeholders '%[2]s', '%[3]s' and
	  '%[4]s' for the seller to fill in. Clean architectural drawing style.

	Amazon prompts are framed 1:1. Trendyol prompts are framed 2:3 (portrait).

	SEO:
	- amazon.seo: title, description, bulletPoints (five concise benefit bullets)
	  and averageSize (the estimated product size in centimeters).
	- trendyol.seo: title and description only.
	Write all copy in English.

	Return strictly JSON.
`

// Instruction is the fixed instruction text sent with every product photo.
var Instruction = strings.TrimSpace(dedent.Dedent(fmt.Sprintf(instructionTemplate,
	QualityStack,
	listing.HeightPlaceholder,
	listing.WidthPlaceholder,
	listing.LengthPlaceholder,
)))

func stringSchema(description string) *genai.Schema {
	return &genai.Schema{Type: genai.TypeString, Description: description}
}

func promptsSchema() *genai.Schema {
	keys := []string{"lifestyle1", "lifestyle2", "usage", "features", "sizing"}
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"lifestyle1": stringSchema("Strict white background main image"),
			"lifestyle2": stringSchema("Premium lifestyle setting"),
			"usage":      stringSchema("Human usage interaction"),
			"features":   stringSchema("Full view feature highlight"),
			"sizing":     stringSchema("White background sizing diagram with [BRACKET] placeholders"),
		},
		Required:         keys,
		PropertyOrdering: keys,
	}
}

func objectSchema(properties map[string]*genai.Schema, keys ...string) *genai.Schema {
	return &genai.Schema{
		Type:             genai.TypeObject,
		Properties:       properties,
		Required:         keys,
		PropertyOrdering: keys,
	}
}

// ResponseSchema declares the JSON object the model must return: one
// record per marketplace, each with an SEO block and five prompts.
func ResponseSchema() *genai.Schema {
	amazonSEO := objectSchema(map[string]*genai.Schema{
		"title":       stringSchema(""),
		"description": stringSchema(""),
		"bulletPoints": {
			Type:  genai.TypeArray,
			Items: stringSchema(""),
		},
		"averageSize": stringSchema("Estimated product size in centimeters"),
	}, "title", "description", "bulletPoints", "averageSize")

	trendyolSEO := objectSchema(map[string]*genai.Schema{
		"title":       stringSchema(""),
		"description": stringSchema(""),
	}, "title", "description")

	return objectSchema(map[string]*genai.Schema{
		"amazon": objectSchema(map[string]*genai.Schema{
			"seo":     amazonSEO,
			"prompts": promptsSchema(),
		}, "seo", "prompts"),
		"trendyol": objectSchema(map[string]*genai.Schema{
			"seo":     trendyolSEO,
			"prompts": promptsSchema(),
		}, "seo", "prompts"),
	}, "amazon", "trendyol")
}
