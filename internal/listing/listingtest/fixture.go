// Package listingtest provides well-formed generation results for tests.
package listingtest

import (
	"encoding/json"

	"github.com/raine/listing-studio/internal/listing"
)

const qualityStack = "high-end commercial photography, 8k resolution, sharp focus, professional color grading, studio lighting, highly detailed textures, realistic shadows"

const sizingPrompt = "A technical sizing diagram of the EXACT product on a flat PURE WHITE background with 3D dimension arrows labelled [ADD HEIGHT CM], [ADD WIDTH CM] and [ADD LENGTH CM], " + qualityStack

// Result returns a valid result tagged with the given model name.
func Result(model string) *listing.GenerationResult {
	return &listing.GenerationResult{
		ModelName: model,
		Amazon: &listing.AmazonListing{
			SEO: listing.AmazonSEO{
				Title:       "Handwoven Rattan Storage Basket with Lid",
				Description: "A natural rattan basket for blankets, toys and laundry.",
				BulletPoints: []string{
					"Handwoven natural rattan",
					"Fitted lid keeps contents dust free",
					"Sturdy side handles",
				},
				AverageSize: "40 x 30 x 35 cm",
			},
			Prompts: listing.Prompts{
				Lifestyle1: "A professional commercial studio shot of the EXACT basket on pure white #FFFFFF, " + qualityStack,
				Lifestyle2: "The EXACT basket in a modern living room, " + qualityStack,
				Usage:      "A person lifting the lid of the EXACT basket, " + qualityStack,
				Features:   "A wide-angle full view of the EXACT basket with floating callouts, " + qualityStack,
				Sizing:     sizingPrompt,
			},
		},
		Trendyol: &listing.TrendyolListing{
			SEO: listing.TrendyolSEO{
				Title:       "Rattan Storage Basket",
				Description: "Handwoven rattan basket with lid.",
			},
			Prompts: listing.Prompts{
				Lifestyle1: "The EXACT basket in a sunlit bedroom, " + qualityStack,
				Lifestyle2: "The EXACT basket beside a linen sofa, " + qualityStack,
				Usage:      "Hands folding a blanket into the EXACT basket, " + qualityStack,
				Features:   "Full view of the EXACT basket weave, " + qualityStack,
				Sizing:     sizingPrompt,
			},
		},
	}
}

// JSON returns the model reply body for Result, without the model tag.
func JSON() string {
	r := Result("")
	b, err := json.Marshal(struct {
		Amazon   *listing.AmazonListing   `json:"amazon"`
		Trendyol *listing.TrendyolListing `json:"trendyol"`
	}{r.Amazon, r.Trendyol})
	if err != nil {
		panic(err)
	}
	return string(b)
}
