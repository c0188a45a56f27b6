package listing

import (
	"errors"
	"fmt"
	"strings"
)

// Platform identifies one of the supported marketplaces. It keys all per-tab state.
type Platform string

const (
	Amazon   Platform = "amazon"
	Trendyol Platform = "trendyol"
)

var ErrUnknownPlatform = errors.New("unknown platform")

// ErrSchemaMismatch is returned when a generation result is missing required fields.
var ErrSchemaMismatch = errors.New("generation result does not match schema")

// Platforms returns the supported platforms in tab order.
func Platforms() []Platform {
	return []Platform{Amazon, Trendyol}
}

// ParsePlatform parses a platform identifier. Matching is case-insensitive.
func ParsePlatform(s string) (Platform, error) {
	switch Platform(strings.ToLower(strings.TrimSpace(s))) {
	case Amazon:
		return Amazon, nil
	case Trendyol:
		return Trendyol, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPlatform, s)
}

// DisplayName returns the human readable marketplace name.
func (p Platform) DisplayName() string {
	switch p {
	case Amazon:
		return "Amazon"
	case Trendyol:
		return "Trendyol"
	}
	return string(p)
}

// Sizing prompt placeholders the model must embed verbatim.
const (
	HeightPlaceholder = "[ADD HEIGHT CM]"
	WidthPlaceholder  = "[ADD WIDTH CM]"
	LengthPlaceholder = "[ADD LENGTH CM]"
)

// SizingPlaceholders lists the bracketed tokens required in every sizing prompt.
var SizingPlaceholders = []string{HeightPlaceholder, WidthPlaceholder, LengthPlaceholder}

// Prompts holds the five photography prompts generated per marketplace.
// Lifestyle1 is the main pure white background shot and Lifestyle2 the
// aspirational lifestyle scene; the JSON keys keep the model contract.
type Prompts struct {
	Lifestyle1 string `json:"lifestyle1" yaml:"lifestyle1"`
	Lifestyle2 string `json:"lifestyle2" yaml:"lifestyle2"`
	Usage      string `json:"usage" yaml:"usage"`
	Features   string `json:"features" yaml:"features"`
	Sizing     string `json:"sizing" yaml:"sizing"`
}

type AmazonSEO struct {
	Title        string   `json:"title" yaml:"title"`
	Description  string   `json:"description" yaml:"description"`
	BulletPoints []string `json:"bulletPoints" yaml:"bulletPoints"`
	AverageSize  string   `json:"averageSize" yaml:"averageSize"`
}

type TrendyolSEO struct {
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description" yaml:"description"`
}

type AmazonListing struct {
	SEO     AmazonSEO `json:"seo" yaml:"seo"`
	Prompts Prompts   `json:"prompts" yaml:"prompts"`
}

type TrendyolListing struct {
	SEO     TrendyolSEO `json:"seo" yaml:"seo"`
	Prompts Prompts     `json:"prompts" yaml:"prompts"`
}

// GenerationResult is the structured listing copy returned by the model,
// tagged with the model identifier that produced it. A well-formed result
// always contains both marketplace records regardless of the active tab.
type GenerationResult struct {
	ModelName string           `json:"modelName" yaml:"modelName"`
	Amazon    *AmazonListing   `json:"amazon,omitempty" yaml:"amazon,omitempty"`
	Trendyol  *TrendyolListing `json:"trendyol,omitempty" yaml:"trendyol,omitempty"`
}

// Clone returns a deep copy so callers can't mutate shared state.
func (r *GenerationResult) Clone() *GenerationResult {
	if r == nil {
		return nil
	}
	out := &GenerationResult{ModelName: r.ModelName}
	if r.Amazon != nil {
		a := *r.Amazon
		a.SEO.BulletPoints = append([]string(nil), r.Amazon.SEO.BulletPoints...)
		out.Amazon = &a
	}
	if r.Trendyol != nil {
		t := *r.Trendyol
		out.Trendyol = &t
	}
	return out
}

// Validate checks that both marketplace records are present with every
// required field populated, and that each sizing prompt carries the
// dimension placeholders.
func (r *GenerationResult) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: empty result", ErrSchemaMismatch)
	}
	var problems []string
	missing := func(path, v string) {
		if strings.TrimSpace(v) == "" {
			problems = append(problems, path+" is empty")
		}
	}

	if r.Amazon == nil {
		problems = append(problems, "amazon is missing")
	} else {
		missing("amazon.seo.title", r.Amazon.SEO.Title)
		missing("amazon.seo.description", r.Amazon.SEO.Description)
		missing("amazon.seo.averageSize", r.Amazon.SEO.AverageSize)
		if len(r.Amazon.SEO.BulletPoints) == 0 {
			problems = append(problems, "amazon.seo.bulletPoints is empty")
		}
		for i, bp := range r.Amazon.SEO.BulletPoints {
			missing(fmt.Sprintf("amazon.seo.bulletPoints[%d]", i), bp)
		}
		problems = append(problems, r.Amazon.Prompts.problems("amazon.prompts")...)
	}

	if r.Trendyol == nil {
		problems = append(problems, "trendyol is missing")
	} else {
		missing("trendyol.seo.title", r.Trendyol.SEO.Title)
		missing("trendyol.seo.description", r.Trendyol.SEO.Description)
		problems = append(problems, r.Trendyol.Prompts.problems("trendyol.prompts")...)
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrSchemaMismatch, strings.Join(problems, "; "))
	}
	return nil
}

func (p Prompts) problems(prefix string) []string {
	var out []string
	for _, f := range []struct{ key, val string }{
		{"lifestyle1", p.Lifestyle1},
		{"lifestyle2", p.Lifestyle2},
		{"usage", p.Usage},
		{"features", p.Features},
		{"sizing", p.Sizing},
	} {
		if strings.TrimSpace(f.val) == "" {
			out = append(out, prefix+"."+f.key+" is empty")
		}
	}
	for _, ph := range SizingPlaceholders {
		if p.Sizing != "" && !strings.Contains(p.Sizing, ph) {
			out = append(out, fmt.Sprintf("%s.sizing lacks %s", prefix, ph))
		}
	}
	return out
}
