package listing

import "fmt"

type FieldKind string

const (
	KindText   FieldKind = "text"
	KindBullet FieldKind = "bullet"
	KindPrompt FieldKind = "prompt"
)

// Field is a single copyable piece of a marketplace record.
type Field struct {
	Key   string    `json:"key"`
	Label string    `json:"label"`
	Text  string    `json:"text"`
	Kind  FieldKind `json:"kind"`
	Icon  string    `json:"icon,omitempty"`
}

type promptCard struct {
	key, label, icon string
	value            func(Prompts) string
}

var amazonCards = []promptCard{
	{"lifestyle1", "Main: White Background", "⬜", func(p Prompts) string { return p.Lifestyle1 }},
	{"lifestyle2", "Lifestyle", "✨", func(p Prompts) string { return p.Lifestyle2 }},
	{"usage", "Usage", "👤", func(p Prompts) string { return p.Usage }},
	{"features", "Features", "📋", func(p Prompts) string { return p.Features }},
	{"sizing", "Sizing", "📐", func(p Prompts) string { return p.Sizing }},
}

var trendyolCards = []promptCard{
	{"lifestyle1", "Lifestyle 1", "🌆", func(p Prompts) string { return p.Lifestyle1 }},
	{"lifestyle2", "Lifestyle 2", "📸", func(p Prompts) string { return p.Lifestyle2 }},
	{"usage", "Usage", "🤸", func(p Prompts) string { return p.Usage }},
	{"features", "Features", "🔍", func(p Prompts) string { return p.Features }},
	{"sizing", "Sizing", "📏", func(p Prompts) string { return p.Sizing }},
}

// PromptHeading returns the heading shown above a platform's prompt cards.
func PromptHeading(p Platform) string {
	if p == Trendyol {
		return "2:3 Photo Prompts (English)"
	}
	return "1:1 Photo Prompts (English)"
}

// Fields flattens the platform's record into ordered copyable fields.
// Returns nil when the result has no record for the platform.
func Fields(r *GenerationResult, p Platform) []Field {
	if r == nil {
		return nil
	}
	var fields []Field
	switch p {
	case Amazon:
		if r.Amazon == nil {
			return nil
		}
		seo := r.Amazon.SEO
		fields = append(fields,
			Field{Key: "seo.title", Label: "SEO Title", Text: seo.Title, Kind: KindText},
			Field{Key: "seo.description", Label: "Description", Text: seo.Description, Kind: KindText},
		)
		for i, bp := range seo.BulletPoints {
			fields = append(fields, Field{
				Key:   fmt.Sprintf("seo.bullet.%d", i+1),
				Label: fmt.Sprintf("Bullet %d", i+1),
				Text:  bp,
				Kind:  KindBullet,
			})
		}
		fields = append(fields, Field{Key: "seo.averageSize", Label: "Average Size", Text: seo.AverageSize, Kind: KindText})
		fields = append(fields, promptFields(amazonCards, r.Amazon.Prompts)...)
	case Trendyol:
		if r.Trendyol == nil {
			return nil
		}
		fields = append(fields,
			Field{Key: "seo.title", Label: "Title", Text: r.Trendyol.SEO.Title, Kind: KindText},
			Field{Key: "seo.description", Label: "Description", Text: r.Trendyol.SEO.Description, Kind: KindText},
		)
		fields = append(fields, promptFields(trendyolCards, r.Trendyol.Prompts)...)
	}
	return fields
}

func promptFields(cards []promptCard, p Prompts) []Field {
	out := make([]Field, 0, len(cards))
	for _, c := range cards {
		out = append(out, Field{
			Key:   "prompts." + c.key,
			Label: c.label,
			Text:  c.value(p),
			Kind:  KindPrompt,
			Icon:  c.icon,
		})
	}
	return out
}

// LookupField finds a field by key in the platform's record.
func LookupField(r *GenerationResult, p Platform, key string) (Field, bool) {
	for _, f := range Fields(r, p) {
		if f.Key == key {
			return f, true
		}
	}
	return Field{}, false
}
