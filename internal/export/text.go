package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/lithammer/dedent"

	"github.com/raine/listing-studio/internal/listing"
)

var (
	platformStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212")).
			MarginTop(1)

	headingStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	metaStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)
)

const textHeader = `
	Listing generated by %s
	Sizing prompts contain %s to fill in before use.
`

// TextExporter writes a human readable listing. Styled adds colors and is
// meant for terminals only.
type TextExporter struct {
	Styled bool
}

func (e *TextExporter) render(style lipgloss.Style, s string) string {
	if !e.Styled {
		return s
	}
	return style.Render(s)
}

func (e *TextExporter) Export(w io.Writer, result *listing.GenerationResult, platforms []listing.Platform) error {
	if result == nil {
		return fmt.Errorf("nothing to export")
	}

	var b strings.Builder
	header := fmt.Sprintf(strings.TrimSpace(dedent.Dedent(textHeader)),
		result.ModelName, strings.Join(listing.SizingPlaceholders, " "))
	b.WriteString(e.render(metaStyle, header))
	b.WriteString("\n")

	for _, p := range platforms {
		fields := listing.Fields(result, p)
		if fields == nil {
			continue
		}
		b.WriteString("\n")
		b.WriteString(e.render(platformStyle, strings.ToUpper(p.DisplayName())))
		b.WriteString("\n")

		promptsStarted := false
		for _, f := range fields {
			if f.Kind == listing.KindPrompt && !promptsStarted {
				promptsStarted = true
				b.WriteString("\n")
				b.WriteString(e.render(headingStyle, listing.PromptHeading(p)))
				b.WriteString("\n")
			}
			label := f.Label
			if f.Icon != "" {
				label = f.Icon + " " + label
			}
			fmt.Fprintf(&b, "%s\n%s\n", e.render(labelStyle, label), f.Text)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}
