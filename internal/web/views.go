package web

import (
	"html/template"

	"github.com/raine/listing-studio/internal/listing"
	"github.com/raine/listing-studio/internal/session"
)

type tabView struct {
	Platform listing.Platform
	Name     string
	Active   bool
}

type pageData struct {
	Tabs   []tabView
	View   platformView
	URL    string
	Model  string
	Toast  string
	Active listing.Platform
}

// fieldView is one copyable field with its confirmation flag.
type fieldView struct {
	listing.Field
	ID     string `json:"id"`
	Copied bool   `json:"copied"`
}

// platformView is everything the page and the API show for one platform.
type platformView struct {
	Platform      listing.Platform `json:"platform"`
	Name          string           `json:"name"`
	State         session.State    `json:"state"`
	CanGenerate   bool             `json:"canGenerate"`
	PromptHeading string           `json:"promptHeading"`
	SEO           []fieldView      `json:"seo,omitempty"`
	Prompts       []fieldView      `json:"prompts,omitempty"`
	Toast         string           `json:"toast,omitempty"`
}

// ImageSrc returns the stored image for an <img> src attribute. The data
// URL is produced by media.EncodedImage and always carries an image/* type.
func (v platformView) ImageSrc() template.URL {
	return template.URL(v.State.Image)
}

func (s *Server) platformView(p listing.Platform) (platformView, error) {
	st, err := s.workspace.Snapshot(p)
	if err != nil {
		return platformView{}, err
	}

	view := platformView{
		Platform:      p,
		Name:          p.DisplayName(),
		State:         st,
		CanGenerate:   st.CanGenerate(),
		PromptHeading: listing.PromptHeading(p),
		Toast:         s.copier.Toast(),
	}
	for _, f := range listing.Fields(st.Result, p) {
		id := elementID(p, f.Key)
		fv := fieldView{Field: f, ID: id, Copied: s.copier.Confirmed(id)}
		if f.Kind == listing.KindPrompt {
			view.Prompts = append(view.Prompts, fv)
		} else {
			view.SEO = append(view.SEO, fv)
		}
	}
	return view, nil
}

// elementID names a copyable element across both platforms.
func elementID(p listing.Platform, key string) string {
	return string(p) + "/" + key
}
