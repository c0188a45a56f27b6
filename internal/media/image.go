package media

import (
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"
)

// ErrNotImage is returned when the declared or detected media type is not image/*.
var ErrNotImage = errors.New("not an image")

// ErrInvalidDataURL is returned when a string can't be split into media type and payload.
var ErrInvalidDataURL = errors.New("invalid data url")

// EncodedImage is an in-memory image: raw bytes plus their media type.
type EncodedImage struct {
	MIMEType string
	Data     []byte
}

// IsImageType reports whether the media type is an image/* type.
func IsImageType(mediaType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(mediaType)), "image/")
}

// FromFile accepts file bytes whose declared media type begins with image/.
// Parameters on the declared type are dropped. An empty declared type is
// sniffed from the content.
func FromFile(data []byte, declaredMediaType string) (EncodedImage, error) {
	mediaType := normalizeMediaType(declaredMediaType)
	if mediaType == "" {
		mediaType = normalizeMediaType(http.DetectContentType(data))
	}
	if !IsImageType(mediaType) {
		return EncodedImage{}, fmt.Errorf("%w: %q", ErrNotImage, mediaType)
	}
	return EncodedImage{MIMEType: mediaType, Data: data}, nil
}

func normalizeMediaType(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(v)
	if err != nil {
		// Fall back to the part before any parameters
		mt, _, _ = strings.Cut(v, ";")
	}
	return strings.ToLower(strings.TrimSpace(mt))
}

// Base64 returns the standard base64 encoding of the image bytes.
func (img EncodedImage) Base64() string {
	return base64.StdEncoding.EncodeToString(img.Data)
}

// DataURL returns the media-type-tagged base64 form, data:<type>;base64,<payload>.
func (img EncodedImage) DataURL() string {
	return "data:" + img.MIMEType + ";base64," + img.Base64()
}

// IsZero reports whether no image is held.
func (img EncodedImage) IsZero() bool {
	return len(img.Data) == 0 && img.MIMEType == ""
}

// ParseDataURL splits a base64 data URL into its raw payload and media type.
func ParseDataURL(s string) (EncodedImage, error) {
	header, payload, ok := strings.Cut(s, ",")
	if !ok || !strings.HasPrefix(header, "data:") {
		return EncodedImage{}, ErrInvalidDataURL
	}
	meta := strings.TrimPrefix(header, "data:")
	mediaType, enc, _ := strings.Cut(meta, ";")
	if enc != "base64" {
		return EncodedImage{}, fmt.Errorf("%w: only base64 payloads are supported", ErrInvalidDataURL)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return EncodedImage{}, fmt.Errorf("%w: %v", ErrInvalidDataURL, err)
	}
	return EncodedImage{MIMEType: strings.ToLower(mediaType), Data: data}, nil
}
