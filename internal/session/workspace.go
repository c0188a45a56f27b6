package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/raine/listing-studio/internal/listing"
	"github.com/raine/listing-studio/internal/llm"
	"github.com/raine/listing-studio/internal/media"
	"github.com/raine/listing-studio/internal/storage"
)

// User-facing error messages stored in State.Error.
const (
	MsgURLLoadFailed    = "Failed to load image from URL."
	MsgGenerationFailed = "Generation failed."
)

var (
	// ErrNoImage is returned by Generate when the platform has no image.
	ErrNoImage = errors.New("no image to generate from")
	// ErrBusy is returned by Generate while the platform is loading.
	ErrBusy = errors.New("platform is busy")
	// ErrStale is returned when a generation finished after its image was replaced.
	ErrStale = errors.New("image changed during generation")
)

// ImageFetcher downloads an image from a URL.
type ImageFetcher interface {
	Fetch(ctx context.Context, url string) (media.EncodedImage, error)
}

// GenerationRecorder receives one entry per finished model call.
type GenerationRecorder interface {
	LogGeneration(entry storage.GenerationLogEntry) error
}

// slot is the mutable state of one platform. loading is derived from
// pending so overlapping operations can't clear each other's flag.
type slot struct {
	image    string
	result   *listing.GenerationResult
	err      string
	pending  int
	revision uint64
	version  uint64
}

func (s *slot) state() State {
	return State{
		Image:    s.image,
		Loading:  s.pending > 0,
		Result:   s.result.Clone(),
		Error:    s.err,
		Revision: s.revision,
		Version:  s.version,
	}
}

// Workspace holds the session state of every platform and the commands
// that mutate it. A command only ever touches its own platform's slot.
type Workspace struct {
	generator llm.Generator
	fetcher   ImageFetcher
	recorder  GenerationRecorder

	mu    sync.Mutex
	slots map[listing.Platform]*slot

	subsMu sync.Mutex
	subs   map[chan Event]struct{}
}

// NewWorkspace creates a workspace with empty state for every platform.
func NewWorkspace(generator llm.Generator, fetcher ImageFetcher) *Workspace {
	w := &Workspace{
		generator: generator,
		fetcher:   fetcher,
		slots:     make(map[listing.Platform]*slot),
		subs:      make(map[chan Event]struct{}),
	}
	for _, p := range listing.Platforms() {
		w.slots[p] = &slot{}
	}
	return w
}

// WithRecorder logs every finished generation to r.
func (w *Workspace) WithRecorder(r GenerationRecorder) *Workspace {
	w.recorder = r
	return w
}

// Model returns the model identifier generations are tagged with.
func (w *Workspace) Model() string {
	return w.generator.Model()
}

func (w *Workspace) slot(p listing.Platform) (*slot, error) {
	s, ok := w.slots[p]
	if !ok {
		return nil, fmt.Errorf("%w: %q", listing.ErrUnknownPlatform, p)
	}
	return s, nil
}

// mutate runs fn on the platform's slot under the lock and publishes the
// resulting state.
func (w *Workspace) mutate(p listing.Platform, fn func(s *slot) error) error {
	w.mu.Lock()
	s, err := w.slot(p)
	if err != nil {
		w.mu.Unlock()
		return err
	}
	if err := fn(s); err != nil {
		w.mu.Unlock()
		return err
	}
	s.version++
	st := s.state()
	w.mu.Unlock()

	w.publish(Event{Platform: p, State: st})
	return nil
}

// setImage replaces the image and invalidates the previous outcome.
func (s *slot) setImage(img media.EncodedImage) {
	s.image = img.DataURL()
	s.result = nil
	s.err = ""
	s.revision++
}

// AcquireFromFile stores an uploaded file as the platform's image. Files
// that are not image/* are ignored and false is returned.
func (w *Workspace) AcquireFromFile(p listing.Platform, data []byte, mediaType string) (bool, error) {
	img, err := media.FromFile(data, mediaType)
	if errors.Is(err, media.ErrNotImage) {
		if _, perr := w.platformExists(p); perr != nil {
			return false, perr
		}
		log.Debug().Str("platform", string(p)).Str("mediaType", mediaType).Msg("ignoring non-image file")
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := w.mutate(p, func(s *slot) error {
		s.setImage(img)
		return nil
	}); err != nil {
		return false, err
	}

	log.Info().
		Str("platform", string(p)).
		Str("mimeType", img.MIMEType).
		Int("bytes", len(img.Data)).
		Msg("image acquired from file")
	return true, nil
}

func (w *Workspace) platformExists(p listing.Platform) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := w.slot(p)
	return err == nil, err
}

// AcquireFromURL downloads the image at url into the platform's state.
// The platform is loading while the fetch runs. Any failure stores
// MsgURLLoadFailed. Returns true when the image was stored, in which case
// the URL input should be cleared.
func (w *Workspace) AcquireFromURL(ctx context.Context, p listing.Platform, url string) (bool, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		_, err := w.platformExists(p)
		return false, err
	}

	if err := w.mutate(p, func(s *slot) error {
		s.pending++
		return nil
	}); err != nil {
		return false, err
	}

	img, fetchErr := w.fetcher.Fetch(ctx, url)

	_ = w.mutate(p, func(s *slot) error {
		s.pending--
		if fetchErr != nil {
			s.err = MsgURLLoadFailed
			return nil
		}
		s.setImage(img)
		return nil
	})

	if fetchErr != nil {
		log.Warn().Err(fetchErr).Str("platform", string(p)).Str("url", url).Msg("failed to load image from url")
		return false, fetchErr
	}
	log.Info().
		Str("platform", string(p)).
		Str("mimeType", img.MIMEType).
		Int("bytes", len(img.Data)).
		Msg("image acquired from url")
	return true, nil
}

// Generate sends the platform's image to the generator and stores the
// result, or MsgGenerationFailed on any failure. A failure leaves the
// previous result in place. If the image is replaced while the call is in
// flight, its outcome is discarded and ErrStale returned.
func (w *Workspace) Generate(ctx context.Context, p listing.Platform) error {
	var (
		dataURL  string
		revision uint64
	)
	if err := w.mutate(p, func(s *slot) error {
		if s.image == "" {
			return ErrNoImage
		}
		if s.pending > 0 {
			return ErrBusy
		}
		s.pending++
		s.err = ""
		dataURL = s.image
		revision = s.revision
		return nil
	}); err != nil {
		return err
	}

	var gen *llm.Generation
	img, err := media.ParseDataURL(dataURL)
	if err == nil {
		gen, err = w.generator.Generate(ctx, img)
	}
	if err == nil && (gen == nil || gen.Result == nil) {
		err = errors.New("generator returned no result")
	}

	stale := false
	_ = w.mutate(p, func(s *slot) error {
		s.pending--
		if s.revision != revision {
			stale = true
			return nil
		}
		if err != nil {
			s.err = MsgGenerationFailed
			return nil
		}
		result := gen.Result.Clone()
		if result.ModelName == "" {
			result.ModelName = w.generator.Model()
		}
		s.result = result
		return nil
	})

	w.record(p, gen, err)

	switch {
	case stale:
		log.Warn().Str("platform", string(p)).Msg("discarding generation for replaced image")
		return ErrStale
	case err != nil:
		log.Error().Err(err).Str("platform", string(p)).Msg("generation failed")
		return fmt.Errorf("generation failed: %w", err)
	}

	log.Info().
		Str("platform", string(p)).
		Str("model", gen.Result.ModelName).
		Bool("cached", gen.Usage.Cached).
		Msg("generation stored")
	return nil
}

func (w *Workspace) record(p listing.Platform, gen *llm.Generation, err error) {
	if w.recorder == nil {
		return
	}
	entry := storage.GenerationLogEntry{
		Platform: p,
		Model:    w.generator.Model(),
		Failed:   err != nil,
	}
	if gen != nil {
		entry.InputTokens = gen.Usage.InputTokens
		entry.OutputTokens = gen.Usage.OutputTokens
		entry.CostUSD = gen.Usage.CostUSD
		entry.Cached = gen.Usage.Cached
	}
	if rerr := w.recorder.LogGeneration(entry); rerr != nil {
		log.Warn().Err(rerr).Msg("failed to record generation")
	}
}

// Snapshot returns a copy of the platform's current state.
func (w *Workspace) Snapshot(p listing.Platform) (State, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, err := w.slot(p)
	if err != nil {
		return State{}, err
	}
	return s.state(), nil
}

// Snapshots returns a copy of every platform's state.
func (w *Workspace) Snapshots() map[listing.Platform]State {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[listing.Platform]State, len(w.slots))
	for p, s := range w.slots {
		out[p] = s.state()
	}
	return out
}
