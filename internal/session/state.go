package session

import (
	"github.com/rs/zerolog/log"

	"github.com/raine/listing-studio/internal/listing"
)

// State is the session state of one platform.
type State struct {
	// Image is the acquired image as a base64 data URL, "" when absent.
	Image   string                    `json:"image,omitempty"`
	Loading bool                      `json:"loading"`
	Result  *listing.GenerationResult `json:"result,omitempty"`
	Error   string                    `json:"error,omitempty"`
	// Revision increments on every image acquisition.
	Revision uint64 `json:"revision"`
	// Version increments on every change to the platform's state.
	Version uint64 `json:"version"`
}

// HasImage reports whether an image has been acquired.
func (s State) HasImage() bool {
	return s.Image != ""
}

// CanGenerate mirrors the Generate button: enabled with an image and while idle.
func (s State) CanGenerate() bool {
	return s.HasImage() && !s.Loading
}

// Event is published after every state change.
type Event struct {
	Platform listing.Platform `json:"platform"`
	State    State            `json:"state"`
}

const subscriberBuffer = 16

// Subscribe returns a channel receiving every state change and a function
// that unsubscribes. A subscriber that falls behind misses events; it never
// blocks a mutation.
func (w *Workspace) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	w.subsMu.Lock()
	w.subs[ch] = struct{}{}
	w.subsMu.Unlock()

	unsubscribe := func() {
		w.subsMu.Lock()
		defer w.subsMu.Unlock()
		if _, ok := w.subs[ch]; ok {
			delete(w.subs, ch)
			close(ch)
		}
	}
	return ch, unsubscribe
}

func (w *Workspace) publish(ev Event) {
	w.subsMu.Lock()
	defer w.subsMu.Unlock()
	for ch := range w.subs {
		select {
		case ch <- ev:
		default:
			log.Debug().Str("platform", string(ev.Platform)).Msg("dropping state event for slow subscriber")
		}
	}
}
