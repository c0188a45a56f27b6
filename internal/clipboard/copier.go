package clipboard

import (
	"sort"
	"sync"
	"time"
)

// DefaultFeedbackDelay is how long a copy confirmation stays visible.
const DefaultFeedbackDelay = 2 * time.Second

// Copier copies text to a Clipboard and tracks a transient confirmation per
// element. Every element owns its own revert timer, so copying one element
// never shortens or extends another element's confirmation.
type Copier struct {
	clip  Clipboard
	delay time.Duration

	mu        sync.Mutex
	confirmed map[string]*pending
	toast     string
	toastP    *pending
	onChange  func()
	stopped   bool
}

// pending is a scheduled revert. Its identity tells a revert whether it is
// still the current one for its element.
type pending struct {
	timer *time.Timer
}

// NewCopier creates a Copier. A non-positive delay selects DefaultFeedbackDelay.
func NewCopier(clip Clipboard, delay time.Duration) *Copier {
	if delay <= 0 {
		delay = DefaultFeedbackDelay
	}
	return &Copier{
		clip:      clip,
		delay:     delay,
		confirmed: make(map[string]*pending),
	}
}

// OnChange registers a callback run after a confirmation appears or reverts.
// It is called without the Copier's lock held.
func (c *Copier) OnChange(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = fn
}

// Copy writes text to the clipboard and confirms elementID. Empty text is
// ignored. label feeds the toast message ("<label> copied!").
func (c *Copier) Copy(elementID, label, text string) error {
	if text == "" {
		return nil
	}
	if err := c.clip.WriteAll(text); err != nil {
		return err
	}

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}

	if p, ok := c.confirmed[elementID]; ok {
		p.timer.Stop()
	}
	p := &pending{}
	p.timer = time.AfterFunc(c.delay, func() { c.revert(elementID, p) })
	c.confirmed[elementID] = p

	if label != "" {
		if c.toastP != nil {
			c.toastP.timer.Stop()
		}
		c.toast = label + " copied!"
		tp := &pending{}
		tp.timer = time.AfterFunc(c.delay, func() { c.revertToast(tp) })
		c.toastP = tp
	}
	onChange := c.onChange
	c.mu.Unlock()

	if onChange != nil {
		onChange()
	}
	return nil
}

// revert clears the confirmation only if p is still the element's current
// revert; a newer copy of the same element replaced it otherwise.
func (c *Copier) revert(elementID string, p *pending) {
	c.mu.Lock()
	if c.confirmed[elementID] != p {
		c.mu.Unlock()
		return
	}
	delete(c.confirmed, elementID)
	onChange := c.onChange
	c.mu.Unlock()

	if onChange != nil {
		onChange()
	}
}

func (c *Copier) revertToast(p *pending) {
	c.mu.Lock()
	if c.toastP != p {
		c.mu.Unlock()
		return
	}
	c.toast = ""
	c.toastP = nil
	onChange := c.onChange
	c.mu.Unlock()

	if onChange != nil {
		onChange()
	}
}

// Confirmed reports whether elementID was copied within the feedback delay.
func (c *Copier) Confirmed(elementID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.confirmed[elementID]
	return ok
}

// ConfirmedIDs returns the currently confirmed element ids, sorted.
func (c *Copier) ConfirmedIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.confirmed))
	for id := range c.confirmed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Toast returns the current toast message, or "" once it has reverted.
func (c *Copier) Toast() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.toast
}

// Stop cancels all pending timers and clears every confirmation.
func (c *Copier) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, p := range c.confirmed {
		p.timer.Stop()
		delete(c.confirmed, id)
	}
	if c.toastP != nil {
		c.toastP.timer.Stop()
		c.toastP = nil
	}
	c.toast = ""
	c.stopped = true
}
