package clipboard

import (
	"fmt"
	"sync"

	"github.com/atotto/clipboard"
)

// Clipboard receives copied text.
type Clipboard interface {
	WriteAll(text string) error
}

// System writes to the host's system clipboard.
type System struct{}

func (System) WriteAll(text string) error {
	if err := clipboard.WriteAll(text); err != nil {
		return fmt.Errorf("failed to write system clipboard: %w", err)
	}
	return nil
}

// Memory keeps copied text in memory. It stands in for the system clipboard
// on headless hosts; the browser still writes its own clipboard.
type Memory struct {
	mu     sync.Mutex
	writes []string
}

func (m *Memory) WriteAll(text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes = append(m.writes, text)
	return nil
}

// Last returns the most recent write, or "" when nothing was copied.
func (m *Memory) Last() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.writes) == 0 {
		return ""
	}
	return m.writes[len(m.writes)-1]
}

// Writes returns every write in order.
func (m *Memory) Writes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.writes...)
}

// Detect returns the system clipboard when the host supports one.
func Detect() Clipboard {
	if clipboard.Unsupported {
		return &Memory{}
	}
	return System{}
}
