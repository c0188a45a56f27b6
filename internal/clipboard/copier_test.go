package clipboard

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDelay = 50 * time.Millisecond

type brokenClipboard struct{}

func (brokenClipboard) WriteAll(string) error { return errors.New("no display") }

func TestCopier_WritesExactText(t *testing.T) {
	mem := &Memory{}
	c := NewCopier(mem, testDelay)
	defer c.Stop()

	require.NoError(t, c.Copy("amazon/seo.title", "Title", "Hello"))

	assert.Equal(t, "Hello", mem.Last())
	assert.Equal(t, []string{"Hello"}, mem.Writes())
}

func TestCopier_ConfirmationReverts(t *testing.T) {
	c := NewCopier(&Memory{}, testDelay)
	defer c.Stop()

	require.NoError(t, c.Copy("card", "Sizing", "Hello"))
	assert.True(t, c.Confirmed("card"))
	assert.Equal(t, "Sizing copied!", c.Toast())

	assert.Eventually(t, func() bool { return !c.Confirmed("card") }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return c.Toast() == "" }, time.Second, 5*time.Millisecond)
}

func TestCopier_IndependentTimers(t *testing.T) {
	c := NewCopier(&Memory{}, 100*time.Millisecond)
	defer c.Stop()

	require.NoError(t, c.Copy("a", "", "first"))
	time.Sleep(60 * time.Millisecond)
	require.NoError(t, c.Copy("b", "", "second"))

	// a reverts on its own schedule while b stays confirmed
	assert.Eventually(t, func() bool { return !c.Confirmed("a") }, time.Second, 5*time.Millisecond)
	assert.True(t, c.Confirmed("b"))

	assert.Eventually(t, func() bool { return !c.Confirmed("b") }, time.Second, 5*time.Millisecond)
}

func TestCopier_RecopyResetsOnlyThatElement(t *testing.T) {
	c := NewCopier(&Memory{}, 100*time.Millisecond)
	defer c.Stop()

	require.NoError(t, c.Copy("a", "", "x"))
	require.NoError(t, c.Copy("b", "", "y"))
	time.Sleep(60 * time.Millisecond)
	require.NoError(t, c.Copy("a", "", "x"))

	// b keeps its original deadline, a was pushed back
	assert.Eventually(t, func() bool { return !c.Confirmed("b") }, time.Second, 5*time.Millisecond)
	assert.True(t, c.Confirmed("a"))
	assert.Eventually(t, func() bool { return !c.Confirmed("a") }, time.Second, 5*time.Millisecond)
}

func TestCopier_IgnoresEmptyText(t *testing.T) {
	mem := &Memory{}
	c := NewCopier(mem, testDelay)
	defer c.Stop()

	require.NoError(t, c.Copy("a", "Title", ""))

	assert.Empty(t, mem.Writes())
	assert.False(t, c.Confirmed("a"))
	assert.Empty(t, c.Toast())
}

func TestCopier_ClipboardError(t *testing.T) {
	c := NewCopier(brokenClipboard{}, testDelay)
	defer c.Stop()

	err := c.Copy("a", "Title", "Hello")
	assert.Error(t, err)
	assert.False(t, c.Confirmed("a"))
}

func TestCopier_OnChange(t *testing.T) {
	var calls atomic.Int32
	c := NewCopier(&Memory{}, testDelay)
	defer c.Stop()
	c.OnChange(func() { calls.Add(1) })

	require.NoError(t, c.Copy("a", "Title", "Hello"))
	assert.Equal(t, int32(1), calls.Load())

	// element revert and toast revert
	assert.Eventually(t, func() bool { return calls.Load() == 3 }, time.Second, 5*time.Millisecond)
}

func TestCopier_ConfirmedIDsAndStop(t *testing.T) {
	c := NewCopier(&Memory{}, time.Minute)

	require.NoError(t, c.Copy("b", "", "y"))
	require.NoError(t, c.Copy("a", "", "x"))
	assert.Equal(t, []string{"a", "b"}, c.ConfirmedIDs())

	c.Stop()
	assert.Empty(t, c.ConfirmedIDs())
	assert.Empty(t, c.Toast())
}

func TestNewCopier_DefaultDelay(t *testing.T) {
	c := NewCopier(&Memory{}, 0)
	assert.Equal(t, DefaultFeedbackDelay, c.delay)
}
