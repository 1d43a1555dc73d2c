package usecase

import "github.com/eliteGoblin/focusd/bgmute/internal/domain"

// focusCache wraps a FocusTracker so a failed query falls back to the last
// known focus instead of failing the pass.
type focusCache struct {
	tracker domain.FocusTracker
	last    *domain.ProcessIdentity
}

func newFocusCache(t domain.FocusTracker) *focusCache {
	return &focusCache{tracker: t}
}

// current returns the focused process. On error it returns the previous
// value together with the error.
func (c *focusCache) current() (*domain.ProcessIdentity, error) {
	f, err := c.tracker.CurrentFocus()
	if err != nil {
		return c.last, err
	}
	if f == nil || !f.Valid() {
		c.last = nil
		return nil, nil
	}
	id := *f
	c.last = &id
	return c.last, nil
}

func sameFocus(a, b *domain.ProcessIdentity) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
