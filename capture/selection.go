package capture

import "sync"

// Selection holds the media currently chosen for submission. Replacing or
// clearing it releases the previous blob.
type Selection struct {
	mu      sync.Mutex
	current *Media
}

// Set replaces the current media, releasing the superseded one
func (s *Selection) Set(m *Media) error {
	s.mu.Lock()
	prev := s.current
	s.current = m
	s.mu.Unlock()

	if prev != nil && prev != m {
		return prev.Release()
	}
	return nil
}

// Current returns the selected media or nil
func (s *Selection) Current() *Media {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Clear releases and forgets the current media
func (s *Selection) Clear() error {
	return s.Set(nil)
}
