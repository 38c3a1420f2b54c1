// internal/selector/searchspace.go
package selector

import (
	"sync"

	"github.com/xkilldash9x/suture/api/schemas"
)

// SearchSpace is the per-campaign ledger of every decision the engine offered,
// whether or not it was chosen. Engine calls write to it; the report reads it
// once the exploration loop has ended.
type SearchSpace struct {
	mu        sync.Mutex
	seen      map[string]struct{}
	decisions []schemas.Decision
}

func NewSearchSpace() *SearchSpace {
	return &SearchSpace{seen: make(map[string]struct{})}
}

// Offer records a decision. It returns false when an identical decision was
// already recorded.
func (s *SearchSpace) Offer(d schemas.Decision) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := d.Key()
	if _, ok := s.seen[key]; ok {
		return false
	}
	s.seen[key] = struct{}{}
	s.decisions = append(s.decisions, d)
	return true
}

func (s *SearchSpace) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.decisions)
}

// Decisions returns a copy of the catalogue in the order decisions were first
// offered.
func (s *SearchSpace) Decisions() []schemas.Decision {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]schemas.Decision(nil), s.decisions...)
}
