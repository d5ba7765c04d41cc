package pipeline

import (
	"context"
	"sync"
)

// Sequencer numbers reloads so that only the newest one may replace the
// displayed mesh. Issuing a reload cancels the context of the previous one.
type Sequencer struct {
	mu        sync.Mutex
	issued    uint64
	committed uint64
	cancel    context.CancelFunc
}

// Issue starts a reload and returns its sequence number and context.
func (s *Sequencer) Issue(parent context.Context) (uint64, context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	s.issued++
	return s.issued, ctx
}

// Commit reports whether the result of reload seq may be displayed: it must
// be the newest issued reload and newer than the last committed one.
func (s *Sequencer) Commit(seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.issued || seq <= s.committed {
		return false
	}
	s.committed = seq
	return true
}

// Latest returns the newest issued sequence number.
func (s *Sequencer) Latest() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issued
}

// Stop cancels the outstanding reload, if any.
func (s *Sequencer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}
