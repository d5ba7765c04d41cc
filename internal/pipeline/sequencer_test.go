package pipeline

import (
	"context"
	"testing"
)

func TestSequencerDiscardsStaleResults(t *testing.T) {
	var s Sequencer
	first, ctx1 := s.Issue(context.Background())
	second, ctx2 := s.Issue(context.Background())
	if second <= first {
		t.Fatalf("sequence numbers %d, %d not increasing", first, second)
	}
	if ctx1.Err() == nil {
		t.Error("older reload was not cancelled")
	}
	if ctx2.Err() != nil {
		t.Error("newest reload cancelled")
	}
	if s.Commit(first) {
		t.Error("stale result committed")
	}
	if !s.Commit(second) {
		t.Error("newest result rejected")
	}
	if s.Commit(second) {
		t.Error("result committed twice")
	}
	third, _ := s.Issue(context.Background())
	if s.Commit(second) {
		t.Error("result committed after a newer reload was issued")
	}
	if s.Latest() != third {
		t.Errorf("latest = %d, want %d", s.Latest(), third)
	}
}

func TestSequencerStop(t *testing.T) {
	var s Sequencer
	s.Stop()
	_, ctx := s.Issue(context.Background())
	s.Stop()
	if ctx.Err() == nil {
		t.Error("Stop did not cancel the outstanding reload")
	}
}
