package events

import "sync/atomic"

// Sequencer provides monotonically increasing sequence numbers.
type Sequencer struct{ n atomic.Uint64 }

// Next returns the next sequence number.
func (s *Sequencer) Next() uint64 { return s.n.Add(1) }

// Current returns the last issued sequence number.
func (s *Sequencer) Current() uint64 { return s.n.Load() }

// Reset makes the next issued number n+1.
func (s *Sequencer) Reset(n uint64) { s.n.Store(n) }
