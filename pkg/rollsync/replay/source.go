package replay

import (
	"fmt"
	"sync"

	"github.com/outrunlabs/rollsync/pkg/rollsync/session"
)

// DefaultSourceChunk is how many frames a Source delivers per Poll. Matching
// the spectator's default catch-up limit keeps its frame buffer near empty.
const DefaultSourceChunk = 8

// SourceConfig parameterizes a playback source.
type SourceConfig struct {
	// RunID selects the stored run to play back.
	RunID string

	// Chunk bounds frames delivered per Poll, 0 for DefaultSourceChunk.
	Chunk int
}

// Source plays a stored run back as a spectator feed. It implements
// session.Transport: each Poll delivers the next chunk of confirmed frames,
// followed by a Bye once the run is exhausted.
type Source struct {
	mu      sync.Mutex
	records []Record
	pos     int
	chunk   int
	byeSent bool
	closed  bool
}

// NewSource loads a recorded run for playback. The store is only read during
// construction; it can be closed afterwards.
func NewSource(store Store, cfg SourceConfig) (*Source, error) {
	if cfg.RunID == "" {
		return nil, fmt.Errorf("source needs a run ID")
	}
	if cfg.Chunk < 0 {
		return nil, fmt.Errorf("source chunk must not be negative, got %d", cfg.Chunk)
	}
	chunk := cfg.Chunk
	if chunk == 0 {
		chunk = DefaultSourceChunk
	}

	records, err := store.List(cfg.RunID)
	if err != nil {
		return nil, fmt.Errorf("load run %q: %w", cfg.RunID, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("run %q: %w", cfg.RunID, ErrRunNotFound)
	}

	return &Source{records: records, chunk: chunk}, nil
}

// Send discards messages: a playback feed has no live host behind it.
func (s *Source) Send(session.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return session.ErrClosed
	}
	return nil
}

// Poll implements session.Transport.
func (s *Source) Poll() ([]session.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, session.ErrClosed
	}

	if s.pos >= len(s.records) {
		if s.byeSent {
			return nil, nil
		}
		s.byeSent = true
		return []session.Message{{Kind: session.MsgBye}}, nil
	}

	end := s.pos + s.chunk
	if end > len(s.records) {
		end = len(s.records)
	}

	msgs := make([]session.Message, 0, end-s.pos)
	for _, rec := range s.records[s.pos:end] {
		msgs = append(msgs, session.Message{
			Kind:        session.MsgConfirmed,
			Frame:       rec.Frame,
			Inputs:      rec.Inputs,
			Checksum:    rec.Checksum,
			HasChecksum: rec.HasChecksum,
		})
	}
	s.pos = end
	return msgs, nil
}

// Close implements session.Transport.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}
