package testutil

import (
	"context"
	"sync"

	"github.com/hupe1980/agentloop/core"
)

// RecordingStore is an in-memory core.Store that counts operations and can be
// told to fail.
type RecordingStore struct {
	mu     sync.Mutex
	data   map[string][]byte
	gets   int
	sets   int
	getErr error
	setErr error
}

var _ core.Store = (*RecordingStore)(nil)

// NewRecordingStore creates an empty store.
func NewRecordingStore() *RecordingStore {
	return &RecordingStore{data: make(map[string][]byte)}
}

// Get implements core.Store.
func (s *RecordingStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	if s.getErr != nil {
		return nil, false, s.getErr
	}
	v, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

// Set implements core.Store.
func (s *RecordingStore) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setErr != nil {
		return s.setErr
	}
	s.sets++
	s.data[key] = append([]byte(nil), value...)
	return nil
}

// FailGets makes subsequent Get calls return err (nil restores).
func (s *RecordingStore) FailGets(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getErr = err
}

// FailSets makes subsequent Set calls return err (nil restores).
func (s *RecordingStore) FailSets(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setErr = err
}

// Sets returns the number of successful writes.
func (s *RecordingStore) Sets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sets
}

// Raw returns the stored bytes for key.
func (s *RecordingStore) Raw(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	return append([]byte(nil), v...), ok
}

// PinnedText is a mutable introduction source. Every call increments Calls.
type PinnedText struct {
	mu    sync.Mutex
	Text  string
	Err   error
	calls int
}

// PinnedText implements memory.IntroductionSource.
func (p *PinnedText) PinnedText(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.Text, p.Err
}

// Set replaces the text returned by future calls.
func (p *PinnedText) Set(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Text = text
}

// Calls returns how often the text was requested.
func (p *PinnedText) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}
