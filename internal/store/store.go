package store

import (
	"sync"

	"gocv.io/x/gocv"

	"floodwatch/internal/model"
)

// Slot is a latest-value container. Set fully replaces the held value and
// Get returns a defensive copy, so a reader sees either the previous or
// the new value, never a torn mix. The mutex is held only while a value
// is copied in or out.
type Slot[T any] struct {
	mu      sync.Mutex
	value   T
	present bool
	clone   func(T) T
	release func(T)
}

// NewSlot creates a slot. clone produces the defensive copies stored and
// returned (nil means plain assignment); release frees an overwritten
// value (nil when values need no cleanup).
func NewSlot[T any](clone func(T) T, release func(T)) *Slot[T] {
	return &Slot[T]{clone: clone, release: release}
}

// Set replaces the held value. The caller keeps ownership of v.
func (s *Slot[T]) Set(v T) {
	if s.clone != nil {
		v = s.clone(v)
	}
	s.mu.Lock()
	old, had := s.value, s.present
	s.value, s.present = v, true
	s.mu.Unlock()

	if had && s.release != nil {
		s.release(old)
	}
}

// Get returns a copy of the current value, or false if never set.
func (s *Slot[T]) Get() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.present {
		var zero T
		return zero, false
	}
	v := s.value
	if s.clone != nil {
		v = s.clone(v)
	}
	return v, true
}

// Present reports whether the slot has ever been set.
func (s *Slot[T]) Present() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.present
}

// Reset releases the held value, if any, and empties the slot.
func (s *Slot[T]) Reset() {
	s.mu.Lock()
	old, had := s.value, s.present
	var zero T
	s.value, s.present = zero, false
	s.mu.Unlock()

	if had && s.release != nil {
		s.release(old)
	}
}

// Store holds the latest raw frame, detection result and annotated frame
// in independent slots, plus the severity cache written by the renderer.
// Separate locks keep the capture loop, the inference loop and the query
// handlers from contending on unrelated state.
type Store struct {
	frame     *Slot[gocv.Mat]
	result    *Slot[model.Result]
	annotated *Slot[gocv.Mat]

	severityMu sync.Mutex
	severity   model.SeverityState
}

// New creates an empty Store.
func New() *Store {
	matClone := func(m gocv.Mat) gocv.Mat { return m.Clone() }
	matClose := func(m gocv.Mat) { m.Close() }

	return &Store{
		frame:     NewSlot(matClone, matClose),
		annotated: NewSlot(matClone, matClose),
		result:    NewSlot(model.Result.Clone, nil),
		severity:  model.SeverityState{Labels: []string{}},
	}
}

// SetFrame stores a copy of the latest captured frame.
func (s *Store) SetFrame(m gocv.Mat) {
	s.frame.Set(m)
}

// Frame returns a copy of the latest frame; the caller must Close it.
func (s *Store) Frame() (gocv.Mat, bool) {
	return s.frame.Get()
}

// HasFrame reports whether a frame has ever been captured.
func (s *Store) HasFrame() bool {
	return s.frame.Present()
}

// SetResult stores the latest completed detection result.
func (s *Store) SetResult(r model.Result) {
	s.result.Set(r)
}

// Result returns a copy of the latest detection result.
func (s *Store) Result() (model.Result, bool) {
	return s.result.Get()
}

// SetAnnotated stores a copy of the latest annotated frame.
func (s *Store) SetAnnotated(m gocv.Mat) {
	s.annotated.Set(m)
}

// Annotated returns a copy of the latest annotated frame; the caller must
// Close it.
func (s *Store) Annotated() (gocv.Mat, bool) {
	return s.annotated.Get()
}

// SetSeverity replaces the severity cache.
func (s *Store) SetSeverity(state model.SeverityState) {
	state = state.Clone()
	s.severityMu.Lock()
	s.severity = state
	s.severityMu.Unlock()
}

// Severity returns a copy of the current severity state. Before the first
// render pass it reads level 0 with no labels.
func (s *Store) Severity() model.SeverityState {
	s.severityMu.Lock()
	defer s.severityMu.Unlock()
	return s.severity.Clone()
}

// Close releases the frame buffers held by the store.
func (s *Store) Close() {
	s.frame.Reset()
	s.annotated.Reset()
}
