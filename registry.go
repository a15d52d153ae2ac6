package kinematics

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

type solveEntry struct {
	cancel     context.CancelFunc
	generation uint64
	started    time.Time
}

// SolveRegistry tracks at most one in-flight solve per key. Starting a new
// solve for a key cancels the one it replaces.
type SolveRegistry struct {
	entries map[string]*solveEntry // session key -> in-flight solve
	mu      sync.RWMutex

	generation uint64 // Atomic
	superseded int64  // Atomic
}

func NewSolveRegistry() *SolveRegistry {
	return &SolveRegistry{
		entries: make(map[string]*solveEntry),
	}
}

// Begin registers a solve for key and returns its context plus a release
// func that must be called when the solve is done. Any solve already
// registered under key is canceled.
func (r *SolveRegistry) Begin(parent context.Context, key string) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	entry := &solveEntry{
		cancel:     cancel,
		generation: atomic.AddUint64(&r.generation, 1),
		started:    time.Now(),
	}

	r.mu.Lock()
	if previous, exists := r.entries[key]; exists {
		previous.cancel()
		atomic.AddInt64(&r.superseded, 1)
	}
	r.entries[key] = entry
	r.mu.Unlock()

	release := func() {
		r.mu.Lock()
		if current, exists := r.entries[key]; exists && current.generation == entry.generation {
			delete(r.entries, key)
		}
		r.mu.Unlock()
		cancel()
	}
	return ctx, release
}

// Cancel stops the solve registered under key, if any.
func (r *SolveRegistry) Cancel(key string) bool {
	r.mu.Lock()
	entry, exists := r.entries[key]
	if exists {
		delete(r.entries, key)
	}
	r.mu.Unlock()

	if exists {
		entry.cancel()
	}
	return exists
}

// CancelAll stops every registered solve.
func (r *SolveRegistry) CancelAll() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*solveEntry)
	r.mu.Unlock()

	for _, entry := range entries {
		entry.cancel()
	}
}

// Status reports whether key has a solve in flight and a short summary.
func (r *SolveRegistry) Status(key string) (bool, string) {
	r.mu.RLock()
	entry, exists := r.entries[key]
	r.mu.RUnlock()

	if !exists {
		return false, ""
	}
	return true, fmt.Sprintf("solve #%d running for %s", entry.generation, time.Since(entry.started).Round(time.Millisecond))
}

// Len is the number of solves in flight.
func (r *SolveRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Superseded counts solves canceled because a newer one replaced them.
func (r *SolveRegistry) Superseded() int64 {
	return atomic.LoadInt64(&r.superseded)
}
