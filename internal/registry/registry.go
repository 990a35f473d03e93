// Package registry implements the EngineRegistry: a durable,
// restart-surviving snapshot of every engine's last-known EngineHealth,
// for operator query and post-crash inspection (spec §4.9). Backed by a
// single JSON file, written under a mutex with atomic
// write-temp-then-rename replace, adapted from the teacher's db-write
// durability pattern but targeting a flat file per spec's persistent
// state layout.
package registry

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"trading-core/internal/engine"
)

// Entry is one symbol's registered snapshot.
type Entry struct {
	engine.EngineHealth
	RegisteredAt time.Time `json:"registered_at"`
}

// Registry holds an in-memory mirror that serves all reads; every change
// is written to path synchronously, under the same mutex, one writer at a
// time.
type Registry struct {
	mu      sync.Mutex
	path    string
	entries map[string]Entry
}

// New builds a Registry backed by path. If path already holds a snapshot
// from a prior run, it is loaded so restart-surviving state is available
// immediately.
func New(path string) *Registry {
	r := &Registry{path: path, entries: make(map[string]Entry)}
	r.load()
	return r
}

func (r *Registry) load() {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return // missing file is normal on first run
	}
	var entries map[string]Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		log.Printf("registry: corrupt snapshot at %s, starting empty: %v", r.path, err)
		return
	}
	r.entries = entries
}

// Register adds symbol with its initial health and timestamps registered_at.
func (r *Registry) Register(symbol string, health engine.EngineHealth) {
	r.mu.Lock()
	r.entries[symbol] = Entry{EngineHealth: health, RegisteredAt: time.Now()}
	r.mu.Unlock()
	r.persist()
}

// Unregister removes symbol from the registry.
func (r *Registry) Unregister(symbol string) {
	r.mu.Lock()
	delete(r.entries, symbol)
	r.mu.Unlock()
	r.persist()
}

// Update refreshes symbol's health, preserving its original registered_at.
func (r *Registry) Update(symbol string, health engine.EngineHealth) {
	r.mu.Lock()
	existing, ok := r.entries[symbol]
	registeredAt := time.Now()
	if ok {
		registeredAt = existing.RegisteredAt
	}
	r.entries[symbol] = Entry{EngineHealth: health, RegisteredAt: registeredAt}
	r.mu.Unlock()
	r.persist()
}

// Get returns symbol's entry and whether it was found.
func (r *Registry) Get(symbol string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[symbol]
	return e, ok
}

// GetAll returns every registered entry.
func (r *Registry) GetAll() map[string]Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]Entry, len(r.entries))
	for k, v := range r.entries {
		out[k] = v
	}
	return out
}

// persist writes the in-memory mirror to disk via write-temp-then-rename,
// so a crash mid-write never corrupts the on-disk snapshot (spec §4.9
// crash-safety). A failure here is logged and non-fatal (spec §7): the
// in-memory mirror remains authoritative and the next successful write
// catches up.
func (r *Registry) persist() {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := json.MarshalIndent(r.entries, "", "  ")
	if err != nil {
		log.Printf("registry: marshal failed: %v", err)
		return
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Printf("registry: mkdir %s failed: %v", dir, err)
		return
	}

	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		log.Printf("registry: write temp file failed: %v", err)
		return
	}
	if err := os.Rename(tmp, r.path); err != nil {
		log.Printf("registry: atomic rename failed: %v", err)
		return
	}
}
