// Package catalog loads designer-authored level definitions from JSON and
// resolves them against the closed descriptor set the simulation replicates.
package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/pixil98/go-errors"

	"gridrun/server/internal/sim"
)

// maxObjectSize bounds designer shape extents, in world units.
const maxObjectSize = 256.0

// Source supplies one catalog document. Production paths use File; tests and
// the bootstrap fetcher hand in memory-backed sources.
type Source interface {
	Load() ([]byte, error)
	Path() string
}

type fileSource struct {
	path string
}

func (f fileSource) Load() ([]byte, error) { return os.ReadFile(f.path) }
func (f fileSource) Path() string          { return f.path }

// File returns a Source that re-reads path on every Reload.
func File(path string) Source { return fileSource{path: path} }

type memorySource struct {
	path string
	data []byte
}

func (m memorySource) Load() ([]byte, error) { return append([]byte(nil), m.data...), nil }
func (m memorySource) Path() string          { return m.path }

// Memory returns a Source serving a fixed payload, named for error context.
func Memory(path string, data []byte) Source { return memorySource{path: path, data: data} }

// Entry is one resolved level definition. Desc carries the shape kind and
// size; placement is stamped when an object is spawned from the entry.
type Entry struct {
	ID    string
	Label string
	Logic sim.CollisionLogic
	Desc  sim.LevelObjectDesc
}

// Object builds a concrete level object from the definition. The caller
// chooses the net id and placement.
func (e Entry) Object(netID sim.EntityNetID, pos sim.Point) sim.LevelObject {
	desc := e.Desc
	desc.Pos = pos
	return sim.LevelObject{
		NetID: netID,
		Label: e.Label,
		Desc:  desc,
		Logic: e.Logic,
	}
}

// Resolver merges one or more catalog sources into a stable lookup table.
// Call Reload to pick up on-disk changes (used for dev hot reload).
type Resolver struct {
	mu      sync.RWMutex
	sources []Source
	entries map[string]Entry
}

// DefaultPaths returns the canonical definition locations relative to the
// server module root and to its parent, for binaries run from cmd directories.
func DefaultPaths() []string {
	return []string{
		filepath.Join("config", "levels", "definitions.json"),
		filepath.Join("..", "config", "levels", "definitions.json"),
	}
}

// Load constructs a Resolver over the given definition files. Missing files
// are skipped so overlay paths can be listed unconditionally.
func Load(paths ...string) (*Resolver, error) {
	sources := make([]Source, 0, len(paths))
	for _, path := range paths {
		trimmed := strings.TrimSpace(path)
		if trimmed == "" {
			continue
		}
		sources = append(sources, File(trimmed))
	}
	return NewResolver(sources...)
}

// NewResolver constructs a Resolver from arbitrary sources and performs the
// initial load.
func NewResolver(sources ...Source) (*Resolver, error) {
	r := &Resolver{
		sources: append([]Source(nil), sources...),
		entries: make(map[string]Entry),
	}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-parses every source. Later sources override earlier ones so a
// local overlay can shadow the shipped definitions during development. All
// validation failures are reported together, each carrying its source path;
// on failure the resolver keeps its previous entries.
func (r *Resolver) Reload() error {
	if r == nil {
		return nil
	}
	entries := make(map[string]Entry)
	el := errors.NewErrorList()
	for _, src := range r.sources {
		data, err := src.Load()
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			el.Add(fmt.Errorf("%s: %w", src.Path(), err))
			continue
		}
		documents, err := decodeEntries(data)
		if err != nil {
			el.Add(fmt.Errorf("%s: %w", src.Path(), err))
			continue
		}
		seen := make(map[string]struct{}, len(documents))
		for _, doc := range documents {
			entry, err := doc.resolve()
			if err != nil {
				el.Add(fmt.Errorf("%s: %w", src.Path(), err))
				continue
			}
			if _, dup := seen[entry.ID]; dup {
				el.Add(fmt.Errorf("%s: duplicate id %q", src.Path(), entry.ID))
				continue
			}
			seen[entry.ID] = struct{}{}
			entries[entry.ID] = entry
		}
	}
	if err := el.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	r.entries = entries
	r.mu.Unlock()
	return nil
}

// Resolve returns the definition for a designer id.
func (r *Resolver) Resolve(id string) (Entry, bool) {
	if r == nil {
		return Entry{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[id]
	return entry, ok
}

// Entries returns a snapshot of all definitions keyed by designer id.
func (r *Resolver) Entries() map[string]Entry {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Entry, len(r.entries))
	for id, entry := range r.entries {
		out[id] = entry
	}
	return out
}

// Len returns the number of resolved definitions.
func (r *Resolver) Len() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func (d EntryDocument) resolve() (Entry, error) {
	id := strings.TrimSpace(d.ID)
	if id == "" {
		return Entry{}, fmt.Errorf("entry missing id")
	}
	kind := sim.ShapeKind(d.Desc.Kind)
	if !kind.Valid() {
		return Entry{}, fmt.Errorf("entry %q: unknown descriptor kind %q", id, d.Desc.Kind)
	}
	if d.Desc.Size <= 0 || d.Desc.Size > maxObjectSize {
		return Entry{}, fmt.Errorf("entry %q: size %v outside (0, %v]", id, d.Desc.Size, maxObjectSize)
	}
	logic, err := sim.ParseCollisionLogic(d.Logic)
	if err != nil {
		return Entry{}, fmt.Errorf("entry %q: %w", id, err)
	}
	return Entry{
		ID:    id,
		Label: strings.TrimSpace(d.Label),
		Logic: logic,
		Desc:  sim.LevelObjectDesc{Kind: kind, Size: d.Desc.Size},
	}, nil
}

func decodeEntries(data []byte) ([]EntryDocument, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}
	switch trimmed[0] {
	case '[':
		var documents []EntryDocument
		if err := json.Unmarshal(trimmed, &documents); err != nil {
			return nil, err
		}
		return documents, nil
	case '{':
		var byID map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &byID); err != nil {
			return nil, err
		}
		ids := make([]string, 0, len(byID))
		for id := range byID {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		documents := make([]EntryDocument, 0, len(ids))
		for _, id := range ids {
			var doc EntryDocument
			if err := json.Unmarshal(byID[id], &doc); err != nil {
				return nil, fmt.Errorf("entry %q: %w", id, err)
			}
			if doc.ID == "" {
				doc.ID = id
			} else if doc.ID != id {
				return nil, fmt.Errorf("entry id %q does not match key %q", doc.ID, id)
			}
			documents = append(documents, doc)
		}
		return documents, nil
	default:
		return nil, fmt.Errorf("unexpected json token %q", string(trimmed[:1]))
	}
}
