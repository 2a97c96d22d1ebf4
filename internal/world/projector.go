package world

import (
	"context"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Projector produces world-model snapshots. FetchModel may hit a remote
// backend and can fail; CachedModel returns the last successfully fetched
// snapshot, or nil before the first fetch.
type Projector interface {
	FetchModel(ctx context.Context) (*Snapshot, error)
	CachedModel() *Snapshot
}

// FileProjector reads the topology from a yaml file. Each FetchModel re-reads
// the file, so edits show up on the next diff tick.
type FileProjector struct {
	path string

	mu     sync.RWMutex
	cached *Snapshot
}

func NewFileProjector(path string) *FileProjector {
	return &FileProjector{path: path}
}

func (p *FileProjector) FetchModel(ctx context.Context) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(p.path)
	if err != nil {
		return nil, fmt.Errorf("reading model file: %w", err)
	}

	var snap Snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parsing model file %s: %w", p.path, err)
	}

	p.mu.Lock()
	p.cached = &snap
	p.mu.Unlock()
	return &snap, nil
}

func (p *FileProjector) CachedModel() *Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cached
}
