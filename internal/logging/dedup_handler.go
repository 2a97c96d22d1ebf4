package logging

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// DedupHandler collapses bursts of identical records into one entry with a
// repeated_count attribute. Identity is the record content without its
// timestamp, so retry loops and reconnect storms do not flood the files.
type DedupHandler struct {
	handler slog.Handler
	state   *dedupState
}

// dedupState is shared across WithAttrs/WithGroup derivatives, so derived
// loggers deduplicate against each other.
type dedupState struct {
	mu      sync.Mutex
	pending map[uint64]*dedupEntry
	order   []uint64

	ticker    *time.Ticker
	stop      chan struct{}
	wg        sync.WaitGroup
	batchSize int
}

type dedupEntry struct {
	handler slog.Handler
	record  slog.Record
	count   int
}

// DedupConfig tunes batching of the deduplicating handler.
type DedupConfig struct {
	BatchSize    int
	FlushTimeout time.Duration
}

func DefaultDedupConfig() DedupConfig {
	return DedupConfig{BatchSize: 100, FlushTimeout: time.Second}
}

func NewDedupHandler(handler slog.Handler, cfg DedupConfig) *DedupHandler {
	def := DefaultDedupConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = def.FlushTimeout
	}

	state := &dedupState{
		pending:   make(map[uint64]*dedupEntry),
		order:     make([]uint64, 0, cfg.BatchSize),
		ticker:    time.NewTicker(cfg.FlushTimeout),
		stop:      make(chan struct{}),
		batchSize: cfg.BatchSize,
	}
	state.wg.Add(1)
	go state.flushLoop()

	return &DedupHandler{handler: handler, state: state}
}

func (h *DedupHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

func (h *DedupHandler) Handle(ctx context.Context, r slog.Record) error {
	key := hashRecord(r)

	s := h.state
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.pending[key]; ok {
		entry.count++
		return nil
	}

	s.pending[key] = &dedupEntry{handler: h.handler, record: r.Clone(), count: 1}
	s.order = append(s.order, key)
	if len(s.order) >= s.batchSize {
		s.flushLocked()
	}
	return nil
}

// hashRecord keys a record by level, message and attributes, skipping the
// timestamp.
func hashRecord(r slog.Record) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(r.Level.String())
	_, _ = d.WriteString("|")
	_, _ = d.WriteString(r.Message)
	r.Attrs(func(a slog.Attr) bool {
		_, _ = d.WriteString("|")
		_, _ = d.WriteString(a.Key)
		_, _ = d.WriteString("=")
		_, _ = d.WriteString(a.Value.String())
		return true
	})
	return d.Sum64()
}

func (s *dedupState) flushLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ticker.C:
			s.mu.Lock()
			s.flushLocked()
			s.mu.Unlock()
		case <-s.stop:
			s.mu.Lock()
			s.flushLocked()
			s.mu.Unlock()
			return
		}
	}
}

// flushLocked forwards the pending records. The lock is released while the
// underlying handlers run, so a handler that itself logs cannot deadlock.
func (s *dedupState) flushLocked() {
	if len(s.order) == 0 {
		return
	}

	entries := make([]*dedupEntry, 0, len(s.order))
	for _, key := range s.order {
		entry := s.pending[key]
		if entry.count > 1 {
			entry.record.AddAttrs(slog.Int("repeated_count", entry.count))
		}
		entries = append(entries, entry)
	}
	s.pending = make(map[uint64]*dedupEntry)
	s.order = s.order[:0]

	s.mu.Unlock()
	for _, entry := range entries {
		_ = entry.handler.Handle(context.Background(), entry.record)
	}
	s.mu.Lock()
}

func (h *DedupHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &DedupHandler{handler: h.handler.WithAttrs(attrs), state: h.state}
}

func (h *DedupHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &DedupHandler{handler: h.handler.WithGroup(name), state: h.state}
}

// Close flushes whatever is pending and stops the flush goroutine.
func (h *DedupHandler) Close() error {
	close(h.state.stop)
	h.state.ticker.Stop()
	h.state.wg.Wait()
	return nil
}
