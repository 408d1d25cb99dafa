package logging

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// DedupHandler collapses identical records (same level, message and
// attributes, timestamps ignored) into one record carrying a repeated_count
// attribute. Records are held back at most FlushTimeout before they reach the
// wrapped handler.
type DedupHandler struct {
	handler slog.Handler
	state   *dedupState
}

// dedupState is shared between a handler and its WithAttrs/WithGroup copies
// so duplicates are counted across all of them.
type dedupState struct {
	mu      sync.Mutex
	entries map[uint64]*dedupEntry
	order   []uint64

	ticker    *time.Ticker
	stop      chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
	batchSize int
}

// dedupEntry remembers which handler first saw the record, so flushing
// preserves any attributes that handler was bound with.
type dedupEntry struct {
	handler slog.Handler
	record  slog.Record
	count   int
}

// DedupHandlerConfig holds configuration for DedupHandler.
type DedupHandlerConfig struct {
	BatchSize    int           // unique entries to hold before flushing
	FlushTimeout time.Duration // max time a record is held back
}

func DefaultDedupHandlerConfig() DedupHandlerConfig {
	return DedupHandlerConfig{
		BatchSize:    100,
		FlushTimeout: time.Second,
	}
}

func NewDedupHandler(handler slog.Handler) *DedupHandler {
	return NewDedupHandlerWithConfig(handler, DefaultDedupHandlerConfig())
}

func NewDedupHandlerWithConfig(handler slog.Handler, cfg DedupHandlerConfig) *DedupHandler {
	state := &dedupState{
		entries:   make(map[uint64]*dedupEntry),
		order:     make([]uint64, 0, cfg.BatchSize),
		ticker:    time.NewTicker(cfg.FlushTimeout),
		stop:      make(chan struct{}),
		batchSize: cfg.BatchSize,
	}
	dh := &DedupHandler{handler: handler, state: state}

	state.wg.Add(1)
	go state.flushLoop()
	return dh
}

func (h *DedupHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

func (h *DedupHandler) Handle(ctx context.Context, r slog.Record) error {
	key := hashRecord(r)

	s := h.state
	s.mu.Lock()
	if entry, ok := s.entries[key]; ok {
		entry.count++
		s.mu.Unlock()
		return nil
	}
	s.entries[key] = &dedupEntry{handler: h.handler, record: r.Clone(), count: 1}
	s.order = append(s.order, key)
	full := len(s.order) >= s.batchSize
	s.mu.Unlock()

	if full {
		s.flush()
	}
	return nil
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

// Close flushes pending records and stops the flush loop.
func (h *DedupHandler) Close() error {
	s := h.state
	s.stopOnce.Do(func() {
		close(s.stop)
		s.ticker.Stop()
	})
	s.wg.Wait()
	s.flush()
	return nil
}

// hashRecord hashes level, message and attributes; the timestamp is left out
// so repeats at different times still collapse.
func hashRecord(r slog.Record) uint64 {
	hash := xxhash.New()
	hash.WriteString(r.Level.String())
	hash.WriteString("|")
	hash.WriteString(r.Message)
	hash.WriteString("|")
	r.Attrs(func(a slog.Attr) bool {
		hash.WriteString(a.Key)
		hash.WriteString("=")
		hash.WriteString(a.Value.String())
		hash.WriteString("|")
		return true
	})
	return hash.Sum64()
}

func (s *dedupState) flushLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ticker.C:
			s.flush()
		case <-s.stop:
			return
		}
	}
}

// flush hands the held-back records to their handlers outside the lock, so a
// handler that logs cannot deadlock the state.
func (s *dedupState) flush() {
	s.mu.Lock()
	if len(s.order) == 0 {
		s.mu.Unlock()
		return
	}
	pending := make([]*dedupEntry, 0, len(s.order))
	for _, key := range s.order {
		if entry := s.entries[key]; entry != nil {
			pending = append(pending, entry)
		}
	}
	s.entries = make(map[uint64]*dedupEntry)
	s.order = s.order[:0]
	s.mu.Unlock()

	for _, entry := range pending {
		r := entry.record
		if entry.count > 1 {
			r.AddAttrs(slog.Int("repeated_count", entry.count))
		}
		_ = entry.handler.Handle(context.Background(), r)
	}
}
