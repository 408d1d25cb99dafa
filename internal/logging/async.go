package logging

import (
	"io"
	"sync"
	"time"
)

// AsyncWriter moves writes onto a background goroutine so logging never
// blocks on disk. Close drains the buffer before closing the underlying
// writer.
type AsyncWriter struct {
	w      io.Writer
	ch     chan []byte
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool

	batchSize int
}

// AsyncWriterConfig holds configuration for AsyncWriter.
type AsyncWriterConfig struct {
	BufferSize   int           // channel capacity (default 10000)
	BatchSize    int           // entries per write burst (default 100)
	FlushTimeout time.Duration // max delay for a partial batch (default 100ms)
}

func DefaultAsyncWriterConfig() AsyncWriterConfig {
	return AsyncWriterConfig{
		BufferSize:   10000,
		BatchSize:    100,
		FlushTimeout: 100 * time.Millisecond,
	}
}

func NewAsyncWriter(w io.Writer) *AsyncWriter {
	return NewAsyncWriterWithConfig(w, DefaultAsyncWriterConfig())
}

func NewAsyncWriterWithConfig(w io.Writer, cfg AsyncWriterConfig) *AsyncWriter {
	aw := &AsyncWriter{
		w:         w,
		ch:        make(chan []byte, cfg.BufferSize),
		ticker:    time.NewTicker(cfg.FlushTimeout),
		stop:      make(chan struct{}),
		batchSize: cfg.BatchSize,
	}
	aw.wg.Add(1)
	go aw.writeLoop()
	return aw
}

// Write queues p for the background writer. It blocks only when the buffer
// is full. The lock is held across the send so Close cannot strand a writer
// mid-flight.
func (aw *AsyncWriter) Write(p []byte) (int, error) {
	aw.mu.Lock()
	defer aw.mu.Unlock()
	if aw.closed {
		return 0, io.ErrClosedPipe
	}

	// the handler reuses its buffer after Write returns
	buf := make([]byte, len(p))
	copy(buf, p)
	aw.ch <- buf
	return len(p), nil
}

func (aw *AsyncWriter) writeLoop() {
	defer aw.wg.Done()

	batch := make([][]byte, 0, aw.batchSize)
	flush := func() {
		for _, data := range batch {
			_, _ = aw.w.Write(data)
		}
		batch = batch[:0]
	}

	for {
		select {
		case data := <-aw.ch:
			batch = append(batch, data)
			if len(batch) >= aw.batchSize {
				flush()
			}
		case <-aw.ticker.C:
			flush()
		case <-aw.stop:
			for {
				select {
				case data := <-aw.ch:
					batch = append(batch, data)
				default:
					flush()
					return
				}
			}
		}
	}
}

// Close drains buffered writes, stops the background goroutine and closes
// the underlying writer when it is an io.Closer.
func (aw *AsyncWriter) Close() error {
	aw.mu.Lock()
	if aw.closed {
		aw.mu.Unlock()
		return nil
	}
	aw.closed = true
	aw.mu.Unlock()

	aw.ticker.Stop()
	close(aw.stop)
	aw.wg.Wait()

	if closer, ok := aw.w.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
