package logging

import (
	"io"
	"sync"
	"time"
)

// AsyncWriter decouples log producers from file I/O. Writes are queued on a
// buffered channel and flushed in batches by a background goroutine.
type AsyncWriter struct {
	writer io.Writer
	queue  chan []byte
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool

	batchSize int
}

// AsyncWriterConfig tunes the queue and batching behaviour.
type AsyncWriterConfig struct {
	QueueSize    int
	BatchSize    int
	FlushTimeout time.Duration
}

func DefaultAsyncWriterConfig() AsyncWriterConfig {
	return AsyncWriterConfig{
		QueueSize:    10000,
		BatchSize:    100,
		FlushTimeout: 100 * time.Millisecond,
	}
}

func NewAsyncWriter(w io.Writer, cfg AsyncWriterConfig) *AsyncWriter {
	def := DefaultAsyncWriterConfig()
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = def.FlushTimeout
	}

	aw := &AsyncWriter{
		writer:    w,
		queue:     make(chan []byte, cfg.QueueSize),
		ticker:    time.NewTicker(cfg.FlushTimeout),
		stop:      make(chan struct{}),
		batchSize: cfg.BatchSize,
	}
	aw.wg.Add(1)
	go aw.writeLoop()
	return aw
}

// Write queues the data for the background flusher. When the queue is full it
// blocks rather than dropping the entry.
func (aw *AsyncWriter) Write(p []byte) (int, error) {
	aw.mu.Lock()
	closed := aw.closed
	aw.mu.Unlock()
	if closed {
		return 0, io.ErrClosedPipe
	}

	buf := make([]byte, len(p))
	copy(buf, p)

	select {
	case aw.queue <- buf:
	default:
		aw.queue <- buf
	}
	return len(p), nil
}

func (aw *AsyncWriter) writeLoop() {
	defer aw.wg.Done()

	batch := make([][]byte, 0, aw.batchSize)
	for {
		select {
		case data := <-aw.queue:
			batch = append(batch, data)
			if len(batch) >= aw.batchSize {
				aw.flush(batch)
				batch = batch[:0]
			}

		case <-aw.ticker.C:
			if len(batch) > 0 {
				aw.flush(batch)
				batch = batch[:0]
			}

		case <-aw.stop:
			for len(aw.queue) > 0 {
				batch = append(batch, <-aw.queue)
				if len(batch) >= aw.batchSize {
					aw.flush(batch)
					batch = batch[:0]
				}
			}
			aw.flush(batch)
			return
		}
	}
}

func (aw *AsyncWriter) flush(batch [][]byte) {
	for _, data := range batch {
		_, _ = aw.writer.Write(data)
	}
}

// Close drains the queue, flushes everything queued so far and closes the
// underlying writer if it is closeable. Safe to call twice.
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

	if closer, ok := aw.writer.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
