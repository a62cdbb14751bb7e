package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aluiziolira/go-price-scout/models"
	"github.com/aluiziolira/go-price-scout/parser"
)

var (
	// ErrSinkClosed is returned when Process is called after shutdown.
	ErrSinkClosed = errors.New("sink: closed")
	// ErrSinkCloseTimeout is returned when pending records do not drain in time.
	ErrSinkCloseTimeout = errors.New("sink: timed out draining records")
)

// drainTimeout bounds how long Close waits for workers.
var drainTimeout = 30 * time.Second

// SinkStats is a snapshot of the sink's counters.
type SinkStats struct {
	Written  int64
	Rejected map[string]int
}

// Sink persists ranked products to an OutputWriter in the background. Records
// are validated and deduplicated by link for the sink's lifetime, so repeated
// searches do not write the same listing twice.
type Sink struct {
	writer    OutputWriter
	ch        chan models.Product
	batchSize int

	wg sync.WaitGroup

	seen   map[string]struct{}
	seenMu sync.Mutex

	statsMu  sync.Mutex
	written  int64
	rejected map[string]int

	mu     sync.Mutex // guards closed/err
	closed bool
	err    error

	closeOnce    sync.Once
	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// NewSink builds a sink flushing to writer in batches of batchSize.
func NewSink(writer OutputWriter, batchSize int) *Sink {
	if batchSize <= 0 {
		batchSize = 64
	}
	return &Sink{
		writer:    writer,
		ch:        make(chan models.Product, 512),
		batchSize: batchSize,
		seen:      make(map[string]struct{}),
		rejected:  make(map[string]int),
		shutdown:  make(chan struct{}),
	}
}

// Start launches worker goroutines.
func (s *Sink) Start(workers int) {
	if workers <= 0 {
		workers = 1
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
}

// Process enqueues products for writing.
func (s *Sink) Process(products []models.Product) error {
	if len(products) == 0 {
		return nil
	}

	closed, err := s.state()
	if err != nil {
		return err
	}
	if closed {
		return ErrSinkClosed
	}

	for _, p := range products {
		if err := s.enqueue(p); err != nil {
			return err
		}
	}
	return nil
}

// Close stops accepting records and waits for pending ones to be written.
func (s *Sink) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.signalShutdown()
	s.closeOnce.Do(func() {
		close(s.ch)
	})

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return s.Err()
	case <-time.After(drainTimeout):
		return ErrSinkCloseTimeout
	}
}

// Err returns the first write error.
func (s *Sink) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Stats returns a snapshot of the counters.
func (s *Sink) Stats() SinkStats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()

	rejected := make(map[string]int, len(s.rejected))
	for k, v := range s.rejected {
		rejected[k] = v
	}
	return SinkStats{Written: s.written, Rejected: rejected}
}

func (s *Sink) worker() {
	defer s.wg.Done()

	batch := make([]models.Product, 0, s.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.writer.Write(batch); err != nil {
			return err
		}
		s.statsMu.Lock()
		s.written += int64(len(batch))
		s.statsMu.Unlock()
		batch = batch[:0]
		return nil
	}

	for p := range s.ch {
		if !s.accept(p) {
			continue
		}
		batch = append(batch, p)
		if len(batch) >= s.batchSize {
			if err := flush(); err != nil {
				s.setErr(fmt.Errorf("write batch: %w", err))
				return
			}
		}
	}

	if err := flush(); err != nil {
		s.setErr(fmt.Errorf("write batch: %w", err))
	}
}

func (s *Sink) accept(p models.Product) bool {
	if err := parser.ValidateProduct(&p); err != nil {
		s.reject("invalid_record")
		return false
	}

	s.seenMu.Lock()
	defer s.seenMu.Unlock()
	if _, ok := s.seen[p.Link]; ok {
		s.reject("duplicate_link")
		return false
	}
	s.seen[p.Link] = struct{}{}
	return true
}

func (s *Sink) reject(kind string) {
	s.statsMu.Lock()
	s.rejected[kind]++
	s.statsMu.Unlock()
}

func (s *Sink) enqueue(p models.Product) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrSinkClosed
		}
	}()

	select {
	case <-s.shutdown:
		return ErrSinkClosed
	case s.ch <- p:
		return nil
	}
}

func (s *Sink) setErr(err error) {
	if err == nil {
		return
	}

	s.mu.Lock()
	if s.err != nil {
		s.mu.Unlock()
		return
	}
	s.err = err
	s.closed = true
	s.mu.Unlock()

	slog.Error("sink stopped", slog.Any("error", err))
	s.signalShutdown()
	s.closeOnce.Do(func() {
		close(s.ch)
	})
}

func (s *Sink) state() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed, s.err
}

func (s *Sink) signalShutdown() {
	s.shutdownOnce.Do(func() {
		close(s.shutdown)
	})
}
