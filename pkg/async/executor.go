package async

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/spounge-ai/polypay/pkg/patterns/lifecycle"
)

// Executor decides where completion callbacks run.
type Executor interface {
	Execute(fn func())
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(fn func())

func (f ExecutorFunc) Execute(fn func()) { f(fn) }

var (
	// Inline runs callbacks on the goroutine that finished the request.
	Inline Executor = ExecutorFunc(func(fn func()) { fn() })

	// Spawn runs every callback on a fresh goroutine.
	Spawn Executor = ExecutorFunc(func(fn func()) { go fn() })
)

const defaultSerialQueueSize = 64

// Serial runs callbacks one at a time, in submission order, on a single
// designated goroutine. Callers that share state across completions can use
// it instead of locking. While not running it falls back to Inline so that no
// completion is ever lost.
type Serial struct {
	logger *slog.Logger
	queue  chan func()

	mu      sync.RWMutex
	running bool
	stopped chan struct{}
}

var _ lifecycle.ManagedResource = (*Serial)(nil)

// NewSerial creates a serial executor with the given queue depth.
func NewSerial(queueSize int, logger *slog.Logger) *Serial {
	if queueSize <= 0 {
		queueSize = defaultSerialQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Serial{
		logger: logger,
		queue:  make(chan func(), queueSize),
	}
}

func (s *Serial) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	s.running = true
	s.stopped = make(chan struct{})
	go s.loop(s.queue, s.stopped)
	s.logger.DebugContext(ctx, "serial callback executor started", "queue_size", cap(s.queue))
	return nil
}

// Stop closes the queue and waits until every queued callback has run or ctx is done.
func (s *Serial) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.queue)
	stopped := s.stopped
	s.queue = make(chan func(), cap(s.queue))
	s.mu.Unlock()

	select {
	case <-stopped:
		s.logger.DebugContext(ctx, "serial callback executor stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("serial executor drain: %w", ctx.Err())
	}
}

func (s *Serial) Health(ctx context.Context) lifecycle.HealthStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return lifecycle.HealthStatus{Ready: false, Message: "not running"}
	}
	return lifecycle.HealthStatus{Ready: true, Message: fmt.Sprintf("%d queued", len(s.queue))}
}

func (s *Serial) Execute(fn func()) {
	s.mu.RLock()
	if !s.running {
		s.mu.RUnlock()
		fn()
		return
	}
	s.queue <- fn
	s.mu.RUnlock()
}

func (s *Serial) loop(queue <-chan func(), stopped chan<- struct{}) {
	defer close(stopped)
	for fn := range queue {
		s.run(fn)
	}
}

func (s *Serial) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("completion callback panicked", "panic", r)
		}
	}()
	fn()
}
