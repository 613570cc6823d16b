package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"solace-voice/internal/metrics"
	"solace-voice/internal/models"
)

const (
	// MaxAttempts bounds how often one journal entry is written before it is dropped.
	MaxAttempts = 3
	// RetryDelay is the base delay between attempts (exponential backoff).
	RetryDelay = time.Second
	// WriteTimeout caps a single journal write.
	WriteTimeout = 5 * time.Second
)

// JournalJob carries one session log entry through the queue.
type JournalJob struct {
	Entry      *models.SessionLog
	RetryCount int
}

// JournalWriter persists session log entries.
type JournalWriter interface {
	Insert(ctx context.Context, entry *models.SessionLog) error
}

// Processor drains journal jobs from the queue with a fixed pool of workers.
type Processor struct {
	queue        *MemoryQueue[JournalJob]
	writer       JournalWriter
	workerCount  int
	logger       *zap.Logger
	clock        clockwork.Clock
	wg           sync.WaitGroup
	mu           sync.Mutex
	stopping     bool
	retries      sync.WaitGroup
	shutdownOnce sync.Once
	shutdownCh   chan struct{}
}

// NewProcessor creates a journal processor.
func NewProcessor(queue *MemoryQueue[JournalJob], writer JournalWriter, workerCount int, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if workerCount < 1 {
		workerCount = 1
	}
	return &Processor{
		queue:       queue,
		writer:      writer,
		workerCount: workerCount,
		logger:      logger,
		clock:       clockwork.NewRealClock(),
		shutdownCh:  make(chan struct{}),
	}
}

// Submit enqueues entry for writing. A full or closed queue drops the entry.
func (p *Processor) Submit(entry *models.SessionLog) error {
	err := p.queue.Enqueue(JournalJob{Entry: entry})
	if err != nil {
		metrics.JournalWrites.WithLabelValues("dropped").Inc()
		p.logger.Warn("journal entry dropped",
			zap.String("session_id", entry.SessionID),
			zap.String("state", string(entry.State)),
			zap.Error(err),
		)
	}
	return err
}

// Start begins processing jobs with the configured number of workers.
func (p *Processor) Start(ctx context.Context) {
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	p.logger.Info("journal processor started", zap.Int("workers", p.workerCount))
}

// Stop closes the queue, lets workers drain what is buffered and waits for them.
func (p *Processor) Stop() {
	p.shutdownOnce.Do(func() {
		p.mu.Lock()
		p.stopping = true
		close(p.shutdownCh)
		p.mu.Unlock()
		p.retries.Wait()
		p.queue.Close()
	})
	p.wg.Wait()
	p.logger.Info("journal processor stopped")
}

func (p *Processor) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	for {
		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, ErrQueueClosed) || errors.Is(err, context.Canceled) {
				p.logger.Debug("journal worker shutting down", zap.Int("worker", id))
				return
			}
			continue
		}
		p.processJob(ctx, job)
	}
}

func (p *Processor) processJob(ctx context.Context, job JournalJob) {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), WriteTimeout)
	defer cancel()

	if err := p.writer.Insert(writeCtx, job.Entry); err != nil {
		p.logger.Warn("journal write failed",
			zap.String("session_id", job.Entry.SessionID),
			zap.Int("attempt", job.RetryCount+1),
			zap.Error(err),
		)
		p.handleFailure(job)
		return
	}

	metrics.JournalWrites.WithLabelValues("written").Inc()
	p.logger.Debug("journal entry written", zap.String("session_id", job.Entry.SessionID))
}

func (p *Processor) handleFailure(job JournalJob) {
	job.RetryCount++

	if job.RetryCount >= MaxAttempts {
		metrics.JournalWrites.WithLabelValues("failed").Inc()
		p.logger.Error("journal entry abandoned",
			zap.String("session_id", job.Entry.SessionID),
			zap.Int("attempts", job.RetryCount),
		)
		return
	}

	delay := backoff(job.RetryCount)
	metrics.JournalWrites.WithLabelValues("retried").Inc()

	p.mu.Lock()
	if p.stopping {
		p.mu.Unlock()
		p.logger.Warn("journal retry skipped during shutdown", zap.String("session_id", job.Entry.SessionID))
		return
	}
	p.retries.Add(1)
	p.mu.Unlock()

	// Retries wait on shutdownCh rather than ctx so Stop can flush them.
	go func() {
		defer p.retries.Done()
		select {
		case <-p.shutdownCh:
			p.logger.Warn("journal retry abandoned during shutdown", zap.String("session_id", job.Entry.SessionID))
		case <-p.clock.After(delay):
			if err := p.queue.Enqueue(job); err != nil {
				metrics.JournalWrites.WithLabelValues("dropped").Inc()
				p.logger.Warn("journal entry re-enqueue failed",
					zap.String("session_id", job.Entry.SessionID),
					zap.Error(err),
				)
			}
		}
	}()
}

// backoff returns the wait before attempt retryCount+1.
func backoff(retryCount int) time.Duration {
	return RetryDelay * time.Duration(1<<uint(retryCount-1))
}
