package worker

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

var ErrQueueClosed = errors.New("processing queue closed")

// InProcessQueue runs processing jobs on local goroutines, at most workers
// at a time. Requests for a document that is already being processed join
// the running job instead of starting another.
type InProcessQueue struct {
	processor DocumentProcessor
	timeout   time.Duration
	slots     chan struct{}
	flights   singleflight.Group

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewInProcessQueue(processor DocumentProcessor, workers int, timeout time.Duration) *InProcessQueue {
	if workers <= 0 {
		workers = 2
	}
	return &InProcessQueue{
		processor: processor,
		timeout:   timeout,
		slots:     make(chan struct{}, workers),
	}
}

func (q *InProcessQueue) Enqueue(ctx context.Context, documentID uint) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		key := strconv.FormatUint(uint64(documentID), 10)
		_, _, shared := q.flights.Do(key, func() (any, error) {
			q.slots <- struct{}{}
			defer func() { <-q.slots }()
			return q.run(ctx, documentID)
		})
		if shared {
			log.Debug().Uint("document_id", documentID).Msg("joined in-flight processing job")
		}
	}()
	return nil
}

func (q *InProcessQueue) run(ctx context.Context, documentID uint) (any, error) {
	result, err := runJob(ctx, q.processor, documentID, q.timeout)
	if err != nil {
		log.Error().Err(err).Uint("document_id", documentID).Msg("in-process job failed")
	}
	return result, err
}

// Close stops accepting jobs and waits for running ones until ctx is done.
func (q *InProcessQueue) Close(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
