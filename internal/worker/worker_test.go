package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docchat/internal/app"
)

type fakeProcessor struct {
	calls   atomic.Int32
	release chan struct{}
	err     error

	mu       sync.Mutex
	deadline bool
}

func (f *fakeProcessor) Process(ctx context.Context, documentID uint) (*app.ProcessResult, error) {
	f.calls.Add(1)
	_, hasDeadline := ctx.Deadline()
	f.mu.Lock()
	f.deadline = hasDeadline
	f.mu.Unlock()
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return nil, f.err
	}
	return &app.ProcessResult{DocumentID: documentID, Chunks: 1}, nil
}

func TestInProcessQueueRunsJob(t *testing.T) {
	p := &fakeProcessor{}
	q := NewInProcessQueue(p, 2, time.Minute)

	require.NoError(t, q.Enqueue(context.Background(), 1))
	require.NoError(t, q.Close(context.Background()))
	assert.Equal(t, int32(1), p.calls.Load())
	assert.True(t, p.deadline)
}

func TestInProcessQueueCollapsesDuplicates(t *testing.T) {
	p := &fakeProcessor{release: make(chan struct{})}
	q := NewInProcessQueue(p, 2, 0)

	require.NoError(t, q.Enqueue(context.Background(), 7))
	require.Eventually(t, func() bool { return p.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, q.Enqueue(context.Background(), 7))
	time.Sleep(20 * time.Millisecond)
	close(p.release)

	require.NoError(t, q.Close(context.Background()))
	assert.Equal(t, int32(1), p.calls.Load())
}

func TestInProcessQueueSurvivesCallerCancellation(t *testing.T) {
	p := &fakeProcessor{release: make(chan struct{})}
	q := NewInProcessQueue(p, 1, 0)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, q.Enqueue(ctx, 3))
	cancel()
	close(p.release)

	require.NoError(t, q.Close(context.Background()))
	assert.Equal(t, int32(1), p.calls.Load())
}

func TestInProcessQueueRejectsAfterClose(t *testing.T) {
	q := NewInProcessQueue(&fakeProcessor{}, 1, 0)
	require.NoError(t, q.Close(context.Background()))
	assert.ErrorIs(t, q.Enqueue(context.Background(), 1), ErrQueueClosed)
}

func TestInProcessQueueCloseHonorsDeadline(t *testing.T) {
	p := &fakeProcessor{release: make(chan struct{})}
	defer close(p.release)
	q := NewInProcessQueue(p, 1, 0)
	require.NoError(t, q.Enqueue(context.Background(), 1))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Close(ctx), context.DeadlineExceeded)
}

type recordingPublisher struct {
	id  string
	msg any
	err error
}

func (r *recordingPublisher) PublishJSON(_ context.Context, messageID string, v any) error {
	r.id, r.msg = messageID, v
	return r.err
}

func TestRabbitMQQueuePublishesJob(t *testing.T) {
	pub := &recordingPublisher{}
	require.NoError(t, NewRabbitMQQueue(pub).Enqueue(context.Background(), 42))

	job, ok := pub.msg.(ProcessJob)
	require.True(t, ok)
	assert.Equal(t, uint(42), job.DocumentID)
	assert.Equal(t, job.JobID, pub.id)
	assert.NotEmpty(t, job.JobID)

	pub.err = errors.New("channel closed")
	assert.Error(t, NewRabbitMQQueue(pub).Enqueue(context.Background(), 42))
}

func TestConsumerHandle(t *testing.T) {
	p := &fakeProcessor{}
	c := NewProcessingConsumer(nil, p, "q", 1, time.Minute)

	body, err := json.Marshal(NewProcessJob(5))
	require.NoError(t, err)
	assert.NoError(t, c.handle(context.Background(), body))
	assert.Equal(t, int32(1), p.calls.Load())

	assert.Error(t, c.handle(context.Background(), []byte("{")))
	assert.Error(t, c.handle(context.Background(), []byte(`{"jobId":"x"}`)))

	p.err = app.ErrProcessing
	assert.NoError(t, c.handle(context.Background(), body), "processing failures are recorded, not redelivered")
}
