package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"docchat/internal/app"
)

// DocumentProcessor runs one document through extraction, chunking and
// embedding. It records failures on the document itself.
type DocumentProcessor interface {
	Process(ctx context.Context, documentID uint) (*app.ProcessResult, error)
}

// ProcessJob is the queue payload for one processing request.
type ProcessJob struct {
	JobID      string    `json:"jobId"`
	DocumentID uint      `json:"docId"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
}

func NewProcessJob(documentID uint) ProcessJob {
	return ProcessJob{
		JobID:      uuid.NewString(),
		DocumentID: documentID,
		EnqueuedAt: time.Now().UTC(),
	}
}

func DecodeProcessJob(body []byte) (ProcessJob, error) {
	var job ProcessJob
	if err := json.Unmarshal(body, &job); err != nil {
		return ProcessJob{}, fmt.Errorf("decode process job failed: %w", err)
	}
	if job.DocumentID == 0 {
		return ProcessJob{}, errors.New("process job has no document id")
	}
	return job, nil
}

// runJob bounds one processing run by timeout. The run is detached from ctx
// cancellation so shutdown never interrupts a half-written document.
func runJob(ctx context.Context, processor DocumentProcessor, documentID uint, timeout time.Duration) (*app.ProcessResult, error) {
	jobCtx := context.WithoutCancel(ctx)
	if timeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(jobCtx, timeout)
		defer cancel()
	}
	return processor.Process(jobCtx, documentID)
}
