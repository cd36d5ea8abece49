package model

type DocumentStatus string

const (
	StatusPending    DocumentStatus = "pending"
	StatusUploading  DocumentStatus = "uploading"
	StatusProcessing DocumentStatus = "processing"
	StatusReady      DocumentStatus = "ready"
	StatusFailed     DocumentStatus = "failed"
)

// transitions lists every legal edge. ready -> processing is absent: a
// reprocessing run keeps the row in ready until it commits.
var transitions = map[DocumentStatus][]DocumentStatus{
	StatusPending:    {StatusUploading, StatusFailed},
	StatusUploading:  {StatusProcessing, StatusFailed},
	StatusProcessing: {StatusReady, StatusFailed},
	StatusReady:      {StatusReady},
}

func (s DocumentStatus) CanTransitionTo(next DocumentStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// AcceptsChunks reports whether bytes may still be appended to the upload.
func (s DocumentStatus) AcceptsChunks() bool {
	return s == StatusPending || s == StatusUploading
}

func (s DocumentStatus) Finished() bool {
	return s == StatusReady || s == StatusFailed
}

func (s DocumentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusUploading, StatusProcessing, StatusReady, StatusFailed:
		return true
	}
	return false
}
