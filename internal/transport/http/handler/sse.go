package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"docchat/internal/model"
)

var errStreamingUnsupported = errors.New("streaming unsupported")

type streamEvent struct {
	Type      string           `json:"type"`
	Citations []model.Citation `json:"citations,omitempty"`
}

// sseWriter frames answer events as server-sent events and flushes after
// every event so tokens reach the client in generation order.
type sseWriter struct {
	w       io.Writer
	flusher http.Flusher
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errStreamingUnsupported
	}
	return &sseWriter{w: w, flusher: flusher}, nil
}

func setSSEHeaders(h http.Header) {
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}

func (s *sseWriter) Start() error {
	return s.writeJSON(streamEvent{Type: "start"})
}

// Delta writes one event per delta. Embedded newlines become extra data
// lines, which clients join back with "\n".
func (s *sseWriter) Delta(text string) error {
	return s.write("", text)
}

func (s *sseWriter) Citations(citations []model.Citation) error {
	if citations == nil {
		citations = []model.Citation{}
	}
	payload, err := json.Marshal(struct {
		Type      string           `json:"type"`
		Citations []model.Citation `json:"citations"`
	}{Type: "citations", Citations: citations})
	if err != nil {
		return err
	}
	return s.write("", string(payload))
}

func (s *sseWriter) Error(message string) error {
	return s.write("error", message)
}

func (s *sseWriter) Done() error {
	return s.write("", "[DONE]")
}

func (s *sseWriter) writeJSON(ev streamEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return s.write("", string(payload))
}

func (s *sseWriter) write(event, data string) error {
	var b strings.Builder
	if event != "" {
		fmt.Fprintf(&b, "event: %s\n", event)
	}
	data = strings.ReplaceAll(data, "\r\n", "\n")
	for _, line := range strings.Split(data, "\n") {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')

	if _, err := io.WriteString(s.w, b.String()); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
