package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"pagelift/extract"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const keepaliveInterval = 15 * time.Second

// StreamHandler runs the pipeline while streaming stage transitions to the
// client as Server-Sent Events, finishing with a terminal "result" event.
// Keepalive comments go out on a timer regardless of pipeline progress so
// proxies do not cut the connection during long captures.
func (s *Server) StreamHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	cover, err := readCoverImage(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	requestID := uuid.NewString()
	logger := s.logger.With(zap.String("request_id", requestID))
	logger.Info("stream extraction request received", zap.Int("image_bytes", len(cover.Data)))

	sink := &sseSink{w: w, flusher: flusher}

	done := make(chan extract.Result, 1)
	go func() {
		// The pipeline outlives a dropped connection: in-flight calls run
		// to completion, only delivery stops.
		done <- s.pipeline.WithProgress(sink).Run(context.WithoutCancel(r.Context()), cover)
	}()

	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case res := <-done:
			sink.writeEvent("result", res)
			logger.Info("stream extraction finished",
				zap.Bool("success", res.Success),
				zap.String("error_type", string(res.ErrorType)))
			return
		case <-ticker.C:
			sink.comment("keepalive")
		case <-r.Context().Done():
			sink.disconnect()
			logger.Info("client disconnected, dropping result delivery")
			return
		}
	}
}

// sseSink serializes writes from the pipeline goroutine and the keepalive
// loop onto one response stream. Once the client is gone it swallows
// everything silently.
type sseSink struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	gone    bool
}

func (s *sseSink) Emit(u extract.Update) {
	s.writeEvent("progress", u)
}

func (s *sseSink) writeEvent(event string, payload any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gone {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		s.gone = true
		return
	}
	s.flusher.Flush()
}

func (s *sseSink) comment(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gone {
		return
	}
	if _, err := fmt.Fprintf(s.w, ": %s\n\n", text); err != nil {
		s.gone = true
		return
	}
	s.flusher.Flush()
}

func (s *sseSink) disconnect() {
	s.mu.Lock()
	s.gone = true
	s.mu.Unlock()
}
