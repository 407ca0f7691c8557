package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"pagelift/extract"
	"pagelift/gemini"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxUploadSize = 10 << 20 // 10MB

// Server exposes the extraction pipeline over HTTP.
type Server struct {
	pipeline *extract.Pipeline
	logger   *zap.Logger
	port     string
}

func NewServer(pipeline *extract.Pipeline, logger *zap.Logger, port string) *Server {
	return &Server{pipeline: pipeline, logger: logger, port: port}
}

// Start starts the API server
func (s *Server) Start() error {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/extract", s.ExtractHandler)
	mux.HandleFunc("/api/extract/stream", s.StreamHandler)

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	s.logger.Info("starting api server", zap.String("port", s.port))
	return http.ListenAndServe(":"+s.port, mux)
}

// ExtractHandler runs the whole pipeline and answers with the final result
// once it is done. Clients that want stage-by-stage feedback use the stream
// endpoint instead.
func (s *Server) ExtractHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	cover, err := readCoverImage(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	requestID := uuid.NewString()
	logger := s.logger.With(zap.String("request_id", requestID))
	logger.Info("extraction request received",
		zap.Int("image_bytes", len(cover.Data)),
		zap.String("mime", cover.MIME))

	// A dropped connection must not abort in-flight model or browser calls.
	res := s.pipeline.Run(context.WithoutCancel(r.Context()), cover)

	logger.Info("extraction request finished",
		zap.Bool("success", res.Success),
		zap.String("error_type", string(res.ErrorType)))

	writeJSON(w, statusFor(res), res)
}

// readCoverImage pulls the uploaded file out of the multipart form. The
// image is assumed to be pre-normalized by the caller; only the cheap gates
// (size, sniffed mime) run here.
func readCoverImage(r *http.Request) (gemini.Image, error) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		return gemini.Image{}, fmt.Errorf("invalid multipart form: %w", err)
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		return gemini.Image{}, fmt.Errorf("no image file uploaded")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadSize+1))
	if err != nil {
		return gemini.Image{}, fmt.Errorf("failed to read upload: %w", err)
	}
	if len(data) == 0 {
		return gemini.Image{}, fmt.Errorf("uploaded file is empty")
	}
	if len(data) > maxUploadSize {
		return gemini.Image{}, fmt.Errorf("file too large, maximum size is 10MB")
	}

	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		return gemini.Image{}, fmt.Errorf("only image uploads are accepted")
	}

	return gemini.Image{Data: data, MIME: mime}, nil
}

func statusFor(res extract.Result) int {
	if res.Success {
		return http.StatusOK
	}
	switch res.ErrorType {
	case extract.ErrorNotABook:
		return http.StatusBadRequest
	case extract.ErrorBookNotFound, extract.ErrorNoPreview:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
