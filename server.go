package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"i4.energy/across/pdscan/scanner"
	"i4.energy/across/pdscan/wire"
)

// Server handles incoming HTTP requests for interacting with the
// configured scanner instance
type Server struct {
	Logger  *slog.Logger
	Scanner *scanner.Scanner
	Metrics *Metrics
	// Store is optional; when set every captured picture is also written to disk
	Store *Store

	// mu serialises access to the scanner, which owns a single transport
	mu sync.Mutex
}

// ServeHTTP implements the http.Handler interface for the Server struct
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /device", s.handleDevice)
	mux.HandleFunc("POST /capture", s.handleCapture)
	mux.HandleFunc("GET /unhandled", s.handleUnhandled)
	mux.HandleFunc("DELETE /unhandled", s.handleResetUnhandled)
	mux.Handle("GET /metrics", s.Metrics.Handler())
	mux.ServeHTTP(w, r)
}

func (s *Server) sendError(w http.ResponseWriter, message string, statusCode int) {
	if message == "" {
		w.WriteHeader(statusCode)
		return
	}

	type ErrorResponse struct {
		Message string `json:"message"`
	}
	resp := ErrorResponse{Message: message}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) sendJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// handleDevice identifies the attached scanner
func (s *Server) handleDevice(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	model, err := s.Scanner.DeviceID(r.Context())
	s.mu.Unlock()

	if err != nil {
		s.Metrics.Identifications.WithLabelValues("error").Inc()
		if errors.Is(err, scanner.ErrNoResponse) {
			s.sendError(w, err.Error(), http.StatusGatewayTimeout)
			return
		}
		s.Logger.Error("Failed to identify scanner", "error", err)
		s.sendError(w, err.Error(), http.StatusBadGateway)
		return
	}

	s.Metrics.Identifications.WithLabelValues("ok").Inc()
	type DeviceResponse struct {
		Model string `json:"model"`
	}
	s.sendJSON(w, DeviceResponse{Model: model})
}

// handleCapture takes a picture and returns it as the response body.
//
// Query parameters: trigger (auto, trigger, code-read), contrast and
// brightness (-255 to 255).
func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	params, err := parseCaptureParams(r)
	if err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	start := time.Now()
	s.mu.Lock()
	pic, err := s.Scanner.CapturePicture(r.Context(), params)
	unhandled := len(s.Scanner.Unhandled())
	s.mu.Unlock()
	elapsed := time.Since(start)
	s.Metrics.Unhandled.Set(float64(unhandled))

	var fetchErr *scanner.FetchError
	switch {
	case err == nil:
	case errors.Is(err, scanner.ErrValidation):
		s.Metrics.ObserveCapture("invalid", 0, elapsed)
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, scanner.ErrNoImage):
		s.Metrics.ObserveCapture("no_image", 0, elapsed)
		w.WriteHeader(http.StatusNoContent)
		return
	case errors.Is(err, scanner.ErrReadyTimeout):
		s.Metrics.ObserveCapture("timeout", 0, elapsed)
		s.sendError(w, err.Error(), http.StatusGatewayTimeout)
		return
	case errors.As(err, &fetchErr):
		s.Metrics.ObserveCapture("transfer_failed", fetchErr.Received, elapsed)
		s.Logger.Error("Picture transfer failed", "error", err, "received", fetchErr.Received, "expected", fetchErr.Expected)
		s.sendError(w, err.Error(), http.StatusBadGateway)
		return
	default:
		s.Metrics.ObserveCapture("error", 0, elapsed)
		s.Logger.Error("Failed to capture picture", "error", err)
		s.sendError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	id := uuid.New()
	s.Metrics.ObserveCapture("ok", len(pic.Data), elapsed)
	s.Logger.Info("Picture captured", "capture_id", id, "type", pic.ContentType, "bytes", len(pic.Data), "elapsed", elapsed)

	if s.Store != nil {
		path, err := s.Store.Save(id, pic)
		if err != nil {
			s.Logger.Error("Failed to save picture", "error", err, "capture_id", id)
		} else {
			s.Logger.Info("Picture saved", "capture_id", id, "path", path)
		}
	}

	w.Header().Set("Content-Type", pic.ContentType.MIMEType())
	w.Header().Set("Content-Length", strconv.Itoa(len(pic.Data)))
	w.Header().Set("X-Capture-ID", id.String())
	w.Header().Set("X-Picture-Type", pic.ContentType.String())
	w.WriteHeader(http.StatusOK)
	w.Write(pic.Data)
}

func parseCaptureParams(r *http.Request) (scanner.CaptureParams, error) {
	var params scanner.CaptureParams
	query := r.URL.Query()

	trigger, ok := wire.ParseTrigger(query.Get("trigger"))
	if !ok {
		return params, errors.New("trigger must be one of auto, trigger, code-read")
	}
	params.Trigger = trigger

	for name, dst := range map[string]*int{"contrast": &params.Contrast, "brightness": &params.Brightness} {
		raw := query.Get(name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return params, errors.New(name + " must be an integer")
		}
		*dst = v
	}
	return params, nil
}

// handleUnhandled lists lines the scanner sent outside the expected exchange
func (s *Server) handleUnhandled(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	messages := s.Scanner.Unhandled()
	s.mu.Unlock()

	type UnhandledResponse struct {
		Messages []string `json:"messages"`
	}
	if messages == nil {
		messages = []string{}
	}
	s.sendJSON(w, UnhandledResponse{Messages: messages})
}

func (s *Server) handleResetUnhandled(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.Scanner.ResetUnhandled()
	s.mu.Unlock()

	s.Metrics.Unhandled.Set(0)
	w.WriteHeader(http.StatusNoContent)
}
