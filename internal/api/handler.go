package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kartoza/home-energy-assistant/internal/app"
	"github.com/kartoza/home-energy-assistant/internal/applog"
	"github.com/kartoza/home-energy-assistant/internal/chat"
	"github.com/kartoza/home-energy-assistant/internal/config"
	"github.com/kartoza/home-energy-assistant/internal/llm"
	"github.com/kartoza/home-energy-assistant/internal/models"
	"github.com/kartoza/home-energy-assistant/internal/ocr"
	"github.com/kartoza/home-energy-assistant/internal/recommend"
)

// Answerer handles one chat exchange
type Answerer interface {
	Answer(ctx context.Context, req chat.Request) (*chat.Response, error)
}

// Backends names the OCR and LLM engines for /info
type Backends struct {
	OCR string
	LLM string
}

// Handler provides HTTP API endpoints
type Handler struct {
	chat     Answerer
	state    *app.Context
	backends Backends
	cfg      config.Config
	logger   *zap.Logger
}

// NewHandler creates a new API handler
func NewHandler(
	answerer Answerer,
	state *app.Context,
	backends Backends,
	cfg config.Config,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		chat:     answerer,
		state:    state,
		backends: backends,
		cfg:      cfg,
		logger:   applog.OrNop(logger),
	}
}

// RegisterRoutes sets up all API routes
func (h *Handler) RegisterRoutes(r *mux.Router) {
	// Health and info
	r.HandleFunc("/health", h.handleHealth).Methods("GET")
	r.HandleFunc("/info", h.handleInfo).Methods("GET")

	r.HandleFunc("/chat", h.handleChat).Methods("POST")
	r.HandleFunc("/recommend", h.handleRecommend).Methods("POST")
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Warn("Error encoding response", zap.Error(err))
	}
}

// respondError sends a JSON error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, models.ErrorResponse{
		Error:     message,
		RequestID: w.Header().Get(RequestIDHeader),
	})
}

// handleHealth returns server health status
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleInfo returns server information
func (h *Handler) handleInfo(w http.ResponseWriter, r *http.Request) {
	info := models.InfoResponse{
		Version: h.cfg.Version,
		LLM:     h.backends.LLM,
		OCR:     h.backends.OCR,
	}
	if h.state != nil && h.state.Dataset != nil {
		info.Dataset = models.DatasetInfo{
			Source:  h.state.Dataset.Source,
			Rows:    h.state.Dataset.Rows(),
			Columns: h.state.Dataset.Columns(),
			Filled:  h.state.Fill.Filled(),
		}
	}
	if h.state != nil && h.state.HasModel() {
		info.Model = models.ModelInfo{Available: true, Details: h.state.Model.Info()}
	}
	respondJSON(w, http.StatusOK, info)
}

// handleChat answers a question about household energy use
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	log := h.logger.With(zap.String("request_id", RequestIDFrom(r.Context())))

	req, err := h.parseChatRequest(w, r)
	if err != nil {
		status := statusFor(err)
		log.Info("Rejected chat request", zap.Int("status", status), zap.Error(err))
		respondError(w, status, err.Error())
		return
	}

	ctx := r.Context()
	if d := h.chatDeadline(); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	resp, err := h.chat.Answer(ctx, req)
	if err != nil {
		status := statusFor(err)
		log.Warn("Chat request failed",
			zap.Int("status", status),
			zap.Bool("image", req.HasImage),
			zap.Duration("latency", time.Since(start)),
			zap.Error(err))
		respondError(w, status, err.Error())
		return
	}

	log.Info("Chat request",
		zap.Bool("image", req.HasImage),
		zap.Int("image_bytes", len(req.Image)),
		zap.Int("question_chars", len(req.Question)),
		zap.Int("context_chars", len(req.Context)),
		zap.Int("response_chars", len(resp.Response)),
		zap.Duration("latency", time.Since(start)))

	respondJSON(w, http.StatusOK, models.ChatResponse{
		Response: resp.Response,
		Context:  resp.Context,
	})
}

// chatDeadline leaves a tenth of the server write timeout to send the
// response, so a slow model ends in a 504 rather than a dropped connection.
// Zero means no deadline.
func (h *Handler) chatDeadline() time.Duration {
	write := h.cfg.WriteTimeout()
	return write - write/10
}

// parseChatRequest reads form fields and the optional image upload.
// A file part with an empty filename counts as no image.
func (h *Handler) parseChatRequest(w http.ResponseWriter, r *http.Request) (chat.Request, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.Server.MaxUploadMB<<20)

	var req chat.Request
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			return req, badRequest("parse multipart form", err)
		}
	} else if err := r.ParseForm(); err != nil {
		return req, badRequest("parse form", err)
	}

	req.Question = r.FormValue("user_question")
	req.Context = r.FormValue("context")

	if r.MultipartForm == nil {
		return req, nil
	}
	file, header, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return req, nil
	}
	if err != nil {
		return req, badRequest("read image", err)
	}
	defer file.Close()
	if header.Filename == "" {
		return req, nil
	}

	img, err := io.ReadAll(file)
	if err != nil {
		return req, badRequest("read image", err)
	}
	req.Image = img
	req.HasImage = true
	return req, nil
}

// handleRecommend suggests an action for one household
func (h *Handler) handleRecommend(w http.ResponseWriter, r *http.Request) {
	if h.state == nil || !h.state.HasModel() {
		respondError(w, http.StatusServiceUnavailable, app.ErrNoModel.Error())
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var features map[string]any
	if err := json.NewDecoder(r.Body).Decode(&features); err != nil {
		respondError(w, statusFor(badRequest("decode features", err)), "invalid JSON body: "+err.Error())
		return
	}

	p, err := h.state.Recommend(features)
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, models.RecommendResponse{
		Action:        p.Action,
		Probabilities: p.Probabilities,
	})
}

// requestError marks failures caused by a malformed request
type requestError struct {
	op  string
	err error
}

func (e *requestError) Error() string { return e.op + ": " + e.err.Error() }

func (e *requestError) Unwrap() error { return e.err }

func badRequest(op string, err error) error {
	return &requestError{op: op, err: err}
}

// statusFor maps an error to its HTTP status
func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	var reqErr *requestError
	switch {
	case errors.As(err, &maxBytes) || strings.Contains(err.Error(), "request body too large"):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ocr.ErrInvalidImage),
		errors.Is(err, recommend.ErrInvalidFeature),
		errors.As(err, &reqErr):
		return http.StatusBadRequest
	case errors.Is(err, app.ErrNoModel):
		return http.StatusServiceUnavailable
	case llm.IsTimeout(err), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, chat.ErrLLM), errors.Is(err, ocr.ErrExtraction):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
