package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"finlitbot/internal/domain"
	"finlitbot/internal/registry"
)

const (
	correlationHeader = "X-Correlation-Id"

	// DefaultMaxMessageBytes bounds a chat request body and a single
	// WebSocket frame.
	DefaultMaxMessageBytes = 16 << 20

	codeInvalidInput    = "INVALID_INPUT"
	codePayloadTooLarge = "PAYLOAD_TOO_LARGE"
	codeNotFound        = "NOT_FOUND"
)

// Relayer produces the chat result for one message. It never fails; errors
// are carried in the result type.
type Relayer interface {
	Relay(ctx context.Context, message string) domain.ChatResult
}

type Config struct {
	StaticDir     string
	IndexFile     string
	WebSocketPath string
	// MaxMessageBytes defaults to DefaultMaxMessageBytes.
	MaxMessageBytes int64
	Logger          *slog.Logger
}

// Handler serves the chat API, the frontend and the real-time endpoint.
type Handler struct {
	relay    Relayer
	registry *registry.Registry
	logger   *slog.Logger

	staticDir string
	indexFile string
	wsPath    string
	maxBytes  int64
	upgrader  websocket.Upgrader
}

type healthResponse struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewHandler wires the handler. reg may be nil, in which case no real-time
// endpoint is mounted (the Lambda deployment has none).
func NewHandler(relay Relayer, reg *registry.Registry, cfg Config) (*Handler, error) {
	if relay == nil {
		return nil, errors.New("handler: relay must not be nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.WebSocketPath == "" {
		cfg.WebSocketPath = "/ws"
	}
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = DefaultMaxMessageBytes
	}
	return &Handler{
		relay:     relay,
		registry:  reg,
		logger:    cfg.Logger,
		staticDir: cfg.StaticDir,
		indexFile: cfg.IndexFile,
		wsPath:    cfg.WebSocketPath,
		maxBytes:  cfg.MaxMessageBytes,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Any origin, matching the CORS policy of the HTTP routes.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}, nil
}

// Routes returns the HTTP handler for the whole server.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", h.handleChat)
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /{$}", h.handleIndex)
	if h.staticDir != "" {
		mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.Dir(h.staticDir))))
	}
	if h.registry != nil {
		mux.HandleFunc("GET "+h.wsPath, h.handleWebSocket)
	}
	return withCORS(h.withCorrelationID(mux))
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var req domain.ChatRequest
	body := http.MaxBytesReader(w, r.Body, h.maxBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.logger.InfoContext(r.Context(), "chat body too large", "correlation_id", correlationID(r.Context()), "limit", tooLarge.Limit)
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: codePayloadTooLarge})
			return
		}
		h.logger.InfoContext(r.Context(), "invalid chat body", "correlation_id", correlationID(r.Context()), "err", err)
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: codeInvalidInput})
		return
	}

	result := h.relay.Relay(r.Context(), req.Message)
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "healthy"})
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	data, err := os.ReadFile(h.indexFile)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "read index file", "path", h.indexFile, "err", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(data)
}

// withCORS allows every origin, answering preflight requests directly.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Origin") == "" {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Expose-Headers", correlationHeader)
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+correlationHeader)
			w.Header().Set("Access-Control-Max-Age", "86400")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type correlationKey struct{}

func (h *Handler) withCorrelationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(correlationHeader))
		if id == "" {
			id = newCorrelationID()
		}
		w.Header().Set(correlationHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), correlationKey{}, id)))
	})
}

func correlationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

var newCorrelationID = func() string {
	return uuid.NewString()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
