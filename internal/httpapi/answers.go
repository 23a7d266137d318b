package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/annotator/internal/answer"
	"github.com/Kocoro-lab/Shannon/go/annotator/internal/db"
	"github.com/Kocoro-lab/Shannon/go/annotator/internal/metrics"
	"github.com/Kocoro-lab/Shannon/go/annotator/internal/tracing"
)

// ParsedCache caches parse results by payload.
type ParsedCache interface {
	Get(ctx context.Context, payload answer.AnswerPayload) (answer.ParsedAnswer, bool, error)
	Set(ctx context.Context, payload answer.AnswerPayload, parsed answer.ParsedAnswer) error
}

// AnswerStore records annotated answers for conversation history.
type AnswerStore interface {
	SaveAnswer(ctx context.Context, rec *db.AnnotatedAnswer) error
	GetAnswer(ctx context.Context, id uuid.UUID) (*db.AnnotatedAnswer, error)
	ListByConversation(ctx context.Context, conversationID string, limit int) ([]db.AnnotatedAnswer, error)
}

// AnswerHandler serves the citation annotation API. Cache and store are
// optional; pass nil to disable either.
type AnswerHandler struct {
	cache   ParsedCache
	store   AnswerStore
	logger  *zap.Logger
	maxBody int64
}

func NewAnswerHandler(cache ParsedCache, store AnswerStore, maxBody int64, logger *zap.Logger) *AnswerHandler {
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	return &AnswerHandler{cache: cache, store: store, logger: logger, maxBody: maxBody}
}

// RegisterRoutes registers the API on mux. mws wrap every route, outermost first.
func (h *AnswerHandler) RegisterRoutes(mux *http.ServeMux, mws ...Middleware) {
	handle := func(pattern, route string, fn http.HandlerFunc) {
		mux.Handle(pattern, Chain(Instrument(route, h.logger, fn), mws...))
	}
	handle("POST /api/v1/answers/parse", "parse_answer", h.handleParse)
	handle("POST /api/v1/citations/group", "group_citations", h.handleGroup)
	handle("GET /api/v1/answers/{id}", "get_answer", h.handleGetAnswer)
	handle("GET /api/v1/conversations/{id}/answers", "list_answers", h.handleListAnswers)
}

// parseRequest accepts the chat client's "answer" field and "text" as an alias.
type parseRequest struct {
	Answer         answer.Optional[string] `json:"answer"`
	Text           answer.Optional[string] `json:"text"`
	Citations      []answer.Citation       `json:"citations"`
	ConversationID string                  `json:"conversation_id"`
	MessageID      string                  `json:"message_id"`
}

func (r parseRequest) payload() answer.AnswerPayload {
	text := r.Answer
	if !text.IsSome() {
		text = r.Text
	}
	return answer.AnswerPayload{Text: text, Citations: r.Citations}
}

type parseResponse struct {
	answer.ParsedAnswer
	AnswerID string `json:"answer_id,omitempty"`
}

type groupRequest struct {
	Citations []answer.Citation `json:"citations"`
}

type groupResponse struct {
	Citations []answer.Citation `json:"citations"`
}

// handleParse: POST /api/v1/answers/parse
func (h *AnswerHandler) handleParse(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.StartSpan(r.Context(), "answer.parse")
	defer span.End()

	var req parseRequest
	if !h.decode(w, r, &req) {
		return
	}
	payload := req.payload()

	parsed, hit := h.lookup(ctx, w, payload)
	if !hit {
		start := time.Now()
		var (
			report answer.Report
			err    error
		)
		parsed, report, err = answer.Annotate(payload)
		metrics.RecordParse(report, err, time.Since(start))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		tracing.AnnotateSpan(span, report)
		if report.Unresolved > 0 {
			h.logger.Debug("Answer has unresolved citation tokens",
				zap.Int("unresolved", report.Unresolved),
				zap.Int("resolved", report.Resolved))
		}
		h.remember(ctx, payload, parsed)
	}

	resp := parseResponse{ParsedAnswer: parsed}
	if h.store != nil && req.ConversationID != "" {
		rec := db.NewAnnotatedAnswer(req.ConversationID, req.MessageID, payload.Text.OrElse(""), parsed)
		if err := h.store.SaveAnswer(ctx, rec); err != nil {
			metrics.StoreWrites.WithLabelValues("error").Inc()
			h.logger.Error("Failed to record annotated answer",
				zap.String("conversation_id", req.ConversationID),
				zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to record answer")
			return
		}
		metrics.StoreWrites.WithLabelValues("ok").Inc()
		resp.AnswerID = rec.ID.String()
	}

	writeJSON(w, http.StatusOK, resp, h.logger)
}

// lookup consults the cache. Cache failures are logged and treated as misses.
func (h *AnswerHandler) lookup(ctx context.Context, w http.ResponseWriter, payload answer.AnswerPayload) (answer.ParsedAnswer, bool) {
	if h.cache == nil {
		return answer.ParsedAnswer{}, false
	}
	parsed, ok, err := h.cache.Get(ctx, payload)
	if err != nil {
		metrics.CacheErrors.WithLabelValues("get").Inc()
		h.logger.Warn("Parsed answer cache read failed", zap.Error(err))
	}
	if ok {
		metrics.CacheHits.Inc()
		w.Header().Set("X-Cache", "HIT")
		return parsed, true
	}
	metrics.CacheMisses.Inc()
	w.Header().Set("X-Cache", "MISS")
	return answer.ParsedAnswer{}, false
}

func (h *AnswerHandler) remember(ctx context.Context, payload answer.AnswerPayload, parsed answer.ParsedAnswer) {
	if h.cache == nil {
		return
	}
	if err := h.cache.Set(ctx, payload, parsed); err != nil {
		metrics.CacheErrors.WithLabelValues("set").Inc()
		h.logger.Warn("Parsed answer cache write failed", zap.Error(err))
	}
}

// handleGroup: POST /api/v1/citations/group
func (h *AnswerHandler) handleGroup(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.StartSpan(r.Context(), "citations.group")
	defer span.End()

	var req groupRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Citations == nil {
		writeError(w, http.StatusBadRequest, "citations are required")
		return
	}
	writeJSON(w, http.StatusOK, groupResponse{Citations: answer.GroupAndIndex(req.Citations)}, h.logger)
}

// handleGetAnswer: GET /api/v1/answers/{id}
func (h *AnswerHandler) handleGetAnswer(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "answer history is disabled")
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid answer id")
		return
	}

	rec, err := h.store.GetAnswer(r.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, "answer not found")
		return
	}
	if err != nil {
		h.logger.Error("Failed to load answer", zap.String("answer_id", id.String()), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load answer")
		return
	}
	writeJSON(w, http.StatusOK, rec, h.logger)
}

// handleListAnswers: GET /api/v1/conversations/{id}/answers?limit=N
func (h *AnswerHandler) handleListAnswers(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "answer history is disabled")
		return
	}
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	conversationID := r.PathValue("id")
	recs, err := h.store.ListByConversation(r.Context(), conversationID, limit)
	if err != nil {
		h.logger.Error("Failed to list answers", zap.String("conversation_id", conversationID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list answers")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"conversation_id": conversationID,
		"answers":         recs,
	}, h.logger)
}

// decode reads a size-limited JSON body into v, writing the error response itself.
func (h *AnswerHandler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body interface{}, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("Failed to encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
