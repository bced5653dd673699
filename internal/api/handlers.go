package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/BTreeMap/ScreenPipe/internal/models"
	"github.com/BTreeMap/ScreenPipe/internal/qualify"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}

// askHandler handles POST /ask. The body is the bare {reply} object the
// transport bridge expects, not the status envelope.
func (s *Server) askHandler(w http.ResponseWriter, r *http.Request) {
	var req models.AskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		slog.Warn("Server.askHandler: invalid JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	req.Sender = strings.TrimSpace(req.Sender)
	if req.Sender == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(models.ErrEmptySender.Error()))
		return
	}

	reply, err := s.engine.Handle(r.Context(), req.Sender, req.Message)
	if err != nil {
		slog.Error("Server.askHandler: engine failed", "sender", req.Sender, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to process message"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.AskResponse{Reply: reply.Body()})
}

func (s *Server) pingHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "pong")
}

func (s *Server) activeChatsHandler(w http.ResponseWriter, r *http.Request) {
	n, err := s.st.CountConversations(r.Context())
	if err != nil {
		slog.Error("Server.activeChatsHandler: count failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to count conversations"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]int{"count": n}))
}

func (s *Server) getCriteriaHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(s.criteria.Snapshot()))
}

func (s *Server) patchCriteriaHandler(w http.ResponseWriter, r *http.Request) {
	var patch models.CriteriaPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		slog.Warn("Server.patchCriteriaHandler: invalid JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if patch.IsEmpty() {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("No criteria fields to update"))
		return
	}
	updated, err := s.criteria.Update(patch)
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Criteria updated", updated))
}

func (s *Server) listCandidatesHandler(qualifiedOnly bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recs, err := s.st.ListCandidates(r.Context(), qualifiedOnly)
		if err != nil {
			slog.Error("Server.listCandidatesHandler: list failed", "qualified_only", qualifiedOnly, "error", err)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list candidates"))
			return
		}
		if recs == nil {
			recs = []models.CandidateRecord{}
		}
		writeJSONResponse(w, http.StatusOK, models.Success(recs))
	}
}

// upsertCandidateHandler handles POST /candidates. When qualified is omitted
// the answers are scored against the current criteria.
func (s *Server) upsertCandidateHandler(w http.ResponseWriter, r *http.Request) {
	var req models.CandidateUpsertRequest
	if err := decodeJSON(w, r, &req); err != nil {
		slog.Warn("Server.upsertCandidateHandler: invalid JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	req.Sender = strings.TrimSpace(req.Sender)
	if err := req.Validate(); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	var qualified bool
	if req.Qualified != nil {
		qualified = *req.Qualified
	} else {
		qualified = qualify.Evaluate(req.Answers, s.criteria.Snapshot(), s.keys).Qualified
	}
	now := time.Now()
	rec := models.CandidateRecord{
		ID:        uuid.NewString(),
		Sender:    req.Sender,
		Answers:   req.Answers,
		Qualified: qualified,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.st.SaveCandidate(r.Context(), &rec); err != nil {
		slog.Error("Server.upsertCandidateHandler: save failed", "sender", rec.Sender, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to save candidate"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(rec))
}

func (s *Server) chatLogHandler(w http.ResponseWriter, r *http.Request) {
	sender := r.PathValue("sender")
	entries, err := s.st.GetChatLog(r.Context(), sender)
	if err != nil {
		slog.Error("Server.chatLogHandler: read failed", "sender", sender, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to read chat log"))
		return
	}
	if entries == nil {
		entries = []models.ChatLogEntry{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(entries))
}

func (s *Server) resetConversationHandler(w http.ResponseWriter, r *http.Request) {
	sender := r.PathValue("sender")
	if err := s.engine.Reset(r.Context(), sender); err != nil {
		slog.Error("Server.resetConversationHandler: reset failed", "sender", sender, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to reset conversation"))
		return
	}
	slog.Info("Server.resetConversationHandler: conversation reset", "sender", sender)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Conversation reset", nil))
}

type aiFallbackStatus struct {
	Enabled   bool `json:"enabled"`
	Available bool `json:"available"`
}

type aiFallbackRequest struct {
	Enabled *bool `json:"enabled"`
}

func (s *Server) getAIFallbackHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(aiFallbackStatus{
		Enabled:   s.engine.AIFallbackEnabled(),
		Available: s.engine.HasAssistant(),
	}))
}

func (s *Server) putAIFallbackHandler(w http.ResponseWriter, r *http.Request) {
	var req aiFallbackRequest
	if err := decodeJSON(w, r, &req); err != nil || req.Enabled == nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Expected {\"enabled\": true|false}"))
		return
	}
	if *req.Enabled && !s.engine.HasAssistant() {
		writeJSONResponse(w, http.StatusConflict, models.Error("No AI assistant configured"))
		return
	}
	s.engine.SetAIFallback(*req.Enabled)
	slog.Info("Server.putAIFallbackHandler: AI fallback toggled", "enabled", *req.Enabled)
	writeJSONResponse(w, http.StatusOK, models.Success(aiFallbackStatus{Enabled: *req.Enabled, Available: s.engine.HasAssistant()}))
}

type outreachAccepted struct {
	Accepted []string          `json:"accepted"`
	Invalid  map[string]string `json:"invalid,omitempty"`
}

// outreachHandler handles POST /outreach. Valid numbers are messaged in the
// background; the response lists what was accepted.
func (s *Server) outreachHandler(w http.ResponseWriter, r *http.Request) {
	var req models.OutreachRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if len(req.Numbers) == 0 {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("numbers cannot be empty"))
		return
	}
	valid, invalid := s.outreach.Canonicalize(req.Numbers)
	if len(valid) == 0 {
		writeJSONResponse(w, http.StatusBadRequest, models.APIResponse{
			Status:  string(models.APIStatusError),
			Message: "No valid numbers",
			Result:  outreachAccepted{Accepted: []string{}, Invalid: invalid},
		})
		return
	}

	go func() {
		if _, err := s.outreach.Send(s.baseCtx, valid, req.Messages); err != nil {
			slog.Warn("Server.outreachHandler: outreach stopped", "error", err)
		}
	}()
	writeJSONResponse(w, http.StatusAccepted, models.Success(outreachAccepted{Accepted: valid, Invalid: invalid}))
}

type notifyRequest struct {
	Message string `json:"message"`
}

func (s *Server) notifyHandler(w http.ResponseWriter, r *http.Request) {
	var req notifyRequest
	if err := decodeJSON(w, r, &req); err != nil || strings.TrimSpace(req.Message) == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("message is required"))
		return
	}
	if err := s.notifier.Notify(r.Context(), req.Message); err != nil {
		slog.Error("Server.notifyHandler: notify failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to send message"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("sent", nil))
}
