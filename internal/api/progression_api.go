package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/vijayaragavanr18/Vervathon25/internal/app/progression"
	"github.com/vijayaragavanr18/Vervathon25/internal/domain"
)

// ─── Progression API (/api/users/{userID}/*) ────────────────────────────────

type recordRequest struct {
	Kind           domain.ActivityKind `json:"kind"`
	Points         int64               `json:"points"`
	Description    string              `json:"description,omitempty"`
	Score          *int                `json:"score,omitempty"`
	IdempotencyKey string              `json:"idempotency_key,omitempty"`
}

type recordResponse struct {
	*progression.Result
	Error string `json:"error,omitempty"`
}

func userParam(r *http.Request) domain.UserID {
	return domain.UserID(chi.URLParam(r, "userID"))
}

// --- POST /activities ---

func (s *Server) handleRecordActivity(w http.ResponseWriter, r *http.Request) {
	var req recordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	key := req.IdempotencyKey
	if key == "" {
		key = r.Header.Get("Idempotency-Key")
	}

	res, err := s.coord.RecordActivity(r.Context(), progression.ActivityInput{
		UserID:         userParam(r),
		Kind:           req.Kind,
		Points:         req.Points,
		Description:    req.Description,
		Score:          req.Score,
		IdempotencyKey: key,
	})
	switch {
	case err == nil && res.Duplicate:
		writeJSON(w, http.StatusOK, recordResponse{Result: res})
	case err == nil:
		writeJSON(w, http.StatusCreated, recordResponse{Result: res})
	case res != nil && res.Degraded:
		// The activity is recorded; derived state catches up on rescan.
		writeJSON(w, http.StatusAccepted, recordResponse{Result: res, Error: err.Error()})
	default:
		s.writeDomainError(w, err)
	}
}

// --- GET /progress ---

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	view, err := s.queries.Progress(r.Context(), userParam(r))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// --- GET /achievements ---

func (s *Server) handleAchievements(w http.ResponseWriter, r *http.Request) {
	statuses, err := s.queries.Achievements(r.Context(), userParam(r))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	earned := 0
	for _, st := range statuses {
		if st.Unlocked {
			earned++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"achievements": statuses,
		"earned":       earned,
		"total":        len(statuses),
	})
}

// --- GET /history?limit=N ---

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit, ok := intQuery(w, r, "limit")
	if !ok {
		return
	}
	entries, err := s.queries.History(r.Context(), userParam(r), limit)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if entries == nil {
		entries = []domain.LedgerEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// --- POST /rescan ---

func (s *Server) handleRescan(w http.ResponseWriter, r *http.Request) {
	res, err := s.coord.Rescan(r.Context(), userParam(r))
	if err != nil {
		if res != nil && res.Degraded {
			writeJSON(w, http.StatusAccepted, recordResponse{Result: res, Error: err.Error()})
			return
		}
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// --- GET /notifications ---

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	limit, ok := intQuery(w, r, "limit")
	if !ok {
		return
	}
	notes, err := s.feed.Pending(r.Context(), userParam(r), limit)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if notes == nil {
		notes = []domain.Notification{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": notes})
}

// --- POST /notifications/{notificationID}/shown ---

func (s *Server) handleNotificationShown(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "notificationID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid notification id")
		return
	}
	if err := s.feed.MarkShown(r.Context(), userParam(r), id); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ─── Global Views ───────────────────────────────────────────────────────────

// --- GET /api/leaderboard?limit=N&offset=M ---

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit, ok := intQuery(w, r, "limit")
	if !ok {
		return
	}
	offset, ok := intQuery(w, r, "offset")
	if !ok {
		return
	}
	rows, err := s.queries.Leaderboard(r.Context(), limit, offset)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if rows == nil {
		rows = []domain.RankedProgress{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"leaderboard": rows})
}

// --- GET /api/achievements ---

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"achievements": s.queries.Catalog()})
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// intQuery reads an optional non-negative integer query parameter.
func intQuery(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", name+" must be a non-negative integer")
		return 0, false
	}
	return v, true
}

// writeDomainError maps engine errors to HTTP statuses.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	status, kind := statusFor(err)
	if status >= 500 {
		s.log.Error("request failed", zap.Error(err))
	}
	writeError(w, status, kind, err.Error())
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidActivity), errors.Is(err, domain.ErrInvalidState):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, domain.ErrUnknownUser), errors.Is(err, domain.ErrNotificationNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrVersionConflict), errors.Is(err, domain.ErrInvariantViolation):
		return http.StatusConflict, "conflict"
	case errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "unavailable"
	}
	return http.StatusInternalServerError, "internal"
}
