package http

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/tastebook/progression-engine/internal/application/command"
	"github.com/tastebook/progression-engine/internal/application/query"
	"github.com/tastebook/progression-engine/internal/domain/shared"
	"github.com/tastebook/progression-engine/pkg/logger"
)

// maxEventBodyBytes bounds the ingest request body.
const maxEventBodyBytes = 64 << 10 // 64 KB

// ══════════════════════════════════════════════════════════════════════════════
// INGEST
// ══════════════════════════════════════════════════════════════════════════════

// submitEventRequest is the ingest wire format.
type submitEventRequest struct {
	IdempotencyKey string            `json:"idempotency_key"`
	UserID         string            `json:"user_id"`
	Type           string            `json:"type"`
	Timestamp      time.Time         `json:"timestamp"`
	Payload        map[string]string `json:"payload,omitempty"`
}

// submitEventResponse reports what the submission did.
type submitEventResponse struct {
	Status        string            `json:"status"`
	Reason        string            `json:"reason,omitempty"`
	Unlocks       []unlockView      `json:"unlocks,omitempty"`
	StreakOutcome *streakChangeView `json:"streak,omitempty"`
	ProcessedAt   time.Time         `json:"processed_at"`
}

type unlockView struct {
	AchievementID string    `json:"achievement_id"`
	UnlockedAt    time.Time `json:"unlocked_at"`
}

type streakChangeView struct {
	Result          string `json:"result"`
	PreviousStreak  int    `json:"previous_streak"`
	CurrentStreak   int    `json:"current_streak"`
	DaysMissed      int    `json:"days_missed,omitempty"`
	FreezesConsumed int    `json:"freezes_consumed,omitempty"`
	NewMilestones   []int  `json:"new_milestones,omitempty"`
}

// handleSubmitEvent ingests one activity event.
// 202 accepted, 200 duplicate, 400 rejected.
func (s *Server) handleSubmitEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxEventBodyBytes))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_body", "Failed to read request body")
		return
	}

	var req submitEventRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_json", "Request body is not valid JSON")
		return
	}

	result, err := s.deps.SubmitEvent.Handle(r.Context(), command.SubmitEventCommand{
		IdempotencyKey: req.IdempotencyKey,
		UserID:         req.UserID,
		Type:           req.Type,
		Timestamp:      req.Timestamp,
		Payload:        req.Payload,
		CorrelationID:  getRequestID(r.Context()),
	})
	if err != nil {
		s.logger.Error("event submission failed",
			logger.UserID(req.UserID),
			logger.IdempotencyKey(req.IdempotencyKey),
			logger.Err(err))
		writeJSONError(w, http.StatusServiceUnavailable, "processing_failed", "Event could not be processed, retry with the same idempotency key")
		return
	}

	resp := submitEventResponse{
		Status:      string(result.Status),
		Reason:      result.Reason,
		ProcessedAt: result.ProcessedAt,
	}
	for _, rec := range result.Unlocks {
		resp.Unlocks = append(resp.Unlocks, unlockView{
			AchievementID: rec.AchievementID,
			UnlockedAt:    rec.UnlockedAt,
		})
	}
	if out := result.StreakOutcome; out != nil {
		resp.StreakOutcome = &streakChangeView{
			Result:          string(out.Result),
			PreviousStreak:  out.PreviousStreak,
			CurrentStreak:   out.CurrentStreak,
			DaysMissed:      out.DaysMissed,
			FreezesConsumed: out.FreezesConsumed,
			NewMilestones:   out.NewMilestones,
		}
	}

	switch result.Status {
	case command.StatusAccepted:
		writeJSON(w, http.StatusAccepted, resp)
	case command.StatusDuplicate:
		writeJSON(w, http.StatusOK, resp)
	default:
		writeJSON(w, http.StatusBadRequest, resp)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// READS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetAchievements returns the user's achievement list.
// ?include_secret=true includes locked secret achievements in redacted form.
func (s *Server) handleGetAchievements(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]

	result, err := s.deps.GetAchievements.Handle(r.Context(), query.GetAchievementsQuery{
		UserID:        userID,
		IncludeSecret: getQueryParamBool(r, "include_secret"),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleGetStreak returns the user's streak state. Users with no streak get
// the zero view, not a 404.
func (s *Server) handleGetStreak(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]

	view, err := s.deps.GetStreakInfo.Handle(r.Context(), userID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleGetStats returns the user's progression summary, served from the
// summary cache when fresh.
func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]
	if userID == "" {
		writeJSONError(w, http.StatusBadRequest, "missing_user_id", "User ID is required")
		return
	}

	if s.deps.SummaryCache != nil {
		var cached query.StatsView
		if hit, err := s.deps.SummaryCache.Get(r.Context(), userID, &cached); err == nil && hit {
			writeJSON(w, http.StatusOK, &cached)
			return
		}
	}

	view, err := s.deps.GetStats.Handle(r.Context(), userID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if s.deps.SummaryCache != nil {
		if err := s.deps.SummaryCache.Set(r.Context(), userID, view); err != nil {
			s.logger.Debug("summary cache set failed", logger.UserID(userID), logger.Err(err))
		}
	}
	writeJSON(w, http.StatusOK, view)
}

// ══════════════════════════════════════════════════════════════════════════════
// ADMIN
// ══════════════════════════════════════════════════════════════════════════════

type grantFreezesRequest struct {
	Count int `json:"count"`
}

type grantFreezesResponse struct {
	UserID      string `json:"user_id"`
	FreezeCount int    `json:"freeze_count"`
}

// handleGrantFreezes credits streak freezes to a user.
func (s *Server) handleGrantFreezes(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]

	var req grantFreezesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_json", "Request body is not valid JSON")
		return
	}

	state, err := s.deps.TrackStreak.AddFreezes(r.Context(), userID, req.Count)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, grantFreezesResponse{
		UserID:      userID,
		FreezeCount: state.FreezeCount,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	status := s.deps.HealthChecker.Check(r.Context())
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		if status := s.deps.HealthChecker.Check(r.Context()); !status.Ready {
			writeJSON(w, http.StatusServiceUnavailable, status)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service": "progression-engine",
		"version": "v1",
		"uptime":  s.Uptime().Round(time.Second).String(),
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.deps.Metrics == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{})
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Metrics())
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// writeDomainError maps domain errors onto HTTP status codes.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case shared.IsNotFound(err):
		writeJSONError(w, http.StatusNotFound, "not_found", err.Error())
	case shared.IsValidation(err):
		writeJSONError(w, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		s.logger.Error("request failed",
			logger.String("path", r.URL.Path),
			logger.String("request_id", getRequestID(r.Context())),
			logger.Err(err))
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}
