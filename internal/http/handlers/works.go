package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"listinglens/internal/coordinator"
	"listinglens/internal/domain"
	"listinglens/internal/enhance"
)

type createWorkRequest struct {
	Account   string `json:"account"`
	SourceURL string `json:"source_url"`
}

type enhanceRequest struct {
	Account      string `json:"account"`
	Tier         string `json:"tier"`
	Units        int    `json:"units"`
	Preset       string `json:"preset"`
	Instructions string `json:"instructions"`
}

type enhanceResponse struct {
	WorkID   string          `json:"work_id"`
	Status   string          `json:"status"`
	Result   *enhance.Result `json:"result,omitempty"`
	Error    string          `json:"error,omitempty"`
	Refunded bool            `json:"refunded,omitempty"`
}

// WorkCreate registers a pending work record for an uploaded image.
func (a *App) WorkCreate(w http.ResponseWriter, r *http.Request) {
	var req createWorkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if strings.TrimSpace(req.SourceURL) == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "source_url required")
		return
	}

	rec := &domain.WorkRecord{
		ID:        uuid.NewString(),
		OwnerID:   strings.TrimSpace(req.Account),
		SourceURL: req.SourceURL,
		Status:    domain.WorkPending,
	}
	if err := a.Works.Create(r.Context(), rec); err != nil {
		a.Logger.Error().Err(err).Msg("create work record failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to create work record")
		return
	}
	a.json(w, http.StatusCreated, map[string]string{
		"work_id": rec.ID,
		"status":  string(rec.Status),
	})
}

// WorkEnhance admits the work through the queue, reserves quota and runs the
// enhancement synchronously. Every outcome of the admission and reservation
// taxonomy maps to its own status code so clients can tell "try again in a
// moment" from "buy more tokens" from "this is already running".
func (a *App) WorkEnhance(w http.ResponseWriter, r *http.Request) {
	workID := chi.URLParam(r, "work_id")
	if workID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "work_id required")
		return
	}
	var req enhanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	units := req.Units
	if units <= 0 {
		units = 1
	}

	rec, err := a.Works.GetByID(r.Context(), workID)
	if err != nil {
		if errors.Is(err, domain.ErrWorkNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "work record not found")
			return
		}
		a.Logger.Error().Err(err).Str("work_id", workID).Msg("load work record failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load work record")
		return
	}

	account := strings.TrimSpace(req.Account)
	if account == "" {
		account = rec.OwnerID
	}

	result, err := a.Coordinator.Submit(r.Context(), coordinator.SubmitRequest{
		WorkKey:      workID,
		AccountKey:   account,
		Tier:         domain.ParseTier(req.Tier),
		Units:        units,
		SourceURL:    rec.SourceURL,
		Preset:       req.Preset,
		Instructions: req.Instructions,
	})

	switch {
	case err == nil:
		_ = a.StatusCache.Set(r.Context(), workID, domain.WorkCompleted)
		a.json(w, http.StatusOK, enhanceResponse{
			WorkID: workID,
			Status: string(domain.WorkCompleted),
			Result: result,
		})
	case errors.Is(err, domain.ErrDuplicateJob):
		a.error(w, http.StatusConflict, "duplicate_job", "this image is already queued or processing")
	case errors.Is(err, domain.ErrQueueFull):
		a.error(w, http.StatusServiceUnavailable, "queue_full", "enhancement queue is full, try again shortly")
	case errors.Is(err, domain.ErrWorkInFlight):
		a.error(w, http.StatusBadRequest, "work_in_flight", "work record is not pending")
	case errors.Is(err, domain.ErrInsufficientQuota):
		a.error(w, http.StatusPaymentRequired, "insufficient_quota", "not enough enhancement tokens remaining")
	case errors.Is(err, domain.ErrWorkNotFound):
		a.error(w, http.StatusNotFound, "not_found", "work record not found")
	case errors.Is(err, domain.ErrEnhancementFailed):
		// The reservation was refunded; the attempt itself is a clean 200
		// with a failed status, not a server error.
		_ = a.StatusCache.Set(r.Context(), workID, domain.WorkFailed)
		a.json(w, http.StatusOK, enhanceResponse{
			WorkID:   workID,
			Status:   string(domain.WorkFailed),
			Error:    err.Error(),
			Refunded: account != "",
		})
	default:
		a.Logger.Error().Err(err).Str("work_id", workID).Msg("enhancement submit failed")
		a.error(w, http.StatusInternalServerError, "internal", "enhancement submission failed")
	}
}

// WorkStatus reports a work record's current status, preferring the cache.
func (a *App) WorkStatus(w http.ResponseWriter, r *http.Request) {
	workID := chi.URLParam(r, "work_id")
	if workID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "work_id required")
		return
	}

	if status, ok, err := a.StatusCache.Get(r.Context(), workID); err == nil && ok {
		a.json(w, http.StatusOK, map[string]string{"work_id": workID, "status": string(status)})
		return
	} else if err != nil {
		a.Logger.Warn().Err(err).Str("work_id", workID).Msg("status cache read failed")
	}

	rec, err := a.Works.GetByID(r.Context(), workID)
	if err != nil {
		if errors.Is(err, domain.ErrWorkNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "work record not found")
			return
		}
		a.Logger.Error().Err(err).Str("work_id", workID).Msg("load work record failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load work record")
		return
	}
	_ = a.StatusCache.Set(r.Context(), workID, rec.Status)

	a.json(w, http.StatusOK, map[string]any{
		"work_id":         rec.ID,
		"status":          string(rec.Status),
		"tokens_reserved": rec.TokensReserved,
		"result":          json.RawMessage(nullableJSON(rec.ResultJSON)),
		"error_message":   rec.ErrorMessage,
		"created_at":      rec.CreatedAt,
		"updated_at":      rec.UpdatedAt,
	})
}

// QueueStatus exposes the admission queue snapshot for operators.
func (a *App) QueueStatus(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, a.Queue.GetStatus())
}

func nullableJSON(b []byte) []byte {
	if len(b) == 0 {
		return []byte("null")
	}
	return b
}
