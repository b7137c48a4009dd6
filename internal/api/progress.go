package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/navigator/codebook/internal/apperr"
	"github.com/navigator/codebook/internal/progress"
)

const (
	defaultLeaderboard = 10
	maxLeaderboard     = 100
)

// progressEnabled writes 503 when no progress store is configured.
func (h *Handler) progressEnabled(w http.ResponseWriter) bool {
	if h.progress == nil {
		writeError(w, "progress", apperr.ErrNotReady)
		return false
	}
	return true
}

// CreateProgress handles POST /api/progress.
//
//	@Summary		Register a learner
//	@Tags			progress
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateProgressRequest	false	"Optional user ID"
//	@Success		201		{object}	progress.Progress
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/progress [post]
func (h *Handler) CreateProgress(w http.ResponseWriter, r *http.Request) {
	if !h.progressEnabled(w) {
		return
	}
	var req CreateProgressRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	p, err := h.progress.Create(req.UserID)
	if err != nil {
		writeError(w, "create progress", err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// GetProgress handles GET /api/progress/{user}.
//
//	@Summary		Get a learner's progress
//	@Tags			progress
//	@Produce		json
//	@Param			user	path		string	true	"User ID"
//	@Success		200		{object}	ProgressResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/progress/{user} [get]
func (h *Handler) GetProgress(w http.ResponseWriter, r *http.Request) {
	if !h.progressEnabled(w) {
		return
	}
	p, err := h.progress.Get(chi.URLParam(r, "user"))
	if err != nil {
		writeError(w, "get progress", err)
		return
	}
	writeJSON(w, http.StatusOK, ProgressResponse{Progress: p, OverallPercent: p.OverallPercent()})
}

// CompleteModule handles POST /api/progress/{user}/modules/{module}/complete.
//
//	@Summary		Mark a training module complete
//	@Tags			progress
//	@Produce		json
//	@Param			user	path		string	true	"User ID"
//	@Param			module	path		string	true	"Module ID"
//	@Success		200		{object}	ProgressResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/progress/{user}/modules/{module}/complete [post]
func (h *Handler) CompleteModule(w http.ResponseWriter, r *http.Request) {
	if !h.progressEnabled(w) {
		return
	}
	p, err := h.progress.CompleteModule(chi.URLParam(r, "user"), chi.URLParam(r, "module"))
	if err != nil {
		writeError(w, "complete module", err)
		return
	}
	writeJSON(w, http.StatusOK, ProgressResponse{Progress: p, OverallPercent: p.OverallPercent()})
}

// DeleteProgress handles DELETE /api/progress/{user}.
//
//	@Summary		Reset a learner's progress
//	@Tags			progress
//	@Param			user	path	string	true	"User ID"
//	@Success		204		"Progress reset"
//	@Security		BearerAuth
//	@Router			/progress/{user} [delete]
func (h *Handler) DeleteProgress(w http.ResponseWriter, r *http.Request) {
	if !h.progressEnabled(w) {
		return
	}
	if err := h.progress.Reset(chi.URLParam(r, "user")); err != nil {
		writeError(w, "reset progress", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RecoveryCode handles GET /api/progress/{user}/recovery.
//
//	@Summary		Export a recovery code
//	@Tags			progress
//	@Produce		json
//	@Param			user	path		string	true	"User ID"
//	@Success		200		{object}	RecoveryResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/progress/{user}/recovery [get]
func (h *Handler) RecoveryCode(w http.ResponseWriter, r *http.Request) {
	if !h.progressEnabled(w) {
		return
	}
	code, err := h.progress.RecoveryCode(chi.URLParam(r, "user"))
	if err != nil {
		writeError(w, "recovery code", err)
		return
	}
	writeJSON(w, http.StatusOK, RecoveryResponse{Code: code})
}

// Restore handles POST /api/progress/restore.
//
//	@Summary		Restore progress from a recovery code
//	@Tags			progress
//	@Accept			json
//	@Produce		json
//	@Param			body	body		RestoreRequest	true	"Recovery code"
//	@Success		200		{object}	progress.Progress
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/progress/restore [post]
func (h *Handler) Restore(w http.ResponseWriter, r *http.Request) {
	if !h.progressEnabled(w) {
		return
	}
	var req RestoreRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	p, err := h.progress.Restore(req.Code)
	if err != nil {
		writeError(w, "restore progress", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Leaderboard handles GET /api/progress/leaderboard?limit=.
//
//	@Summary		Top learners by XP
//	@Tags			progress
//	@Produce		json
//	@Param			limit	query		int	false	"Max entries"	default(10)
//	@Success		200		{object}	LeaderboardResponse
//	@Security		BearerAuth
//	@Router			/progress/leaderboard [get]
func (h *Handler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	if !h.progressEnabled(w) {
		return
	}
	limit := defaultLeaderboard
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || validation.Validate(n, validation.Required, validation.Min(1), validation.Max(maxLeaderboard)) != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("limit must be between 1 and 100"))
			return
		}
		limit = n
	}
	entries, err := h.progress.Leaderboard(limit)
	if err != nil {
		writeError(w, "leaderboard", err)
		return
	}
	if entries == nil {
		entries = []progress.Entry{}
	}
	writeJSON(w, http.StatusOK, LeaderboardResponse{Entries: entries})
}
