package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/navigator/codebook/internal/challenge"
	"github.com/navigator/codebook/internal/checksum"
	"github.com/navigator/codebook/internal/progress"
	"github.com/navigator/codebook/internal/scenario"
	"github.com/navigator/codebook/internal/session"
	"github.com/navigator/codebook/internal/terminal"
)

// Handler holds API route handlers.
type Handler struct {
	sessions *session.Manager
	progress *progress.Manager
	catalog  *scenario.Catalog
}

// NewHandler creates a new Handler. progress may be nil.
func NewHandler(sessions *session.Manager, progress *progress.Manager, catalog *scenario.Catalog) *Handler {
	return &Handler{sessions: sessions, progress: progress, catalog: catalog}
}

// ListScenarios handles GET /api/scenarios.
//
//	@Summary		List the available challenge scenarios
//	@Tags			scenarios
//	@Produce		json
//	@Success		200	{object}	ScenarioListResponse
//	@Security		BearerAuth
//	@Router			/scenarios [get]
func (h *Handler) ListScenarios(w http.ResponseWriter, _ *http.Request) {
	items, err := h.catalog.List()
	if err != nil {
		writeError(w, "list scenarios", err)
		return
	}
	if items == nil {
		items = []scenario.Summary{}
	}
	writeJSON(w, http.StatusOK, ScenarioListResponse{Scenarios: items})
}

// CreateSession handles POST /api/sessions.
//
//	@Summary		Start a terminal session for a challenge
//	@Tags			sessions
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateSessionRequest	false	"Page context"
//	@Success		201		{object}	SessionView
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions [post]
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	pc := challenge.PageContext{ChallengeID: req.ChallengeID, Path: req.Path, Meta: req.Meta, Title: req.Title}
	v, err := h.sessions.Create(r.Context(), pc, req.UserID)
	if err != nil {
		writeError(w, "create session", err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

// GetSession handles GET /api/sessions/{id}.
//
//	@Summary		Get a session with its challenge status
//	@Tags			sessions
//	@Produce		json
//	@Param			id	path		string	true	"Session ID"
//	@Success		200	{object}	SessionView
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id} [get]
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	v, err := h.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get session", err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// DeleteSession handles DELETE /api/sessions/{id}.
//
//	@Summary		End a session
//	@Tags			sessions
//	@Param			id	path	string	true	"Session ID"
//	@Success		204	"Session deleted"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id} [delete]
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Delete(chi.URLParam(r, "id")); err != nil {
		writeError(w, "delete session", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RunCommand handles POST /api/sessions/{id}/commands.
//
//	@Summary		Run one terminal line
//	@Tags			sessions
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Session ID"
//	@Param			body	body		CommandRequest	true	"Input line"
//	@Success		200		{object}	CommandResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id}/commands [post]
func (h *Handler) RunCommand(w http.ResponseWriter, r *http.Request) {
	var req CommandRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, prompt, err := h.sessions.Dispatch(r.Context(), chi.URLParam(r, "id"), req.Line)
	if err != nil {
		writeError(w, "run command", err)
		return
	}
	writeJSON(w, http.StatusOK, newCommandResponse(res, prompt))
}

// History handles GET /api/sessions/{id}/history?dir=prev|next.
//
//	@Summary		Recall a previous command
//	@Tags			sessions
//	@Produce		json
//	@Param			id	path		string	true	"Session ID"
//	@Param			dir	query		string	false	"Direction"	Enums(prev, next)
//	@Success		200	{object}	HistoryResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id}/history [get]
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	dir := r.URL.Query().Get("dir")
	if dir == "" {
		dir = "prev"
	}
	if dir != "prev" && dir != "next" {
		writeJSON(w, http.StatusBadRequest, errorBody("dir must be prev or next"))
		return
	}
	line, ok, err := h.sessions.History(chi.URLParam(r, "id"), dir)
	if err != nil {
		writeError(w, "history", err)
		return
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Line: line, Found: ok})
}

// Complete handles GET /api/sessions/{id}/complete?partial=.
//
//	@Summary		Autocomplete a command name
//	@Tags			sessions
//	@Produce		json
//	@Param			id		path		string	true	"Session ID"
//	@Param			partial	query		string	true	"Typed prefix"
//	@Success		200		{object}	CompleteResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id}/complete [get]
func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	partial := r.URL.Query().Get("partial")
	matches, err := h.sessions.Complete(chi.URLParam(r, "id"), partial)
	if err != nil {
		writeError(w, "complete", err)
		return
	}
	resp := CompleteResponse{Matches: matches}
	switch len(matches) {
	case 0:
		resp.Matches = []string{}
	case 1:
		resp.Completion = matches[0]
	default:
		resp.Text = terminal.CompletionText(matches)
	}
	writeJSON(w, http.StatusOK, resp)
}

// DownloadEvidence handles POST /api/sessions/{id}/evidence/{filename}/download.
//
//	@Summary		Download an evidence file and unlock it in the session
//	@Tags			evidence
//	@Produce		plain
//	@Param			id			path	string	true	"Session ID"
//	@Param			filename	path	string	true	"Evidence filename"
//	@Success		200			{string}	string	"File content"
//	@Failure		404			{object}	errResponse
//	@Failure		503			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id}/evidence/{filename}/download [post]
func (h *Handler) DownloadEvidence(w http.ResponseWriter, r *http.Request) {
	id, filename := chi.URLParam(r, "id"), chi.URLParam(r, "filename")
	d, err := h.sessions.Download(id, filename)
	if err != nil {
		writeError(w, "download evidence", err)
		return
	}
	body := []byte(d.Content)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+d.Filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.Header().Set("ETag", checksum.ETag(body))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		slog.Warn("download write failed", slog.String("session", id), slog.String("error", err.Error()))
	}
}

// UnlockEvidence handles POST /api/sessions/{id}/evidence/{filename}/unlock.
//
//	@Summary		Unlock an evidence file without downloading it
//	@Tags			evidence
//	@Produce		json
//	@Param			id			path		string	true	"Session ID"
//	@Param			filename	path		string	true	"Evidence filename"
//	@Success		200			{object}	UnlockResponse
//	@Failure		404			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id}/evidence/{filename}/unlock [post]
func (h *Handler) UnlockEvidence(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	changed, err := h.sessions.Unlock(chi.URLParam(r, "id"), filename)
	if err != nil {
		writeError(w, "unlock evidence", err)
		return
	}
	writeJSON(w, http.StatusOK, UnlockResponse{Filename: filename, Changed: changed})
}

// RequestHint handles POST /api/sessions/{id}/hints.
//
//	@Summary		Reveal the next hint
//	@Tags			sessions
//	@Produce		json
//	@Param			id	path		string	true	"Session ID"
//	@Success		200	{object}	HintView
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id}/hints [post]
func (h *Handler) RequestHint(w http.ResponseWriter, r *http.Request) {
	hv, err := h.sessions.Hint(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "request hint", err)
		return
	}
	writeJSON(w, http.StatusOK, hv)
}

// ResetSession handles POST /api/sessions/{id}/reset.
//
//	@Summary		Reset objectives, evidence, hints and terminal
//	@Tags			sessions
//	@Produce		json
//	@Param			id	path		string	true	"Session ID"
//	@Success		200	{object}	SessionView
//	@Security		BearerAuth
//	@Router			/sessions/{id}/reset [post]
func (h *Handler) ResetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.sessions.Reset(id); err != nil {
		writeError(w, "reset session", err)
		return
	}
	v, err := h.sessions.Get(id)
	if err != nil {
		writeError(w, "reset session", err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// LockSession returns the handler for POST /api/sessions/{id}/lock and /unlock.
func (h *Handler) LockSession(locked bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := h.sessions.SetLocked(id, locked); err != nil {
			writeError(w, "lock session", err)
			return
		}
		writeJSON(w, http.StatusOK, LockResponse{ID: id, Locked: locked})
	}
}

// LoadTool handles POST /api/sessions/{id}/tools/{tool}.
//
//	@Summary		Load a simulated security tool into the terminal
//	@Tags			sessions
//	@Produce		json
//	@Param			id		path		string	true	"Session ID"
//	@Param			tool	path		string	true	"Tool"	Enums(hashcat, wireshark, john)
//	@Success		200		{object}	ToolResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id}/tools/{tool} [post]
func (h *Handler) LoadTool(w http.ResponseWriter, r *http.Request) {
	out, err := h.sessions.LoadTool(chi.URLParam(r, "id"), chi.URLParam(r, "tool"))
	if err != nil {
		writeError(w, "load tool", err)
		return
	}
	writeJSON(w, http.StatusOK, ToolResponse{Tool: chi.URLParam(r, "tool"), Output: out})
}
