package handler

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tempora-hq/be-tt-timesheets/internal/authz"
	"github.com/tempora-hq/be-tt-timesheets/internal/repository"
	"github.com/tempora-hq/be-tt-timesheets/internal/service"
	"github.com/tempora-hq/be-tt-timesheets/pkg/errors"
	"github.com/tempora-hq/be-tt-timesheets/pkg/logger"
	"github.com/tempora-hq/be-tt-timesheets/pkg/middleware"
)

// HTTPHandler exposes the time tracking workflow over HTTP. Handlers are
// thin: decode, resolve the principal, delegate to a service, encode. All
// authorization lives in the services; a workflow denial surfaces as 403 with
// the decision's reason string.
type HTTPHandler struct {
	entries  *service.TimeEntryService
	sheets   *service.TimeSheetService
	settings *service.ApprovalSettingsService
	members  *service.MembershipService
	log      *logger.Logger
}

// NewHTTPHandler creates a new HTTP handler.
func NewHTTPHandler(
	entries *service.TimeEntryService,
	sheets *service.TimeSheetService,
	settings *service.ApprovalSettingsService,
	members *service.MembershipService,
	log *logger.Logger,
) *HTTPHandler {
	return &HTTPHandler{
		entries:  entries,
		sheets:   sheets,
		settings: settings,
		members:  members,
		log:      log,
	}
}

// RegisterRoutes mounts every authenticated route on the given router.
func (h *HTTPHandler) RegisterRoutes(r chi.Router) {
	r.Route("/time-entries", func(r chi.Router) {
		r.Post("/", h.CreateEntry)
		r.Get("/", h.ListEntries)
		r.Route("/{entryID}", func(r chi.Router) {
			r.Get("/", h.GetEntry)
			r.Put("/", h.UpdateEntry)
			r.Delete("/", h.DeleteEntry)
			r.Post("/approve", h.ApproveEntry)
			r.Post("/question", h.QuestionEntry)
			r.Post("/revert", h.RevertEntry)
			r.Get("/messages", h.ListMessages)
			r.Post("/messages", h.CreateMessage)
		})
	})

	r.Route("/time-sheets", func(r chi.Router) {
		r.Post("/", h.CreateSheet)
		r.Get("/", h.ListSheets)
		r.Route("/{sheetID}", func(r chi.Router) {
			r.Get("/", h.GetSheet)
			r.Put("/entries/{entryID}", h.AddSheetEntry)
			r.Delete("/entries/{entryID}", h.RemoveSheetEntry)
			r.Post("/submit", h.SubmitSheet)
			r.Post("/approve", h.ApproveSheet)
			r.Post("/reject", h.RejectSheet)
			r.Post("/revert", h.RevertSheet)
			r.Get("/audit", h.SheetAuditTrail)
		})
	})

	r.Route("/projects/{projectID}", func(r chi.Router) {
		r.Get("/approval-settings", h.GetSettings)
		r.Patch("/approval-settings", h.UpdateSettings)
		r.Delete("/approval-settings", h.DeleteSettings)
		r.Get("/members", h.ListMembers)
		r.Put("/members/{userID}", h.SetMemberRole)
		r.Delete("/members/{userID}", h.RemoveMember)
	})
}

// ── time entries ─────────────────────────────────────────────────────────────

// CreateEntry handles POST /time-entries.
func (h *HTTPHandler) CreateEntry(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	var body struct {
		ProjectID string  `json:"project_id"`
		OrgID     *string `json:"org_id"`
		Title     string  `json:"title"`
		Hours     float64 `json:"hours"`
		Date      string  `json:"date"`
	}
	if !h.decode(w, r, &body) {
		return
	}

	entry, err := h.entries.CreateEntry(r.Context(), p, &service.CreateEntryRequest{
		ProjectID: body.ProjectID,
		OrgID:     body.OrgID,
		Title:     body.Title,
		Hours:     body.Hours,
		Date:      body.Date,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, entry)
}

// GetEntry handles GET /time-entries/{entryID}.
func (h *HTTPHandler) GetEntry(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	entry, err := h.entries.GetEntry(r.Context(), p, chi.URLParam(r, "entryID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, entry)
}

// ListEntries handles GET /time-entries?project_id=...
func (h *HTTPHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	projectID := r.URL.Query().Get("project_id")
	if projectID == "" {
		h.writeError(w, r, errors.InvalidInput("project_id", "project id is required"))
		return
	}

	entries, err := h.entries.ListEntries(r.Context(), p, projectID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

// UpdateEntry handles PUT /time-entries/{entryID}.
func (h *HTTPHandler) UpdateEntry(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	var body struct {
		Title string  `json:"title"`
		Hours float64 `json:"hours"`
		Date  string  `json:"date"`
	}
	if !h.decode(w, r, &body) {
		return
	}

	entry, err := h.entries.UpdateEntry(r.Context(), p, &service.UpdateEntryRequest{
		ID:    chi.URLParam(r, "entryID"),
		Title: body.Title,
		Hours: body.Hours,
		Date:  body.Date,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, entry)
}

// DeleteEntry handles DELETE /time-entries/{entryID}.
func (h *HTTPHandler) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	if err := h.entries.DeleteEntry(r.Context(), p, chi.URLParam(r, "entryID")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ApproveEntry handles POST /time-entries/{entryID}/approve.
func (h *HTTPHandler) ApproveEntry(w http.ResponseWriter, r *http.Request) {
	h.entryAction(w, r, h.entries.ApproveEntry)
}

// QuestionEntry handles POST /time-entries/{entryID}/question.
func (h *HTTPHandler) QuestionEntry(w http.ResponseWriter, r *http.Request) {
	h.entryAction(w, r, h.entries.QuestionEntry)
}

// RevertEntry handles POST /time-entries/{entryID}/revert.
func (h *HTTPHandler) RevertEntry(w http.ResponseWriter, r *http.Request) {
	h.entryAction(w, r, h.entries.RevertEntry)
}

// CreateMessage handles POST /time-entries/{entryID}/messages.
func (h *HTTPHandler) CreateMessage(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	var body struct {
		ParentID *string `json:"parent_id"`
		Body     string  `json:"body"`
	}
	if !h.decode(w, r, &body) {
		return
	}

	msg, err := h.entries.CreateMessage(r.Context(), p, chi.URLParam(r, "entryID"), body.ParentID, body.Body)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, msg)
}

// ListMessages handles GET /time-entries/{entryID}/messages.
func (h *HTTPHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	messages, err := h.entries.ListMessages(r.Context(), p, chi.URLParam(r, "entryID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"messages": messages})
}

// ── time sheets ──────────────────────────────────────────────────────────────

// CreateSheet handles POST /time-sheets.
func (h *HTTPHandler) CreateSheet(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	var body struct {
		ProjectID string  `json:"project_id"`
		OrgID     *string `json:"org_id"`
		AccountID *string `json:"account_id"`
	}
	if !h.decode(w, r, &body) {
		return
	}

	sheet, err := h.sheets.CreateSheet(r.Context(), p, &service.CreateSheetRequest{
		ProjectID: body.ProjectID,
		OrgID:     body.OrgID,
		AccountID: body.AccountID,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, sheet)
}

// GetSheet handles GET /time-sheets/{sheetID}.
func (h *HTTPHandler) GetSheet(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	sheet, err := h.sheets.GetSheet(r.Context(), p, chi.URLParam(r, "sheetID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, sheet)
}

// ListSheets handles GET /time-sheets?project_id=...
func (h *HTTPHandler) ListSheets(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	projectID := r.URL.Query().Get("project_id")
	if projectID == "" {
		h.writeError(w, r, errors.InvalidInput("project_id", "project id is required"))
		return
	}

	sheets, err := h.sheets.ListSheets(r.Context(), p, projectID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"sheets": sheets})
}

// AddSheetEntry handles PUT /time-sheets/{sheetID}/entries/{entryID}.
func (h *HTTPHandler) AddSheetEntry(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	err := h.sheets.AddEntry(r.Context(), p, chi.URLParam(r, "sheetID"), chi.URLParam(r, "entryID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveSheetEntry handles DELETE /time-sheets/{sheetID}/entries/{entryID}.
func (h *HTTPHandler) RemoveSheetEntry(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	err := h.sheets.RemoveEntry(r.Context(), p, chi.URLParam(r, "sheetID"), chi.URLParam(r, "entryID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SubmitSheet handles POST /time-sheets/{sheetID}/submit.
func (h *HTTPHandler) SubmitSheet(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	sheet, err := h.sheets.Submit(r.Context(), p, chi.URLParam(r, "sheetID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, sheet)
}

// ApproveSheet handles POST /time-sheets/{sheetID}/approve. Under multi_stage
// mode an intermediate approval returns the stage progress with the sheet
// still submitted.
func (h *HTTPHandler) ApproveSheet(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	result, err := h.sheets.Approve(r.Context(), p, chi.URLParam(r, "sheetID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	response := map[string]interface{}{
		"sheet":          result.Sheet,
		"fully_approved": result.FullyApproved,
	}
	if result.TotalStages > 0 {
		response["stages_approved"] = result.StagesApproved
		response["total_stages"] = result.TotalStages
	}
	h.writeJSON(w, http.StatusOK, response)
}

// RejectSheet handles POST /time-sheets/{sheetID}/reject.
func (h *HTTPHandler) RejectSheet(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	var body struct {
		Reason *string `json:"reason"`
	}
	if !h.decode(w, r, &body) {
		return
	}

	sheet, err := h.sheets.Reject(r.Context(), p, &service.RejectSheetRequest{
		SheetID: chi.URLParam(r, "sheetID"),
		Reason:  body.Reason,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, sheet)
}

// RevertSheet handles POST /time-sheets/{sheetID}/revert.
func (h *HTTPHandler) RevertSheet(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	sheet, err := h.sheets.RevertToDraft(r.Context(), p, chi.URLParam(r, "sheetID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, sheet)
}

// SheetAuditTrail handles GET /time-sheets/{sheetID}/audit.
func (h *HTTPHandler) SheetAuditTrail(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	trail, err := h.sheets.AuditTrail(r.Context(), p, chi.URLParam(r, "sheetID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"audit": trail})
}

// ── approval settings ────────────────────────────────────────────────────────

// GetSettings handles GET /projects/{projectID}/approval-settings.
func (h *HTTPHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	settings, err := h.settings.Get(r.Context(), p, chi.URLParam(r, "projectID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, settings)
}

// UpdateSettings handles PATCH /projects/{projectID}/approval-settings.
func (h *HTTPHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	// An empty patch is valid and changes nothing.
	var body struct {
		ApprovalMode              *string   `json:"approval_mode"`
		AutoApproveAfterDays      *int      `json:"auto_approve_after_days"`
		RequireAllEntriesApproved *bool     `json:"require_all_entries_approved"`
		AllowSelfApproveNoClient  *bool     `json:"allow_self_approve_no_client"`
		ApprovalStages            *[]string `json:"approval_stages"`
	}
	if !h.decodeOptional(w, r, &body) {
		return
	}

	settings, err := h.settings.Update(r.Context(), p, chi.URLParam(r, "projectID"), &service.UpdateSettingsRequest{
		ApprovalMode:              body.ApprovalMode,
		AutoApproveAfterDays:      body.AutoApproveAfterDays,
		RequireAllEntriesApproved: body.RequireAllEntriesApproved,
		AllowSelfApproveNoClient:  body.AllowSelfApproveNoClient,
		ApprovalStages:            body.ApprovalStages,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, settings)
}

// DeleteSettings handles DELETE /projects/{projectID}/approval-settings.
func (h *HTTPHandler) DeleteSettings(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	if err := h.settings.Delete(r.Context(), p, chi.URLParam(r, "projectID")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ── project members ──────────────────────────────────────────────────────────

// ListMembers handles GET /projects/{projectID}/members.
func (h *HTTPHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	members, err := h.members.List(r.Context(), p, chi.URLParam(r, "projectID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"members": members})
}

// SetMemberRole handles PUT /projects/{projectID}/members/{userID}.
func (h *HTTPHandler) SetMemberRole(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	var body struct {
		Role string `json:"role"`
	}
	if !h.decode(w, r, &body) {
		return
	}

	m, err := h.members.SetRole(r.Context(), p, chi.URLParam(r, "projectID"), chi.URLParam(r, "userID"), body.Role)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, m)
}

// RemoveMember handles DELETE /projects/{projectID}/members/{userID}.
func (h *HTTPHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	err := h.members.Remove(r.Context(), p, chi.URLParam(r, "projectID"), chi.URLParam(r, "userID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ── helpers ──────────────────────────────────────────────────────────────────

// entryAction is the shared shape of approve/question/revert on an entry: an
// optional sheet context and an optional comment in the body.
func (h *HTTPHandler) entryAction(w http.ResponseWriter, r *http.Request, action func(context.Context, authz.Principal, *service.EntryActionRequest) (*repository.TimeEntry, error)) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	req := &service.EntryActionRequest{EntryID: chi.URLParam(r, "entryID")}
	var body struct {
		SheetID *string `json:"sheet_id"`
		Comment *string `json:"comment"`
	}
	if !h.decodeOptional(w, r, &body) {
		return
	}
	req.SheetID = body.SheetID
	req.Comment = body.Comment

	entry, err := action(r.Context(), p, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, entry)
}

func (h *HTTPHandler) principal(w http.ResponseWriter, r *http.Request) (authz.Principal, bool) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		h.writeError(w, r, errors.Unauthorized("missing authentication"))
		return authz.Principal{}, false
	}
	return authz.Principal{
		ID:         claims.UserID,
		SystemRole: authz.ParseSystemRole(claims.SystemRole),
	}, true
}

func (h *HTTPHandler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeError(w, r, errors.New(errors.ErrCodeInvalidInput, "invalid request body"))
		return false
	}
	return true
}

// decodeOptional decodes the body when one is present; a bodyless request is
// accepted and leaves dst zeroed.
func (h *HTTPHandler) decodeOptional(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if r.ContentLength == 0 {
		return true
	}
	return h.decode(w, r, dst)
}

func (h *HTTPHandler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Error().Err(err).Msg("failed to encode response")
	}
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}

	message := err.Error()
	var appErr *errors.Error
	if stderrors.As(err, &appErr) {
		message = appErr.Message
	}

	h.writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"code":    string(errors.Code(err)),
			"message": message,
		},
	})
}
