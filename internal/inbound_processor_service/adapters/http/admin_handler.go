package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/aradsms/inbox_services/internal/inbound_processor_service/domain"
)

// ActiveConversationTracker is the tracker the MMS pipeline reads.
type ActiveConversationTracker interface {
	Set(threadID int64)
	Clear()
	Get() (int64, bool)
}

// PreferencesManager reads and replaces the pipeline preferences.
type PreferencesManager interface {
	Preferences(ctx context.Context) domain.Preferences
	Update(prefs domain.Preferences) error
}

// ReadinessCheck reports whether a dependency is usable.
type ReadinessCheck func(ctx context.Context) error

type activeConversationRequest struct {
	ThreadID int64 `json:"thread_id" validate:"gt=0"`
}

type activeConversationResponse struct {
	ThreadID *int64 `json:"thread_id"`
}

type preferencesRequest struct {
	DropBlocked     *bool  `json:"drop_blocked" validate:"required"`
	BlockingManager string `json:"blocking_manager" validate:"required,oneof=qksms call_blocker call_control should_i_answer"`
}

type preferencesResponse struct {
	DropBlocked     bool   `json:"drop_blocked"`
	BlockingManager string `json:"blocking_manager"`
}

type blockingRuleRequest struct {
	Action string `json:"action" validate:"required,oneof=block unblock none"`
	Reason string `json:"reason" validate:"max=200"`
}

type blockingRuleResponse struct {
	Address string `json:"address"`
	Action  string `json:"action"`
	Reason  string `json:"reason,omitempty"`
}

type archiveResponse struct {
	ThreadID int64 `json:"thread_id"`
	Archived bool  `json:"archived"`
}

type contactRequest struct {
	Number      string `json:"number" validate:"required,max=64"`
	DisplayName string `json:"display_name" validate:"max=200"`
}

// AdminHandler serves the operator API of the inbound processor.
type AdminHandler struct {
	active   ActiveConversationTracker
	prefs    PreferencesManager
	rules    domain.BlockingRuleStore
	contacts domain.ContactStore
	archiver domain.ConversationArchiver
	checks   map[string]ReadinessCheck
	validate *validator.Validate
	logger   *slog.Logger
}

func NewAdminHandler(active ActiveConversationTracker, prefs PreferencesManager, rules domain.BlockingRuleStore, contacts domain.ContactStore, archiver domain.ConversationArchiver, checks map[string]ReadinessCheck, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		active:   active,
		prefs:    prefs,
		rules:    rules,
		contacts: contacts,
		archiver: archiver,
		checks:   checks,
		validate: validator.New(),
		logger:   logger.With("handler", "admin"),
	}
}

// Routes mounts the admin API. /health and /ready are open; /api/v1 requires
// a bearer token signed with jwtSecret.
func (h *AdminHandler) Routes(jwtSecret []byte) chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(30 * time.Second))
	r.Use(PrometheusMetricsMiddleware)

	r.Get("/health", h.Health)
	r.Get("/ready", h.Ready)

	r.Route("/api/v1", func(v1 chi.Router) {
		v1.Use(AdminAuthMiddleware(jwtSecret, h.logger))
		v1.Get("/active-conversation", h.GetActiveConversation)
		v1.Put("/active-conversation", h.SetActiveConversation)
		v1.Delete("/active-conversation", h.ClearActiveConversation)
		v1.Get("/preferences", h.GetPreferences)
		v1.Put("/preferences", h.UpdatePreferences)
		v1.Put("/blocking-rules/{address}", h.SetBlockingRule)
		v1.Delete("/blocking-rules/{address}", h.RemoveBlockingRule)
		v1.Post("/contacts", h.AddContact)
		v1.Put("/conversations/{threadID}/archive", h.ArchiveConversation)
		v1.Delete("/conversations/{threadID}/archive", h.UnarchiveConversation)
	})
	return r
}

func (h *AdminHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready runs every readiness check and reports the failing ones.
func (h *AdminHandler) Ready(w http.ResponseWriter, r *http.Request) {
	failing := make(map[string]string)
	for name, check := range h.checks {
		if err := check(r.Context()); err != nil {
			failing[name] = err.Error()
		}
	}
	if len(failing) > 0 {
		h.logger.WarnContext(r.Context(), "Readiness check failed", "failing", failing)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "failing": failing})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *AdminHandler) GetActiveConversation(w http.ResponseWriter, r *http.Request) {
	resp := activeConversationResponse{}
	if id, ok := h.active.Get(); ok {
		resp.ThreadID = &id
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *AdminHandler) SetActiveConversation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chimiddleware.GetReqID(ctx))

	var req activeConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WarnContext(ctx, "Failed to decode active conversation request", "error", err)
		http.Error(w, "Invalid JSON format: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.StructCtx(ctx, req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	h.active.Set(req.ThreadID)
	logger.InfoContext(ctx, "Active conversation set", "thread_id", req.ThreadID, "by", ctx.Value(AdminSubjectContextKey))
	writeJSON(w, http.StatusOK, activeConversationResponse{ThreadID: &req.ThreadID})
}

func (h *AdminHandler) ClearActiveConversation(w http.ResponseWriter, r *http.Request) {
	h.active.Clear()
	h.logger.InfoContext(r.Context(), "Active conversation cleared", "by", r.Context().Value(AdminSubjectContextKey))
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	p := h.prefs.Preferences(r.Context())
	writeJSON(w, http.StatusOK, preferencesResponse{DropBlocked: p.DropBlocked, BlockingManager: string(p.BlockingManager)})
}

func (h *AdminHandler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req preferencesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON format: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.StructCtx(ctx, req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	prefs := domain.Preferences{DropBlocked: *req.DropBlocked, BlockingManager: domain.BlockingManager(req.BlockingManager)}
	if err := h.prefs.Update(prefs); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.logger.InfoContext(ctx, "Preferences updated", "drop_blocked", prefs.DropBlocked, "blocking_manager", prefs.BlockingManager)
	writeJSON(w, http.StatusOK, preferencesResponse{DropBlocked: prefs.DropBlocked, BlockingManager: string(prefs.BlockingManager)})
}

func addressParam(r *http.Request) (string, error) {
	return url.PathUnescape(chi.URLParam(r, "address"))
}

func (h *AdminHandler) SetBlockingRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chimiddleware.GetReqID(ctx))

	address, err := addressParam(r)
	if err != nil || address == "" {
		http.Error(w, "Invalid address", http.StatusBadRequest)
		return
	}
	var req blockingRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON format: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.StructCtx(ctx, req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}
	action, err := domain.ParseBlockingAction(req.Action, req.Reason)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.rules.SetRule(ctx, address, action); err != nil {
		logger.ErrorContext(ctx, "Failed to save blocking rule", "address", address, "error", err)
		http.Error(w, "Failed to save blocking rule", http.StatusInternalServerError)
		return
	}
	logger.InfoContext(ctx, "Blocking rule saved", "address", address, "action", action, "by", ctx.Value(AdminSubjectContextKey))
	writeJSON(w, http.StatusOK, blockingRuleResponse{Address: address, Action: action.String(), Reason: domain.ReasonOf(action)})
}

func (h *AdminHandler) RemoveBlockingRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	address, err := addressParam(r)
	if err != nil || address == "" {
		http.Error(w, "Invalid address", http.StatusBadRequest)
		return
	}
	if err := h.rules.RemoveRule(ctx, address); err != nil {
		h.logger.ErrorContext(ctx, "Failed to remove blocking rule", "address", address, "error", err)
		http.Error(w, "Failed to remove blocking rule", http.StatusInternalServerError)
		return
	}
	h.logger.InfoContext(ctx, "Blocking rule removed", "address", address, "by", ctx.Value(AdminSubjectContextKey))
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) AddContact(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req contactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON format: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.StructCtx(ctx, req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	contact, err := h.contacts.AddContact(ctx, req.Number, req.DisplayName)
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to add contact", "number", req.Number, "error", err)
		http.Error(w, "Failed to add contact", http.StatusInternalServerError)
		return
	}
	h.logger.InfoContext(ctx, "Contact added", "contact_id", contact.ID, "by", ctx.Value(AdminSubjectContextKey))
	writeJSON(w, http.StatusCreated, contact)
}

func threadIDParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "threadID"), 10, 64)
	return id, err == nil && id > 0
}

func (h *AdminHandler) ArchiveConversation(w http.ResponseWriter, r *http.Request) {
	h.setArchived(w, r, true)
}

// UnarchiveConversation is the user bringing a conversation back to the
// inbox. The pipeline only ever archives.
func (h *AdminHandler) UnarchiveConversation(w http.ResponseWriter, r *http.Request) {
	h.setArchived(w, r, false)
}

func (h *AdminHandler) setArchived(w http.ResponseWriter, r *http.Request, archived bool) {
	ctx := r.Context()

	threadID, ok := threadIDParam(r)
	if !ok {
		http.Error(w, "Invalid thread id", http.StatusBadRequest)
		return
	}

	mark := h.archiver.MarkUnarchived
	if archived {
		mark = h.archiver.MarkArchived
	}
	if err := mark(ctx, threadID); err != nil {
		h.logger.ErrorContext(ctx, "Failed to update archived flag", "thread_id", threadID, "archived", archived, "error", err)
		http.Error(w, "Failed to update conversation", http.StatusInternalServerError)
		return
	}
	h.logger.InfoContext(ctx, "Conversation archived flag set", "thread_id", threadID, "archived", archived, "by", ctx.Value(AdminSubjectContextKey))
	writeJSON(w, http.StatusOK, archiveResponse{ThreadID: threadID, Archived: archived})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
