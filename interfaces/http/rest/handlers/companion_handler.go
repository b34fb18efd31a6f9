package handlers

import (
	"context"
	"net/http"

	"companionlife/application/commands"
	"companionlife/application/commands/bus"
	"companionlife/application/queries"
	querybus "companionlife/application/queries/bus"
	appservices "companionlife/application/services"
	"companionlife/domain/core/valueobjects"
	"companionlife/domain/services"
	"companionlife/interfaces/http/rest/middleware"
	"companionlife/pkg/auth"
	"companionlife/pkg/common"
	pkgerrors "companionlife/pkg/errors"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// EscalationWatcher tracks which viewer sessions have seen which escalations.
type EscalationWatcher interface {
	Watch(ctx context.Context, companionID valueobjects.CompanionID, sessionID string) (*appservices.ActiveNotice, error)
	Dismiss(companionID valueobjects.CompanionID, sessionID string) bool
}

// CompanionHandler serves the companion life API
type CompanionHandler struct {
	commandBus   *bus.CommandBus
	queryBus     *querybus.QueryBus
	watcher      EscalationWatcher
	errorHandler *pkgerrors.ErrorHandler
	logger       *zap.Logger
}

// NewCompanionHandler creates a new companion handler. watcher may be nil when
// the escalation monitor is disabled.
func NewCompanionHandler(
	commandBus *bus.CommandBus,
	queryBus *querybus.QueryBus,
	watcher EscalationWatcher,
	errorHandler *pkgerrors.ErrorHandler,
	logger *zap.Logger,
) *CompanionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if errorHandler == nil {
		errorHandler = pkgerrors.NewErrorHandler(logger, false)
	}
	return &CompanionHandler{
		commandBus:   commandBus,
		queryBus:     queryBus,
		watcher:      watcher,
		errorHandler: errorHandler,
		logger:       logger,
	}
}

// ResolveRequestBody is the optional body of a request action
type ResolveRequestBody struct {
	SnoozeMinutes int `json:"snoozeMinutes"`
}

// DayTickBody is the optional body of a day tick
type DayTickBody struct {
	Date string `json:"date"`
}

// GenerateRequestsBody is the optional body of a generation run
type GenerateRequestsBody struct {
	MaxRequests int `json:"maxRequests"`
}

// EscalationResponse is the viewer's current notice, if any
type EscalationResponse struct {
	SessionID string                    `json:"sessionId"`
	Notice    *appservices.ActiveNotice `json:"notice"`
}

// GetLife handles GET /companions/{companionID}/life
func (h *CompanionHandler) GetLife(w http.ResponseWriter, r *http.Request) {
	companionID, ok := h.companionID(w, r)
	if !ok {
		return
	}
	h.ask(w, r, queries.GetLifeOverviewQuery{CompanionID: companionID, Date: r.URL.Query().Get("date")})
}

// GetCadence handles GET /companions/{companionID}/cadence
func (h *CompanionHandler) GetCadence(w http.ResponseWriter, r *http.Request) {
	companionID, ok := h.companionID(w, r)
	if !ok {
		return
	}
	h.ask(w, r, queries.GetCadenceQuery{CompanionID: companionID})
}

// ListRequests handles GET /companions/{companionID}/requests?filter=
func (h *CompanionHandler) ListRequests(w http.ResponseWriter, r *http.Request) {
	companionID, ok := h.companionID(w, r)
	if !ok {
		return
	}
	filter := services.ParseRequestFilter(r.URL.Query().Get("filter"))
	h.ask(w, r, queries.ListRequestsQuery{CompanionID: companionID, Filter: string(filter)})
}

// GetAnalytics handles GET /companions/{companionID}/analytics
func (h *CompanionHandler) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	companionID, ok := h.companionID(w, r)
	if !ok {
		return
	}
	h.ask(w, r, queries.GetAnalyticsQuery{CompanionID: companionID})
}

// GenerateRequests handles POST /companions/{companionID}/requests/generate
func (h *CompanionHandler) GenerateRequests(w http.ResponseWriter, r *http.Request) {
	companionID, ok := h.companionID(w, r)
	if !ok {
		return
	}
	var body GenerateRequestsBody
	if !h.decode(w, r, &body) {
		return
	}
	h.send(w, r, http.StatusCreated, commands.GenerateRequestsCommand{
		CompanionID: companionID,
		MaxRequests: body.MaxRequests,
	})
}

// ResolveRequest handles POST /companions/{companionID}/requests/{requestID}/{action}
func (h *CompanionHandler) ResolveRequest(w http.ResponseWriter, r *http.Request) {
	companionID, ok := h.companionID(w, r)
	if !ok {
		return
	}
	var body ResolveRequestBody
	if !h.decode(w, r, &body) {
		return
	}
	h.send(w, r, http.StatusOK, commands.ResolveRequestCommand{
		CompanionID:   companionID,
		RequestID:     chi.URLParam(r, "requestID"),
		Action:        commands.RequestAction(chi.URLParam(r, "action")),
		SnoozeMinutes: body.SnoozeMinutes,
	})
}

// ProcessDayTick handles POST /companions/{companionID}/day-tick
func (h *CompanionHandler) ProcessDayTick(w http.ResponseWriter, r *http.Request) {
	companionID, ok := h.companionID(w, r)
	if !ok {
		return
	}
	var body DayTickBody
	if !h.decode(w, r, &body) {
		return
	}
	h.send(w, r, http.StatusOK, commands.ProcessDayTickCommand{CompanionID: companionID, Date: body.Date})
}

// CompleteRitual handles POST /companions/{companionID}/rituals/{ritualID}/complete
func (h *CompanionHandler) CompleteRitual(w http.ResponseWriter, r *http.Request) {
	companionID, ok := h.companionID(w, r)
	if !ok {
		return
	}
	h.send(w, r, http.StatusOK, commands.CompleteRitualCommand{
		CompanionID: companionID,
		RitualID:    chi.URLParam(r, "ritualID"),
	})
}

// GetEscalation handles GET /companions/{companionID}/escalations?session=
func (h *CompanionHandler) GetEscalation(w http.ResponseWriter, r *http.Request) {
	companionID, sessionID, ok := h.escalationTarget(w, r)
	if !ok {
		return
	}
	notice, err := h.watcher.Watch(r.Context(), valueobjects.CompanionID(companionID), sessionID)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, EscalationResponse{SessionID: sessionID, Notice: notice})
}

// DismissEscalation handles DELETE /companions/{companionID}/escalations?session=
func (h *CompanionHandler) DismissEscalation(w http.ResponseWriter, r *http.Request) {
	companionID, sessionID, ok := h.escalationTarget(w, r)
	if !ok {
		return
	}
	dismissed := h.watcher.Dismiss(valueobjects.CompanionID(companionID), sessionID)
	common.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"sessionId": sessionID,
		"dismissed": dismissed,
	})
}

func (h *CompanionHandler) escalationTarget(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	companionID, ok := h.companionID(w, r)
	if !ok {
		return "", "", false
	}
	if h.watcher == nil {
		h.errorHandler.Handle(w, r, pkgerrors.NewUnavailableError("escalation monitor"))
		return "", "", false
	}
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" || len(sessionID) > 128 {
		h.errorHandler.Handle(w, r, pkgerrors.NewValidationError("session query parameter is required"))
		return "", "", false
	}
	return companionID, sessionID, true
}

// companionID reads the path parameter and checks the caller may act on it.
func (h *CompanionHandler) companionID(w http.ResponseWriter, r *http.Request) (string, bool) {
	companionID := chi.URLParam(r, "companionID")
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		h.errorHandler.HandleStatus(w, r, http.StatusUnauthorized, "Unauthorized")
		return "", false
	}
	if !middleware.CanAccessCompanion(user, companionID) {
		h.logger.Warn("Companion access denied",
			zap.String("user_id", user.UserID),
			zap.String("companion_id", companionID),
		)
		h.errorHandler.HandleStatus(w, r, http.StatusNotFound, "companion not found")
		return "", false
	}
	return companionID, true
}

func (h *CompanionHandler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := common.ParseJSONBody(r, v, common.DefaultMaxBodyBytes); err != nil {
		h.errorHandler.Handle(w, r, pkgerrors.NewValidationError("Invalid request body: "+err.Error()))
		return false
	}
	return true
}

func (h *CompanionHandler) send(w http.ResponseWriter, r *http.Request, status int, cmd bus.Command) {
	result, err := h.commandBus.Send(r.Context(), cmd)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, status, result)
}

func (h *CompanionHandler) ask(w http.ResponseWriter, r *http.Request, query querybus.Query) {
	result, err := h.queryBus.Ask(r.Context(), query)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, result)
}
