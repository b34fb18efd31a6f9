// Package functions serves the legacy edge-function routes under
// /functions/v1 so existing clients keep working against the engine.
package functions

import (
	"net/http"
	"time"

	"companionlife/application/commands"
	"companionlife/application/commands/bus"
	"companionlife/interfaces/http/rest/middleware"
	"companionlife/pkg/auth"
	"companionlife/pkg/common"
	pkgerrors "companionlife/pkg/errors"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// PathPrefix is where the legacy routes are mounted.
const PathPrefix = "/functions/v1"

// legacyBody carries the fields any of the four functions accept.
// CompanionID is honoured only for service callers.
type legacyBody struct {
	CompanionID   string `json:"companionId"`
	RequestID     string `json:"requestId"`
	Action        string `json:"action"`
	SnoozeMinutes int    `json:"snoozeMinutes"`
	MaxRequests   int    `json:"maxRequests"`
	Date          string `json:"date"`
	RitualID      string `json:"dailyRitualId"`
}

type errorBody struct {
	Error string `json:"error"`
}

// GenerateResponse is the generate-companion-requests body
type GenerateResponse struct {
	Generated                int         `json:"generated"`
	OpenCount                int         `json:"openCount"`
	MaxRequests              int         `json:"maxRequests"`
	Reason                   string      `json:"reason,omitempty"`
	CooldownSecondsRemaining int         `json:"cooldownSecondsRemaining,omitempty"`
	Requests                 interface{} `json:"requests"`
}

// RitualResponse is the complete-companion-ritual body
type RitualResponse struct {
	Success          bool       `json:"success"`
	AlreadyCompleted bool       `json:"alreadyCompleted,omitempty"`
	RitualID         string     `json:"ritualId,omitempty"`
	CompletedAt      *time.Time `json:"completedAt,omitempty"`
	RitualTitle      string     `json:"ritualTitle,omitempty"`
}

// Handler translates legacy bodies into commands
type Handler struct {
	commandBus *bus.CommandBus
	logger     *zap.Logger
}

// NewRouter returns a gorilla/mux router serving the four legacy functions.
// Callers must be authenticated before reaching it.
func NewRouter(commandBus *bus.CommandBus, logger *zap.Logger) *mux.Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{commandBus: commandBus, logger: logger}

	router := mux.NewRouter()
	fn := router.PathPrefix(PathPrefix).Subrouter()
	fn.HandleFunc("/resolve-companion-request", h.ResolveRequest).Methods(http.MethodPost)
	fn.HandleFunc("/generate-companion-requests", h.GenerateRequests).Methods(http.MethodPost)
	fn.HandleFunc("/process-companion-day-tick", h.ProcessDayTick).Methods(http.MethodPost)
	fn.HandleFunc("/complete-companion-ritual", h.CompleteRitual).Methods(http.MethodPost)
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		common.WriteJSON(w, http.StatusNotFound, errorBody{Error: "Function not found"})
	})
	return router
}

// ResolveRequest handles resolve-companion-request
func (h *Handler) ResolveRequest(w http.ResponseWriter, r *http.Request) {
	body, companionID, ok := h.read(w, r)
	if !ok {
		return
	}
	result, err := h.commandBus.Send(r.Context(), commands.ResolveRequestCommand{
		CompanionID:   companionID,
		RequestID:     body.RequestID,
		Action:        commands.RequestAction(body.Action),
		SnoozeMinutes: body.SnoozeMinutes,
	})
	if err != nil {
		h.fail(w, r, "resolve-companion-request", err)
		return
	}
	resolved := result.(*commands.ResolveRequestResult)
	common.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"request":   resolved.Request,
		"action":    resolved.Action,
		"slotFreed": resolved.SlotFreed,
	})
}

// GenerateRequests handles generate-companion-requests. A refused run is not
// an error for legacy clients: they read reason and cooldownSecondsRemaining.
func (h *Handler) GenerateRequests(w http.ResponseWriter, r *http.Request) {
	body, companionID, ok := h.read(w, r)
	if !ok {
		return
	}
	result, err := h.commandBus.Send(r.Context(), commands.GenerateRequestsCommand{
		CompanionID: companionID,
		MaxRequests: body.MaxRequests,
	})
	if pkgerrors.IsCooldownViolation(err) {
		common.WriteJSON(w, http.StatusOK, refusedResponse(pkgerrors.GetAppError(err)))
		return
	}
	if err != nil {
		h.fail(w, r, "generate-companion-requests", err)
		return
	}
	generated := result.(*commands.GenerateRequestsResult)
	common.WriteJSON(w, http.StatusOK, GenerateResponse{
		Generated:   generated.Generated,
		OpenCount:   generated.OpenCount,
		MaxRequests: generated.MaxRequests,
		Requests:    generated.Requests,
	})
}

// ProcessDayTick handles process-companion-day-tick
func (h *Handler) ProcessDayTick(w http.ResponseWriter, r *http.Request) {
	body, companionID, ok := h.read(w, r)
	if !ok {
		return
	}
	result, err := h.commandBus.Send(r.Context(), commands.ProcessDayTickCommand{
		CompanionID: companionID,
		Date:        body.Date,
	})
	if err != nil {
		h.fail(w, r, "process-companion-day-tick", err)
		return
	}
	common.WriteJSON(w, http.StatusOK, result)
}

// CompleteRitual handles complete-companion-ritual
func (h *Handler) CompleteRitual(w http.ResponseWriter, r *http.Request) {
	body, companionID, ok := h.read(w, r)
	if !ok {
		return
	}
	result, err := h.commandBus.Send(r.Context(), commands.CompleteRitualCommand{
		CompanionID: companionID,
		RitualID:    body.RitualID,
	})
	if err != nil {
		h.fail(w, r, "complete-companion-ritual", err)
		return
	}
	completed := result.(*commands.CompleteRitualResult)
	if completed.AlreadyCompleted {
		common.WriteJSON(w, http.StatusOK, RitualResponse{Success: true, AlreadyCompleted: true})
		return
	}
	common.WriteJSON(w, http.StatusOK, RitualResponse{
		Success:     true,
		RitualID:    completed.Ritual.ID.String(),
		CompletedAt: completed.Ritual.CompletedAt,
		RitualTitle: completed.Ritual.Definition.Title,
	})
}

func (h *Handler) read(w http.ResponseWriter, r *http.Request) (legacyBody, string, bool) {
	var body legacyBody
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		common.WriteJSON(w, http.StatusUnauthorized, errorBody{Error: "Unauthorized"})
		return body, "", false
	}
	if err := common.ParseJSONBody(r, &body, common.DefaultMaxBodyBytes); err != nil {
		common.WriteJSON(w, http.StatusBadRequest, errorBody{Error: "Invalid request body"})
		return body, "", false
	}

	companionID := user.UserID
	if body.CompanionID != "" {
		if !middleware.CanAccessCompanion(user, body.CompanionID) {
			common.WriteJSON(w, http.StatusNotFound, errorBody{Error: "Companion not found"})
			return body, "", false
		}
		companionID = body.CompanionID
	}
	return body, companionID, true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, function string, err error) {
	appErr := pkgerrors.GetAppError(err)
	if appErr == nil || appErr.HTTPStatus >= http.StatusInternalServerError {
		h.logger.Error("Function failed",
			zap.String("function", function),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		status := http.StatusInternalServerError
		if appErr != nil {
			status = appErr.HTTPStatus
		}
		common.WriteJSON(w, status, errorBody{Error: "Internal error"})
		return
	}
	h.logger.Info("Function rejected call",
		zap.String("function", function),
		zap.String("error_type", string(appErr.Type)),
		zap.String("message", appErr.Message),
	)
	common.WriteJSON(w, appErr.HTTPStatus, errorBody{Error: appErr.Message})
}

func refusedResponse(appErr *pkgerrors.AppError) GenerateResponse {
	resp := GenerateResponse{Reason: appErr.Code, Requests: []interface{}{}}
	if v, ok := appErr.Details["cooldown_seconds_remaining"].(int); ok {
		resp.CooldownSecondsRemaining = v
	}
	if v, ok := appErr.Details["open_count"].(int); ok {
		resp.OpenCount = v
	}
	if v, ok := appErr.Details["max_requests"].(int); ok {
		resp.MaxRequests = v
	}
	return resp
}
