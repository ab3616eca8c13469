package handlers

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/fitgoals/apiserver/internal/services"
	"github.com/go-chi/chi/v5"
)

const (
	goalIDParam     = "goalID"
	exportNameParam = "exportName"
)

// GoalHandler provides HTTP handlers for goals. Every route runs behind
// the auth middleware and only ever touches the caller's own goals.
type GoalHandler struct {
	goalService *services.GoalService
	logger      *slog.Logger
}

// NewGoalHandler constructs a GoalHandler with the provided service.
func NewGoalHandler(goalService *services.GoalService, logger *slog.Logger) *GoalHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &GoalHandler{
		goalService: goalService,
		logger:      logger,
	}
}

// GoalRouter registers goal routes on the given router.
func GoalRouter(
	r chi.Router,
	goalService *services.GoalService,
	authMiddleware func(http.Handler) http.Handler,
	logger *slog.Logger,
) {
	handler := NewGoalHandler(goalService, logger)

	r.Use(authMiddleware)
	r.Get("/", handler.ListGoals)
	r.Post("/", handler.CreateGoal)
	r.Post("/export", handler.ExportGoals)
	r.Get("/exports/{"+exportNameParam+"}", handler.DownloadExport)
	r.Delete("/exports/{"+exportNameParam+"}", handler.DeleteExport)
	r.Route("/{"+goalIDParam+"}", func(r chi.Router) {
		r.Get("/", handler.GetGoal)
		r.Put("/", handler.UpdateGoal)
		r.Delete("/", handler.DeleteGoal)
		r.Post("/progress", handler.RecordProgress)
	})
}

func (h *GoalHandler) ListGoals(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	goals, err := h.goalService.List(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if len(goals) == 0 {
		writeError(w, http.StatusNotFound, "No goals found")
		return
	}

	writeJSON(w, http.StatusOK, goals)
}

func (h *GoalHandler) GetGoal(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	goal, err := h.goalService.Get(r.Context(), userID, chi.URLParam(r, goalIDParam))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, goal)
}

func (h *GoalHandler) CreateGoal(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var req GoalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeInvalidBody(w)
		return
	}

	goal, err := h.goalService.Create(r.Context(), userID, req.toInput())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, goal)
}

func (h *GoalHandler) UpdateGoal(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var req GoalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeInvalidBody(w)
		return
	}

	goal, err := h.goalService.Update(r.Context(), userID, chi.URLParam(r, goalIDParam), req.toInput())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, goal)
}

func (h *GoalHandler) DeleteGoal(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	if err := h.goalService.Delete(r.Context(), userID, chi.URLParam(r, goalIDParam)); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *GoalHandler) RecordProgress(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var req ProgressRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeInvalidBody(w)
		return
	}

	goal, err := h.goalService.RecordProgress(r.Context(), userID, chi.URLParam(r, goalIDParam), req.toInput())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, goal)
}

func (h *GoalHandler) ExportGoals(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	result, err := h.goalService.Export(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	w.Header().Set("Location", "/goals/exports/"+result.Name)
	writeJSON(w, http.StatusCreated, result)
}

func (h *GoalHandler) DownloadExport(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	name := chi.URLParam(r, exportNameParam)
	body, err := h.goalService.OpenExport(r.Context(), userID, name)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Cache-Control", "private, no-store")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		h.logger.WarnContext(r.Context(), "export download interrupted", "user_id", userID, "name", name, "error", err)
	}
}

func (h *GoalHandler) DeleteExport(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	if err := h.goalService.DeleteExport(r.Context(), userID, chi.URLParam(r, exportNameParam)); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *GoalHandler) requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, msgTokenInvalid)
		return "", false
	}
	return userID, true
}

// GoalRequest is the body accepted by create and update.
type GoalRequest struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Type        string            `json:"type"`
	StartDate   string            `json:"startDate"`
	EndDate     string            `json:"endDate"`
	TargetValue *float64          `json:"targetValue"`
	Unit        string            `json:"unit"`
	Progress    []ProgressRequest `json:"progress"`
}

type ProgressRequest struct {
	Date  string   `json:"date"`
	Value *float64 `json:"value"`
}

func (req GoalRequest) toInput() services.GoalInput {
	in := services.GoalInput{
		Name:        req.Name,
		Description: req.Description,
		Type:        req.Type,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		TargetValue: req.TargetValue,
		Unit:        req.Unit,
	}
	if req.Progress != nil {
		in.Progress = make([]services.ProgressInput, 0, len(req.Progress))
		for _, p := range req.Progress {
			in.Progress = append(in.Progress, p.toInput())
		}
	}
	return in
}

func (req ProgressRequest) toInput() services.ProgressInput {
	return services.ProgressInput{Date: req.Date, Value: req.Value}
}
