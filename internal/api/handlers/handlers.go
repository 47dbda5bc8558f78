package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/align/internal/api/middleware"
	"github.com/dvloznov/align/internal/dashboard"
	"github.com/dvloznov/align/internal/domain"
)

// writeStoreError maps dashboard sentinels onto HTTP statuses.
func writeStoreError(w http.ResponseWriter, log zerolog.Logger, err error, action string) {
	switch {
	case errors.Is(err, dashboard.ErrInvalidInput):
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, dashboard.ErrNotFound):
		middleware.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, dashboard.ErrSyncInProgress):
		middleware.WriteError(w, http.StatusConflict, err.Error())
	default:
		log.Error().Err(err).Msg("Failed to " + action)
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to "+action)
	}
}

// DashboardHandler handles the dashboard views and user intents.
type DashboardHandler struct {
	store *dashboard.Store
	log   zerolog.Logger
}

// NewDashboardHandler creates a new dashboard handler.
func NewDashboardHandler(store *dashboard.Store, log zerolog.Logger) *DashboardHandler {
	return &DashboardHandler{
		store: store,
		log:   log,
	}
}

// GetDashboard handles GET /api/dashboard
func (h *DashboardHandler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, h.store.View(false))
}

// ListTransactions handles GET /api/transactions
func (h *DashboardHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	view := h.store.View(true)
	transactions := view.Transactions
	if transactions == nil {
		transactions = []dashboard.TransactionView{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": transactions,
		"count":        len(transactions),
	})
}

// AddTransaction handles POST /api/transactions
func (h *DashboardHandler) AddTransaction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID      string          `json:"user_id"`
		Description string          `json:"description"`
		Amount      decimal.Decimal `json:"amount"`
		Date        string          `json:"date"`
		Type        string          `json:"type"`
		Category    string          `json:"category"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	var date civil.Date
	if req.Date != "" {
		d, err := civil.ParseDate(req.Date)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid date format, expected YYYY-MM-DD")
			return
		}
		date = d
	}

	tx, err := h.store.AddManualTransaction(dashboard.ManualInput{
		UserID:      req.UserID,
		Description: req.Description,
		Amount:      req.Amount,
		Date:        date,
		Type:        domain.TransactionType(strings.ToUpper(strings.TrimSpace(req.Type))),
		Category:    req.Category,
	})
	if err != nil {
		writeStoreError(w, h.log, err, "add transaction")
		return
	}

	h.log.Info().Str("transaction_id", tx.ID).Str("user_id", tx.UserID).Msg("Manual transaction added")
	middleware.WriteJSON(w, http.StatusCreated, dashboard.TransactionView{Transaction: tx, Icon: tx.Icon()})
}

// GetAlert handles GET /api/alert
func (h *DashboardHandler) GetAlert(w http.ResponseWriter, r *http.Request) {
	view := h.store.View(false)
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"alert": view.Alert,
		"phase": view.Phase,
	})
}

// DismissAlert handles DELETE /api/alert
func (h *DashboardHandler) DismissAlert(w http.ResponseWriter, r *http.Request) {
	h.store.DismissAlert()
	w.WriteHeader(http.StatusNoContent)
}

// ListTasks handles GET /api/tasks
func (h *DashboardHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	tasks := h.store.Snapshot().Tasks
	if tasks == nil {
		tasks = []domain.Task{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"tasks": tasks,
		"count": len(tasks),
	})
}

// AddTask handles POST /api/tasks
func (h *DashboardHandler) AddTask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title            string  `json:"title"`
		AssignedToUserID *string `json:"assigned_to_user_id"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	task, err := h.store.AddTask(dashboard.NewTaskInput{
		Title:            req.Title,
		AssignedToUserID: req.AssignedToUserID,
	})
	if err != nil {
		writeStoreError(w, h.log, err, "add task")
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, task)
}

// ToggleTask handles POST /api/tasks/{id}/toggle
func (h *DashboardHandler) ToggleTask(w http.ResponseWriter, r *http.Request, taskID string) {
	task, err := h.store.ToggleTask(taskID)
	if err != nil {
		writeStoreError(w, h.log, err, "toggle task")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, task)
}

// SetSavingsRate handles PUT /api/users/{id}/savings-rate
func (h *DashboardHandler) SetSavingsRate(w http.ResponseWriter, r *http.Request, userID string) {
	var req struct {
		SavingsRate *int `json:"savings_rate"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.SavingsRate == nil {
		middleware.WriteError(w, http.StatusBadRequest, "savings_rate is required")
		return
	}

	user, err := h.store.SetSavingsRate(userID, *req.SavingsRate)
	if err != nil {
		writeStoreError(w, h.log, err, "set savings rate")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, user)
}

// UpdateProfile handles PUT /api/profile
func (h *DashboardHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.store.SetProfileName(req.Name); err != nil {
		writeStoreError(w, h.log, err, "update profile")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"profile_name": h.store.Snapshot().ProfileName,
	})
}

// ListGoals handles GET /api/goals
func (h *DashboardHandler) ListGoals(w http.ResponseWriter, r *http.Request) {
	goals := h.store.View(false).Goals
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"goals": goals,
		"count": len(goals),
	})
}

// ListRewards handles GET /api/rewards
func (h *DashboardHandler) ListRewards(w http.ResponseWriter, r *http.Request) {
	view := h.store.View(false)
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"rewards": view.Rewards,
		"points":  view.Totals.Points,
		"count":   len(view.Rewards),
	})
}
