package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/dvloznov/align/internal/api/middleware"
)

// Routes groups the handlers served by the API.
type Routes struct {
	Dashboard *DashboardHandler
	Sync      *SyncHandler
	Jobs      *JobsHandler
	Export    *ExportHandler
}

func methodNotAllowed(w http.ResponseWriter) {
	middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
}

// NewMux creates the router for all API endpoints.
func NewMux(rt Routes) *http.ServeMux {
	mux := http.NewServeMux()

	// Dashboard endpoints
	mux.HandleFunc("/api/dashboard", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			rt.Dashboard.GetDashboard(w, r)
		} else {
			methodNotAllowed(w)
		}
	})

	mux.HandleFunc("/api/transactions", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			rt.Dashboard.ListTransactions(w, r)
		case http.MethodPost:
			rt.Dashboard.AddTransaction(w, r)
		default:
			methodNotAllowed(w)
		}
	})

	mux.HandleFunc("/api/alert", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			rt.Dashboard.GetAlert(w, r)
		case http.MethodDelete:
			rt.Dashboard.DismissAlert(w, r)
		default:
			methodNotAllowed(w)
		}
	})

	mux.HandleFunc("/api/tasks", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			rt.Dashboard.ListTasks(w, r)
		case http.MethodPost:
			rt.Dashboard.AddTask(w, r)
		default:
			methodNotAllowed(w)
		}
	})

	mux.HandleFunc("/api/tasks/", func(w http.ResponseWriter, r *http.Request) {
		// Expect /api/tasks/{id}/toggle
		rest := strings.TrimPrefix(r.URL.Path, "/api/tasks/")
		taskID, action, ok := strings.Cut(rest, "/")
		if !ok || taskID == "" || action != "toggle" {
			middleware.WriteError(w, http.StatusNotFound, "Not found")
			return
		}
		if r.Method == http.MethodPost {
			rt.Dashboard.ToggleTask(w, r, taskID)
		} else {
			methodNotAllowed(w)
		}
	})

	mux.HandleFunc("/api/users/", func(w http.ResponseWriter, r *http.Request) {
		// Expect /api/users/{id}/savings-rate
		rest := strings.TrimPrefix(r.URL.Path, "/api/users/")
		userID, action, ok := strings.Cut(rest, "/")
		if !ok || userID == "" || action != "savings-rate" {
			middleware.WriteError(w, http.StatusNotFound, "Not found")
			return
		}
		if r.Method == http.MethodPut {
			rt.Dashboard.SetSavingsRate(w, r, userID)
		} else {
			methodNotAllowed(w)
		}
	})

	mux.HandleFunc("/api/profile", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut {
			rt.Dashboard.UpdateProfile(w, r)
		} else {
			methodNotAllowed(w)
		}
	})

	mux.HandleFunc("/api/goals", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			rt.Dashboard.ListGoals(w, r)
		} else {
			methodNotAllowed(w)
		}
	})

	mux.HandleFunc("/api/rewards", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			rt.Dashboard.ListRewards(w, r)
		} else {
			methodNotAllowed(w)
		}
	})

	// Sync endpoints
	mux.HandleFunc("/api/sync", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			rt.Sync.GetSync(w, r)
		case http.MethodPost:
			rt.Sync.RequestSync(w, r)
		default:
			methodNotAllowed(w)
		}
	})

	// Jobs endpoints
	mux.HandleFunc("/api/jobs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			rt.Jobs.ListJobs(w, r)
		} else {
			methodNotAllowed(w)
		}
	})

	mux.HandleFunc("/api/jobs/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			// Extract job ID from path
			jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
			if jobID == "" {
				middleware.WriteError(w, http.StatusBadRequest, "Job ID is required")
				return
			}
			rt.Jobs.GetJob(w, r, jobID)
		} else {
			methodNotAllowed(w)
		}
	})

	// Export endpoint
	mux.HandleFunc("/api/export", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			rt.Export.RunExport(w, r)
		} else {
			methodNotAllowed(w)
		}
	})

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	return mux
}
