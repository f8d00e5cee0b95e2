package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"budgetshare/internal/core"
	"budgetshare/internal/log"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	health := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.startTime).String(),
	}
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(health)
}

// handleReady performs readiness check with dependency verification
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]interface{})

	if s.templates == nil {
		checks["templates"] = "failed: templates not loaded"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["templates"] = "ok"
	}

	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			checks[name] = fmt.Sprintf("failed: %v", err)
			status = "not_ready"
			httpStatus = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	checks["rate_limiter"] = map[string]interface{}{
		"active_clients": s.limiter.ActiveClients(),
		"status":         "ok",
	}

	response := map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	}
	w.WriteHeader(httpStatus)
	_ = json.NewEncoder(w).Encode(response)
}

type dashboardData struct {
	User         core.User
	Transactions []core.Transaction
	Budgets      []core.BudgetStatus
	Users        []core.User
	Summary      core.MonthSummary
	Categories   []string
	Today        string
}

// handleDashboard renders the main page. Ledger reads run concurrently.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r.Context())
	data := dashboardData{User: u, Today: s.today().Format(time.DateOnly)}
	if !u.HasAccess() {
		s.render(w, r, http.StatusOK, "index.html", data)
		return
	}

	caller := callerFrom(r.Context())
	month := ParseMonthParams(r.URL.Query(), s.now())

	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		data.Transactions, err = s.ledger.GetAllTransactions(ctx, caller)
		return err
	})
	g.Go(func() error {
		var err error
		data.Budgets, err = s.ledger.GetBudgets(ctx, caller)
		return err
	})
	g.Go(func() error {
		var err error
		data.Summary, err = s.ledger.GetMonthSummary(ctx, caller, month.Year, month.Month)
		return err
	})
	if u.IsAdmin() {
		g.Go(func() error {
			var err error
			data.Users, err = s.ledger.GetUsers(ctx, caller)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		s.fail(w, r, "dashboard", err)
		return
	}

	data.Categories = categories(data.Transactions, data.Budgets)
	s.render(w, r, http.StatusOK, "index.html", data)
}

func (s *Server) handleTransactionsPartial(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r.Context())
	month := ParseMonthParams(r.URL.Query(), s.now())

	txs, err := s.ledger.GetAllTransactions(r.Context(), caller)
	if err != nil {
		s.fail(w, r, "list transactions", err)
		return
	}
	summary, err := s.ledger.GetMonthSummary(r.Context(), caller, month.Year, month.Month)
	if err != nil {
		s.fail(w, r, "month summary", err)
		return
	}
	s.render(w, r, http.StatusOK, "transactions", dashboardData{
		User:         userFrom(r.Context()),
		Transactions: txs,
		Summary:      summary,
	})
}

func (s *Server) handleBudgetsPartial(w http.ResponseWriter, r *http.Request) {
	budgets, err := s.ledger.GetBudgets(r.Context(), callerFrom(r.Context()))
	if err != nil {
		s.fail(w, r, "list budgets", err)
		return
	}
	s.render(w, r, http.StatusOK, "budgets", dashboardData{User: userFrom(r.Context()), Budgets: budgets})
}

func (s *Server) handleUsersPartial(w http.ResponseWriter, r *http.Request) {
	users, err := s.ledger.GetUsers(r.Context(), callerFrom(r.Context()))
	if err != nil {
		s.fail(w, r, "list users", err)
		return
	}
	s.render(w, r, http.StatusOK, "users", dashboardData{User: userFrom(r.Context()), Users: users})
}

// fail logs a failed UI action and answers with an error toast. Internal
// errors are shown with a generic message.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, action string, err error) {
	status, rej := classify(err)
	logger := log.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "UI action failed", log.FieldOperation, action, log.FieldError, err)
	} else {
		logger.WarnContext(r.Context(), "UI action rejected", log.FieldOperation, action, log.FieldError, err)
	}
	NewHTMXResponse().Status(status).TriggerErrorNotification(rej.Message).Write(w)
}

// categories lists every category in use, for the form suggestions.
func categories(txs []core.Transaction, budgets []core.BudgetStatus) []string {
	seen := map[string]bool{}
	var out []string
	add := func(c string) {
		if c != "" && !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	for _, b := range budgets {
		add(b.Category)
	}
	for _, t := range txs {
		add(t.Category)
	}
	sort.Strings(out)
	return out
}
