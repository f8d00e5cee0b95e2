package http

import (
	"fmt"
	"html/template"
	"net/http"
	"time"

	"budgetshare/internal/core"
	"budgetshare/internal/log"
)

// Each mutation is one ledger call. On success the response carries the
// triggers that make the affected lists reload; on failure, an error toast.

// today is the default date of new transactions, as a UTC calendar day.
func (s *Server) today() time.Time {
	y, m, d := s.now().UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (s *Server) parseForm(w http.ResponseWriter, r *http.Request) (*RequestBodyParser, bool) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		s.fail(w, r, "parse form", fmt.Errorf("%w: %v", errBadArguments, err))
		return nil, false
	}
	return p, true
}

func (s *Server) handleAddTransaction(w http.ResponseWriter, r *http.Request) {
	p, ok := s.parseForm(w, r)
	if !ok {
		return
	}
	in, err := ParseTransactionInput(p, core.Date{Time: s.today()})
	if err != nil {
		s.fail(w, r, "add transaction", err)
		return
	}

	tx, err := s.ledger.AddTransaction(r.Context(), callerFrom(r.Context()), in)
	if err != nil {
		s.fail(w, r, "add transaction", err)
		return
	}

	log.FromContext(r.Context()).InfoContext(r.Context(), "Transaction created",
		log.NewFields().WithTransaction(tx.ID, tx.Version, string(tx.Kind), tx.Category, tx.Amount.Cents).ToSlice()...)

	NewHTMXResponse().
		TriggerTransactionsRefresh().
		TriggerBudgetsRefresh().
		TriggerFormReset().
		TriggerSuccessNotification(fmt.Sprintf("Saved %s: %s", tx.Description, formatMoney(tx.Amount.Cents))).
		Write(w)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, "update transaction", err)
		return
	}
	p, ok := s.parseForm(w, r)
	if !ok {
		return
	}
	in, err := ParseTransactionInput(p, core.Date{Time: s.today()})
	if err != nil {
		s.fail(w, r, "update transaction", err)
		return
	}

	tx, err := s.ledger.UpdateTransaction(r.Context(), callerFrom(r.Context()), id, in)
	if err != nil {
		s.fail(w, r, "update transaction", err)
		return
	}

	NewHTMXResponse().
		TriggerTransactionsRefresh().
		TriggerBudgetsRefresh().
		TriggerSuccessNotification(fmt.Sprintf("Updated %s", tx.Description)).
		Write(w)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, "delete transaction", err)
		return
	}
	if err := s.ledger.DeleteTransaction(r.Context(), callerFrom(r.Context()), id); err != nil {
		s.fail(w, r, "delete transaction", err)
		return
	}

	NewHTMXResponse().
		TriggerTransactionsRefresh().
		TriggerBudgetsRefresh().
		TriggerSuccessNotification("Transaction deleted").
		Write(w)
}

func (s *Server) handleSetBudget(w http.ResponseWriter, r *http.Request) {
	p, ok := s.parseForm(w, r)
	if !ok {
		return
	}
	category, limit, err := ParseBudgetInput(p)
	if err != nil {
		s.fail(w, r, "set budget", err)
		return
	}

	b, err := s.ledger.SetBudget(r.Context(), callerFrom(r.Context()), category, limit)
	if err != nil {
		s.fail(w, r, "set budget", err)
		return
	}

	NewHTMXResponse().
		TriggerBudgetsRefresh().
		TriggerFormReset().
		TriggerSuccessNotification(fmt.Sprintf("Budget for %s set to %s", b.Category, formatMoney(b.Limit.Cents))).
		Write(w)
}

func (s *Server) handleDeleteBudget(w http.ResponseWriter, r *http.Request) {
	category := r.PathValue("category")
	if err := s.ledger.DeleteBudget(r.Context(), callerFrom(r.Context()), category); err != nil {
		s.fail(w, r, "delete budget", err)
		return
	}

	NewHTMXResponse().
		TriggerBudgetsRefresh().
		TriggerSuccessNotification("Budget removed").
		Write(w)
}

// handleGenerateInvite answers with the link itself so the page can show it.
func (s *Server) handleGenerateInvite(w http.ResponseWriter, r *http.Request) {
	link, err := s.ledger.GenerateInviteLink(r.Context(), callerFrom(r.Context()))
	if err != nil {
		s.fail(w, r, "generate invite", err)
		return
	}

	escaped := template.HTMLEscapeString(link)
	NewHTMXResponse().
		TriggerInviteCreated(link).
		TriggerSuccessNotification("Invite link created").
		BodyHTML(`<input class="invite-link" type="text" readonly value="` + escaped + `">`).
		Write(w)
}

func (s *Server) handleRevokeAccess(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, "revoke access", err)
		return
	}
	if err := s.ledger.RevokeAccess(r.Context(), callerFrom(r.Context()), id); err != nil {
		s.fail(w, r, "revoke access", err)
		return
	}

	NewHTMXResponse().
		TriggerUsersRefresh().
		TriggerSuccessNotification("Access revoked").
		Write(w)
}

type invitePageData struct {
	User  core.User
	Token string
}

func (s *Server) handleInvitePage(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "invite.html", invitePageData{
		User:  userFrom(r.Context()),
		Token: r.PathValue("token"),
	})
}

func (s *Server) handleAcceptInvite(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.AcceptInvite(r.Context(), callerFrom(r.Context()), r.PathValue("token")); err != nil {
		s.fail(w, r, "accept invite", err)
		return
	}

	NewHTMXResponse().
		TriggerSuccessNotification("Welcome aboard!").
		Redirect("/").
		Write(w)
}
