package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"budgetshare/internal/api"
	"budgetshare/internal/core"
	"budgetshare/internal/log"
	"budgetshare/internal/services"
)

// procedure adapts one ledger method to JSON arguments and results.
// A nil result is sent as {"ok": null}.
type procedure func(ctx context.Context, caller core.Caller, args json.RawMessage) (any, error)

func decodeArgs[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(bytes.TrimSpace(raw)) == 0 {
		return v, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return v, fmt.Errorf("%w: %v", errBadArguments, err)
	}
	return v, nil
}

func (s *Server) buildProcedures() map[string]procedure {
	l := s.ledger
	return map[string]procedure{
		services.ProcGetAllTransactions: func(ctx context.Context, c core.Caller, _ json.RawMessage) (any, error) {
			txs, err := l.GetAllTransactions(ctx, c)
			if err != nil {
				return nil, err
			}
			return api.FromTransactions(txs), nil
		},
		services.ProcAddTransaction: func(ctx context.Context, c core.Caller, raw json.RawMessage) (any, error) {
			args, err := decodeArgs[api.TransactionInput](raw)
			if err != nil {
				return nil, err
			}
			in, err := args.ToCore()
			if err != nil {
				return nil, err
			}
			tx, err := l.AddTransaction(ctx, c, in)
			if err != nil {
				return nil, err
			}
			return api.FromTransaction(tx), nil
		},
		services.ProcUpdateTransaction: func(ctx context.Context, c core.Caller, raw json.RawMessage) (any, error) {
			args, err := decodeArgs[api.UpdateTransactionArgs](raw)
			if err != nil {
				return nil, err
			}
			in, err := args.Input.ToCore()
			if err != nil {
				return nil, err
			}
			tx, err := l.UpdateTransaction(ctx, c, args.ID, in)
			if err != nil {
				return nil, err
			}
			return api.FromTransaction(tx), nil
		},
		services.ProcDeleteTransaction: func(ctx context.Context, c core.Caller, raw json.RawMessage) (any, error) {
			args, err := decodeArgs[api.IDArgs](raw)
			if err != nil {
				return nil, err
			}
			return nil, l.DeleteTransaction(ctx, c, args.ID)
		},
		services.ProcGetBudgets: func(ctx context.Context, c core.Caller, _ json.RawMessage) (any, error) {
			budgets, err := l.GetBudgets(ctx, c)
			if err != nil {
				return nil, err
			}
			return api.FromBudgetStatuses(budgets), nil
		},
		services.ProcSetBudget: func(ctx context.Context, c core.Caller, raw json.RawMessage) (any, error) {
			args, err := decodeArgs[api.SetBudgetArgs](raw)
			if err != nil {
				return nil, err
			}
			b, err := l.SetBudget(ctx, c, args.Category, core.Money{Cents: args.LimitCents})
			if err != nil {
				return nil, err
			}
			return api.FromBudget(b), nil
		},
		services.ProcDeleteBudget: func(ctx context.Context, c core.Caller, raw json.RawMessage) (any, error) {
			args, err := decodeArgs[api.CategoryArgs](raw)
			if err != nil {
				return nil, err
			}
			return nil, l.DeleteBudget(ctx, c, args.Category)
		},
		services.ProcGetUsers: func(ctx context.Context, c core.Caller, _ json.RawMessage) (any, error) {
			users, err := l.GetUsers(ctx, c)
			if err != nil {
				return nil, err
			}
			return api.FromUsers(users), nil
		},
		services.ProcRevokeAccess: func(ctx context.Context, c core.Caller, raw json.RawMessage) (any, error) {
			args, err := decodeArgs[api.UserArgs](raw)
			if err != nil {
				return nil, err
			}
			return nil, l.RevokeAccess(ctx, c, args.UserID)
		},
		services.ProcGenerateInviteLink: func(ctx context.Context, c core.Caller, _ json.RawMessage) (any, error) {
			link, err := l.GenerateInviteLink(ctx, c)
			if err != nil {
				return nil, err
			}
			return api.InviteLink{URL: link}, nil
		},
		services.ProcAcceptInvite: func(ctx context.Context, c core.Caller, raw json.RawMessage) (any, error) {
			args, err := decodeArgs[api.TokenArgs](raw)
			if err != nil {
				return nil, err
			}
			return nil, l.AcceptInvite(ctx, c, args.Token)
		},
		services.ProcAssertAdmin: func(ctx context.Context, c core.Caller, _ json.RawMessage) (any, error) {
			return nil, l.AssertAdmin(ctx, c)
		},
		services.ProcWhoami: func(ctx context.Context, c core.Caller, _ json.RawMessage) (any, error) {
			u, err := l.Whoami(ctx, c)
			if err != nil {
				return nil, err
			}
			return api.FromUser(u), nil
		},
		services.ProcGetMonthSummary: func(ctx context.Context, c core.Caller, raw json.RawMessage) (any, error) {
			args, err := decodeArgs[api.MonthArgs](raw)
			if err != nil {
				return nil, err
			}
			if args.Year == 0 && args.Month == 0 {
				args.Year, args.Month = l.CurrentMonth()
			}
			sum, err := l.GetMonthSummary(ctx, c, args.Year, args.Month)
			if err != nil {
				return nil, err
			}
			return api.FromSummary(sum), nil
		},
	}
}

// handleCall serves POST /api/call/{method}. The session is checked before
// the method is even looked up.
func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	u, err := s.authenticate(r)
	if err != nil {
		s.reject(w, r, err)
		return
	}

	method := r.PathValue("method")
	proc, ok := s.procedures[method]
	if !ok {
		writeResult(w, http.StatusNotFound, api.ErrResult(api.KindUnknownMethod, "unknown method "+method))
		return
	}

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxFormBytes))
	if err != nil {
		s.reject(w, r, fmt.Errorf("%w: %v", errBadArguments, err))
		return
	}

	out, err := proc(r.Context(), core.Caller{UserID: u.ID}, raw)
	if err != nil {
		s.reject(w, r, err)
		return
	}
	s.respond(w, r, out)
}

func (s *Server) handleAPILogin(w http.ResponseWriter, r *http.Request) {
	args, err := readArgs[api.LoginArgs](w, r)
	if err != nil {
		s.reject(w, r, err)
		return
	}
	sess, u, err := s.auth.Login(r.Context(), args.Email, args.Password)
	if err != nil {
		s.reject(w, r, err)
		return
	}
	s.respond(w, r, api.Session{Token: sess.Token, ExpiresAt: sess.ExpiresAt, User: api.FromUser(u)})
}

func (s *Server) handleAPIRegister(w http.ResponseWriter, r *http.Request) {
	args, err := readArgs[api.RegisterArgs](w, r)
	if err != nil {
		s.reject(w, r, err)
		return
	}
	u, err := s.auth.Register(r.Context(), args.Email, args.Name, args.Password)
	if err != nil {
		s.reject(w, r, err)
		return
	}
	s.respond(w, r, api.FromUser(u))
}

func (s *Server) handleAPILogout(w http.ResponseWriter, r *http.Request) {
	token := sessionToken(r)
	if token == "" {
		s.reject(w, r, core.ErrNotAuthenticated)
		return
	}
	if err := s.auth.Logout(r.Context(), token); err != nil {
		s.reject(w, r, err)
		return
	}
	s.respond(w, r, nil)
}

func readArgs[T any](w http.ResponseWriter, r *http.Request) (T, error) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxFormBytes))
	if err != nil {
		var zero T
		return zero, fmt.Errorf("%w: %v", errBadArguments, err)
	}
	return decodeArgs[T](raw)
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, out any) {
	res, err := api.OkResult(out)
	if err != nil {
		s.reject(w, r, fmt.Errorf("encode result: %w", err))
		return
	}
	writeResult(w, http.StatusOK, res)
}

func (s *Server) reject(w http.ResponseWriter, r *http.Request, err error) {
	status, rej := classify(err)
	if status >= http.StatusInternalServerError {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "RPC failed",
			log.FieldComponent, log.ComponentRPC, log.FieldPath, r.URL.Path, log.FieldError, err)
	}
	writeResult(w, status, api.Result{Err: &rej})
}

func writeResult(w http.ResponseWriter, status int, res api.Result) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(res)
}
