package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"budgetshare/internal/api"
	"budgetshare/internal/core"
)

func newTxCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tx",
		Aliases: []string{"transactions"},
		Short:   "List and edit transactions",
	}
	cmd.AddCommand(newTxListCmd(a), newTxAddCmd(a), newTxUpdateCmd(a), newTxDeleteCmd(a))
	return cmd
}

func newTxListCmd(a *app) *cobra.Command {
	var month, category string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List transactions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			actor, err := a.signedIn()
			if err != nil {
				return err
			}
			txs, err := actor.GetAllTransactions(cmdContext(cmd))
			if err != nil {
				return err
			}
			txs, err = filterTransactions(txs, month, category)
			if err != nil {
				return err
			}
			if len(txs) == 0 {
				a.printf("%s\n", mutedStyle.Render("No transactions."))
				return nil
			}
			a.printf("%s", transactionTable(txs).render())
			return nil
		},
	}
	cmd.Flags().StringVarP(&month, "month", "m", "", "only this month (YYYY-MM)")
	cmd.Flags().StringVarP(&category, "category", "c", "", "only this category")
	return cmd
}

func filterTransactions(txs []api.Transaction, month, category string) ([]api.Transaction, error) {
	if month != "" {
		if _, _, err := parseMonth(month); err != nil {
			return nil, err
		}
	}
	out := txs[:0:0]
	for _, t := range txs {
		if month != "" && !strings.HasPrefix(t.Date, month+"-") {
			continue
		}
		if category != "" && !strings.EqualFold(t.Category, category) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func transactionTable(txs []api.Transaction) table {
	t := table{
		headers: []string{"ID", "Date", "Description", "Category", "Amount", "Updated"},
		right:   map[int]bool{0: true, 4: true},
	}
	for _, tx := range txs {
		amount := formatSigned(tx.AmountCents, tx.Kind)
		if core.TransactionKind(tx.Kind) == core.KindIncome {
			amount = incomeStyle.Render(amount)
		}
		t.rows = append(t.rows, []string{
			strconv.FormatInt(tx.ID, 10),
			tx.Date,
			tx.Description,
			tx.Category,
			amount,
			formatWhen(tx.UpdatedAt),
		})
	}
	return t
}

// txFlags are the editable fields shared by add and update.
type txFlags struct {
	date, description, amount, kind, category string
}

func (f *txFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.date, "date", "d", "", "date (YYYY-MM-DD, default today)")
	cmd.Flags().StringVar(&f.description, "desc", "", "description")
	cmd.Flags().StringVarP(&f.amount, "amount", "a", "", "amount, e.g. 12.50 or 12,50")
	cmd.Flags().StringVarP(&f.kind, "kind", "k", string(core.KindExpense), "expense or income")
	cmd.Flags().StringVarP(&f.category, "category", "c", "", "category")
}

// apply copies the flags that were set onto in.
func (f *txFlags) apply(cmd *cobra.Command, in *api.TransactionInput) error {
	set := func(name string) bool { return cmd.Flags().Changed(name) }
	if set("date") {
		if _, err := core.ParseDate(f.date); err != nil {
			return fmt.Errorf("--date: %w", err)
		}
		in.Date = f.date
	}
	if set("desc") {
		in.Description = f.description
	}
	if set("amount") {
		cents, err := core.ParseDecimalToCents(f.amount)
		if err != nil {
			return fmt.Errorf("--amount: %w", err)
		}
		in.AmountCents = cents
	}
	if set("kind") {
		if !core.TransactionKind(f.kind).Valid() {
			return fmt.Errorf("--kind must be %q or %q", core.KindExpense, core.KindIncome)
		}
		in.Kind = f.kind
	}
	if set("category") {
		in.Category = f.category
	}
	return nil
}

func newTxAddCmd(a *app) *cobra.Command {
	var f txFlags
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record a transaction",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			actor, err := a.signedIn()
			if err != nil {
				return err
			}
			in := api.TransactionInput{
				Date: a.now().UTC().Format(time.DateOnly),
				Kind: f.kind,
			}
			if err := f.apply(cmd, &in); err != nil {
				return err
			}
			tx, err := actor.AddTransaction(cmdContext(cmd), in)
			if err != nil {
				return err
			}
			a.printf("Added #%d %s %s on %s\n", tx.ID, tx.Description, formatSigned(tx.AmountCents, tx.Kind), tx.Date)
			return nil
		},
	}
	f.register(cmd)
	_ = cmd.MarkFlagRequired("desc")
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("category")
	return cmd
}

func newTxUpdateCmd(a *app) *cobra.Command {
	var f txFlags
	cmd := &cobra.Command{
		Use:   "update ID",
		Short: "Change fields of a transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			actor, err := a.signedIn()
			if err != nil {
				return err
			}
			ctx := cmdContext(cmd)
			txs, err := actor.GetAllTransactions(ctx)
			if err != nil {
				return err
			}
			var current *api.Transaction
			for i := range txs {
				if txs[i].ID == id {
					current = &txs[i]
					break
				}
			}
			if current == nil {
				return fmt.Errorf("transaction #%d not found", id)
			}

			in := api.TransactionInput{
				Date:        current.Date,
				Description: current.Description,
				AmountCents: current.AmountCents,
				Kind:        current.Kind,
				Category:    current.Category,
			}
			if err := f.apply(cmd, &in); err != nil {
				return err
			}
			tx, err := actor.UpdateTransaction(ctx, id, in)
			if err != nil {
				return err
			}
			a.printf("Updated #%d (version %d)\n", tx.ID, tx.Version)
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

func newTxDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "delete ID",
		Aliases: []string{"rm"},
		Short:   "Delete a transaction",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			actor, err := a.signedIn()
			if err != nil {
				return err
			}
			if err := actor.DeleteTransaction(cmdContext(cmd), id); err != nil {
				return err
			}
			a.printf("Deleted #%d\n", id)
			return nil
		},
	}
}

func newSummaryCmd(a *app) *cobra.Command {
	var month string
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Income, expenses and spending by category for a month",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			year, mon := 0, 0
			if month != "" {
				var err error
				if year, mon, err = parseMonth(month); err != nil {
					return err
				}
			}
			actor, err := a.signedIn()
			if err != nil {
				return err
			}
			s, err := actor.GetMonthSummary(cmdContext(cmd), year, mon)
			if err != nil {
				return err
			}
			a.printf("%s", summaryTable(s).render())
			return nil
		},
	}
	cmd.Flags().StringVarP(&month, "month", "m", "", "month (YYYY-MM, default current)")
	return cmd
}

func summaryTable(s api.MonthSummary) table {
	t := table{
		title:   fmt.Sprintf("%s %d", time.Month(s.Month), s.Year),
		headers: []string{"", "Amount"},
		right:   map[int]bool{1: true},
		rows: [][]string{
			{"Income", incomeStyle.Render(formatMoney(s.IncomeCents))},
			{"Expenses", formatMoney(s.ExpensesCents)},
			{"Net", formatMoney(s.NetCents)},
		},
	}
	for _, c := range s.ByCategory {
		t.rows = append(t.rows, []string{"  " + c.Name, formatMoney(c.AmountCents)})
	}
	return t
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(s, "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func parseMonth(s string) (int, int, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid month %q, want YYYY-MM", s)
	}
	return t.Year(), int(t.Month()), nil
}
