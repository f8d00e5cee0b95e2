package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"budgetshare/internal/api"
	"budgetshare/internal/core"
)

func newBudgetCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "budget",
		Aliases: []string{"budgets"},
		Short:   "Monthly category limits",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "Show budgets with this month's spending",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			actor, err := a.signedIn()
			if err != nil {
				return err
			}
			budgets, err := actor.GetBudgets(cmdContext(cmd))
			if err != nil {
				return err
			}
			if len(budgets) == 0 {
				a.printf("%s\n", mutedStyle.Render("No budgets set."))
				return nil
			}
			a.printf("%s", budgetTable(budgets).render())
			return nil
		},
	}

	set := &cobra.Command{
		Use:   "set CATEGORY AMOUNT",
		Short: "Create or change a category's monthly limit",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cents, err := core.ParseDecimalToCents(args[1])
			if err != nil {
				return fmt.Errorf("amount: %w", err)
			}
			actor, err := a.signedIn()
			if err != nil {
				return err
			}
			b, err := actor.SetBudget(cmdContext(cmd), args[0], cents)
			if err != nil {
				return err
			}
			a.printf("Budget for %s set to %s\n", b.Category, formatMoney(b.LimitCents))
			return nil
		},
	}

	del := &cobra.Command{
		Use:     "delete CATEGORY",
		Aliases: []string{"rm"},
		Short:   "Remove a category's limit",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := a.signedIn()
			if err != nil {
				return err
			}
			if err := actor.DeleteBudget(cmdContext(cmd), args[0]); err != nil {
				return err
			}
			a.printf("Budget for %s removed\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(list, set, del)
	return cmd
}

func budgetTable(budgets []api.BudgetStatus) table {
	t := table{
		headers: []string{"Category", "Limit", "Spent", "Remaining", "Used"},
		right:   map[int]bool{1: true, 2: true, 3: true, 4: true},
	}
	for _, b := range budgets {
		remaining := formatMoney(b.RemainingCents)
		if b.Over {
			remaining = overStyle.Render(remaining)
		}
		t.rows = append(t.rows, []string{
			b.Category,
			formatMoney(b.LimitCents),
			formatMoney(b.SpentCents),
			remaining,
			formatPercent(b.UsedPercent, b.Over),
		})
	}
	return t
}

func newUsersCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage who can see the budget (admin)",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List accounts with access",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			actor, err := a.signedIn()
			if err != nil {
				return err
			}
			users, err := actor.GetUsers(cmdContext(cmd))
			if err != nil {
				return err
			}
			a.printf("%s", userTable(users).render())
			return nil
		},
	}

	revoke := &cobra.Command{
		Use:   "revoke ID|EMAIL",
		Short: "Remove a member's access",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := a.signedIn()
			if err != nil {
				return err
			}
			ctx := cmdContext(cmd)
			id, err := parseID(args[0])
			if err != nil {
				users, lerr := actor.GetUsers(ctx)
				if lerr != nil {
					return lerr
				}
				if id = findUser(users, args[0]); id == 0 {
					return fmt.Errorf("no user matching %q", args[0])
				}
			}
			if err := actor.RevokeAccess(ctx, id); err != nil {
				return err
			}
			a.printf("Revoked access for user #%d\n", id)
			return nil
		},
	}

	cmd.AddCommand(list, revoke)
	return cmd
}

func findUser(users []api.User, email string) int64 {
	for _, u := range users {
		if strings.EqualFold(u.Email, email) {
			return u.ID
		}
	}
	return 0
}

func userTable(users []api.User) table {
	t := table{
		headers: []string{"ID", "Name", "Email", "Role", "Joined"},
		right:   map[int]bool{0: true},
	}
	for _, u := range users {
		role := u.Role
		if core.Role(role) == core.RoleAdmin {
			role = headerStyle.Render(role)
		}
		t.rows = append(t.rows, []string{
			strconv.FormatInt(u.ID, 10),
			u.Name,
			u.Email,
			role,
			formatWhen(u.CreatedAt),
		})
	}
	return t
}

func newInviteCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invite",
		Short: "Create or accept invite links",
	}

	create := &cobra.Command{
		Use:   "create",
		Short: "Generate a one-time invite link (admin)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			actor, err := a.signedIn()
			if err != nil {
				return err
			}
			link, err := actor.GenerateInviteLink(cmdContext(cmd))
			if err != nil {
				return err
			}
			a.printf("%s\n", link)
			return nil
		},
	}

	accept := &cobra.Command{
		Use:   "accept TOKEN|LINK",
		Short: "Join a budget with an invite",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := a.signedIn()
			if err != nil {
				return err
			}
			if err := actor.AcceptInvite(cmdContext(cmd), args[0]); err != nil {
				return err
			}
			a.printf("Invite accepted, you now have access to the budget.\n")
			return nil
		},
	}

	cmd.AddCommand(create, accept)
	return cmd
}
