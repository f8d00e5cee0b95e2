package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"
)

func newLoginCmd(a *app) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and remember the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			if email == "" {
				if email, err = a.prompt("Email"); err != nil {
					return err
				}
			}
			if password == "" {
				password = os.Getenv("BUDGETCTL_PASSWORD")
			}
			if password == "" {
				if password, err = a.prompt("Password"); err != nil {
					return err
				}
			}

			actor := a.actor()
			sess, err := actor.Login(cmdContext(cmd), email, password)
			if err != nil {
				return err
			}
			if err := a.saveSession(sessionConfig{Token: sess.Token, Email: sess.User.Email, ExpiresAt: sess.ExpiresAt}); err != nil {
				return err
			}
			a.printf("Signed in as %s (%s), session expires %s\n",
				sess.User.Name, sess.User.Role, formatWhen(sess.ExpiresAt))
			return nil
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (or BUDGETCTL_PASSWORD)")
	return cmd
}

func newRegisterCmd(a *app) *cobra.Command {
	var email, name, password string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if email == "" || name == "" {
				return errors.New("--email and --name are required")
			}
			if password == "" {
				password = os.Getenv("BUDGETCTL_PASSWORD")
			}
			if password == "" {
				var err error
				if password, err = a.prompt("Password"); err != nil {
					return err
				}
			}
			u, err := a.actor().Register(cmdContext(cmd), email, name, password)
			if err != nil {
				return err
			}
			a.printf("Registered %s. Ask an admin for an invite link, then run `budgetctl login`.\n", u.Email)
			return nil
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	cmd.Flags().StringVarP(&name, "name", "n", "", "display name")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (or BUDGETCTL_PASSWORD)")
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the saved session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.cfg.Session.Token == "" {
				a.printf("Not signed in.\n")
				return nil
			}
			if err := a.actor().Logout(cmdContext(cmd)); err != nil {
				return err
			}
			if err := a.saveSession(sessionConfig{}); err != nil {
				return err
			}
			a.printf("Signed out.\n")
			return nil
		},
	}
}

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			actor, err := a.signedIn()
			if err != nil {
				return err
			}
			u, err := actor.Whoami(cmdContext(cmd))
			if err != nil {
				return err
			}
			a.printf("%s <%s>\n", titleStyle.Render(u.Name), u.Email)
			a.printf("%s %s\n", mutedStyle.Render("role:"), u.Role)
			a.printf("%s %s\n", mutedStyle.Render("server:"), a.cfg.Server)
			if !a.cfg.Session.ExpiresAt.IsZero() {
				a.printf("%s %s\n", mutedStyle.Render("session expires:"), formatWhen(a.cfg.Session.ExpiresAt))
			}
			return nil
		},
	}
}
