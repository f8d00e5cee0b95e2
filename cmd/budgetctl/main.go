// Command budgetctl manages a shared budget from the terminal.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"budgetshare/internal/client"
	"budgetshare/internal/core"
)

// app carries what every subcommand needs: the loaded config, where it
// lives and the streams to talk to.
type app struct {
	configPath string
	server     string
	timeout    time.Duration

	cfg ctlConfig
	in  *bufio.Reader
	out io.Writer
	now func() time.Time
}

func main() {
	a := &app{in: bufio.NewReader(os.Stdin), out: os.Stdout, now: time.Now}
	if err := newRootCmd(a).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, describeError(err))
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "budgetctl",
		Short:         "Shared budget ledger from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(a.configPath)
			if err != nil {
				return err
			}
			if a.server != "" {
				cfg.Server = a.server
			}
			a.cfg = cfg
			return nil
		},
	}
	root.SetOut(a.out)
	root.SetIn(a.in)

	root.PersistentFlags().StringVar(&a.configPath, "config", defaultConfigPath(), "config file")
	root.PersistentFlags().StringVar(&a.server, "server", os.Getenv("BUDGETSHARE_URL"), "server URL (overrides the config file)")
	root.PersistentFlags().DurationVar(&a.timeout, "timeout", 15*time.Second, "request timeout")

	root.AddCommand(
		newLoginCmd(a),
		newRegisterCmd(a),
		newLogoutCmd(a),
		newWhoamiCmd(a),
		newTxCmd(a),
		newSummaryCmd(a),
		newBudgetCmd(a),
		newUsersCmd(a),
		newInviteCmd(a),
	)
	return root
}

// actor returns a client carrying the saved session, if it is still valid.
func (a *app) actor() *client.Actor {
	token := ""
	if a.cfg.Session.valid(a.now()) {
		token = a.cfg.Session.Token
	}
	return client.New(client.Config{BaseURL: a.cfg.Server, Token: token, Timeout: a.timeout})
}

// signedIn is actor for commands that make no sense without a session.
func (a *app) signedIn() (*client.Actor, error) {
	if !a.cfg.Session.valid(a.now()) {
		return nil, errors.New("not signed in, run `budgetctl login` first")
	}
	return a.actor(), nil
}

func (a *app) saveSession(s sessionConfig) error {
	a.cfg.Session = s
	return saveConfig(a.configPath, a.cfg)
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

// prompt reads one line from stdin.
func (a *app) prompt(label string) (string, error) {
	a.printf("%s: ", label)
	line, err := a.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("reading %s: %w", strings.ToLower(label), err)
	}
	return strings.TrimSpace(line), nil
}

// describeError turns server rejections into something a person can act on.
func describeError(err error) string {
	var rej *client.RejectError
	if !errors.As(err, &rej) {
		return "error: " + err.Error()
	}
	if kind, ok := rej.InviteKind(); ok {
		return kind.Message()
	}
	switch {
	case errors.Is(rej, core.ErrNotAuthenticated):
		return "session expired or missing, run `budgetctl login`"
	case rej.Message != "":
		return rej.Message
	}
	return "error: " + rej.Kind
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
